package ssh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hdistcc/internal/fleet"
)

type fakeExec struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	hosts   []string
}

func (f *fakeExec) Execute(_ context.Context, host, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosts = append(f.hosts, host)
	if err := f.errs[host]; err != nil {
		return "", err
	}
	if command != "cat '/tmp/hdistcc_ready'" {
		return "", errors.New("unexpected command " + command)
	}
	return f.outputs[host], nil
}

type fakeLister struct {
	calls atomic.Int32
	nodes []fleet.NodeStatus
	err   error
}

func (f *fakeLister) ListNodes(_ context.Context, project, zone string) ([]fleet.NodeStatus, error) {
	f.calls.Add(1)
	if project != "proj" || zone != "fsn1" {
		return nil, nil
	}
	return f.nodes, f.err
}

func noPortCheck(context.Context, string, int, time.Duration) bool { return true }

func TestProber_ProbeReady(t *testing.T) {
	lister := &fakeLister{nodes: []fleet.NodeStatus{
		{Name: "n-1", Status: "RUNNING", Address: "10.0.0.1"},
		{Name: "n-2", Status: "RUNNING", Address: "10.0.0.2"},
		{Name: "n-3", Status: "RUNNING", Address: "10.0.0.3"},
		{Name: "n-4", Status: "STARTING"},
	}}
	exec := &fakeExec{
		outputs: map[string]string{
			"10.0.0.1": "HDISTCC_READY\n",
			"10.0.0.2": "partial\n",
		},
		errs: map[string]error{"10.0.0.3": errors.New("connection refused")},
	}
	p := NewProber(exec, lister, WithPortCheck(noPortCheck))
	ctx := context.Background()

	assert.True(t, p.ProbeReady(ctx, "n-1", "fsn1", "proj"), "marker present")
	assert.False(t, p.ProbeReady(ctx, "n-2", "fsn1", "proj"), "marker missing")
	assert.False(t, p.ProbeReady(ctx, "n-3", "fsn1", "proj"), "ssh failure")
	assert.False(t, p.ProbeReady(ctx, "n-4", "fsn1", "proj"), "no address")
	assert.False(t, p.ProbeReady(ctx, "n-1", "nbg1", "proj"), "other zone")

	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, exec.hosts)
}

func TestProber_CachesAddresses(t *testing.T) {
	lister := &fakeLister{nodes: []fleet.NodeStatus{
		{Name: "n-1", Address: "10.0.0.1"},
		{Name: "n-2", Address: "10.0.0.2"},
	}}
	exec := &fakeExec{outputs: map[string]string{"10.0.0.1": "HDISTCC_READY", "10.0.0.2": "HDISTCC_READY"}}
	p := NewProber(exec, lister, WithPortCheck(noPortCheck))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() { defer wg.Done(); p.ProbeReady(context.Background(), "n-1", "fsn1", "proj") }()
		go func() { defer wg.Done(); p.ProbeReady(context.Background(), "n-2", "fsn1", "proj") }()
	}
	wg.Wait()

	assert.Positive(t, lister.calls.Load())
	calls := lister.calls.Load()
	require.True(t, p.ProbeReady(context.Background(), "n-1", "fsn1", "proj"))
	assert.Equal(t, calls, lister.calls.Load(), "cached address needs no listing")
}

func TestProber_ListingFailure(t *testing.T) {
	lister := &fakeLister{err: errors.New("api down")}
	p := NewProber(&fakeExec{}, lister, WithPortCheck(noPortCheck))

	assert.False(t, p.ProbeReady(context.Background(), "n-1", "fsn1", "proj"))
}

func TestProber_PortClosedSkipsSSH(t *testing.T) {
	lister := &fakeLister{nodes: []fleet.NodeStatus{{Name: "n-1", Address: "10.0.0.1"}}}
	exec := &fakeExec{outputs: map[string]string{"10.0.0.1": "HDISTCC_READY"}}
	var checkedPort int
	p := NewProber(exec, lister, WithPort(2222), WithPortCheck(func(_ context.Context, _ string, port int, _ time.Duration) bool {
		checkedPort = port
		return false
	}))

	assert.False(t, p.ProbeReady(context.Background(), "n-1", "fsn1", "proj"))
	assert.Equal(t, 2222, checkedPort)
	assert.Empty(t, exec.hosts)
}

func TestProber_EmptyMarkerAcceptsReadableSentinel(t *testing.T) {
	lister := &fakeLister{nodes: []fleet.NodeStatus{{Name: "n-1", Address: "10.0.0.1"}}}
	exec := &fakeExec{outputs: map[string]string{"10.0.0.1": ""}}
	p := NewProber(exec, lister, WithPortCheck(nil), WithSentinel(DefaultSentinelPath, ""))

	assert.True(t, p.ProbeReady(context.Background(), "n-1", "fsn1", "proj"))
}

func TestProber_OverSSH(t *testing.T) {
	keyPair := generateTestKey(t)
	port := startTestServer(t, keyPair.PublicKey, map[string]string{
		"cat '/var/run/ready'": "HDISTCC_READY\n",
	})
	client, err := NewClient(&Config{User: "root", Port: port, PrivateKey: keyPair.PrivateKey, DialTimeout: 2 * time.Second})
	require.NoError(t, err)

	lister := &fakeLister{nodes: []fleet.NodeStatus{{Name: "n-1", Address: "127.0.0.1"}}}
	p := NewProber(client, lister, WithPort(port), WithSentinel("/var/run/ready", DefaultMarker))

	assert.True(t, p.ProbeReady(context.Background(), "n-1", "fsn1", "proj"))
}
