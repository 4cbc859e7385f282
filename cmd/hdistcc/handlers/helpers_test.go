package handlers

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hdistcc/internal/config"
	"github.com/imamik/hdistcc/internal/fleet"
	"github.com/imamik/hdistcc/internal/platform/fake"
	hdssh "github.com/imamik/hdistcc/internal/platform/ssh"
	"github.com/imamik/hdistcc/internal/util/keygen"
)

const testOwner = "0a1b2c3d"

// fakeProvider adds public address detection to the in-memory backend.
type fakeProvider struct {
	*fake.Backend
	ip    string
	ipErr error
}

func (p fakeProvider) PublicIP(context.Context) (string, error) {
	return p.ip, p.ipErr
}

// env holds the fakes wired into the handler factories.
type env struct {
	settings   *config.Settings
	backend    *fake.Backend
	provider   *fakeProvider
	prober     *fake.Prober
	dispatcher *fake.Dispatcher
	out        *bytes.Buffer
	makeArgs   []string
}

// identity is the fleet the handlers operate on under env.
func (e *env) identity() fleet.Identity {
	return fleet.Identity{
		Project:   e.settings.Project,
		Zone:      e.settings.Zone,
		Prefix:    e.settings.Prefix,
		Distro:    e.settings.Distro,
		OwnerHash: testOwner,
	}
}

func (e *env) seed(indices ...int) {
	for _, i := range indices {
		e.backend.AddNode(e.settings.Project, e.settings.Zone, e.identity().NodeName(i), fleet.StatusRunning)
	}
}

// withFakes replaces every runtime factory for the duration of the test.
func withFakes(t *testing.T) *env {
	t.Helper()

	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	pair, err := keygen.GenerateEd25519KeyPair("test")
	require.NoError(t, err)
	require.NoError(t, pair.WriteFiles(keyPath))

	s := config.Default()
	s.SSH.PrivateKeyPath = keyPath
	s.Readiness.Interval = time.Millisecond

	backend := fake.NewBackend()
	e := &env{
		settings:   s,
		backend:    backend,
		provider:   &fakeProvider{Backend: backend, ip: "203.0.113.7"},
		prober:     fake.NewProber(),
		dispatcher: &fake.Dispatcher{},
		out:        &bytes.Buffer{},
	}

	origLoad, origTimeouts, origOwner := loadSettings, loadTimeouts, ownerHash
	origToken, origProvider, origProber := resolveToken, newProvider, newProber
	origDispatcher, origStdout, origStderr, origColor := newDispatcher, stdout, stderr, useColor
	t.Cleanup(func() {
		loadSettings, loadTimeouts, ownerHash = origLoad, origTimeouts, origOwner
		resolveToken, newProvider, newProber = origToken, origProvider, origProber
		newDispatcher, stdout, stderr, useColor = origDispatcher, origStdout, origStderr, origColor
	})

	loadSettings = func(string, bool) (*config.Settings, error) {
		copied := *e.settings
		return &copied, nil
	}
	loadTimeouts = func() *config.Timeouts {
		return &config.Timeouts{
			Operation:          time.Minute,
			Node:               time.Minute,
			CreatePollInterval: time.Millisecond,
			DeletePollInterval: time.Millisecond,
			MaxPollErrors:      3,
		}
	}
	ownerHash = func() (string, error) { return testOwner, nil }
	resolveToken = func() (string, error) { return "test-token", nil }
	newProvider = func(string, *config.Settings, *config.Timeouts, logr.Logger) fleetProvider {
		return e.provider
	}
	newProber = func(*config.Settings, []byte, hdssh.NodeLister, logr.Logger) (fleet.Prober, error) {
		return e.prober, nil
	}
	newDispatcher = func(_ *config.Settings, _ string, args []string, _ logr.Logger) fleet.Dispatcher {
		e.makeArgs = args
		return e.dispatcher
	}
	stdout = e.out
	stderr = &bytes.Buffer{}
	useColor = func() bool { return false }

	return e
}
