package ssh

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/singleflight"

	"github.com/imamik/hdistcc/internal/fleet"
	"github.com/imamik/hdistcc/internal/util/netutil"
)

var _ fleet.Prober = (*Prober)(nil)

// Default readiness sentinel written by the startup script.
const (
	DefaultSentinelPath = "/tmp/hdistcc_ready"
	DefaultMarker       = "HDISTCC_READY"
)

// Executor runs a command on a host.
type Executor interface {
	Execute(ctx context.Context, host, command string) (string, error)
}

// NodeLister lists the nodes of a zone. fleet.Provider satisfies it.
type NodeLister interface {
	ListNodes(ctx context.Context, project, zone string) ([]fleet.NodeStatus, error)
}

// PortCheck reports whether host:port accepts TCP connections.
type PortCheck func(ctx context.Context, host string, port int, timeout time.Duration) bool

// Prober checks readiness sentinels over SSH.
type Prober struct {
	exec      Executor
	nodes     NodeLister
	sentinel  string
	marker    string
	port      int
	portCheck PortCheck
	log       logr.Logger

	lookups singleflight.Group
	mu      sync.Mutex
	addrs   map[string]string
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithSentinel sets the sentinel file and the marker it must contain.
// An empty marker accepts any readable sentinel.
func WithSentinel(path, marker string) ProberOption {
	return func(p *Prober) {
		p.sentinel = path
		p.marker = marker
	}
}

// WithPortCheck replaces the TCP pre-check. nil disables it.
func WithPortCheck(check PortCheck) ProberOption {
	return func(p *Prober) {
		p.portCheck = check
	}
}

// WithPort sets the port used by the pre-check.
func WithPort(port int) ProberOption {
	return func(p *Prober) {
		p.port = port
	}
}

// WithProbeLogger logs probe failures at V(1).
func WithProbeLogger(log logr.Logger) ProberOption {
	return func(p *Prober) {
		p.log = log
	}
}

// NewProber creates a Prober running commands through exec and resolving
// addresses through nodes.
func NewProber(exec Executor, nodes NodeLister, opts ...ProberOption) *Prober {
	p := &Prober{
		exec:      exec,
		nodes:     nodes,
		sentinel:  DefaultSentinelPath,
		marker:    DefaultMarker,
		port:      defaultPort,
		portCheck: netutil.PortOpen,
		log:       logr.Discard(),
		addrs:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProbeReady reports whether the node's sentinel holds the marker. Every
// failure along the way is reported as false.
func (p *Prober) ProbeReady(ctx context.Context, name, zone, project string) bool {
	addr, ok := p.address(ctx, name, zone, project)
	if !ok {
		p.log.V(1).Info("no address yet", "node", name)
		return false
	}
	if p.portCheck != nil && !p.portCheck(ctx, addr, p.port, 0) {
		p.log.V(1).Info("ssh port closed", "node", name, "address", addr)
		return false
	}

	out, err := p.exec.Execute(ctx, addr, "cat "+shellQuote(p.sentinel))
	if err != nil {
		p.log.V(1).Info("sentinel not readable", "node", name, "error", err.Error())
		return false
	}
	return p.marker == "" || strings.Contains(out, p.marker)
}

// address returns the cached address of the node, listing the zone once
// for all concurrent callers on a miss.
func (p *Prober) address(ctx context.Context, name, zone, project string) (string, bool) {
	scope := project + "/" + zone + "/"
	if addr, ok := p.cached(scope + name); ok {
		return addr, true
	}

	_, err, _ := p.lookups.Do(scope, func() (any, error) {
		nodes, err := p.nodes.ListNodes(ctx, project, zone)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		for _, n := range nodes {
			if n.Address != "" {
				p.addrs[scope+n.Name] = n.Address
			}
		}
		return nil, nil
	})
	if err != nil {
		p.log.V(1).Info("listing failed", "zone", zone, "error", err.Error())
		return "", false
	}
	return p.cached(scope + name)
}

func (p *Prober) cached(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	addr, ok := p.addrs[key]
	return addr, ok
}

// shellQuote quotes s for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
