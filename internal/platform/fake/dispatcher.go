package fake

import (
	"context"
	"slices"
	"sync"

	"github.com/imamik/hdistcc/internal/fleet"
)

// Dispatcher records build hand-offs instead of running a build.
type Dispatcher struct {
	mu    sync.Mutex
	calls []Dispatch

	// Err is returned from every Dispatch call.
	Err error
}

// Dispatch is one recorded hand-off.
type Dispatch struct {
	Hosts       []fleet.HostDescriptor
	Parallelism int
}

// Dispatch implements fleet.Dispatcher.
func (d *Dispatcher) Dispatch(_ context.Context, hosts []fleet.HostDescriptor, parallelism int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Dispatch{Hosts: slices.Clone(hosts), Parallelism: parallelism})
	return d.Err
}

// Calls returns the recorded hand-offs.
func (d *Dispatcher) Calls() []Dispatch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.calls)
}
