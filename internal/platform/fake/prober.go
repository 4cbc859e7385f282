package fake

import (
	"context"
	"sync"
)

// Prober is an in-memory fleet.Prober. A node becomes ready on its k-th
// probe as configured with ReadyAfter; unconfigured nodes are ready on the
// first probe unless Default is set.
type Prober struct {
	mu     sync.Mutex
	after  map[string]int
	probes map[string]int

	// Default is the readiness attempt for unconfigured nodes; 0 means 1
	// and a negative value means never.
	Default int
}

// NewProber returns a prober where every node is ready on the first probe.
func NewProber() *Prober {
	return &Prober{after: make(map[string]int), probes: make(map[string]int)}
}

// ReadyAfter makes name ready on probe k. k < 1 means never.
func (p *Prober) ReadyAfter(name string, k int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if k < 1 {
		k = -1
	}
	p.after[name] = k
}

// Probes returns how many times name was probed.
func (p *Prober) Probes(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes[name]
}

// TotalProbes returns the number of probes across all nodes.
func (p *Prober) TotalProbes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, n := range p.probes {
		total += n
	}
	return total
}

// ProbeReady implements fleet.Prober.
func (p *Prober) ProbeReady(ctx context.Context, name, _, _ string) bool {
	if ctx.Err() != nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes[name]++

	k, ok := p.after[name]
	if !ok {
		k = p.Default
		if k == 0 {
			k = 1
		}
	}
	return k > 0 && p.probes[name] >= k
}
