package fleet_test

import (
	"time"

	"github.com/imamik/hdistcc/internal/fleet"
	"github.com/imamik/hdistcc/internal/platform/fake"
	"github.com/imamik/hdistcc/internal/util/clock"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	testProject = "proj"
	testZone    = "fsn1"
)

func testIdentity() fleet.Identity {
	return fleet.Identity{
		Project:   testProject,
		Zone:      testZone,
		Prefix:    "hd",
		Distro:    "ubuntu",
		OwnerHash: "0a1b2c3d",
	}
}

type harness struct {
	id         fleet.Identity
	backend    *fake.Backend
	prober     *fake.Prober
	dispatcher *fake.Dispatcher
	clock      *clock.SteppingClock
}

func newHarness() *harness {
	return &harness{
		id:         testIdentity(),
		backend:    fake.NewBackend(),
		prober:     fake.NewProber(),
		dispatcher: &fake.Dispatcher{},
		clock:      clock.Stepping(epoch),
	}
}

func (h *harness) orchestrator(opts fleet.Options, extra ...fleet.Option) *fleet.Orchestrator {
	options := append([]fleet.Option{fleet.WithClock(h.clock)}, extra...)
	return fleet.New(h.id, h.backend, h.prober, h.dispatcher, opts, options...)
}

func (h *harness) seed(names ...string) {
	for _, n := range names {
		h.backend.AddNode(testProject, testZone, n, fleet.StatusRunning)
	}
}
