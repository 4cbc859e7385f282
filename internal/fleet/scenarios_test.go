package fleet_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/imamik/hdistcc/internal/fleet"
	"github.com/imamik/hdistcc/internal/observe"
)

var _ = Describe("Fleet lifecycle", func() {
	var (
		ctx  context.Context
		h    *harness
		rec  *observe.Recorder
		orch *fleet.Orchestrator
	)

	BeforeEach(func() {
		ctx = context.Background()
		h = newHarness()
		rec = observe.NewRecorder()
		orch = h.orchestrator(fleet.Options{SlotsPerNode: 2}, fleet.WithObserver(rec))
	})

	Describe("start", func() {
		DescribeTable("is rejected while running nodes exist",
			func(qty int) {
				h.seed("hd-ubuntu-0a1b2c3d-4")
				_, err := orch.Start(ctx, qty, false)
				Expect(err).To(MatchError(fleet.ErrFleetAlreadyExists))
				Expect(h.backend.CallCounts().Create).To(BeZero())
			},
			Entry("qty 1", 1),
			Entry("qty 3", 3),
			Entry("qty 8", 8),
		)

		It("brings three nodes to READY on an empty backend", func() {
			res, err := orch.Start(ctx, 3, false)
			Expect(err).NotTo(HaveOccurred())

			Expect(h.backend.CallCounts().Create).To(Equal(3))
			Expect(h.backend.Nodes()).To(HaveLen(3))
			Expect(h.prober.TotalProbes()).To(Equal(3))
			Expect(res.Success).To(BeTrue())
			Expect(res.Nodes).To(HaveEach(HaveField("State", fleet.StateReady)))
		})

		DescribeTable("keeps one record per requested node when node k fails",
			func(n, k int) {
				failing := fmt.Sprintf("hd-ubuntu-0a1b2c3d-%d", k)
				h.backend.FailCreate(failing, "resource_unavailable")

				res, err := orch.Start(ctx, n, false)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Nodes).To(HaveLen(n))
				Expect(res.Failed()).To(ConsistOf(HaveField("Name", failing)))
				Expect(h.prober.TotalProbes()).To(Equal(n - 1))
			},
			Entry("first of two", 2, 1),
			Entry("middle of five", 5, 3),
			Entry("last of eight", 8, 8),
		)
	})

	Describe("readiness", func() {
		DescribeTable("reports ready after exactly k polls",
			func(k int) {
				h.prober.ReadyAfter("hd-ubuntu-0a1b2c3d-1", k)
				poller := fleet.NewReadinessPoller(h.prober, h.clock, 0, 0)

				attempts, err := poller.WaitReady(ctx, h.id, "hd-ubuntu-0a1b2c3d-1", nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(attempts).To(Equal(k))
				Expect(h.clock.Now().Sub(epoch)).To(Equal(time.Duration(k-1) * fleet.DefaultReadyInterval))
			},
			Entry("k=1", 1),
			Entry("k=12", 12),
			Entry("k=40", 40),
		)

		It("gives up after 40 attempts", func() {
			h.prober.ReadyAfter("hd-ubuntu-0a1b2c3d-1", 0)
			poller := fleet.NewReadinessPoller(h.prober, h.clock, 0, 0)

			attempts, err := poller.WaitReady(ctx, h.id, "hd-ubuntu-0a1b2c3d-1", nil)
			Expect(err).To(HaveOccurred())
			Expect(fleet.IsWarning(err)).To(BeTrue())
			Expect(attempts).To(Equal(40))
			Expect(h.prober.Probes("hd-ubuntu-0a1b2c3d-1")).To(Equal(40))
		})
	})

	Describe("operation waiter", func() {
		It("times out on an operation that never completes", func() {
			h.backend.Hang("n-1")
			op, err := h.backend.CreateNode(ctx, testProject, testZone, fleet.NodeSpec{Name: "n-1"})
			Expect(err).NotTo(HaveOccurred())

			deadline, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			w := fleet.NewOperationWaiter(h.backend, nil, 0)

			Expect(w.Wait(deadline, testProject, testZone, op, 5*time.Millisecond, nil)).
				To(MatchError(fleet.ErrOperationTimeout))
		})
	})

	Describe("make", func() {
		It("is a successful no-op without running nodes", func() {
			res, err := orch.Make(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Success).To(BeTrue())
			Expect(res.Message).To(ContainSubstring("No instances"))
			Expect(h.dispatcher.Calls()).To(BeEmpty())
		})

		It("hands every running node to the dispatcher", func() {
			_, err := orch.Start(ctx, 3, true)
			Expect(err).NotTo(HaveOccurred())

			res, err := orch.Make(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Hosts).To(HaveLen(3))
			Expect(res.Parallelism).To(Equal(12))
			Expect(h.dispatcher.Calls()).To(HaveLen(1))
		})
	})

	Describe("stop", func() {
		It("succeeds on an empty fleet", func() {
			res, err := orch.Stop(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Success).To(BeTrue())
			Expect(res.Nodes).To(BeEmpty())
			Expect(h.backend.CallCounts().Delete).To(BeZero())
		})

		It("tears down what start created", func() {
			_, err := orch.Start(ctx, 4, false)
			Expect(err).NotTo(HaveOccurred())

			res, err := orch.Stop(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Nodes).To(HaveLen(4))
			Expect(res.Nodes).To(HaveEach(HaveField("State", fleet.StateGone)))
			Expect(h.backend.Nodes()).To(BeEmpty())
		})
	})
})
