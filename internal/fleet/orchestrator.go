package fleet

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/imamik/hdistcc/internal/observe"
	"github.com/imamik/hdistcc/internal/util/async"
	"github.com/imamik/hdistcc/internal/util/clock"
	"github.com/imamik/hdistcc/internal/util/labels"
	"github.com/imamik/hdistcc/internal/util/naming"
)

// DefaultMaxFleetSize caps start quantities to bound backend load.
const DefaultMaxFleetSize = 8

const tracerName = "github.com/imamik/hdistcc/internal/fleet"

// Options configures an Orchestrator. Zero values fall back to defaults.
type Options struct {
	// ImageOwner and ImageFamily are passed to Provider.ResolveImage.
	ImageOwner  string
	ImageFamily string

	MachineType   string
	StartupScript string
	Network       NetworkConfig
	Scopes        []string
	Preemptible   bool
	Labels        map[string]string

	// SSHPublicKey, when set, is registered under the fleet's key name
	// before provisioning and attached to every node.
	SSHPublicKey string

	// FirewallSources, when set, restricts inbound SSH to these CIDRs
	// with a firewall named after the fleet.
	FirewallSources []string

	// ManageSSHKey and ManageFirewall make Stop delete the fleet's key and
	// firewall by name. Stop needs neither key material nor sources.
	ManageSSHKey   bool
	ManageFirewall bool

	CreatePollInterval time.Duration
	DeletePollInterval time.Duration
	MaxPollErrors      int

	// NodeTimeout bounds one node's create or delete, including its wait.
	NodeTimeout time.Duration

	// OperationTimeout bounds a whole Start, Status, Make or Stop call.
	OperationTimeout time.Duration

	ReadyAttempts int
	ReadyInterval time.Duration

	MaxFleetSize int
	SlotsPerNode int
}

func (o *Options) applyDefaults() {
	if o.CreatePollInterval <= 0 {
		o.CreatePollInterval = 2 * time.Second
	}
	if o.DeletePollInterval <= 0 {
		o.DeletePollInterval = time.Second
	}
	if o.MaxFleetSize <= 0 {
		o.MaxFleetSize = DefaultMaxFleetSize
	}
	if o.SlotsPerNode <= 0 {
		o.SlotsPerNode = DefaultSlotsPerNode
	}
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithObserver sets the observer that receives events and progress.
func WithObserver(obs observe.Observer) Option {
	return func(o *Orchestrator) { o.obs = obs }
}

// WithClock replaces the clock used by every poll loop.
func WithClock(clk clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = clk }
}

// WithMetrics records outcomes and durations in m.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// Orchestrator runs the fleet operations for one identity. It holds no
// fleet state between calls: every operation starts from a fresh listing.
type Orchestrator struct {
	id         Identity
	opts       Options
	provider   Provider
	prober     Prober
	dispatcher Dispatcher

	obs     observe.Observer
	clock   clock.Clock
	metrics *Metrics
	tracer  trace.Tracer

	directory   *Directory
	provisioner *Provisioner
	readiness   *ReadinessPoller
	terminator  *Terminator
}

// New creates an Orchestrator. dispatcher may be nil when Make is not used.
func New(id Identity, provider Provider, prober Prober, dispatcher Dispatcher, opts Options, options ...Option) *Orchestrator {
	opts.applyDefaults()
	o := &Orchestrator{
		id:         id,
		opts:       opts,
		provider:   provider,
		prober:     prober,
		dispatcher: dispatcher,
		obs:        observe.Nop(),
		clock:      clock.Real(),
	}
	for _, opt := range options {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}

	waiter := NewOperationWaiter(provider, o.clock, opts.MaxPollErrors)
	waiter.metrics = o.metrics
	o.directory = NewDirectory(provider)
	o.provisioner = NewProvisioner(provider, waiter, opts.CreatePollInterval, opts.NodeTimeout)
	o.terminator = NewTerminator(provider, waiter, opts.DeletePollInterval, opts.NodeTimeout)
	o.readiness = NewReadinessPoller(prober, o.clock, opts.ReadyAttempts, opts.ReadyInterval)
	o.readiness.metrics = o.metrics
	return o
}

// Identity returns the fleet this orchestrator operates on.
func (o *Orchestrator) Identity() Identity { return o.id }

// Start creates qty nodes and, unless skipFullStartup is set, waits for each
// to report ready. It fails before any node is created when the fleet
// already has running nodes.
//
// Node failures do not fail the call: they are reported per node and make
// Result.Success false. Readiness timeouts are warnings. The returned error
// is reserved for fleet-scoped failures and the overall deadline, in which
// case the partial result is still returned.
func (o *Orchestrator) Start(ctx context.Context, qty int, skipFullStartup bool) (*Result, error) {
	if qty < 1 || qty > o.opts.MaxFleetSize {
		return nil, fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidQuantity, qty, o.opts.MaxFleetSize)
	}

	ctx, finish := o.begin(ctx, OpStart, attribute.Int("qty", qty))
	result := &Result{Operation: OpStart}
	var err error
	defer func() { finish(result, err) }()

	existing, err := o.directory.List(ctx, o.id, false)
	if err != nil {
		return nil, err
	}
	if existing.Len() > 0 {
		err = &FleetExistsError{Names: existing.Names()}
		return nil, err
	}

	spec, err := o.nodeSpec(ctx)
	if err != nil {
		return nil, err
	}

	o.obs.Printf("Creating %d instances in %s", qty, o.id.Zone)
	records, err := o.provisionStage(ctx, spec, qty)
	if err != nil {
		o.collect(result, FleetView{}, records)
		return result, err
	}

	view, err := o.directory.List(ctx, o.id, true)
	if err != nil {
		err = o.stageError(ctx, err)
		o.collect(result, FleetView{}, records)
		return result, err
	}
	o.metrics.observeFleet(o.id.BaseName(), view.Len())
	ready := o.observeCreated(view, records, !skipFullStartup)

	if skipFullStartup {
		o.obs.Printf("NOTE: It may take several minutes for %d nodes to finish setup", len(ready))
	} else if err = o.readinessStage(ctx, ready); err != nil {
		o.collect(result, view, records)
		return result, err
	}

	o.collect(result, view, records)
	return result, nil
}

// Status lists the running nodes of the fleet and waits for each to report
// ready. It never changes fleet state.
func (o *Orchestrator) Status(ctx context.Context) (*Result, error) {
	ctx, finish := o.begin(ctx, OpStatus)
	result := &Result{Operation: OpStatus}
	var err error
	defer func() { finish(result, err) }()

	view, err := o.directory.List(ctx, o.id, false)
	if err != nil {
		return nil, err
	}
	o.metrics.observeFleet(o.id.BaseName(), view.Len())
	if view.Len() == 0 {
		o.noInstances(result)
		return result, nil
	}

	records := make(map[string]*NodeRecord, view.Len())
	running := make([]*NodeRecord, 0, view.Len())
	for _, n := range view.Nodes {
		r := DiscoveredRecord(n)
		records[n.Name] = r
		running = append(running, r)
	}

	err = o.readinessStage(ctx, running)
	o.collect(result, view, records)
	return result, err
}

// Make hands the running nodes to the dispatcher. With no running nodes it
// reports "no instances" and succeeds without dispatching.
func (o *Orchestrator) Make(ctx context.Context) (*Result, error) {
	ctx, finish := o.begin(ctx, OpMake)
	result := &Result{Operation: OpMake}
	var err error
	defer func() { finish(result, err) }()

	view, err := o.directory.List(ctx, o.id, false)
	if err != nil {
		return nil, err
	}
	if view.Len() == 0 {
		o.noInstances(result)
		return result, nil
	}

	records := make(map[string]*NodeRecord, view.Len())
	for _, n := range view.Nodes {
		records[n.Name] = DiscoveredRecord(n)
	}
	o.collect(result, view, records)

	result.Hosts = BuildHosts(o.id, view, o.opts.SlotsPerNode)
	result.Parallelism = RecommendedParallelism(result.Hosts)

	if o.dispatcher == nil {
		err = errors.New("no build dispatcher configured")
		result.Success = false
		return result, err
	}
	o.obs.Printf("Dispatching build to %d hosts with -j%d", len(result.Hosts), result.Parallelism)
	if err = o.dispatcher.Dispatch(ctx, result.Hosts, result.Parallelism); err != nil {
		err = fmt.Errorf("build dispatch failed: %w", err)
		result.Success = false
		result.Message = err.Error()
		return result, err
	}
	return result, nil
}

// Stop deletes every node of the fleet whatever its status. An empty fleet
// is success.
func (o *Orchestrator) Stop(ctx context.Context) (*Result, error) {
	ctx, finish := o.begin(ctx, OpStop)
	result := &Result{Operation: OpStop}
	var err error
	defer func() { finish(result, err) }()

	o.obs.Printf("Deleting instances, this may take a few moments")
	view, err := o.directory.List(ctx, o.id, true)
	if err != nil {
		return nil, err
	}
	if view.Len() == 0 {
		o.noInstances(result)
		o.releaseFleetResources(ctx)
		return result, nil
	}

	records := make(map[string]*NodeRecord, view.Len())
	for _, n := range view.Nodes {
		records[n.Name] = DiscoveredRecord(n)
	}

	stageCtx, span := o.tracer.Start(ctx, "terminate")
	outcomes := async.Map(stageCtx, view.Nodes, view.Len(), nodeName, func(ctx context.Context, n NodeStatus) (struct{}, error) {
		r := records[n.Name]
		_ = r.Advance(StateTerminating)
		o.obs.Event(observe.Event{Type: observe.EventNodeTerminating, Phase: "terminate", Node: n.Name, Message: "deleting node"})
		if err := o.terminator.Delete(ctx, o.id, n.Name, o.obs.WithFields(map[string]string{"node": n.Name})); err != nil {
			r.Fail(err)
			o.obs.Event(observe.Event{Type: observe.EventNodeFailed, Phase: "terminate", Node: n.Name, Message: err.Error()})
			return struct{}{}, err
		}
		_ = r.Advance(StateGone)
		o.obs.Event(observe.Event{Type: observe.EventNodeTerminated, Phase: "terminate", Node: n.Name, Message: "node deleted"})
		return struct{}{}, nil
	})
	span.SetAttributes(attribute.Int("failed", len(async.Errors(outcomes))))
	span.End()

	o.collect(result, view, records)
	if err = o.stageError(ctx, nil); err != nil {
		return result, err
	}
	if result.Success {
		o.releaseFleetResources(ctx)
	}
	return result, nil
}

// begin applies the operation deadline and opens the operation span. The
// returned func closes both and records the outcome.
func (o *Orchestrator) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*Result, error)) {
	start := o.clock.Now()
	cancel := context.CancelFunc(func() {})
	if o.opts.OperationTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.opts.OperationTimeout)
	}

	attrs = append(attrs, attribute.String("fleet", o.id.BaseName()), attribute.String("zone", o.id.Zone))
	ctx, span := o.tracer.Start(ctx, "fleet."+op, trace.WithAttributes(attrs...))
	o.obs.Event(observe.Event{Type: observe.EventOperationStarted, Phase: op, Message: o.id.BaseName()})

	return ctx, func(result *Result, err error) {
		defer cancel()
		defer span.End()

		success := err == nil && result != nil && result.Success
		span.SetAttributes(attribute.Bool("success", success))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.obs.Event(observe.Event{Type: observe.EventOperationFailed, Phase: op, Message: err.Error()})
		} else {
			o.obs.Event(observe.Event{Type: observe.EventOperationCompleted, Phase: op, Message: result.Message})
		}
		if result != nil {
			for _, n := range result.Nodes {
				o.metrics.nodeOutcome(op, n.State)
			}
		}
		o.metrics.operationDone(op, success, o.clock.Now().Sub(start))
	}
}

// nodeSpec resolves the shared spec for one start call. Any failure here is
// fleet-scoped.
func (o *Orchestrator) nodeSpec(ctx context.Context) (NodeSpec, error) {
	image, err := o.provider.ResolveImage(ctx, o.opts.ImageOwner, o.opts.ImageFamily)
	if err != nil {
		return NodeSpec{}, fmt.Errorf("failed to resolve image %s/%s: %w", o.opts.ImageOwner, o.opts.ImageFamily, err)
	}

	base := o.id.BaseName()
	spec := NodeSpec{
		Name:          base,
		Image:         image,
		MachineType:   o.opts.MachineType,
		StartupScript: o.opts.StartupScript,
		Network:       o.opts.Network,
		Scopes:        slices.Clone(o.opts.Scopes),
		Preemptible:   o.opts.Preemptible,
		Labels: labels.NewLabelBuilder(base).
			WithOwner(o.id.OwnerHash).
			WithDistro(o.id.Distro).
			WithPreemptible(o.opts.Preemptible).
			Merge(o.opts.Labels).
			Build(),
	}

	if o.opts.SSHPublicKey != "" {
		km, ok := o.provider.(KeyManager)
		if !ok {
			return NodeSpec{}, errors.New("provider does not manage SSH keys")
		}
		keyName := naming.SSHKey(base)
		if err := km.EnsureSSHKey(ctx, keyName, o.opts.SSHPublicKey, spec.Labels); err != nil {
			return NodeSpec{}, fmt.Errorf("failed to ensure SSH key %s: %w", keyName, err)
		}
		spec.SSHKeys = []string{keyName}
	}

	if len(o.opts.FirewallSources) > 0 {
		fm, ok := o.provider.(FirewallManager)
		if !ok {
			return NodeSpec{}, errors.New("provider does not manage firewalls")
		}
		if err := fm.EnsureFirewall(ctx, base, o.opts.FirewallSources, spec.Labels); err != nil {
			return NodeSpec{}, fmt.Errorf("failed to ensure firewall %s: %w", base, err)
		}
	}
	return spec, nil
}

// provisionStage creates nodes 1..qty and joins. Every index gets a record,
// failed or not.
func (o *Orchestrator) provisionStage(ctx context.Context, spec NodeSpec, qty int) (map[string]*NodeRecord, error) {
	ctx, span := o.tracer.Start(ctx, "provision", trace.WithAttributes(attribute.Int("qty", qty)))
	defer span.End()

	indices := make([]int, qty)
	for i := range indices {
		indices[i] = i + 1
	}

	outcomes := async.Map(ctx, indices, qty, strconv.Itoa, func(ctx context.Context, index int) (*NodeRecord, error) {
		return o.provisioner.Create(ctx, o.id, spec, index, o.obs)
	})

	records := make(map[string]*NodeRecord, qty)
	for _, out := range outcomes {
		records[out.Value.Name] = out.Value
	}
	span.SetAttributes(attribute.Int("failed", len(async.Errors(outcomes))))
	return records, o.stageError(ctx, nil)
}

// observeCreated folds the post-create listing into the records and returns
// the records that reached RUNNING. With checkReady set, a created node that
// is not RUNNING ends with a readiness warning since it is never probed.
func (o *Orchestrator) observeCreated(view FleetView, records map[string]*NodeRecord, checkReady bool) []*NodeRecord {
	listed := make(map[string]NodeStatus, view.Len())
	for _, n := range view.Nodes {
		listed[n.Name] = n
		if _, ok := records[n.Name]; !ok {
			// Belongs to the fleet but was not created by this call.
			records[n.Name] = DiscoveredRecord(n)
		}
	}

	var running []*NodeRecord
	for name, r := range records {
		if r.State != StateExists && r.State != StateRunning {
			continue
		}
		n, ok := listed[name]
		if !ok {
			r.Fail(&ProvisionError{Name: name, Cause: errors.New("node missing from listing after creation")})
			continue
		}
		r.Observe(n.Status)
		if r.State == StateRunning {
			o.obs.Event(observe.Event{Type: observe.EventNodeRunning, Phase: "provision", Node: name, Message: n.Status})
			running = append(running, r)
			continue
		}
		if checkReady {
			r.Fail(&ReadinessTimeout{Name: name, Cause: fmt.Errorf("status %s after creation, readiness not checked", n.Status)})
			o.obs.Printf("WARNING: %s did not complete setup in a reasonable time.", name)
			o.obs.Event(observe.Event{Type: observe.EventNodeNotReady, Phase: "provision", Node: name, Message: n.Status})
		}
	}
	slices.SortFunc(running, func(a, b *NodeRecord) int {
		return cmp.Compare(naming.TrailingIndex(a.Name), naming.TrailingIndex(b.Name))
	})
	return running
}

// readinessStage polls every record's sentinel and joins.
func (o *Orchestrator) readinessStage(ctx context.Context, records []*NodeRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx, span := o.tracer.Start(ctx, "readiness", trace.WithAttributes(attribute.Int("nodes", len(records))))
	defer span.End()

	outcomes := async.Map(ctx, records, len(records), func(r *NodeRecord) string { return r.Name }, func(ctx context.Context, r *NodeRecord) (struct{}, error) {
		attempts, err := o.readiness.WaitReady(ctx, o.id, r.Name, o.obs.WithFields(map[string]string{"node": r.Name}))
		r.Attempts = attempts
		if err != nil {
			r.Fail(err)
			o.obs.Printf("WARNING: %s did not complete setup in a reasonable time.", r.Name)
			o.obs.Event(observe.Event{Type: observe.EventNodeNotReady, Phase: "readiness", Node: r.Name, Message: err.Error()})
			return struct{}{}, err
		}
		_ = r.Advance(StateReady)
		o.obs.Event(observe.Event{Type: observe.EventNodeReady, Phase: "readiness", Node: r.Name, Message: "ready"})
		return struct{}{}, nil
	})
	span.SetAttributes(attribute.Int("not_ready", len(async.Errors(outcomes))))
	return o.stageError(ctx, nil)
}

// stageError converts an expired operation deadline into ErrOperationTimeout.
// Without one it returns err unchanged.
func (o *Orchestrator) stageError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s/%s: %w", ErrOperationTimeout, o.id.Zone, o.id.BaseName(), ctxErr)
	}
	return err
}

// collect fills result.Nodes in listing order, then any records the
// listing did not contain ordered by index, and derives Success.
func (o *Orchestrator) collect(result *Result, view FleetView, records map[string]*NodeRecord) {
	seen := make(map[string]bool, len(records))
	result.Nodes = result.Nodes[:0]
	for _, n := range view.Nodes {
		if r, ok := records[n.Name]; ok {
			result.Nodes = append(result.Nodes, resultFromRecord(r))
			seen[n.Name] = true
		}
	}

	var rest []*NodeRecord
	for name, r := range records {
		if !seen[name] {
			rest = append(rest, r)
		}
	}
	slices.SortFunc(rest, func(a, b *NodeRecord) int {
		if c := cmp.Compare(naming.TrailingIndex(a.Name), naming.TrailingIndex(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	for _, r := range rest {
		result.Nodes = append(result.Nodes, resultFromRecord(r))
	}

	failed := result.Failed()
	result.Success = len(failed) == 0
	switch {
	case len(failed) > 0:
		result.Message = fmt.Sprintf("%d of %d nodes failed", len(failed), len(result.Nodes))
	case len(result.Warnings()) > 0:
		result.Message = fmt.Sprintf("Complete with %d warnings", len(result.Warnings()))
	default:
		result.Message = "Complete"
	}
}

func (o *Orchestrator) noInstances(result *Result) {
	o.obs.Printf("No instances found in zone %s", o.id.Zone)
	result.Success = true
	result.Message = "No instances found in zone " + o.id.Zone
}

// releaseFleetResources removes the fleet's SSH key and firewall after a
// clean stop. Both are deleted by name; a missing one is not an error.
// Failures are logged only.
func (o *Orchestrator) releaseFleetResources(ctx context.Context) {
	base := o.id.BaseName()
	if km, ok := o.provider.(KeyManager); ok && (o.opts.ManageSSHKey || o.opts.SSHPublicKey != "") {
		name := naming.SSHKey(base)
		if err := km.DeleteSSHKey(ctx, name); err != nil {
			o.obs.Printf("failed to delete SSH key %s: %v", name, err)
		}
	}
	if fm, ok := o.provider.(FirewallManager); ok && (o.opts.ManageFirewall || len(o.opts.FirewallSources) > 0) {
		if err := fm.DeleteFirewall(ctx, base); err != nil {
			o.obs.Printf("failed to delete firewall %s: %v", base, err)
		}
	}
}

func nodeName(n NodeStatus) string { return n.Name }
