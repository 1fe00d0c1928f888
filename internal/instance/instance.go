// Package instance ties one PurC Instance together: its Heap, its
// Scheduler, its renderer Bridge, its Fetcher, and its built-in verb
// Registry (spec §3 "Instance", §6). Grounded on the teacher's
// cmd/nova daemon bootstrap: load config, init logging/tracing/metrics,
// construct a chain of dependent components, start serving, then drain
// on a signal-based shutdown — generalized here from an HTTP/gRPC
// control-plane process to one cooperatively-scheduled HVML instance.
package instance

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/coroutine"
	"github.com/purc-go/purc/internal/elements"
	"github.com/purc-go/purc/internal/fetcher"
	"github.com/purc-go/purc/internal/frame"
	"github.com/purc-go/purc/internal/heap"
	"github.com/purc-go/purc/internal/logging"
	"github.com/purc-go/purc/internal/message"
	"github.com/purc-go/purc/internal/metrics"
	"github.com/purc-go/purc/internal/rdrbridge"
	"github.com/purc-go/purc/internal/scheduler"
	"github.com/purc-go/purc/internal/store"
	"github.com/purc-go/purc/internal/vdom"
)

// Config wires one Instance's components (spec §9 ambient stack —
// cmd/purcd fills it in from the loaded internal/config.Config).
type Config struct {
	ID string

	Scheduler          scheduler.Config
	Fetcher            fetcher.Config
	RendererCloseGrace time.Duration

	// MoveBuffer delivers cross-instance messages into this instance's
	// Heap (spec §3 "Move buffer"); nil for a standalone instance.
	MoveBuffer message.MoveBuffer

	MetricsNamespace string

	// AuditStore, if set, receives a CoroutineRecord for every coroutine
	// this instance reaps (spec §10 diagnostic audit trail). Nil skips
	// auditing entirely.
	AuditStore *store.Store
}

// Instance is one running PurC instance: one Heap driven by one
// Scheduler on one goroutine, with a renderer Bridge, a Fetcher, and the
// built-in verb Registry supplying every coroutine launched on it.
type Instance struct {
	id string

	heap     *heap.Heap
	sched    *scheduler.Scheduler
	bridge   *rdrbridge.Bridge
	fetch    *fetcher.Fetcher
	elements *elements.Registry
	metrics  *metrics.Runtime
	audit    *store.Store

	launchMu sync.Mutex
	launched map[atom.Atom]launchMeta

	stopCh chan struct{}
	done   chan struct{}
}

// launchMeta is the bit of per-coroutine bookkeeping Launch records
// purely so OnExit can fill out a store.CoroutineRecord later — the
// coroutine itself carries no name or start time, since neither matters
// to its own execution (spec §3 "Coroutine").
type launchMeta struct {
	name      string
	startedAt time.Time
}

// New builds an Instance. The fetcher's AWS credential resolution runs
// during this call (spec §9 "Config... loaded once at startup").
func New(ctx context.Context, cfg Config) (*Instance, error) {
	if cfg.ID == "" {
		cfg.ID = "default"
	}

	fc, err := fetcher.New(ctx, cfg.Fetcher)
	if err != nil {
		return nil, fmt.Errorf("instance: build fetcher: %w", err)
	}

	m := metrics.New(cfg.MetricsNamespace)
	h := heap.New(cfg.MoveBuffer)
	reg := elements.New(fc)
	bridge := rdrbridge.New(h, cfg.RendererCloseGrace)
	sched := scheduler.New(cfg.ID, h, bridge, m, cfg.Scheduler)

	in := &Instance{
		id:       cfg.ID,
		heap:     h,
		sched:    sched,
		bridge:   bridge,
		fetch:    fc,
		elements: reg,
		metrics:  m,
		audit:    cfg.AuditStore,
		launched: make(map[atom.Atom]launchMeta),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	sched.OnExit = in.recordExit
	return in, nil
}

// recordExit persists co's terminal state through the audit store, off
// the scheduler's own goroutine (spec §4 "never on the scheduler's hot
// path"). A nil AuditStore makes this a no-op.
func (in *Instance) recordExit(co *coroutine.Coroutine) {
	if in.audit == nil {
		return
	}
	in.launchMu.Lock()
	meta, ok := in.launched[co.ID]
	delete(in.launched, co.ID)
	in.launchMu.Unlock()
	if !ok {
		meta = launchMeta{name: atom.USER.String(co.ID), startedAt: time.Now()}
	}

	rec := &store.CoroutineRecord{
		ID:         atom.USER.String(co.ID),
		InstanceID: in.id,
		Name:       meta.name,
		State:      co.State.String(),
		StartedAt:  meta.startedAt,
	}
	if co.Exception != nil {
		rec.ExceptAtom = atom.MSG.String(co.Exception.ErrorExcept)
		if co.Exception.ErrCode != nil {
			rec.ExceptReason = co.Exception.ErrCode.Error()
		}
	}

	go func() {
		if err := in.audit.SaveCoroutineRecord(context.Background(), rec); err != nil {
			logging.Op().Warn("failed to persist coroutine audit record", "coroutine", rec.ID, "error", err)
		}
	}()
}

// Bridge returns the renderer bridge, for cmd/purcd to attach vsock/REST
// listeners to (spec §4.8 "Renderer connection binding").
func (in *Instance) Bridge() *rdrbridge.Bridge { return in.bridge }

// Metrics returns the Prometheus collector set, for cmd/purcd to expose
// a scrape endpoint.
func (in *Instance) Metrics() *metrics.Runtime { return in.metrics }

// Heap returns the instance's coroutine set, mainly for diagnostics and
// tests that want to inspect live coroutines directly.
func (in *Instance) Heap() *heap.Heap { return in.heap }

// Launch schedules a fresh coroutine rooted at root (spec §4.5 "(birth)
// scheduled with vDOM -> READY"). name is interned in the USER atom
// bucket as the coroutine's own hvml identity; parentCurator is the zero
// Atom for a top-level coroutine with no curator to report back to.
func (in *Instance) Launch(name string, root *vdom.Element, parentCurator atom.Atom) *coroutine.Coroutine {
	co := coroutine.New(atom.USER.Intern(name), parentCurator, in.heap, in.bridge)
	co.ResolveOps = in.elements.Resolve

	f := frame.New(root, in.elements.Resolve(root.Tag), nil)
	f.Owner = co
	co.Stack.Push(f)

	in.heap.Add(co)

	in.launchMu.Lock()
	in.launched[co.ID] = launchMeta{name: name, startedAt: time.Now()}
	in.launchMu.Unlock()

	logging.Op().Info("coroutine launched", "instance", in.id, "coroutine", atom.USER.String(co.ID))
	return co
}

// decodeMoveBufferTarget recovers a move-buffer envelope's destination
// coroutine atom. message.Message.TargetValue already *is* the
// coroutine atom cast to uint64 at Post time (internal/message's own
// wire encoding), so no lookup table is needed here.
func decodeMoveBufferTarget(m *message.Message) atom.Atom {
	return atom.Atom(m.TargetValue)
}

// Run drives the instance's tick loop until ctx is cancelled, Stop is
// called, or the instance has no live coroutines and no renderer
// keep-alive (spec §4.6 "does not return while any coroutine is alive
// or the instance's keep-alive flag is set"). Unlike Scheduler.Run, this
// also drains the cross-instance move-buffer every iteration, since
// internal/scheduler deliberately has no dependency on decoding a
// move-buffer envelope's target atom (spec §4.2 "Move buffer").
func (in *Instance) Run(ctx context.Context) {
	defer close(in.done)
	logging.Op().Info("instance started", "instance", in.id)
	for {
		select {
		case <-ctx.Done():
			logging.Op().Info("instance stopping: context cancelled", "instance", in.id)
			return
		case <-in.stopCh:
			logging.Op().Info("instance stopping", "instance", in.id)
			return
		default:
		}

		in.heap.DrainMoveBuffer(ctx, decodeMoveBufferTarget)
		busy := in.sched.Tick(ctx)

		if in.metrics != nil {
			in.metrics.SetCoroutineCount("ready", len(in.heap.ReadyCoroutines()))
			in.metrics.SetCoroutineCount("all", len(in.heap.AllCoroutines()))
		}

		if !busy && len(in.heap.AllCoroutines()) == 0 && !in.bridge.KeepAlive() {
			logging.Op().Info("instance exiting: no live coroutines", "instance", in.id)
			return
		}
		if !busy {
			time.Sleep(scheduler.DefaultTickSleep)
		}
	}
}

// Stop requests Run to return and blocks until it has.
func (in *Instance) Stop() {
	close(in.stopCh)
	<-in.done
}

// RunUntilSignal blocks in Run until SIGINT/SIGTERM arrives, then stops
// the instance gracefully (spec §9 ambient stack — grounded on the
// teacher's daemon.go signal-handling loop, generalized from its
// multi-component shutdown sequence to this instance's single Stop).
// Uses golang.org/x/sys/unix's signal constants rather than the
// standard syscall package, matching the rest of the pack's preference
// for x/sys on Linux-only process-control code.
func RunUntilSignal(ctx context.Context, in *Instance) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)
	defer signal.Stop(sigCh)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		in.Run(ctx)
	}()

	select {
	case <-sigCh:
		logging.Op().Info("shutdown signal received", "instance", in.id)
		in.Stop()
	case <-runDone:
	}
	<-runDone
}
