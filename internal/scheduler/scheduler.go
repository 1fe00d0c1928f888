// Package scheduler implements one Instance's cooperative tick loop:
// execute_one_step, dispatch_event, idle broadcast and timeout wake
// (spec §4.6). Grounded on the teacher's internal/scheduler poll shape
// (its cron dependency dropped — HVML's schedule() is one-shot, not
// recurring) and internal/eventbus/worker.go's poll/dispatch worker
// pattern, generalized from a multi-goroutine poll loop to PurC's
// required single-thread-per-instance cooperative loop.
package scheduler

import (
	"context"
	"time"

	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/corstate"
	"github.com/purc-go/purc/internal/coroutine"
	"github.com/purc-go/purc/internal/except"
	"github.com/purc-go/purc/internal/heap"
	"github.com/purc-go/purc/internal/logging"
	"github.com/purc-go/purc/internal/message"
	"github.com/purc-go/purc/internal/metrics"
	"github.com/purc-go/purc/internal/observability"
)

const (
	// DefaultTimeSlice bounds how long a single READY coroutine may run
	// consecutive steps before yielding the tick to its peers
	// (spec §4.6 "up to a time-slice (default 5 ms)").
	DefaultTimeSlice = 5 * time.Millisecond

	// DefaultIdleInterval is the minimum gap between idle broadcasts
	// (spec §4.6 "more than 100 ms past the last broadcast").
	DefaultIdleInterval = 100 * time.Millisecond

	// DefaultTickSleep is how long the loop sleeps when nothing is busy
	// (spec §4.6 "Sleep 10 ms").
	DefaultTickSleep = 10 * time.Millisecond
)

// RendererManager is the narrow interface the scheduler uses to drain
// connection-loss bookkeeping each tick (spec §4.6 steps 1-2, §4.8).
// internal/rdrbridge implements it; an instance with no renderer passes
// a no-op implementation.
type RendererManager interface {
	// HandleDisconnects closes pending disconnected connections and
	// broadcasts rdrState:connLost/lostDuplicate to every coroutine of
	// targets. Returns the broadcast messages for the caller to post.
	HandleDisconnects() (broadcasts []*message.Message)
	// DrainReadyClose finalizes connections whose close timeout elapsed.
	DrainReadyClose()
	// KeepAlive reports whether the instance should keep running with
	// zero live coroutines (spec §4.6 "does not return while... the
	// instance's keep-alive flag is set").
	KeepAlive() bool
	// FlushPatches sends every DOM patch batched since the last flush
	// (spec §11 "DOM-mutation batching... flushed at end-of-step").
	FlushPatches()
}

// Config configures a Scheduler's timing. Zero values take the spec
// defaults.
type Config struct {
	TimeSlice    time.Duration
	IdleInterval time.Duration
	TickSleep    time.Duration
}

// Scheduler drives one Instance's Heap through repeated ticks on a
// single goroutine — there is no preemption within an instance
// (spec §1).
type Scheduler struct {
	instanceID string
	h          *heap.Heap
	renderer   RendererManager
	cfg        Config
	metrics    *metrics.Runtime

	// OnExit, if set, is called with every coroutine the moment it is
	// reaped from the heap (spec §4.5 "(d) releases the heap record").
	// internal/instance binds this to persist a diagnostic record
	// through internal/store; it always runs off the coroutine's own
	// stepping path since reapExited only ever touches already-EXITED
	// coroutines.
	OnExit func(co *coroutine.Coroutine)

	lastIdleBroadcast time.Time
	stopCh            chan struct{}
	done              chan struct{}
}

// New creates a Scheduler for h. renderer and m may be nil (a no-op
// RendererManager is substituted; metrics recording is skipped).
func New(instanceID string, h *heap.Heap, renderer RendererManager, m *metrics.Runtime, cfg Config) *Scheduler {
	if cfg.TimeSlice <= 0 {
		cfg.TimeSlice = DefaultTimeSlice
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultIdleInterval
	}
	if cfg.TickSleep <= 0 {
		cfg.TickSleep = DefaultTickSleep
	}
	if renderer == nil {
		renderer = noopRenderer{}
	}
	return &Scheduler{
		instanceID: instanceID,
		h:          h,
		renderer:   renderer,
		cfg:        cfg,
		metrics:    m,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run blocks, ticking until ctx is cancelled, Stop is called, or the
// instance has no live coroutines and no keep-alive flag (spec §4.6
// "does not return while any coroutine is alive or the instance's
// keep-alive flag is set").
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)
	logging.Op().Info("scheduler started", "instance", s.instanceID)
	for {
		select {
		case <-ctx.Done():
			logging.Op().Info("scheduler stopping: context cancelled", "instance", s.instanceID)
			return
		case <-s.stopCh:
			logging.Op().Info("scheduler stopping", "instance", s.instanceID)
			return
		default:
		}

		busy := s.Tick(ctx)

		if !busy && len(s.h.AllCoroutines()) == 0 && !s.renderer.KeepAlive() {
			logging.Op().Info("scheduler exiting: no live coroutines", "instance", s.instanceID)
			return
		}
		if !busy {
			time.Sleep(s.cfg.TickSleep)
		}
	}
}

// Stop requests Run to return and blocks until it has.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.done
}

// Tick runs one full pass of spec §4.6's seven steps and reports
// whether the instance was busy (more work should run immediately
// rather than sleeping).
func (s *Scheduler) Tick(ctx context.Context) bool {
	for _, m := range s.renderer.HandleDisconnects() {
		for _, co := range s.h.AllCoroutines() {
			co.Lock()
			co.Inbox.Append(m)
			co.Unlock()
		}
	}
	s.renderer.DrainReadyClose()

	now := time.Now().UnixNano()
	for _, co := range s.h.PopDueTimeouts(now) {
		if s.metrics != nil {
			s.metrics.RecordTimeoutWake()
		}
		_ = co
	}

	stepBusy := s.executeOneStep(ctx)
	eventBusy := s.dispatchEvent()
	s.renderer.FlushPatches()

	s.reapExited()

	if stepBusy || eventBusy || len(s.h.ReadyCoroutines()) > 0 {
		return true
	}

	if time.Since(s.lastIdleBroadcast) > s.cfg.IdleInterval {
		s.broadcastIdle()
		s.lastIdleBroadcast = time.Now()
	}
	return false
}

// executeOneStep implements spec §4.6 step 3: every READY coroutine
// runs consecutive Step calls for up to the configured time-slice.
func (s *Scheduler) executeOneStep(ctx context.Context) bool {
	busy := false
	for _, co := range s.h.ReadyCoroutines() {
		if s.runCoroutineSlice(ctx, co) {
			busy = true
		}
	}
	return busy
}

func (s *Scheduler) runCoroutineSlice(ctx context.Context, co *coroutine.Coroutine) bool {
	deadline := time.Now().Add(s.cfg.TimeSlice)
	ranAny := false

	co.Lock()
	if co.State == corstate.StateStopped {
		// The heap has already moved co back to the running set (event or
		// timeout wake): STOPPED -> READY before it runs again.
		_ = co.Transition(corstate.StateReady)
	}
	if co.Stack.Depth() == 0 {
		// Nothing left to step. An OBSERVING coroutine with no observers
		// and an empty inbox exits here.
		if co.State == corstate.StateObserving && co.IsIdleEligible() {
			_ = co.Exit(co.ResultValue, 0)
		}
		co.Unlock()
		return false
	}
	_ = co.Transition(corstate.StateRunning)
	co.Unlock()

	spanCtx, span := observability.StartStepSpan(ctx, atom.USER.String(co.ID), "")
	defer span.End()

	for time.Now().Before(deadline) {
		if co.Stack.Depth() == 0 {
			break
		}
		start := time.Now()
		res := co.Step()
		elapsedMs := float64(time.Since(start).Microseconds()) / 1000.0
		ranAny = true

		outcome := "ok"
		if res.Err != nil && !except.IsAgain(res.Err) {
			outcome = "error"
			observability.SetSpanError(span, res.Err)
		}
		if s.metrics != nil {
			s.metrics.RecordStep(outcome, "", elapsedMs)
		}

		matched := co.CheckAfterExecution(res)
		if !matched && co.Terminated {
			co.Lock()
			var errExcept atom.Atom
			if co.Exception != nil {
				errExcept = co.Exception.ErrorExcept
			}
			_ = co.Exit(co.ResultValue, errExcept)
			co.Unlock()
			break
		}
		if res.Yielded {
			co.Lock()
			_ = co.Transition(corstate.StateStopped)
			co.Unlock()
			s.h.MoveToStopped(co, 0)
			break
		}
		if co.Stack.Depth() == 0 {
			if co.Stage == corstate.StageFirstRun {
				co.Lock()
				_ = co.Transition(corstate.StateObserving)
				co.Unlock()
			} else if co.IsIdleEligible() {
				co.Lock()
				_ = co.Exit(co.ResultValue, 0)
				co.Unlock()
			}
			break
		}
	}
	_ = spanCtx
	if ranAny {
		observability.SetSpanOK(span)
	}

	co.Lock()
	if co.State == corstate.StateRunning {
		_ = co.Transition(corstate.StateReady)
	}
	co.Unlock()
	return ranAny
}

// dispatchEvent implements spec §4.6 step 4: for each coroutine pop at
// most one inbox message and try to match it against intr-then-hvml
// observers.
func (s *Scheduler) dispatchEvent() bool {
	busy := false
	for _, co := range s.h.AllCoroutines() {
		co.Lock()
		m := co.Inbox.Get()
		co.Unlock()
		if m == nil {
			continue
		}
		busy = true

		co.Lock()
		stage, state := co.Stage, co.State
		co.Unlock()

		matched := co.Observer.Dispatch(m, stage, state)
		if s.metrics != nil {
			s.metrics.RecordDispatch(matched != nil)
		}
		if matched == nil {
			co.Lock()
			co.Inbox.Prepend(m)
			co.Unlock()
			continue
		}
		if matched.Handle != nil {
			_ = matched.Handle(m)
		}
		if matched.AutoRemove {
			co.Observer.Revoke(matched)
		}

		co.Lock()
		wasStopped := co.State == corstate.StateStopped
		co.Unlock()
		if wasStopped {
			s.h.MoveToReady(co)
		}
	}
	return busy
}

// broadcastIdle implements spec §4.6 step 6: emit `idle` to every
// coroutine whose observe-idle flag is set.
func (s *Scheduler) broadcastIdle() {
	for _, co := range s.h.AllCoroutines() {
		if !co.Observer.ObservingIdle() {
			continue
		}
		co.Lock()
		co.Inbox.Append(message.NewEvent(uint64(co.ID), "idle", "", nil, nil))
		co.Unlock()
		if s.metrics != nil {
			s.metrics.RecordIdleBroadcast()
		}
	}
}

// reapExited removes any EXITED coroutine with a drained inbox from the
// heap (spec §4.5 "EXITED -> last-msg drained -> destroyed").
func (s *Scheduler) reapExited() {
	for _, co := range s.h.AllCoroutines() {
		if co.State == corstate.StateExited && co.Inbox.Len() == 0 {
			s.h.Remove(co.ID)
			if s.OnExit != nil {
				s.OnExit(co)
			}
		}
	}
}

type noopRenderer struct{}

func (noopRenderer) HandleDisconnects() []*message.Message { return nil }
func (noopRenderer) DrainReadyClose()                      {}
func (noopRenderer) KeepAlive() bool                       { return false }
func (noopRenderer) FlushPatches()                          {}
