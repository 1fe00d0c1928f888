// Package coroutine implements the per-coroutine lifecycle state machine
// and call stack (spec §3 "Coroutine", §4.5). A Coroutine owns a
// frame.Stack, a message inbox, an observer registry, a parent curator
// id, and the bookkeeping the scheduler needs to drive it through
// after-pushed/select-child/rerun/on-popping and eventually to EXITED.
package coroutine

import (
	"fmt"
	"sync"

	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/corstate"
	"github.com/purc-go/purc/internal/except"
	"github.com/purc-go/purc/internal/frame"
	"github.com/purc-go/purc/internal/logging"
	"github.com/purc-go/purc/internal/message"
	"github.com/purc-go/purc/internal/observer"
	"github.com/purc-go/purc/internal/variant"
)

// CuratorPoster is the narrow interface a coroutine uses to notify its
// parent curator on exit (spec §4.5 "posts to it callState:success...").
// internal/heap implements this by looking the parent up in the
// instance-wide coroutine set and appending to its inbox.
type CuratorPoster interface {
	PostToCoroutine(target atom.Atom, m *message.Message)
}

// RendererRevoker is the narrow interface used to tell connected
// renderers to drop a coroutine's registration on exit (spec §4.5 "(c)
// tells the renderer(s) to revoke the coroutine's registration").
type RendererRevoker interface {
	RevokeCoroutine(id atom.Atom)
}

// Coroutine is one cooperatively-scheduled HVML program instance
// (spec §3 "Coroutine").
type Coroutine struct {
	mu sync.Mutex

	ID atom.Atom // the coroutine's own hvml identity, interned once at creation

	State corstate.State
	Stage corstate.Stage

	Stack    frame.Stack
	Inbox    message.Inbox
	Observer *observer.Registry

	ParentCurator atom.Atom // zero Atom if none
	curatorPoster CuratorPoster
	rendererRev   RendererRevoker

	// ResolveOps resolves a child vDOM element's operation table by tag
	// (spec §4.4). Supplied by internal/elements at construction time; a
	// coroutine built without one (e.g. in tests that drive bare frames)
	// treats every unresolved tag as having no children.
	ResolveOps func(tag string) frame.Ops

	// Exception is the last step's propagated failure, if any
	// (spec §4.7). Cleared once a catch/except template consumes it.
	Exception *except.Exception

	// Terminated is set when a fatal exception has no matching
	// catch/except anywhere on the stack (spec §4.5 "sets terminated").
	Terminated bool

	// ResultValue is val_from_return_or_exit, set by the exit/return
	// verbs (spec §4.7).
	ResultValue *variant.Value

	// StoppedTimeout is the absolute-deadline the scheduler's wake heap
	// keys on while this coroutine is STOPPED (spec §4.6 "Timeout wake").
	// Zero means "no timeout, wait for a matching event only".
	StoppedTimeout int64

	// TimedOut records that the STOPPED->READY transition for this
	// coroutine was caused by deadline expiry rather than a matching
	// event (spec §8 "stack.timeout=true").
	TimedOut bool
}

// New creates a coroutine identified by id, ready to run over a freshly
// pushed root frame. curatorPoster/rendererRev may be nil for a
// coroutine with no curator or no attached renderer.
func New(id atom.Atom, parentCurator atom.Atom, curatorPoster CuratorPoster, rendererRev RendererRevoker) *Coroutine {
	co := &Coroutine{
		ID:            id,
		State:         corstate.StateReady,
		Stage:         corstate.StageFirstRun,
		ParentCurator: parentCurator,
		curatorPoster: curatorPoster,
		rendererRev:   rendererRev,
	}
	co.Observer = observer.NewRegistry(co)
	return co
}

// Lock/Unlock expose the coroutine's mutex to the scheduler, which must
// serialize concurrent Dispatch calls (from the renderer goroutine, the
// move-buffer drain goroutine, and the instance's own step loop) against
// state reads (spec §4.2 "single OS thread" owns stepping, but inbox
// delivery can race from other goroutines posting into it).
func (co *Coroutine) Lock()   { co.mu.Lock() }
func (co *Coroutine) Unlock() { co.mu.Unlock() }

// Transition validates and applies a state change, logging the
// transition the way the teacher's condition-handler callback would
// (spec §4.9 "cond_handler... COND_COR_ONE_RUN").
func (co *Coroutine) Transition(to corstate.State) error {
	if !validTransition(co.State, to) {
		return fmt.Errorf("coroutine: invalid transition %s -> %s", co.State, to)
	}
	logging.Op().Debug("coroutine state transition", "coroutine", atom.MSG.String(co.ID), "from", co.State.String(), "to", to.String())
	co.State = to
	if to == corstate.StateObserving && co.Stage == corstate.StageFirstRun {
		co.Stage = corstate.StageObserving
	}
	return nil
}

// validTransition enforces the table in spec §4.5.
func validTransition(from, to corstate.State) bool {
	switch from {
	case corstate.StateReady:
		return to == corstate.StateRunning
	case corstate.StateRunning:
		return to == corstate.StateReady || to == corstate.StateObserving || to == corstate.StateStopped || to == corstate.StateExited
	case corstate.StateStopped:
		return to == corstate.StateReady
	case corstate.StateObserving:
		return to == corstate.StateExited || to == corstate.StateRunning
	case corstate.StateExited:
		return false
	default:
		return false
	}
}

// SetResultValue records v as val_from_return_or_exit (spec §4.7),
// called by the exit/return verb implementations in internal/elements
// via a frame's Owner backref.
func (co *Coroutine) SetResultValue(v *variant.Value) {
	co.Lock()
	defer co.Unlock()
	co.ResultValue = v
}

// IsIdleEligible reports whether this coroutine has zero observers and
// an empty inbox after its top frame popped — the condition that moves
// it straight to EXITED (spec §8 "A coroutine with zero observers and an
// empty inbox after its top frame pops enters EXITED within one tick").
func (co *Coroutine) IsIdleEligible() bool {
	return co.Stack.Depth() == 0 && co.Observer.Count() == 0 && co.Inbox.Len() == 0
}

// Exit drives the coroutine into EXITED: it revokes every observer,
// posts callState then corState to the parent curator (if any), and
// tells the renderer to revoke the coroutine. Releasing the heap record
// is left to the scheduler's reapExited. callStateSuccess/Except payloads are
// mutually exclusive: pass exactly one of result or errExcept non-zero.
func (co *Coroutine) Exit(result *variant.Value, errExcept atom.Atom) error {
	if err := co.Transition(corstate.StateExited); err != nil {
		return err
	}
	co.Observer.RevokeAll()

	if co.curatorPoster != nil && co.ParentCurator != 0 {
		if errExcept != 0 {
			co.curatorPoster.PostToCoroutine(co.ParentCurator, message.NewEvent(uint64(co.ParentCurator), "callState", "except",
				nil, variant.MakeString(atom.MSG.String(errExcept))))
		} else {
			co.curatorPoster.PostToCoroutine(co.ParentCurator, message.NewEvent(uint64(co.ParentCurator), "callState", "success",
				nil, result))
		}
		co.curatorPoster.PostToCoroutine(co.ParentCurator, message.NewEvent(uint64(co.ParentCurator), "corState", "exited", nil, nil))
	}

	if co.rendererRev != nil {
		co.rendererRev.RevokeCoroutine(co.ID)
	}
	return nil
}
