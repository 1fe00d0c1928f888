package observer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/corstate"
	"github.com/purc-go/purc/internal/message"
	"github.com/purc-go/purc/internal/variant"
)

var nextID atomic.Int64

// Registry holds the two observer lists for one coroutine (spec §4.3).
type Registry struct {
	mu   sync.Mutex
	intr []*Observer
	hvml []*Observer

	// observeIdle is recomputed, not decremented (SPEC_FULL §11,
	// grounded on original_source/interpreter/observer.c): it is true
	// iff at least one hvml observer currently watches the coroutine's
	// own identity for the "idle" event.
	observeIdle bool
	selfValue   any // compared by identity against Observer.Observed's entity
	idleAtom    atom.Atom
}

// NewRegistry creates an empty registry. selfValue is the coroutine's
// own hvml-identity value (used to detect "observe idle on myself").
func NewRegistry(selfValue any) *Registry {
	return &Registry{
		selfValue: selfValue,
		idleAtom:  atom.MSG.Intern("idle"),
	}
}

// Add registers o in the list named by o.Source and returns it with a
// fresh ID and timestamp.
func (r *Registry) Add(o *Observer) *Observer {
	o.ID = nextID.Add(1)
	o.CreatedAt = time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if o.Source == SourceIntrinsic {
		r.intr = append(r.intr, o)
	} else {
		r.hvml = append(r.hvml, o)
	}
	r.recomputeIdleFlagLocked()
	return o
}

// Revoke removes o from whichever list holds it, invokes its OnRevoke
// hook, and unrefs its observed variant (spec §4.3 "Revocation").
func (r *Registry) Revoke(o *Observer) {
	r.mu.Lock()
	removed := false
	r.intr, removed = removeObserver(r.intr, o)
	if !removed {
		r.hvml, removed = removeObserver(r.hvml, o)
	}
	r.recomputeIdleFlagLocked()
	r.mu.Unlock()

	if !removed {
		return
	}
	if o.unwatchContainer != nil {
		o.unwatchContainer()
	}
	if o.OnRevoke != nil {
		o.OnRevoke()
	}
	if o.Observed != nil {
		o.Observed.Forget()
		o.Observed.Unref()
	}
}

func removeObserver(list []*Observer, target *Observer) ([]*Observer, bool) {
	for i, o := range list {
		if o == target {
			return append(list[:i:i], list[i+1:]...), true
		}
	}
	return list, false
}

// RevokeAll removes every observer in both lists, e.g. on coroutine exit
// (spec §4.5 "revokes all HVML observers").
func (r *Registry) RevokeAll() {
	r.mu.Lock()
	all := append(append([]*Observer{}, r.intr...), r.hvml...)
	r.intr = nil
	r.hvml = nil
	r.recomputeIdleFlagLocked()
	r.mu.Unlock()

	for _, o := range all {
		if o.unwatchContainer != nil {
			o.unwatchContainer()
		}
		if o.OnRevoke != nil {
			o.OnRevoke()
		}
		if o.Observed != nil {
			o.Observed.Forget()
			o.Observed.Unref()
		}
	}
}

// Dispatch tries to match m against intrinsic observers first, then
// hvml observers, honoring stage/state gating (spec §4.6 "pop at most
// one inbox message and try all matching observers (intr first, then
// hvml)"). It returns the first matching observer, or nil. Observers
// whose AutoRemove is set are revoked by the caller after a successful
// Handle.
func (r *Registry) Dispatch(m *message.Message, stage corstate.Stage, state corstate.State) *Observer {
	r.mu.Lock()
	candidates := make([]*Observer, 0, len(r.intr)+len(r.hvml))
	candidates = append(candidates, r.intr...)
	candidates = append(candidates, r.hvml...)
	r.mu.Unlock()

	for _, o := range candidates {
		if !o.AcceptsStage(stage) || !o.AcceptsState(state) {
			continue
		}
		matched := false
		if o.Match != nil {
			matched = o.Match(m)
		} else {
			matched = o.DefaultMatch(m)
		}
		if matched {
			return o
		}
	}
	return nil
}

// ObservingIdle reports whether the coroutine currently has an hvml
// observer watching its own "idle" event (spec §4.3).
func (r *Registry) ObservingIdle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.observeIdle
}

func (r *Registry) recomputeIdleFlagLocked() {
	for _, o := range r.hvml {
		if o.EventType != r.idleAtom {
			continue
		}
		// Observed == nil is a bare `on="idle"` with no selector
		// expression — the verb never names a specific source variant
		// (internal/elements' observeAfterPushed), so it can only ever
		// mean "my own idle event". A native-wrapped self reference is
		// the explicit spelling of the same thing.
		if o.Observed == nil {
			r.observeIdle = true
			return
		}
		if o.Observed.Is(variant.KindNative) && o.Observed.Entity() == r.selfValue {
			r.observeIdle = true
			return
		}
	}
	r.observeIdle = false
}

// Count returns the number of intrinsic and hvml observers currently
// registered — used by the coroutine lifecycle's "no observers remain"
// exit condition (spec §4.5).
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.intr) + len(r.hvml)
}
