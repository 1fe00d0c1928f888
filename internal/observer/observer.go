// Package observer implements the per-coroutine observer registry (spec
// §3 "Observer", §4.3). Two lists are kept per coroutine — intrinsic
// (runtime-created, via yield-style primitives) and hvml (user-visible,
// via `observe` elements) — and events are routed by trying the default
// match predicate against each in turn.
package observer

import (
	"time"

	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/corstate"
	"github.com/purc-go/purc/internal/message"
	"github.com/purc-go/purc/internal/variant"
)

// Source distinguishes who created an observer (spec §3).
type Source int

const (
	SourceIntrinsic Source = iota
	SourceHVML
)

// Observer is one registered interest in (observed, event-type,
// sub-type) on a coroutine (spec §3 "Observer").
type Observer struct {
	ID int64

	Source Source

	AllowedStages []corstate.Stage
	AllowedStates []corstate.State

	Observed  *variant.Value
	EventType atom.Atom
	SubType   string
	SubTypeRegex bool

	ScopeElement string // vDOM element tag providing lexical scope, diagnostic only
	VDOMPos      string

	// Match overrides the default predicate when non-nil.
	Match func(m *message.Message) bool
	// Handle runs when Match succeeds; returning an error aborts delivery.
	Handle func(m *message.Message) error

	AutoRemove bool
	CreatedAt  time.Time

	// OnRevoke runs exactly once when the observer is removed, whatever
	// the reason (spec §4.3 "Revocation").
	OnRevoke func()

	unwatchContainer func() // set if Observed is a watched container
}

// DefaultMatch implements spec §4.3's default match predicate: the
// event-type atom matches exactly AND either the sub-type equals the
// observer's literal sub-type or the observer's sub-type is a regex
// matching the event's sub-type, AND the observed value is equivalent
// to the event's element value.
func (o *Observer) DefaultMatch(m *message.Message) bool {
	if o.EventType != m.EventType {
		return false
	}
	actualSub := atom.MSG.String(m.EventSub)
	if !message.MatchSubType(o.SubType, o.SubTypeRegex, actualSub) {
		return false
	}
	return ObservedIsEquivalent(o.Observed, m.ElementValue)
}

// ObservedIsEquivalent implements spec §4.3's equivalence test: native
// did_matched aliasing, structural equality, or identity.
func ObservedIsEquivalent(observed, candidate *variant.Value) bool {
	if observed == nil || candidate == nil {
		return observed == candidate
	}
	if observed == candidate {
		return true
	}
	if observed.Is(variant.KindNative) && observed.DidMatched(candidate) {
		return true
	}
	return variant.Equal(observed, candidate)
}

// WatchContainer arms o to watch container v for mutation (spec §4.1
// "mutating a container ... broadcast of change to observers"): v's
// Watch registers onMutate to run on every ObjectSet/ArrayAppend/
// ArraySet/SetAdd against v, and the watch is torn down automatically
// when o is revoked, since Registry.Revoke/RevokeAll already invoke
// whatever unwatchContainer holds.
func (o *Observer) WatchContainer(v *variant.Value, onMutate func(*variant.Value)) {
	o.Observed = v.Ref()
	o.unwatchContainer = v.Watch(onMutate)
}

// AcceptsStage reports whether o accepts delivery at the given
// coroutine stage (spec §4.3 "declares which coroutine stages... it
// accepts").
func (o *Observer) AcceptsStage(stage corstate.Stage) bool {
	if len(o.AllowedStages) == 0 {
		return true
	}
	for _, s := range o.AllowedStages {
		if s == stage {
			return true
		}
	}
	return false
}

// AcceptsState reports whether o accepts delivery in the given
// coroutine state.
func (o *Observer) AcceptsState(state corstate.State) bool {
	if len(o.AllowedStates) == 0 {
		return true
	}
	for _, s := range o.AllowedStates {
		if s == state {
			return true
		}
	}
	return false
}
