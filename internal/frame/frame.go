// Package frame implements the per-coroutine call stack of element
// frames (spec §3 "Stack frame", §4.4). A frame tracks one active vDOM
// element's evaluated attributes, content, context symbols, except
// templates and its position in the after_pushed/select_child/
// on_popping/rerun/cleanup cycle.
package frame

import (
	"github.com/purc-go/purc/internal/except"
	"github.com/purc-go/purc/internal/variant"
	"github.com/purc-go/purc/internal/vdom"
)

// NextStep names which operation-table entry the scheduler calls next
// for a frame (spec §4.4).
type NextStep int

const (
	StepAfterPushed NextStep = iota
	StepSelectChild
	StepOnPopping
	StepRerun
)

func (s NextStep) String() string {
	switch s {
	case StepAfterPushed:
		return "after-pushed"
	case StepSelectChild:
		return "select-child"
	case StepOnPopping:
		return "on-popping"
	case StepRerun:
		return "rerun"
	default:
		return "unknown"
	}
}

// Ops is the operation table an element tag registers (spec §4.4). Every
// hook receives the frame it acts on; Handler implementations live in
// internal/elements, keyed by tag.
type Ops struct {
	// AfterPushed evaluates attributes and prepares context. Returning
	// yield=true suspends the frame (coroutine moves to STOPPED) without
	// advancing next_step; the verb is responsible for arranging a
	// resume (typically via an intrinsic observer).
	AfterPushed func(f *Frame) (yield bool, err error)

	// SelectChild returns the next child vDOM element to push, or nil to
	// begin popping.
	SelectChild func(f *Frame) (*vdom.Element, error)

	// OnPopping runs the verb's natural popping logic after any except-
	// template match has already been applied. Returning true pops the
	// frame; false schedules StepRerun.
	OnPopping func(f *Frame) (pop bool, err error)

	// Rerun begins another iteration round, then control returns to
	// SelectChild. Optional — only iterator-like verbs set it.
	Rerun func(f *Frame) error

	// Cleanup always runs on frame destruction, whichever step it was on.
	Cleanup func(f *Frame)
}

// Symbols holds the seven context-local variable slots a frame owns
// exclusively (spec §4.4 "Symbol variables are prepared per frame").
type Symbols struct {
	Input   *variant.Value // `<` — inherited from the parent frame
	Anchor  *variant.Value // `@` — frame's DOM anchor, a native `elements` variant
	Scratch *variant.Value // `!` — fresh empty object scratchpad
	Counter uint64         // `%` — unsigned counter starting at 0
	Content *variant.Value // `^` — evaluated content value (content VCM result)
	Colon   *variant.Value // `:` — undefined until assigned by the verb
	Equal   *variant.Value // `=` — undefined until assigned by the verb
}

// release unrefs every non-nil variant slot, called from Frame.release.
func (s *Symbols) release() {
	for _, v := range []*variant.Value{s.Input, s.Anchor, s.Scratch, s.Content, s.Colon, s.Equal} {
		v.Unref()
	}
}

// EvaluatedAttr is one attribute after its operator has been applied
// (spec §4.4 "Attribute evaluation").
type EvaluatedAttr struct {
	Name  string
	Op    vdom.Operator
	Value *variant.Value // owned by the frame
}

// Frame is one entry in a coroutine's call stack (spec §3 "Stack
// frame"). It is mutated only while it is the top frame; on push it is
// created, on pop it is destroyed via Cleanup.
type Frame struct {
	Element *vdom.Element // pointer into the immutable vDOM
	Ops     Ops

	Symbols Symbols
	Attrs   []EvaluatedAttr

	NextStep NextStep
	Silently bool // inherited by children on push (spec §4.4 "select_child")

	// ExceptTemplates maps an exception/error atom to its recovery
	// template (spec §4.4 "on_popping", §4.7). A match during unwinding
	// clears the coroutine's exception; the template's content is not
	// expanded into any DOM anchor.
	ExceptTemplates *except.ExceptTemplates

	// YieldedCtxt is opaque verb-specific continuation state recorded
	// when AfterPushed suspends the frame (spec §4.4 "records
	// yielded_ctxt + continuation").
	YieldedCtxt any

	// Owner is the *coroutine.Coroutine this frame belongs to, stored as
	// any to avoid frame importing coroutine (coroutine already imports
	// frame). Set by the coroutine package at push time; verb
	// implementations in internal/elements type-assert it back to reach
	// coroutine-level state (observers, result value) that Ops hooks
	// otherwise have no handle on.
	Owner any

	Parent *Frame
}

// New creates a frame for el, inheriting Input/Anchor/Silently from
// parent (nil for the root frame). The operation table is supplied by
// the caller (internal/elements resolves it by tag).
func New(el *vdom.Element, ops Ops, parent *Frame) *Frame {
	f := &Frame{
		Element:         el,
		Ops:             ops,
		NextStep:        StepAfterPushed,
		ExceptTemplates: &except.ExceptTemplates{},
	}
	f.Symbols.Scratch = variant.MakeObject()
	f.Symbols.Counter = 0

	if parent != nil {
		f.Parent = parent
		f.Silently = parent.Silently
		if parent.Symbols.Content != nil {
			f.Symbols.Input = parent.Symbols.Content.Ref()
		} else if parent.Symbols.Input != nil {
			f.Symbols.Input = parent.Symbols.Input.Ref()
		}
		if parent.Symbols.Anchor != nil {
			f.Symbols.Anchor = parent.Symbols.Anchor.Ref()
		}
	}
	return f
}

// Attr looks up an evaluated attribute by name.
func (f *Frame) Attr(name string) (EvaluatedAttr, bool) {
	for _, a := range f.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return EvaluatedAttr{}, false
}

// SetAttr records (or replaces) an evaluated attribute, Ref-ing value.
func (f *Frame) SetAttr(name string, op vdom.Operator, value *variant.Value) {
	for i, a := range f.Attrs {
		if a.Name == name {
			a.Value.Unref()
			f.Attrs[i] = EvaluatedAttr{Name: name, Op: op, Value: value.Ref()}
			return
		}
	}
	f.Attrs = append(f.Attrs, EvaluatedAttr{Name: name, Op: op, Value: value.Ref()})
}

// Release unrefs every variant the frame owns: its symbol slots and its
// evaluated attribute array (spec §3 "A frame exclusively owns its
// per-symbol slots and its evaluated attribute array"). Called once,
// from the stack's pop path, after Ops.Cleanup runs.
func (f *Frame) Release() {
	f.Symbols.release()
	for _, a := range f.Attrs {
		a.Value.Unref()
	}
	f.Attrs = nil
}
