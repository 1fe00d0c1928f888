// Package except implements PurC's error/exception machinery (spec §3
// "Template", §4.7, §7): the instance-level last-error slot, the
// coroutine-level Exception object it is lifted into, and the
// except/catch template mechanism used to recover from one.
package except

import (
	"errors"
	"fmt"

	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/variant"
)

// Kind enumerates the error kinds the core distinguishes (spec §7).
type Kind int

const (
	KindOK Kind = iota
	KindOutOfMemory
	KindInvalidValue
	KindWrongArgs
	KindNotReady
	KindNotImplemented
	KindNotSupported
	KindStop
	KindIO
	KindPeerClosed
	KindAgain
	KindHVML // a named HVML exception atom, e.g. BadName, NoSuchKey
)

// Error is the typed error value every verb operation returns instead of
// panicking (spec §9 "every verb returns an ordinary Result/variant").
type Error struct {
	Kind     Kind
	Except   atom.Atom // the HVML exception atom name, for KindHVML
	Message  string
	Element  string // tag name of the vDOM element that raised it, for diagnostics
	Cause    error
}

func (e *Error) Error() string {
	if e.Kind == KindHVML {
		return fmt.Sprintf("except:%s: %s", atom.MSG.String(e.Except), e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// errAgain is the "again" sentinel (spec §9 Open Question: "whether
// again should be a distinct error or a return discriminant" — resolved
// in DESIGN.md as a distinct error, so no verb's return type carries a
// separate "again" flag). It is never surfaced to the HVML
// program; the scheduler intercepts it and reruns the same frame next
// tick (spec §7 "again is never surfaced to the user").
var errAgain = &Error{Kind: KindAgain, Message: "again"}

// Again returns the shared "run this frame again next tick" sentinel.
func Again() error { return errAgain }

// IsAgain reports whether err is the Again sentinel.
func IsAgain(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindAgain
}

// New constructs a non-HVML error of the given kind.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Raise constructs an HVML exception by atom name, as a `throw`-style
// verb or a failed builtin getter would (spec §3 "exception atom").
func Raise(exceptName, format string, args ...any) error {
	return &Error{
		Kind:    KindHVML,
		Except:  atom.MSG.Intern(exceptName),
		Message: fmt.Sprintf(format, args...),
	}
}

// staticExceptTable maps well-known error kinds to their HVML exception
// atom name (spec §4.7 "It maps to an exception atom via a static
// table").
var staticExceptTable = map[Kind]string{
	KindOutOfMemory:    "NoMem",
	KindInvalidValue:   "InvalidValue",
	KindWrongArgs:      "WrongDataType",
	KindNotReady:       "EntityNotReady",
	KindNotImplemented: "NotImplemented",
	KindNotSupported:   "NotSupported",
	KindIO:             "IOFailure",
	KindPeerClosed:     "BrokenPipe",
}

// ExceptAtom returns the HVML exception atom an error maps to, per the
// static table for built-in kinds or the error's own Except field for
// KindHVML. Returns the zero Atom for kinds with no exception mapping
// (stop, again, ok).
func ExceptAtom(err error) atom.Atom {
	var e *Error
	if !errors.As(err, &e) {
		return atom.MSG.Intern("InternalFailure")
	}
	if e.Kind == KindHVML {
		return e.Except
	}
	if name, ok := staticExceptTable[e.Kind]; ok {
		return atom.MSG.Intern(name)
	}
	return 0
}

// Exception is the coroutine-level object carrying the failure
// information a step produced (spec §3 "Exception").
type Exception struct {
	ErrCode       error
	ErrorExcept   atom.Atom
	Element       string
	Info          *variant.Value
	Backtrace     []string // captured frame descriptions, diagnostic only
}

// FromError lifts a step's returned error into an Exception, the
// central propagation step run once per step by the scheduler
// (spec §4.7 "the runtime copies it into stack.exception").
func FromError(err error, element string) *Exception {
	return &Exception{
		ErrCode:     err,
		ErrorExcept: ExceptAtom(err),
		Element:     element,
	}
}
