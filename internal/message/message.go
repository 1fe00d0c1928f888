// Package message implements PurC's typed runtime messages, the
// per-coroutine inbox with priority ordering, and the cross-instance
// move-buffer (spec §3 "Message"/"Move buffer", §4.2, §6).
package message

import (
	"github.com/google/uuid"
	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/variant"
)

// Type discriminates a Message's delivery semantics (spec §3).
type Type int

const (
	TypeVoid Type = iota
	TypeRequest
	TypeResponse
	TypeEvent
	TypeLastMsg
)

func (t Type) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeRequest:
		return "request"
	case TypeResponse:
		return "response"
	case TypeEvent:
		return "event"
	case TypeLastMsg:
		return "last-msg"
	default:
		return "unknown"
	}
}

// Target names the kind of endpoint a Message addresses (spec §3).
type Target int

const (
	TargetSession Target = iota
	TargetWorkspace
	TargetWindow
	TargetWidget
	TargetDOM
	TargetInstance
	TargetCoroutine
	TargetUser
)

// Message is a heap-allocated, move-owned record (spec §3). Payload
// slots are variant values the receiver borrows; the sender's Unref
// obligation transfers to whichever queue currently holds the message.
type Message struct {
	Type      Type
	Target    Target
	TargetValue uint64 // typically a coroutine atom (atom.Atom cast to uint64)

	SourceURI string
	EventType atom.Atom
	EventSub  atom.Atom

	RequestID string // uuid, spec §6 "request-id"

	ElementValue *variant.Value // the observed value an event names
	Data         *variant.Value
}

// EventName renders "type:sub-type" for logging and display (spec §3).
func (m *Message) EventName() string {
	return atom.MSG.String(m.EventType) + ":" + atom.MSG.String(m.EventSub)
}

// NewRequest builds a request-type message with a fresh request id.
func NewRequest(target Target, targetValue uint64, sourceURI string) *Message {
	return &Message{
		Type:        TypeRequest,
		Target:      target,
		TargetValue: targetValue,
		SourceURI:   sourceURI,
		RequestID:   uuid.NewString(),
	}
}

// NewResponse builds a response to req, carrying data.
func NewResponse(req *Message, data *variant.Value) *Message {
	return &Message{
		Type:        TypeResponse,
		Target:      req.Target,
		TargetValue: req.TargetValue,
		RequestID:   req.RequestID,
		Data:        data,
	}
}

// NewEvent builds an event message naming "type:subType" against element.
func NewEvent(targetValue uint64, eventType, subType string, element, data *variant.Value) *Message {
	typAtom, subAtom := atom.EventName(eventType, subType)
	return &Message{
		Type:         TypeEvent,
		Target:       TargetCoroutine,
		TargetValue:  targetValue,
		EventType:    typAtom,
		EventSub:     subAtom,
		ElementValue: element,
		Data:         data,
	}
}

// Release unrefs the message's owned variant payloads. Callers must call
// this exactly once, when the message leaves the last queue that holds
// it (spec §4.2 "released with the variant-unref discipline").
func (m *Message) Release() {
	if m.ElementValue != nil {
		m.ElementValue.Unref()
	}
	if m.Data != nil {
		m.Data.Unref()
	}
}
