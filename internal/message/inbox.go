package message

import (
	"regexp"
	"sync"
)

// Inbox is a per-coroutine message queue. Per spec §4.2 and the
// original source's instance/msg-queue.c (SPEC_FULL §11), messages are
// kept in four physical FIFO sub-queues so get() can drain them in
// strict priority order — response > request > event > void — without
// scanning a single mixed list.
type Inbox struct {
	mu       sync.Mutex
	response []*Message
	request  []*Message
	event    []*Message
	void     []*Message
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox { return &Inbox{} }

// Append adds msg to the tail of its type's sub-queue (spec §4.2
// "append(msg): O(1) tail insert").
func (q *Inbox) Append(msg *Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.appendLocked(msg)
}

func (q *Inbox) appendLocked(msg *Message) {
	switch msg.Type {
	case TypeResponse:
		q.response = append(q.response, msg)
	case TypeRequest:
		q.request = append(q.request, msg)
	case TypeEvent, TypeLastMsg:
		q.event = append(q.event, msg)
	default:
		q.void = append(q.void, msg)
	}
}

// Prepend re-inserts msg at the head of its sub-queue, used to retry an
// event that was observed but whose handler declined it this round
// (spec §4.2 "prepend: for urgent re-insertion").
func (q *Inbox) Prepend(msg *Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch msg.Type {
	case TypeResponse:
		q.response = prepend(q.response, msg)
	case TypeRequest:
		q.request = prepend(q.request, msg)
	case TypeEvent, TypeLastMsg:
		q.event = prepend(q.event, msg)
	default:
		q.void = prepend(q.void, msg)
	}
}

func prepend(s []*Message, m *Message) []*Message {
	out := make([]*Message, 0, len(s)+1)
	out = append(out, m)
	return append(out, s...)
}

// Get removes and returns the highest-priority pending message, or nil
// if the inbox is empty (spec §4.2 "preserving the priority order
// response > request > event > void").
func (q *Inbox) Get() *Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if m := popHead(&q.response); m != nil {
		return m
	}
	if m := popHead(&q.request); m != nil {
		return m
	}
	if m := popHead(&q.event); m != nil {
		return m
	}
	return popHead(&q.void)
}

func popHead(s *[]*Message) *Message {
	if len(*s) == 0 {
		return nil
	}
	m := (*s)[0]
	*s = (*s)[1:]
	return m
}

// Len reports the total number of pending messages across all
// sub-queues.
func (q *Inbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.response) + len(q.request) + len(q.event) + len(q.void)
}

// GetEventByElement looks ahead in the event sub-queue for a message
// matching requestID/elementValue/eventName without removing anything
// else — used by synchronous waits (spec §4.2 "get_event_by_element").
// A zero-valued field in the filter matches any message.
func (q *Inbox) GetEventByElement(requestID string, elementAtomKey uint64, eventName string) *Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.event {
		if requestID != "" && m.RequestID != requestID {
			continue
		}
		if elementAtomKey != 0 && m.TargetValue != elementAtomKey {
			continue
		}
		if eventName != "" && m.EventName() != eventName {
			continue
		}
		q.event = append(q.event[:i], q.event[i+1:]...)
		return m
	}
	return nil
}

// MatchSubType reports whether an observer's sub-type pattern matches
// the event's actual sub-type atom text: exact literal match, or regex
// match when pattern is a compiled regular expression (spec §4.3).
func MatchSubType(pattern string, isRegex bool, actual string) bool {
	if !isRegex {
		return pattern == actual
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(actual)
}
