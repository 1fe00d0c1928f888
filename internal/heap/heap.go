// Package heap implements one Instance's Heap: the set of live
// coroutines, the deadline-ordered wake structure for STOPPED
// coroutines, and the binding to the instance's move-buffer
// (spec §3 "Heap", §4.2, §4.6 "Timeout wake"). Named after the source's
// `pcintr_heap_t`, not Go's container/heap (which it uses internally for
// the wake structure).
package heap

import (
	stdheap "container/heap"
	"context"
	"sync"

	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/coroutine"
	"github.com/purc-go/purc/internal/logging"
	"github.com/purc-go/purc/internal/message"
)

// Heap owns every coroutine belonging to one Instance, split into the
// running set ("crtns") and the stopped set waiting on an event or
// timeout ("stopped_crtns") — spec §3 "Coroutine" invariants, §4.6.
// A single Heap is only ever driven by one Scheduler goroutine for
// stepping, but PostToCoroutine/PostEvent may be called concurrently
// from renderer and move-buffer goroutines, hence the mutex.
type Heap struct {
	mu sync.Mutex

	crtns        map[atom.Atom]*coroutine.Coroutine // READY/RUNNING/OBSERVING
	stoppedCrtns map[atom.Atom]*coroutine.Coroutine // STOPPED

	wake wakeQueue // deadline-ordered, container/heap-backed (spec §9 "AVL -> ordered map")

	moveBuffer message.MoveBuffer // cross-instance inbound messages, may be nil
}

// New creates an empty Heap. moveBuffer may be nil for an instance that
// never receives cross-instance messages.
func New(moveBuffer message.MoveBuffer) *Heap {
	h := &Heap{
		crtns:        make(map[atom.Atom]*coroutine.Coroutine),
		stoppedCrtns: make(map[atom.Atom]*coroutine.Coroutine),
		moveBuffer:   moveBuffer,
	}
	stdheap.Init(&h.wake)
	return h
}

// Add registers a freshly created coroutine in the running set
// (spec §4.5 "(birth) scheduled with vDOM -> READY").
func (h *Heap) Add(co *coroutine.Coroutine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.crtns[co.ID] = co
}

// Lookup finds a coroutine by id in either set.
func (h *Heap) Lookup(id atom.Atom) (*coroutine.Coroutine, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if co, ok := h.crtns[id]; ok {
		return co, true
	}
	co, ok := h.stoppedCrtns[id]
	return co, ok
}

// MoveToStopped transfers co from the running set to the stopped set and
// schedules its wake deadline if timeoutNanos > 0 (spec §4.5 "RUNNING ->
// yield/inner observer registered -> STOPPED"). timeoutNanos == 0 means
// "wait for a matching event only, no timeout".
func (h *Heap) MoveToStopped(co *coroutine.Coroutine, timeoutNanos int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.crtns, co.ID)
	h.stoppedCrtns[co.ID] = co
	if timeoutNanos > 0 {
		co.StoppedTimeout = timeoutNanos
		stdheap.Push(&h.wake, &wakeEntry{co: co, deadline: timeoutNanos})
	}
}

// MoveToReady transfers co from the stopped set back to the running set,
// e.g. on a matching event (spec §4.5 "STOPPED -> matching event arrives
// or timeout elapses -> READY"). It does not remove a pending heap entry
// for co; PopDueTimeouts skips stale entries by checking set membership.
func (h *Heap) MoveToReady(co *coroutine.Coroutine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.stoppedCrtns, co.ID)
	h.crtns[co.ID] = co
	co.StoppedTimeout = 0
}

// PopDueTimeouts removes and returns every stopped coroutine whose
// deadline is <= nowNanos, moving each back to the running set with
// TimedOut set (spec §4.6 "Timeout wake", §8 "stack.timeout=true").
func (h *Heap) PopDueTimeouts(nowNanos int64) []*coroutine.Coroutine {
	h.mu.Lock()
	defer h.mu.Unlock()

	var due []*coroutine.Coroutine
	for h.wake.Len() > 0 {
		top := h.wake[0]
		if top.deadline > nowNanos {
			break
		}
		stdheap.Pop(&h.wake)
		co, stillStopped := h.stoppedCrtns[top.co.ID]
		if !stillStopped || co.StoppedTimeout != top.deadline {
			continue // stale entry: co already woke by event or was re-armed
		}
		delete(h.stoppedCrtns, co.ID)
		co.StoppedTimeout = 0
		co.TimedOut = true
		h.crtns[co.ID] = co
		due = append(due, co)
	}
	return due
}

// Remove deletes a coroutine from both sets on destruction
// (spec §4.5 "EXITED -> last-msg drained -> destroyed", "(d) releases
// the heap record").
func (h *Heap) Remove(id atom.Atom) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.crtns, id)
	delete(h.stoppedCrtns, id)
}

// ReadyCoroutines returns a snapshot of every coroutine currently in the
// running set, for the scheduler's tick loop to iterate.
func (h *Heap) ReadyCoroutines() []*coroutine.Coroutine {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*coroutine.Coroutine, 0, len(h.crtns))
	for _, co := range h.crtns {
		out = append(out, co)
	}
	return out
}

// AllCoroutines returns every coroutine in either set, used for
// instance-wide broadcasts like idle ticks and connection-loss events
// (spec §4.6 "idle broadcast", §4.8 "every coroutine of the instance
// receives rdrState:lostDuplicate").
func (h *Heap) AllCoroutines() []*coroutine.Coroutine {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*coroutine.Coroutine, 0, len(h.crtns)+len(h.stoppedCrtns))
	for _, co := range h.crtns {
		out = append(out, co)
	}
	for _, co := range h.stoppedCrtns {
		out = append(out, co)
	}
	return out
}

// PostToCoroutine implements coroutine.CuratorPoster by appending m to
// the target coroutine's inbox and, if it is currently STOPPED, waking
// it (spec §4.5 "posts to it callState:success...").
func (h *Heap) PostToCoroutine(target atom.Atom, m *message.Message) {
	h.mu.Lock()
	co, ok := h.crtns[target]
	stopped := false
	if !ok {
		co, ok = h.stoppedCrtns[target]
		stopped = ok
	}
	h.mu.Unlock()
	if !ok {
		logging.Op().Warn("post to unknown coroutine", "target", atom.MSG.String(target))
		m.Release()
		return
	}
	co.Lock()
	co.Inbox.Append(m)
	co.Unlock()

	if stopped {
		h.MoveToReady(co)
	}
}

// DrainMoveBuffer pulls every pending cross-instance message off the
// move-buffer and delivers each to its target coroutine (spec §4.2
// "Move buffer"). Called once per scheduler tick.
func (h *Heap) DrainMoveBuffer(ctx context.Context, decode func(*message.Message) atom.Atom) {
	if h.moveBuffer == nil {
		return
	}
	for {
		m, ok := h.moveBuffer.TakeAway(ctx)
		if !ok {
			return
		}
		h.PostToCoroutine(decode(m), m)
	}
}
