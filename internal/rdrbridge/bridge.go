package rdrbridge

import (
	"sync"
	"time"

	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/logging"
	"github.com/purc-go/purc/internal/message"
	"github.com/purc-go/purc/internal/variant"
)

// Dispatcher is the narrow interface the bridge uses to route a
// renderer-originated event into the owning Instance's heap — satisfied
// by internal/heap.Heap.PostToCoroutine.
type Dispatcher interface {
	PostToCoroutine(target atom.Atom, m *message.Message)
}

// Bridge owns every renderer connection attached to one Instance and
// implements internal/scheduler.RendererManager (spec §4.6 steps 1-2,
// §4.8 "Renderer connection binding"). Grounded on the teacher's
// internal/grpc.Server (Start/Stop lifecycle, single owning struct per
// listener) generalized from one unary RPC server to a registry of
// independent bidi streams.
type Bridge struct {
	mu         sync.Mutex
	conns      map[string]*connection
	closeGrace time.Duration
	keepAlive  bool

	// batches holds one coalescing Batch per target coroutine, drained by
	// FlushPatches at end-of-step rather than sent eagerly from SendPatch
	// (spec §11, grounded on original_source's rdr_msg.c batching).
	batches map[atom.Atom]*Batch

	dispatcher Dispatcher
}

// New creates a Bridge that routes renderer events to d and gives a
// disconnected renderer closeGrace to reconnect before coroutines bound
// to it are finalized as lost (spec §4.8 "close grace period").
func New(d Dispatcher, closeGrace time.Duration) *Bridge {
	if closeGrace <= 0 {
		closeGrace = 30 * time.Second
	}
	return &Bridge{
		conns:      make(map[string]*connection),
		batches:    make(map[atom.Atom]*Batch),
		closeGrace: closeGrace,
		dispatcher: d,
	}
}

// SetKeepAlive controls whether the scheduler should keep ticking with
// zero live coroutines as long as a renderer is attached (spec §4.6
// "the instance's keep-alive flag").
func (b *Bridge) SetKeepAlive(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keepAlive = v
}

func (b *Bridge) register(id string) *connection {
	c := newConnection(id)
	b.mu.Lock()
	b.conns[id] = c
	b.mu.Unlock()
	logging.Op().Info("renderer connected", "conn", id)
	return c
}

func (b *Bridge) bindCoroutine(connID string, co atom.Atom) {
	b.mu.Lock()
	c := b.conns[connID]
	b.mu.Unlock()
	if c != nil {
		c.bind(co)
	}
}

// route delivers a renderer-originated event to its target coroutine.
func (b *Bridge) route(ev *RendererEvent) {
	var data *variant.Value
	if ev.DataJSON != "" {
		data = variant.MakeString(ev.DataJSON)
	}
	m := message.NewEvent(ev.CoroutineID, ev.EventType, ev.SubType, nil, data)
	b.dispatcher.PostToCoroutine(atom.Atom(ev.CoroutineID), m)
}

// SendPatch enqueues a DOM mutation for target, coalescing it against
// the target's pending batch rather than pushing it to connections
// immediately (spec §11 "DOM-mutation batching... flushed at
// end-of-step"). FlushPatches performs the actual send.
func (b *Bridge) SendPatch(target atom.Atom, patch DOMPatch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bt, ok := b.batches[target]
	if !ok {
		bt = &Batch{}
		b.batches[target] = bt
	}
	bt.Add(patch)
}

// FlushPatches implements scheduler.RendererManager: sends every patch
// batched since the last flush to each target's bound connections,
// non-blocking — a connection whose send buffer is full is treated as
// lagging, not blocking the scheduler (spec §4.2 "never blocks the
// interpreter thread").
func (b *Bridge) FlushPatches() {
	b.mu.Lock()
	pending := make(map[atom.Atom][]DOMPatch, len(b.batches))
	for target, bt := range b.batches {
		if patches := bt.Flush(); len(patches) > 0 {
			pending[target] = patches
		}
	}
	b.mu.Unlock()

	for target, patches := range pending {
		for _, patch := range patches {
			b.sendToBound(target, patch)
		}
	}
}

func (b *Bridge) sendToBound(target atom.Atom, patch DOMPatch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		if _, bound := c.coroutines[target]; !bound {
			continue
		}
		select {
		case c.send <- &Envelope{Kind: KindPatch, Patch: &patch}:
		default:
			logging.Op().Warn("renderer send buffer full, dropping patch", "conn", c.id)
		}
	}
}

// RevokeCoroutine implements coroutine.RendererRevoker: every connection
// forgets the exited coroutine (spec §4.5 "(c) tells the renderer(s) to
// revoke the coroutine's registration").
func (b *Bridge) RevokeCoroutine(id atom.Atom) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		c.unbind(id)
	}
}

// HandleDisconnects implements scheduler.RendererManager: returns one
// rdrState broadcast per connection that dropped since the last tick
// (spec §4.8). The sub-type is connLost when no other renderer
// connection is still attached to the instance, lostDuplicate when at
// least one other connection remains live — a renderer losing one of
// several redundant feeds is a lesser event than losing the last one.
func (b *Bridge) HandleDisconnects() []*message.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*message.Message
	for _, c := range b.conns {
		c.mu.Lock()
		lost := !c.disconnectedAt.IsZero() && !c.announced
		if lost {
			c.announced = true
		}
		c.mu.Unlock()
		if !lost {
			continue
		}
		subType := "connLost"
		if b.hasOtherLiveConnectionLocked(c.id) {
			subType = "lostDuplicate"
		}
		out = append(out, message.NewEvent(0, "rdrState", subType, nil, variant.MakeString(c.id)))
	}
	return out
}

// hasOtherLiveConnectionLocked reports whether some connection besides
// excludeID is still connected. Callers must hold b.mu.
func (b *Bridge) hasOtherLiveConnectionLocked(excludeID string) bool {
	for id, c := range b.conns {
		if id == excludeID {
			continue
		}
		if c.isConnected() {
			return true
		}
	}
	return false
}

// DrainReadyClose implements scheduler.RendererManager: permanently
// removes connections whose reconnect grace period has elapsed
// (spec §4.8 "close grace period").
func (b *Bridge) DrainReadyClose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	for id, c := range b.conns {
		c.mu.Lock()
		expired := !c.disconnectedAt.IsZero() && now.Sub(c.disconnectedAt) > b.closeGrace
		c.mu.Unlock()
		if expired {
			close(c.send)
			delete(b.conns, id)
			logging.Op().Info("renderer connection closed permanently", "conn", id)
		}
	}
}

// KeepAlive implements scheduler.RendererManager.
func (b *Bridge) KeepAlive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.keepAlive
}

// ConnectionIDs returns the ids of every connection currently tracked
// (connected or within its close grace), for diagnostics/REST listing.
func (b *Bridge) ConnectionIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.conns))
	for id := range b.conns {
		out = append(out, id)
	}
	return out
}
