package rdrbridge

import (
	"sync"
	"time"

	"github.com/purc-go/purc/internal/atom"
)

// connection is one live (or recently-lost) renderer stream.
type connection struct {
	mu sync.Mutex

	id         string
	rendererID string
	send       chan *Envelope

	lastSeen       time.Time
	disconnectedAt time.Time // zero while connected
	announced      bool      // HandleDisconnects has already reported this loss

	coroutines map[atom.Atom]struct{} // coroutines this connection renders
}

func newConnection(id string) *connection {
	return &connection{
		id:         id,
		send:       make(chan *Envelope, 64),
		lastSeen:   time.Now(),
		coroutines: make(map[atom.Atom]struct{}),
	}
}

func (c *connection) bind(co atom.Atom) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coroutines[co] = struct{}{}
}

func (c *connection) unbind(co atom.Atom) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.coroutines, co)
}

func (c *connection) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = time.Now()
}

func (c *connection) markDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnectedAt.IsZero() {
		c.disconnectedAt = time.Now()
	}
}

func (c *connection) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectedAt.IsZero()
}
