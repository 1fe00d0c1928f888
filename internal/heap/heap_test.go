package heap

import (
	"testing"

	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/coroutine"
	"github.com/purc-go/purc/internal/message"
	"github.com/stretchr/testify/require"
)

func TestMoveToStoppedThenTimeoutWake(t *testing.T) {
	h := New(nil)
	id := atom.USER.Intern("heap-co-1")
	co := coroutine.New(id, 0, nil, nil)
	h.Add(co)

	h.MoveToStopped(co, 1000)
	_, inStopped := h.Lookup(id)
	require.True(t, inStopped)

	due := h.PopDueTimeouts(500)
	require.Empty(t, due)

	due = h.PopDueTimeouts(1500)
	require.Len(t, due, 1)
	require.True(t, due[0].TimedOut)
}

func TestMoveToReadyClearsTimeout(t *testing.T) {
	h := New(nil)
	id := atom.USER.Intern("heap-co-2")
	co := coroutine.New(id, 0, nil, nil)
	h.Add(co)
	h.MoveToStopped(co, 9999)

	h.MoveToReady(co)
	require.Equal(t, int64(0), co.StoppedTimeout)

	// The stale heap entry must not fire a spurious wake.
	due := h.PopDueTimeouts(99999)
	require.Empty(t, due)
}

func TestPostToCoroutineWakesStopped(t *testing.T) {
	h := New(nil)
	id := atom.USER.Intern("heap-co-3")
	co := coroutine.New(id, 0, nil, nil)
	h.Add(co)
	h.MoveToStopped(co, 0)

	h.PostToCoroutine(id, &message.Message{Type: message.TypeEvent})
	_, ready := h.Lookup(id)
	require.True(t, ready)
	require.Equal(t, 1, len(h.ReadyCoroutines()))
}

func TestAllCoroutinesCoversBothSets(t *testing.T) {
	h := New(nil)
	a := coroutine.New(atom.USER.Intern("heap-a"), 0, nil, nil)
	b := coroutine.New(atom.USER.Intern("heap-b"), 0, nil, nil)
	h.Add(a)
	h.Add(b)
	h.MoveToStopped(b, 0)

	require.Len(t, h.AllCoroutines(), 2)
	require.Len(t, h.ReadyCoroutines(), 1)
}
