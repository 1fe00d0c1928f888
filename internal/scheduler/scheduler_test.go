package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/corstate"
	"github.com/purc-go/purc/internal/coroutine"
	"github.com/purc-go/purc/internal/frame"
	"github.com/purc-go/purc/internal/heap"
	"github.com/purc-go/purc/internal/message"
	"github.com/purc-go/purc/internal/observer"
	"github.com/purc-go/purc/internal/variant"
	"github.com/purc-go/purc/internal/vdom"
	"github.com/stretchr/testify/require"
)

func newTestCoroutine(t *testing.T, name string) *coroutine.Coroutine {
	t.Helper()
	co := coroutine.New(atom.USER.Intern(name), 0, nil, nil)
	el := &vdom.Element{Tag: "test"}
	co.Stack.Push(frame.New(el, frame.Ops{}, nil))
	return co
}

func TestTickPopsRootFrameToObserving(t *testing.T) {
	h := heap.New(nil)
	co := newTestCoroutine(t, "sched-co-1")
	h.Add(co)

	s := New("inst", h, nil, nil, Config{})
	s.Tick(context.Background())

	require.Equal(t, 0, co.Stack.Depth())
	require.Equal(t, corstate.StateObserving, co.State)
	require.Equal(t, corstate.StageObserving, co.Stage)
}

func TestTickDispatchesMatchingObserverAndAutoRemoves(t *testing.T) {
	h := heap.New(nil)
	co := newTestCoroutine(t, "sched-co-2")
	h.Add(co)

	var handled *message.Message
	clickAtom := atom.MSG.Intern("click")
	obs := co.Observer.Add(&observer.Observer{
		Source:     observer.SourceHVML,
		EventType:  clickAtom,
		AutoRemove: true,
		Handle: func(m *message.Message) error {
			handled = m
			return nil
		},
	})
	require.Equal(t, 1, co.Observer.Count())

	m := message.NewEvent(uint64(co.ID), "click", "", nil, nil)
	co.Inbox.Append(m)

	s := New("inst", h, nil, nil, Config{})
	busy := s.dispatchEvent()

	require.True(t, busy)
	require.Equal(t, m, handled)
	require.Equal(t, 0, co.Observer.Count())
	_ = obs
}

func TestTickUnmatchedEventIsRequeued(t *testing.T) {
	h := heap.New(nil)
	co := newTestCoroutine(t, "sched-co-3")
	h.Add(co)

	m := message.NewEvent(uint64(co.ID), "click", "", nil, nil)
	co.Inbox.Append(m)

	s := New("inst", h, nil, nil, Config{})
	busy := s.dispatchEvent()

	require.True(t, busy)
	require.Equal(t, 1, co.Inbox.Len())
}

func TestTickWakesTimedOutCoroutine(t *testing.T) {
	h := heap.New(nil)
	co := newTestCoroutine(t, "sched-co-4")
	h.Add(co)
	h.MoveToStopped(co, time.Now().Add(-time.Second).UnixNano())

	s := New("inst", h, nil, nil, Config{})
	s.Tick(context.Background())

	_, ready := h.Lookup(co.ID)
	require.True(t, ready)
	require.True(t, co.TimedOut)
}

func TestTickBroadcastsIdleAfterInterval(t *testing.T) {
	h := heap.New(nil)
	co := newTestCoroutine(t, "sched-co-5")
	h.Add(co)
	// The coroutine sleeps, so the tick has no step or event to run.
	h.MoveToStopped(co, 0)

	observed := variant.MakeNative(co, variant.NativeOps{})
	co.Observer.Add(&observer.Observer{
		Source:    observer.SourceHVML,
		EventType: atom.MSG.Intern("idle"),
		Observed:  observed,
	})
	require.True(t, co.Observer.ObservingIdle())

	s := New("inst", h, nil, nil, Config{IdleInterval: time.Microsecond})
	time.Sleep(2 * time.Millisecond)
	s.Tick(context.Background())

	require.Equal(t, 1, co.Inbox.Len())
}

type keepAliveRenderer struct{}

func (keepAliveRenderer) HandleDisconnects() []*message.Message { return nil }
func (keepAliveRenderer) DrainReadyClose()                      {}
func (keepAliveRenderer) KeepAlive() bool                       { return true }
func (keepAliveRenderer) FlushPatches()                          {}

func TestStopRun(t *testing.T) {
	h := heap.New(nil)
	s := New("inst", h, keepAliveRenderer{}, nil, Config{TickSleep: time.Millisecond})

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
