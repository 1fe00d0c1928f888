package instance

import (
	"context"
	"testing"
	"time"

	"github.com/purc-go/purc/internal/corstate"
	"github.com/purc-go/purc/internal/message"
	"github.com/purc-go/purc/internal/vdom"
	"github.com/stretchr/testify/require"
)

func TestLaunchRunsToExit(t *testing.T) {
	in, err := New(context.Background(), Config{ID: "test-exit"})
	require.NoError(t, err)

	root := &vdom.Element{
		Tag: "hvml",
		Children: []*vdom.Element{
			{Tag: "exit", Content: "done"},
		},
	}
	co := in.Launch("prog", root, 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		in.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("instance did not exit once its only coroutine finished")
	}

	require.Equal(t, corstate.StateExited, co.State)
}

func TestStopInterruptsRun(t *testing.T) {
	in, err := New(context.Background(), Config{ID: "test-stop"})
	require.NoError(t, err)

	root := &vdom.Element{
		Tag: "hvml",
		Children: []*vdom.Element{
			{
				Tag:   "observe",
				Attrs: []vdom.Attr{{Name: "on", Op: vdom.OpAssign, RawValue: "neverComes"}},
			},
		},
	}
	in.Launch("waiter", root, 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		in.Run(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	in.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not interrupt Run")
	}
}

func TestMoveBufferDeliversIntoLaunchedCoroutine(t *testing.T) {
	buf := message.NewLocalMoveBuffer(4)
	in, err := New(context.Background(), Config{ID: "test-movebuf", MoveBuffer: buf})
	require.NoError(t, err)

	root := &vdom.Element{
		Tag: "hvml",
		Children: []*vdom.Element{
			{
				Tag:   "observe",
				Attrs: []vdom.Attr{{Name: "on", Op: vdom.OpAssign, RawValue: "crossInstanceEvent"}},
			},
		},
	}
	co := in.Launch("receiver", root, 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		in.Run(context.Background())
	}()

	// Give the launch a moment to register its observer before the
	// cross-instance message arrives.
	require.Eventually(t, func() bool {
		return co.Observer.Count() > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, buf.Post(context.Background(), message.NewEvent(uint64(co.ID), "crossInstanceEvent", "", nil, nil)))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("instance did not drain the move-buffer event and exit")
	}

	require.Equal(t, corstate.StateExited, co.State)
}
