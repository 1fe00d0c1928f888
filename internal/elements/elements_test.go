package elements

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/corstate"
	"github.com/purc-go/purc/internal/coroutine"
	"github.com/purc-go/purc/internal/fetcher"
	"github.com/purc-go/purc/internal/frame"
	"github.com/purc-go/purc/internal/heap"
	"github.com/purc-go/purc/internal/message"
	"github.com/purc-go/purc/internal/scheduler"
	"github.com/purc-go/purc/internal/variant"
	"github.com/purc-go/purc/internal/vdom"
	"github.com/stretchr/testify/require"
)

// newTestFetcher builds a *fetcher.Fetcher that only exercises the
// http(s) path (no AWS round trip), mirroring internal/fetcher's own
// test helper.
func newTestFetcher() *fetcher.Fetcher {
	return fetcher.NewHTTPOnly(&http.Client{})
}

// launch builds a coroutine rooted at root, wired to reg the way
// internal/instance wires a freshly scheduled coroutine.
func launch(t *testing.T, reg *Registry, name string, root *vdom.Element) (*coroutine.Coroutine, *heap.Heap) {
	t.Helper()
	co := coroutine.New(atom.USER.Intern(name), 0, nil, nil)
	co.ResolveOps = reg.Resolve
	f := frame.New(root, reg.Resolve(root.Tag), nil)
	f.Owner = co
	co.Stack.Push(f)

	h := heap.New(nil)
	h.Add(co)
	return co, h
}

func runUntilIdle(t *testing.T, s *scheduler.Scheduler, iterations int) {
	t.Helper()
	for i := 0; i < iterations; i++ {
		s.Tick(context.Background())
	}
}

func TestContainerPushesChildrenInOrder(t *testing.T) {
	reg := New(nil)
	root := &vdom.Element{
		Tag: "hvml",
		Children: []*vdom.Element{
			{Tag: "init", Content: "first"},
			{Tag: "init", Content: "second"},
		},
	}
	co, h := launch(t, reg, "elem-co-1", root)
	s := scheduler.New("inst", h, nil, nil, scheduler.Config{})
	runUntilIdle(t, s, 10)

	require.Equal(t, 0, co.Stack.Depth())
}

func TestIterateRunsConfiguredRounds(t *testing.T) {
	reg := New(nil)
	root := &vdom.Element{
		Tag: "iterate",
		Attrs: []vdom.Attr{
			{Name: "rounds", Op: vdom.OpAssign, RawValue: "3"},
		},
		Children: []*vdom.Element{
			{Tag: "init", Content: "x"},
		},
	}
	co, h := launch(t, reg, "elem-co-2", root)
	s := scheduler.New("inst", h, nil, nil, scheduler.Config{})
	runUntilIdle(t, s, 40)

	require.Equal(t, 0, co.Stack.Depth())
}

func TestExitSetsResultAndTerminatesWithoutException(t *testing.T) {
	reg := New(nil)
	root := &vdom.Element{
		Tag: "hvml",
		Children: []*vdom.Element{
			{Tag: "exit", Content: "done"},
		},
	}
	co, h := launch(t, reg, "elem-co-3", root)
	s := scheduler.New("inst", h, nil, nil, scheduler.Config{})
	runUntilIdle(t, s, 10)

	require.Equal(t, corstate.StateExited, co.State)
	require.NotNil(t, co.ResultValue)
	require.False(t, co.Terminated && co.Exception != nil)
}

func TestObserveYieldsThenResumesOnMatchingEvent(t *testing.T) {
	reg := New(nil)
	root := &vdom.Element{
		Tag: "hvml",
		Children: []*vdom.Element{
			{
				Tag:   "observe",
				Attrs: []vdom.Attr{{Name: "on", Op: vdom.OpAssign, RawValue: "myEvent"}},
			},
		},
	}
	co, h := launch(t, reg, "elem-co-4", root)
	s := scheduler.New("inst", h, nil, nil, scheduler.Config{})

	s.Tick(context.Background())
	require.Equal(t, 1, co.Observer.Count())

	co.Lock()
	co.Inbox.Append(message.NewEvent(uint64(co.ID), "myEvent", "", nil, nil))
	co.Unlock()

	for i := 0; i < 10; i++ {
		s.Tick(context.Background())
	}
	require.Equal(t, 0, co.Stack.Depth())
	require.Equal(t, 0, co.Observer.Count())
}

func TestObserveIdleDeliversIdleEventThroughScheduler(t *testing.T) {
	reg := New(nil)
	root := &vdom.Element{
		Tag: "hvml",
		Children: []*vdom.Element{
			{
				Tag:   "observe",
				Attrs: []vdom.Attr{{Name: "on", Op: vdom.OpAssign, RawValue: "idle"}},
			},
		},
	}
	co, h := launch(t, reg, "elem-co-idle", root)
	s := scheduler.New("inst", h, nil, nil, scheduler.Config{IdleInterval: time.Millisecond})

	s.Tick(context.Background())
	require.Equal(t, 1, co.Observer.Count())
	require.True(t, co.Observer.ObservingIdle())

	require.Eventually(t, func() bool {
		s.Tick(context.Background())
		return co.Stack.Depth() == 0
	}, 150*time.Millisecond, time.Millisecond)

	require.Equal(t, 0, co.Observer.Count())
}

func TestExitReadsWithAttributeAsLiteralResult(t *testing.T) {
	reg := New(nil)
	root := &vdom.Element{
		Tag: "hvml",
		Children: []*vdom.Element{
			{Tag: "exit", Attrs: []vdom.Attr{{Name: "with", Op: vdom.OpAssign, RawValue: "42"}}, Content: "ignored"},
		},
	}
	co, h := launch(t, reg, "elem-co-with", root)
	s := scheduler.New("inst", h, nil, nil, scheduler.Config{})
	runUntilIdle(t, s, 10)

	require.Equal(t, corstate.StateExited, co.State)
	require.NotNil(t, co.ResultValue)
	require.Equal(t, "42", co.ResultValue.String())
}

func TestObserveChangeDeliversOnContainerMutation(t *testing.T) {
	reg := New(nil)
	root := &vdom.Element{
		Tag: "hvml",
		Children: []*vdom.Element{
			{
				Tag: "observe",
				Attrs: []vdom.Attr{
					{Name: "on", Op: vdom.OpAssign, RawValue: "change"},
					{Name: "for", Op: vdom.OpAssign, RawValue: "!"},
				},
			},
		},
	}
	co, h := launch(t, reg, "elem-co-change", root)
	rootFrame := co.Stack.Top()
	s := scheduler.New("inst", h, nil, nil, scheduler.Config{})

	s.Tick(context.Background())
	require.Equal(t, 1, co.Observer.Count())

	val := variant.MakeString("v")
	defer val.Unref()
	rootFrame.Symbols.Scratch.ObjectSet("k", val)

	for i := 0; i < 10; i++ {
		s.Tick(context.Background())
	}
	require.Equal(t, 0, co.Stack.Depth())
	require.Equal(t, 0, co.Observer.Count())
}

func TestRequestYieldsThenResolvesSymbolOnFetchComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	reg := New(newTestFetcher())
	root := &vdom.Element{
		Tag: "hvml",
		Children: []*vdom.Element{
			{
				Tag:   "request",
				Attrs: []vdom.Attr{{Name: "on", Op: vdom.OpAssign, RawValue: srv.URL}},
			},
		},
	}
	co, h := launch(t, reg, "elem-co-5", root)
	s := scheduler.New("inst", h, nil, nil, scheduler.Config{})

	s.Tick(context.Background())
	require.Equal(t, 1, co.Observer.Count())

	require.Eventually(t, func() bool {
		co.Lock()
		n := co.Inbox.Len()
		co.Unlock()
		return n > 0
	}, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < 10; i++ {
		s.Tick(context.Background())
	}
	require.Equal(t, 0, co.Stack.Depth())
	require.Equal(t, 0, co.Observer.Count())
}

func TestRequestFailsWithoutFetcherConfigured(t *testing.T) {
	reg := New(nil)
	root := &vdom.Element{
		Tag: "hvml",
		Children: []*vdom.Element{
			{
				Tag:   "request",
				Attrs: []vdom.Attr{{Name: "on", Op: vdom.OpAssign, RawValue: "http://example.invalid"}},
			},
		},
	}
	co, h := launch(t, reg, "elem-co-6", root)
	s := scheduler.New("inst", h, nil, nil, scheduler.Config{})
	runUntilIdle(t, s, 5)

	require.Equal(t, corstate.StateExited, co.State)
	require.NotNil(t, co.Exception)
}

func TestCatchTemplateRegisteredFromChildren(t *testing.T) {
	root := &vdom.Element{
		Tag: "hvml",
		Children: []*vdom.Element{
			{Tag: "catch", Attrs: []vdom.Attr{{Name: "for", Op: vdom.OpAssign, RawValue: "BadName"}}, Content: "recovered"},
			{Tag: "init", Content: "x"},
		},
	}
	f := frame.New(root, New(nil).Resolve("hvml"), nil)
	_, err := f.Ops.AfterPushed(f)
	require.NoError(t, err)

	tmpl := f.ExceptTemplates.Match(atom.MSG.Intern("BadName"))
	require.NotNil(t, tmpl)

	child, err := f.Ops.SelectChild(f)
	require.NoError(t, err)
	require.NotNil(t, child)
	require.Equal(t, "init", child.Tag)

	next, err := f.Ops.SelectChild(f)
	require.NoError(t, err)
	require.Nil(t, next)
}
