package rdrbridge

import (
	"testing"
	"time"

	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/message"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	posted []*message.Message
}

func (f *fakeDispatcher) PostToCoroutine(target atom.Atom, m *message.Message) {
	f.posted = append(f.posted, m)
}

func TestHandleDisconnectsAnnouncesOnce(t *testing.T) {
	b := New(&fakeDispatcher{}, time.Hour)
	conn := b.register("rdr-1")
	conn.markDisconnected()

	msgs := b.HandleDisconnects()
	require.Len(t, msgs, 1)
	require.Equal(t, "connLost", msgs[0].EventName()[len("rdrState:"):])

	again := b.HandleDisconnects()
	require.Empty(t, again)
}

func TestHandleDisconnectsReportsLostDuplicateWhenAnotherConnectionLives(t *testing.T) {
	b := New(&fakeDispatcher{}, time.Hour)
	lost := b.register("rdr-4")
	b.register("rdr-5") // stays connected
	lost.markDisconnected()

	msgs := b.HandleDisconnects()
	require.Len(t, msgs, 1)
	require.Equal(t, "lostDuplicate", msgs[0].EventName()[len("rdrState:"):])
}

func TestDrainReadyCloseRemovesExpiredConnections(t *testing.T) {
	b := New(&fakeDispatcher{}, time.Millisecond)
	conn := b.register("rdr-2")
	conn.markDisconnected()

	time.Sleep(5 * time.Millisecond)
	b.DrainReadyClose()

	require.Empty(t, b.ConnectionIDs())
}

func TestRevokeCoroutineUnbindsFromAllConnections(t *testing.T) {
	b := New(&fakeDispatcher{}, time.Hour)
	conn := b.register("rdr-3")
	co := atom.USER.Intern("bridge-co-1")
	conn.bind(co)
	require.Len(t, conn.coroutines, 1)

	b.RevokeCoroutine(co)
	require.Empty(t, conn.coroutines)
}

func TestRouteDeliversToDispatcher(t *testing.T) {
	d := &fakeDispatcher{}
	b := New(d, time.Hour)
	b.route(&RendererEvent{CoroutineID: 7, EventType: "click", SubType: ""})

	require.Len(t, d.posted, 1)
	require.Equal(t, "click:", d.posted[0].EventName())
}

func TestSendPatchOnlyReachesBoundConnections(t *testing.T) {
	b := New(&fakeDispatcher{}, time.Hour)
	co := atom.USER.Intern("bridge-co-2")
	bound := b.register("rdr-bound")
	bound.bind(co)
	b.register("rdr-unbound")

	b.SendPatch(co, DOMPatch{Op: "update"})
	b.FlushPatches()

	select {
	case env := <-bound.send:
		require.Equal(t, KindPatch, env.Kind)
	default:
		t.Fatal("expected patch on bound connection")
	}
}

func TestFlushPatchesCoalescesConsecutiveAppendsToSameAnchor(t *testing.T) {
	b := New(&fakeDispatcher{}, time.Hour)
	co := atom.USER.Intern("bridge-co-batch")
	bound := b.register("rdr-batch")
	bound.bind(co)

	b.SendPatch(co, DOMPatch{AnchorKey: 1, Op: "append", ContentHTML: "<a/>"})
	b.SendPatch(co, DOMPatch{AnchorKey: 1, Op: "append", ContentHTML: "<b/>"})
	b.SendPatch(co, DOMPatch{AnchorKey: 2, Op: "erase"})
	b.FlushPatches()

	var got []*Envelope
	for {
		select {
		case env := <-bound.send:
			got = append(got, env)
			continue
		default:
		}
		break
	}

	require.Len(t, got, 2)
	require.Equal(t, "append", got[0].Patch.Op)
	require.Equal(t, "<a/><b/>", got[0].Patch.ContentHTML)
	require.Equal(t, "erase", got[1].Patch.Op)
}
