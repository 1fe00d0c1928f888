package observer

import (
	"testing"

	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/corstate"
	"github.com/purc-go/purc/internal/message"
	"github.com/purc-go/purc/internal/variant"
	"github.com/stretchr/testify/require"
)

func TestDispatchIntrinsicBeforeHVML(t *testing.T) {
	reg := NewRegistry(nil)
	target := variant.MakeString("watched")
	defer target.Unref()

	changeAtom := atom.MSG.Intern("change")

	var order []string
	reg.Add(&Observer{
		Source:    SourceHVML,
		Observed:  target,
		EventType: changeAtom,
		Handle:    func(*message.Message) error { order = append(order, "hvml"); return nil },
	})
	reg.Add(&Observer{
		Source:    SourceIntrinsic,
		Observed:  target,
		EventType: changeAtom,
		Handle:    func(*message.Message) error { order = append(order, "intr"); return nil },
	})

	m := &message.Message{EventType: changeAtom, ElementValue: target}
	o := reg.Dispatch(m, corstate.StageObserving, corstate.StateObserving)
	require.NotNil(t, o)
	require.Equal(t, SourceIntrinsic, o.Source)
}

func TestRevokeInvokesHooksOnce(t *testing.T) {
	reg := NewRegistry(nil)
	v := variant.MakeString("x")

	var revoked int
	o := reg.Add(&Observer{
		Observed: v,
		OnRevoke: func() { revoked++ },
	})
	require.Equal(t, 1, reg.Count())

	reg.Revoke(o)
	require.Equal(t, 0, reg.Count())
	require.Equal(t, 1, revoked)

	// Revoking twice must not double-invoke the hook.
	reg.Revoke(o)
	require.Equal(t, 1, revoked)
}

func TestObservingIdleRecompute(t *testing.T) {
	self := "coroutine-self"
	reg := NewRegistry(self)
	idleAtom := atom.MSG.Intern("idle")

	native := variant.MakeNative(self, variant.NativeOps{})
	defer native.Unref()

	o := reg.Add(&Observer{Source: SourceHVML, Observed: native, EventType: idleAtom})
	require.True(t, reg.ObservingIdle())

	reg.Revoke(o)
	require.False(t, reg.ObservingIdle())
}

func TestObservingIdleRecomputeWithNilObserved(t *testing.T) {
	reg := NewRegistry("coroutine-self")
	idleAtom := atom.MSG.Intern("idle")

	// A bare `on="idle"` observer never names a selector variant — the
	// real observe verb always constructs one with Observed == nil.
	o := reg.Add(&Observer{Source: SourceHVML, EventType: idleAtom})
	require.True(t, reg.ObservingIdle())

	reg.Revoke(o)
	require.False(t, reg.ObservingIdle())
}

func TestDefaultMatchSubTypeRegex(t *testing.T) {
	changeAtom := atom.MSG.Intern("change")
	target := variant.MakeString("t")
	defer target.Unref()

	o := &Observer{Observed: target, EventType: changeAtom, SubType: "^attr\\..*$", SubTypeRegex: true}
	typ, sub := atom.EventName("change", "attr.displaced")
	m := &message.Message{EventType: typ, EventSub: sub, ElementValue: target}
	require.Equal(t, changeAtom, typ)
	require.True(t, o.DefaultMatch(m))
}
