package coroutine

import (
	"testing"

	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/corstate"
	"github.com/purc-go/purc/internal/except"
	"github.com/purc-go/purc/internal/frame"
	"github.com/purc-go/purc/internal/message"
	"github.com/purc-go/purc/internal/vdom"
	"github.com/purc-go/purc/internal/variant"
	"github.com/stretchr/testify/require"
)

type fakeCurator struct {
	posted []*message.Message
}

func (f *fakeCurator) PostToCoroutine(target atom.Atom, m *message.Message) {
	f.posted = append(f.posted, m)
}

type fakeRenderer struct{ revoked []atom.Atom }

func (f *fakeRenderer) RevokeCoroutine(id atom.Atom) { f.revoked = append(f.revoked, id) }

func TestSimpleExitNoCurator(t *testing.T) {
	id := atom.USER.Intern("co-1")
	co := New(id, 0, nil, nil)

	root := frame.New(&vdom.Element{Tag: "hvml"}, frame.Ops{}, nil)
	co.Stack.Push(root)

	require.NoError(t, co.Transition(corstate.StateRunning))

	result := variant.MakeNumber(42)
	require.NoError(t, co.Exit(result, 0))
	require.Equal(t, corstate.StateExited, co.State)
}

func TestCallReturnPostsCallStateThenCorState(t *testing.T) {
	parentID := atom.USER.Intern("parent-co")
	childID := atom.USER.Intern("child-co")
	curator := &fakeCurator{}
	renderer := &fakeRenderer{}

	child := New(childID, parentID, curator, renderer)
	require.NoError(t, child.Transition(corstate.StateRunning))

	require.NoError(t, child.Exit(variant.MakeNumber(7), 0))

	require.Len(t, curator.posted, 2)
	require.Equal(t, "callState:success", curator.posted[0].EventName())
	require.Equal(t, "corState:exited", curator.posted[1].EventName())
	require.Equal(t, []atom.Atom{childID}, renderer.revoked)
}

func TestExitWithExceptionPostsCallStateExcept(t *testing.T) {
	parentID := atom.USER.Intern("parent-co-2")
	childID := atom.USER.Intern("child-co-2")
	curator := &fakeCurator{}

	child := New(childID, parentID, curator, nil)
	require.NoError(t, child.Transition(corstate.StateRunning))
	badName := atom.MSG.Intern("BadName")
	require.NoError(t, child.Exit(nil, badName))
	require.Equal(t, "callState:except", curator.posted[0].EventName())
}

func TestCheckAfterExecutionMatchesExceptTemplate(t *testing.T) {
	id := atom.USER.Intern("co-catch")
	co := New(id, 0, nil, nil)

	root := frame.New(&vdom.Element{Tag: "hvml"}, frame.Ops{}, nil)
	badName := atom.MSG.Intern("BadName")
	root.ExceptTemplates.Register(badName, &except.Template{})
	co.Stack.Push(root)

	matched := co.CheckAfterExecution(StepResult{Err: except.Raise("BadName", "no such name")})
	require.True(t, matched)
	require.Nil(t, co.Exception)
	require.False(t, co.Terminated)
}

func TestCheckAfterExecutionTerminatesWithoutMatch(t *testing.T) {
	id := atom.USER.Intern("co-unmatched")
	co := New(id, 0, nil, nil)
	root := frame.New(&vdom.Element{Tag: "hvml"}, frame.Ops{}, nil)
	co.Stack.Push(root)

	matched := co.CheckAfterExecution(StepResult{Err: except.Raise("NoSuchKey", "missing")})
	require.False(t, matched)
	require.True(t, co.Terminated)
	require.NotNil(t, co.Exception)
}

func TestAgainErrorNeverPropagates(t *testing.T) {
	id := atom.USER.Intern("co-again")
	co := New(id, 0, nil, nil)
	matched := co.CheckAfterExecution(StepResult{Err: except.Again()})
	require.True(t, matched)
	require.Nil(t, co.Exception)
}

func TestIdleEligibleAfterTopFramePops(t *testing.T) {
	id := atom.USER.Intern("co-idle")
	co := New(id, 0, nil, nil)
	co.Stack.Push(frame.New(&vdom.Element{Tag: "hvml"}, frame.Ops{}, nil))
	require.False(t, co.IsIdleEligible())
	co.Stack.Pop()
	require.True(t, co.IsIdleEligible())
}

func TestInvalidTransitionRejected(t *testing.T) {
	id := atom.USER.Intern("co-bad-transition")
	co := New(id, 0, nil, nil)
	require.Error(t, co.Transition(corstate.StateObserving))
}
