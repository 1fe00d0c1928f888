package coroutine

import (
	"time"

	"github.com/purc-go/purc/internal/except"
	"github.com/purc-go/purc/internal/frame"
)

// StepResult tells the scheduler what happened during one
// execute_one_step call (spec §4.6) so it can decide whether to
// reschedule the coroutine immediately, move it to STOPPED/OBSERVING, or
// begin exception/exit processing.
type StepResult struct {
	Yielded   bool // AfterPushed asked to suspend
	Exited    bool // return/exit set val_from_return_or_exit
	Err       error
	FrameDone bool // the stepped frame popped this tick
}

// Step runs exactly one operation-table entry on the top frame according
// to its NextStep (spec §4.4 "The scheduler calls exactly one of these
// per step"). It does not itself perform exception propagation or state
// transitions; the scheduler's check_after_execution does that using the
// returned StepResult (spec §4.7).
func (co *Coroutine) Step() StepResult {
	top := co.Stack.Top()
	if top == nil {
		return StepResult{}
	}

	switch top.NextStep {
	case frame.StepAfterPushed:
		return co.stepAfterPushed(top)
	case frame.StepSelectChild:
		return co.stepSelectChild(top)
	case frame.StepOnPopping:
		return co.stepOnPopping(top)
	case frame.StepRerun:
		return co.stepRerun(top)
	default:
		return StepResult{}
	}
}

func (co *Coroutine) stepAfterPushed(top *frame.Frame) StepResult {
	if top.Ops.AfterPushed == nil {
		top.NextStep = frame.StepSelectChild
		return StepResult{}
	}
	yield, err := top.Ops.AfterPushed(top)
	if err != nil {
		top.NextStep = frame.StepOnPopping
		return StepResult{Err: err}
	}
	if yield {
		return StepResult{Yielded: true}
	}
	top.NextStep = frame.StepSelectChild
	return StepResult{}
}

func (co *Coroutine) stepSelectChild(top *frame.Frame) StepResult {
	if top.Ops.SelectChild == nil {
		top.NextStep = frame.StepOnPopping
		return StepResult{}
	}
	child, err := top.Ops.SelectChild(top)
	if err != nil {
		top.NextStep = frame.StepOnPopping
		return StepResult{Err: err}
	}
	if child == nil {
		top.NextStep = frame.StepOnPopping
		return StepResult{}
	}
	// SelectChild only names which vDOM element comes next; resolving its
	// operation table by tag and pushing the frame happens here so that
	// internal/elements (which owns the tag->Ops table) never needs to
	// import internal/coroutine back.
	var ops frame.Ops
	if co.ResolveOps != nil {
		ops = co.ResolveOps(child.Tag)
	}
	f := frame.New(child, ops, top)
	f.Owner = co
	co.Stack.Push(f)
	return StepResult{}
}

func (co *Coroutine) stepOnPopping(top *frame.Frame) StepResult {
	if co.Exception != nil {
		if tmpl := top.ExceptTemplates.Match(co.Exception.ErrorExcept); tmpl != nil {
			co.Exception = nil
		}
	}
	if top.Ops.OnPopping == nil {
		co.Stack.Pop()
		return StepResult{FrameDone: true}
	}
	pop, err := top.Ops.OnPopping(top)
	if err != nil {
		return StepResult{Err: err}
	}
	if pop {
		co.Stack.Pop()
		return StepResult{FrameDone: true}
	}
	top.NextStep = frame.StepRerun
	return StepResult{}
}

func (co *Coroutine) stepRerun(top *frame.Frame) StepResult {
	if top.Ops.Rerun == nil {
		top.NextStep = frame.StepSelectChild
		return StepResult{}
	}
	if err := top.Ops.Rerun(top); err != nil {
		top.NextStep = frame.StepOnPopping
		return StepResult{Err: err}
	}
	top.NextStep = frame.StepSelectChild
	return StepResult{}
}

// CheckAfterExecution implements spec §4.7's post-step propagation: if
// res carries a non-again error, it is lifted into co.Exception and the
// stack is walked innermost-out for a matching except template. If none
// matches, the coroutine is marked terminated. An error with no
// exception atom (stop, raised by exit/return) marks the coroutine
// terminated and leaves co.Exception nil. This does not itself
// transition coroutine state — the scheduler does that based on the
// return value (matched, terminated).
func (co *Coroutine) CheckAfterExecution(res StepResult) (matched bool) {
	if res.Err == nil || except.IsAgain(res.Err) {
		return true
	}
	elementTag := ""
	if top := co.Stack.Top(); top != nil {
		elementTag = top.Element.Tag
	}
	exc := except.FromError(res.Err, elementTag)
	if exc.ErrorExcept == 0 {
		co.Terminated = true
		return false
	}
	co.Exception = exc

	for _, f := range co.Stack.Frames() {
		if tmpl := f.ExceptTemplates.Match(exc.ErrorExcept); tmpl != nil {
			co.Exception = nil
			return true
		}
	}
	co.Terminated = true
	return false
}

// nowUnixNano is overridable in tests; production code always calls the
// real clock via the scheduler's heap, not here — Step itself is
// clock-free so unit tests can drive it deterministically.
var nowUnixNano = func() int64 { return time.Now().UnixNano() }
