// Package elements implements the built-in HVML verb operation tables
// the scheduler drives every frame through (spec §4.4 "each element tag
// has an operation table {after_pushed, select_child, on_popping, rerun,
// cleanup}"). Grounded on the teacher's workflow engine's node-kind
// dispatch (executeNode's switch over node type), generalized from a
// fixed two-case switch to an open per-tag table so new verbs register
// without the scheduler or coroutine package ever needing to know about
// them.
//
// Evaluating an attribute's or content's expression text into a variant
// is a VCM-evaluator concern the core scope explicitly treats as an
// external, black-box input (spec §1, internal/vdom's RawValue doc
// comment); the verbs here treat RawValue/Content as literal strings,
// which is enough to exercise the frame lifecycle, except-template
// matching and observer registration these verbs actually own.
package elements

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/coroutine"
	"github.com/purc-go/purc/internal/except"
	"github.com/purc-go/purc/internal/fetcher"
	"github.com/purc-go/purc/internal/frame"
	"github.com/purc-go/purc/internal/message"
	"github.com/purc-go/purc/internal/observer"
	"github.com/purc-go/purc/internal/variant"
	"github.com/purc-go/purc/internal/vdom"
)

// Registry resolves a vDOM element tag to its operation table. A
// coroutine's ResolveOps field is bound to Registry.Resolve at creation
// time (internal/instance wires this).
type Registry struct {
	byTag     map[string]frame.Ops
	container frame.Ops
	fetch     *fetcher.Fetcher
}

// New builds the built-in verb table. fc may be nil, in which case
// `request` elements fail with KindNotSupported instead of fetching.
// Tags absent from the table fall back to the generic container
// behavior: register nested catch/except templates, then push
// non-template children in document order.
func New(fc *fetcher.Fetcher) *Registry {
	r := &Registry{byTag: make(map[string]frame.Ops), fetch: fc}
	r.container = frame.Ops{
		AfterPushed: containerAfterPushed,
		SelectChild: containerSelectChild,
	}

	r.byTag["hvml"] = r.container
	r.byTag["body"] = r.container
	r.byTag["iterate"] = frame.Ops{
		AfterPushed: iterateAfterPushed,
		SelectChild: containerSelectChild,
		OnPopping:   iterateOnPopping,
		Rerun:       iterateRerun,
	}
	r.byTag["init"] = frame.Ops{AfterPushed: initAfterPushed}
	r.byTag["observe"] = frame.Ops{AfterPushed: observeAfterPushed}
	r.byTag["request"] = frame.Ops{AfterPushed: r.requestAfterPushed}
	r.byTag["exit"] = frame.Ops{OnPopping: exitOnPopping}
	r.byTag["return"] = frame.Ops{OnPopping: returnOnPopping}
	return r
}

// Resolve implements the coroutine.Coroutine.ResolveOps signature
// (spec §4.4's "operation table ... chosen by the element tag").
func (r *Registry) Resolve(tag string) frame.Ops {
	if ops, ok := r.byTag[tag]; ok {
		return ops
	}
	return r.container
}

// isTemplateTag reports whether child is an except/catch recovery
// template rather than an ordinary pushable child (spec §4.4
// "on_popping ... checks its except_templates").
func isTemplateTag(tag string) bool {
	return tag == "catch" || tag == "except"
}

// registerExceptTemplates scans f.Element's direct children for
// catch/except tags and registers each against its "for" attribute's
// exception atom (spec §3 "except_templates: maps from exception tag /
// error tag to content templates").
func registerExceptTemplates(f *frame.Frame) {
	for _, child := range f.Element.Children {
		if !isTemplateTag(child.Tag) {
			continue
		}
		forAttr, ok := child.Attr("for")
		if !ok || forAttr.RawValue == "" {
			continue
		}
		f.ExceptTemplates.Register(atom.MSG.Intern(forAttr.RawValue), &except.Template{Expr: literalExpr(child.Content)})
	}
}

// literalExpr is a VCMExpr that evaluates to its own literal text,
// standing in for the real expression evaluator this core scope treats
// as external (spec §1).
type literalExpr string

func (e literalExpr) Eval(ctx except.ExprContext) (any, error) { return string(e), nil }

func containerAfterPushed(f *frame.Frame) (bool, error) {
	registerExceptTemplates(f)
	return false, nil
}

// containerSelectChild walks f.Element.Children in document order,
// skipping catch/except templates, advancing the frame's `%` counter
// symbol as the cursor (spec §4.4 Symbols "% — unsigned counter").
func containerSelectChild(f *frame.Frame) (*vdom.Element, error) {
	children := f.Element.Children
	for i := f.Symbols.Counter; int(i) < len(children); i++ {
		f.Symbols.Counter = i + 1
		if isTemplateTag(children[i].Tag) {
			continue
		}
		return children[i], nil
	}
	return nil, nil
}

// roundsRemaining is iterate's continuation state: how many more passes
// over its children remain (spec §4.4 "rerun: used by iterators to
// begin another round").
type roundsRemaining struct {
	n int
}

func iterateAfterPushed(f *frame.Frame) (bool, error) {
	registerExceptTemplates(f)
	rounds := 1
	if roundsAttr, ok := f.Element.Attr("rounds"); ok {
		if n, err := strconv.Atoi(roundsAttr.RawValue); err == nil && n > 0 {
			rounds = n
		}
	}
	f.YieldedCtxt = &roundsRemaining{n: rounds}
	return false, nil
}

func iterateOnPopping(f *frame.Frame) (bool, error) {
	state, _ := f.YieldedCtxt.(*roundsRemaining)
	if state == nil {
		return true, nil
	}
	state.n--
	return state.n <= 0, nil
}

func iterateRerun(f *frame.Frame) error {
	f.Symbols.Counter = 0
	return nil
}

// initAfterPushed assigns the element's literal content to its own `=`
// symbol slot (spec §4.4 "symbol variables are prepared per frame"); it
// has no children, so the default nil SelectChild moves straight to
// on_popping.
func initAfterPushed(f *frame.Frame) (bool, error) {
	f.Symbols.Equal = variant.MakeString(f.Element.Content)
	return false, nil
}

// observeAfterPushed registers an hvml observer on the coroutine owning
// this frame and yields (spec §4.4 "on suspension... keeps the frame and
// records yielded_ctxt + continuation"). On resume — the observer
// already matched and was auto-removed — it simply proceeds without
// re-registering, using YieldedCtxt as the one-shot marker.
//
// Observed is left nil for an ordinary `on="eventName"`: it names no
// specific source variant, so DefaultMatch's equivalence check (spec
// §4.3) is given nil on both sides and degrades to a plain type/sub-type
// match against events addressed to this coroutine — the common case the
// core scope covers without a selector-expression evaluator (spec §1).
// `on="idle"` is likewise addressed to this coroutine: internal/observer
// treats a bare idle observer with Observed == nil the same as one
// explicitly wrapping the coroutine's own identity.
//
// `on="change"` is the one case that does need a concrete target: it
// names the enclosing frame's container symbol via a literal `for`
// sigil (one of "!", "^", "="), since resolving an arbitrary selector
// expression is the VCM evaluator this core scope treats as external.
// The observer then watches that container directly (spec §4.1
// "mutating a container ... broadcast of change to observers"): every
// mutation posts a `change` event carrying the container as its element
// value into the coroutine's inbox, and DefaultMatch's equivalence check
// pairs it with this observer by identity.
func observeAfterPushed(f *frame.Frame) (bool, error) {
	if f.YieldedCtxt != nil {
		return false, nil
	}
	onAttr, ok := f.Element.Attr("on")
	if !ok || onAttr.RawValue == "" {
		return false, except.New(except.KindWrongArgs, "observe: missing \"on\" attribute")
	}
	co, ok := f.Owner.(*coroutine.Coroutine)
	if !ok || co == nil {
		return false, except.New(except.KindNotReady, "observe: frame has no owning coroutine")
	}

	obs := &observer.Observer{
		Source:       observer.SourceHVML,
		EventType:    atom.MSG.Intern(onAttr.RawValue),
		AutoRemove:   true,
		ScopeElement: f.Element.Tag,
	}

	if onAttr.RawValue == "change" {
		forAttr, ok := f.Element.Attr("for")
		if !ok || forAttr.RawValue == "" {
			return false, except.New(except.KindWrongArgs, "observe: missing \"for\" attribute for on=\"change\"")
		}
		container, err := containerSymbol(f, forAttr.RawValue)
		if err != nil {
			return false, err
		}
		obs.WatchContainer(container, func(mutated *variant.Value) {
			co.Lock()
			co.Inbox.Append(message.NewEvent(uint64(co.ID), "change", "", mutated, nil))
			co.Unlock()
		})
	}

	co.Observer.Add(obs)
	f.YieldedCtxt = obs
	return true, nil
}

// containerSymbol resolves a literal symbol sigil to one of the parent
// frame's own container-shaped symbol slots (spec §4.4 Symbols), the
// only "target" an `on="change"` observer can literally name without a
// selector-expression evaluator.
func containerSymbol(f *frame.Frame, sigil string) (*variant.Value, error) {
	if f.Parent == nil {
		return nil, except.New(except.KindWrongArgs, "observe: no enclosing frame for symbol %q", sigil)
	}
	var v *variant.Value
	switch sigil {
	case "!":
		v = f.Parent.Symbols.Scratch
	case "^":
		v = f.Parent.Symbols.Content
	case "=":
		v = f.Parent.Symbols.Equal
	default:
		return nil, except.New(except.KindWrongArgs, "observe: unknown container symbol %q", sigil)
	}
	if v == nil {
		return nil, except.New(except.KindWrongArgs, "observe: enclosing frame's %q symbol is unset", sigil)
	}
	return v, nil
}

// frameSeq disambiguates concurrent request elements' intrinsic
// fetchState observers from each other (two sibling coroutines each
// have their own Observer.Registry, but two request frames active at
// once on the *same* coroutine — e.g. nested inside concurrent iterate
// rounds — would otherwise share one event type with no way to tell
// which yielded frame a completion belongs to).
var frameSeq atomic.Int64

// requestAfterPushed fans an HTTP/S3 load (or several, comma-separated)
// out through the fetcher and yields until it completes, the same
// yield/resume shape as observeAfterPushed but driven by an intrinsic
// fetchState event instead of a user-named one (spec §4 "Fetcher
// adapter... never on the scheduler's hot path" — the actual I/O runs on
// its own goroutine, off the coroutine's stepping thread). On resume the
// result is already sitting in the `=` slot, placed there by the
// observer's Handle callback before AutoRemove revoked it.
func (r *Registry) requestAfterPushed(f *frame.Frame) (bool, error) {
	if f.YieldedCtxt != nil {
		return false, nil
	}
	onAttr, ok := f.Element.Attr("on")
	if !ok || onAttr.RawValue == "" {
		return false, except.New(except.KindWrongArgs, "request: missing \"on\" attribute")
	}
	co, ok := f.Owner.(*coroutine.Coroutine)
	if !ok || co == nil {
		return false, except.New(except.KindNotReady, "request: frame has no owning coroutine")
	}
	if r.fetch == nil {
		return false, except.New(except.KindNotSupported, "request: no fetcher configured")
	}

	urls := splitURLs(onAttr.RawValue)
	obs := &observer.Observer{
		Source:       observer.SourceIntrinsic,
		EventType:    atom.MSG.Intern("fetchState"),
		SubType:      f.Element.Tag + "-" + strconv.FormatInt(frameSeq.Add(1), 10),
		AutoRemove:   true,
		ScopeElement: f.Element.Tag,
		Handle: func(m *message.Message) error {
			f.Symbols.Equal = m.Data
			return nil
		},
	}
	co.Observer.Add(obs)
	f.YieldedCtxt = obs

	go func() {
		results, err := r.fetch.FetchAll(context.Background(), urls)
		var payload *variant.Value
		if err != nil {
			payload = variant.MakeString(err.Error())
		} else if len(results) == 1 {
			payload = results[0].Value
		} else {
			members := make([]*variant.Value, len(results))
			for i, res := range results {
				members[i] = res.Value
			}
			payload = variant.MakeArray(members...)
		}
		co.Lock()
		co.Inbox.Append(message.NewEvent(uint64(co.ID), "fetchState", obs.SubType, nil, payload))
		co.Unlock()
	}()
	return true, nil
}

// splitURLs parses request's "on" attribute as a comma-separated URL
// list, trimming surrounding whitespace around each entry.
func splitURLs(raw string) []string {
	parts := strings.Split(raw, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			urls = append(urls, p)
		}
	}
	return urls
}

// exitOnPopping and returnOnPopping both set the coroutine's
// val_from_return_or_exit and raise except.KindStop, an error kind with
// no exception-atom mapping (spec §7's static table). It is never
// matched by any except_templates, so it propagates to the coroutine's
// own terminated path and the scheduler exits it with this result
// instead of an exception (spec §4.5, §4.7).
func exitOnPopping(f *frame.Frame) (bool, error) {
	return haltWithResult(f)
}

func returnOnPopping(f *frame.Frame) (bool, error) {
	return haltWithResult(f)
}

func haltWithResult(f *frame.Frame) (bool, error) {
	co, ok := f.Owner.(*coroutine.Coroutine)
	if !ok || co == nil {
		return true, except.New(except.KindNotReady, "exit/return: frame has no owning coroutine")
	}
	var result *variant.Value
	if withAttr, ok := f.Element.Attr("with"); ok {
		result = variant.MakeString(withAttr.RawValue)
	} else if f.Symbols.Equal != nil {
		result = f.Symbols.Equal
	} else {
		result = variant.MakeString(f.Element.Content)
	}
	co.SetResultValue(result)
	return true, except.New(except.KindStop, "coroutine exited via %s", f.Element.Tag)
}
