package except

import "github.com/purc-go/purc/internal/atom"

// VCMExpr is the narrow interface onto the value-computation-model
// expression tree the vDOM loader produces (spec §4 "vDOM loader API" —
// an external, black-box input). Template only needs to be able to
// evaluate the expression once, at recovery time.
type VCMExpr interface {
	Eval(ctx ExprContext) (any, error)
}

// ExprContext is the narrow set of symbol lookups a VCM expression may
// need while evaluating inside a template (spec §4.4 symbol variables).
type ExprContext interface {
	Symbol(name byte) (any, bool)
}

// Template is a thin wrapper around a single VCM expression node, used
// as a content producer at exception recovery (`catch`) or post-error
// points (`except`) (spec §3 "Template"). At most one expression per
// template entity; a registered template stays registered, and Match
// can return it any number of times.
type Template struct {
	Expr VCMExpr
}

// ExceptTemplates maps an exception-atom name to the recovery template
// registered for it on one frame (spec §4.4 "except_templates: maps
// from exception tag / error tag to content templates").
type ExceptTemplates struct {
	entries []exceptEntry
}

type exceptEntry struct {
	tag      atom.Atom
	template *Template
}

// Register associates tagAtom with template, preserving registration
// order (spec §9 Open Question: sibling catch/except elements are
// visited in document order until one matches).
func (t *ExceptTemplates) Register(tagAtom atom.Atom, template *Template) {
	t.entries = append(t.entries, exceptEntry{tag: tagAtom, template: template})
}

// Match returns the first registered template whose tag equals
// errorExcept, or nil if none matches (spec §4.4 "on_popping... checks
// its except_templates for a match").
func (t *ExceptTemplates) Match(errorExcept atom.Atom) *Template {
	for _, e := range t.entries {
		if e.tag == errorExcept {
			return e.template
		}
	}
	return nil
}
