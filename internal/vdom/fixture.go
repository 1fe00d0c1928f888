package vdom

import "gopkg.in/yaml.v3"

// fixtureElement is a YAML-friendly mirror of Element, used only to
// build test trees without hand-writing HVML source text.
type fixtureElement struct {
	Tag      string            `yaml:"tag"`
	Attrs    map[string]string `yaml:"attrs,omitempty"` // plain "=" attributes only
	Content  string            `yaml:"content,omitempty"`
	Children []fixtureElement  `yaml:"children,omitempty"`
}

// FromYAML builds an Element tree from a YAML fixture document. Only
// plain "=" attributes are representable in the fixture schema; use
// Parse for operator-bearing attributes.
func FromYAML(doc string) (*Element, error) {
	var root fixtureElement
	if err := yaml.Unmarshal([]byte(doc), &root); err != nil {
		return nil, err
	}
	return root.toElement(), nil
}

func (f fixtureElement) toElement() *Element {
	el := &Element{Tag: f.Tag, Content: f.Content}
	for name, value := range f.Attrs {
		el.Attrs = append(el.Attrs, Attr{Name: name, Op: OpAssign, RawValue: value})
	}
	for _, c := range f.Children {
		el.Children = append(el.Children, c.toElement())
	}
	return el
}
