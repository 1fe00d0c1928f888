package frame

import (
	"testing"

	"github.com/purc-go/purc/internal/vdom"
	"github.com/purc-go/purc/internal/variant"
	"github.com/stretchr/testify/require"
)

func TestChildInheritsInputAndAnchor(t *testing.T) {
	root := New(&vdom.Element{Tag: "hvml"}, Ops{}, nil)
	root.Symbols.Anchor = variant.MakeString("root-anchor")
	root.Symbols.Content = variant.MakeString("root-content")

	child := New(&vdom.Element{Tag: "body"}, Ops{}, root)
	require.Equal(t, "root-content", child.Symbols.Input.String())
	require.Equal(t, "root-anchor", child.Symbols.Anchor.String())
	require.True(t, child.Silently == root.Silently)
}

func TestPushPopRunsCleanupAndRestoresParentAsTop(t *testing.T) {
	var cleaned bool
	root := New(&vdom.Element{Tag: "hvml"}, Ops{}, nil)
	child := New(&vdom.Element{Tag: "p"}, Ops{
		Cleanup: func(f *Frame) { cleaned = true },
	}, root)

	var st Stack
	st.Push(root)
	st.Push(child)
	require.Equal(t, 2, st.Depth())
	require.Same(t, child, st.Top())

	popped := st.Pop()
	require.Same(t, child, popped)
	require.True(t, cleaned)
	require.Equal(t, 1, st.Depth())
	require.Same(t, root, st.Top())
}

func TestCombineOperators(t *testing.T) {
	cur := variant.MakeNumber(10)
	operand := variant.MakeNumber(3)

	sum, err := Combine(vdom.OpAdd, cur, operand)
	require.NoError(t, err)
	require.Equal(t, float64(13), sum.Number())

	diff, err := Combine(vdom.OpSubtract, cur, operand)
	require.NoError(t, err)
	require.Equal(t, float64(7), diff.Number())

	assigned, err := Combine(vdom.OpAssign, cur, operand)
	require.NoError(t, err)
	require.Equal(t, float64(3), assigned.Number())
}

func TestCombineSuffixConcatenatesStrings(t *testing.T) {
	cur := variant.MakeString("foo")
	operand := variant.MakeString("bar")
	out, err := Combine(vdom.OpSuffix, cur, operand)
	require.NoError(t, err)
	require.Equal(t, "foobar", out.String())
}

func TestCombineDisplaceAppendsToArray(t *testing.T) {
	cur := variant.MakeArray(variant.MakeNumber(1), variant.MakeNumber(2))
	operand := variant.MakeNumber(3)
	out, err := Combine(vdom.OpDisplace, cur, operand)
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
}

func TestSetAttrReplacesExisting(t *testing.T) {
	f := New(&vdom.Element{Tag: "x"}, Ops{}, nil)
	f.SetAttr("on", vdom.OpAssign, variant.MakeString("a"))
	f.SetAttr("on", vdom.OpAssign, variant.MakeString("b"))
	require.Len(t, f.Attrs, 1)
	attr, ok := f.Attr("on")
	require.True(t, ok)
	require.Equal(t, "b", attr.Value.String())
}
