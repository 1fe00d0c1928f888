package vdom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSimpleExit(t *testing.T) {
	el, err := Parse(`<hvml><body><exit with="42"/></body></hvml>`)
	require.NoError(t, err)
	require.Equal(t, "hvml", el.Tag)
	require.Len(t, el.Children, 1)

	body := el.Children[0]
	require.Equal(t, "body", body.Tag)
	require.Len(t, body.Children, 1)

	exit := body.Children[0]
	require.Equal(t, "exit", exit.Tag)
	attr, ok := exit.Attr("with")
	require.True(t, ok)
	require.Equal(t, OpAssign, attr.Op)
	require.Equal(t, "42", attr.RawValue)
}

func TestParseAttributeOperators(t *testing.T) {
	el, err := Parse(`<init as="x" +="1"/>`)
	require.Error(t, err) // malformed: attribute name missing before operator
	require.Nil(t, el)

	el, err = Parse(`<update on="$TIMERS" to+="displace"/>`)
	require.NoError(t, err)
	attr, ok := el.Attr("to")
	require.True(t, ok)
	require.Equal(t, OpAdd, attr.Op)
	require.Equal(t, "displace", attr.RawValue)
}

func TestParseMismatchedCloseTag(t *testing.T) {
	_, err := Parse(`<a><b></a></b>`)
	require.Error(t, err)
}

func TestFromYAMLFixture(t *testing.T) {
	el, err := FromYAML(`
tag: hvml
children:
  - tag: body
    children:
      - tag: exit
        attrs:
          with: "7"
`)
	require.NoError(t, err)
	require.Equal(t, "hvml", el.Tag)
	exit := el.Children[0].Children[0]
	attr, ok := exit.Attr("with")
	require.True(t, ok)
	require.Equal(t, "7", attr.RawValue)
}
