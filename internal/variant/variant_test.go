package variant

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestSerializeParseRoundTrip(t *testing.T) {
	obj := MakeObject()
	defer obj.Unref()

	arr := MakeArray(MakeNumber(1), MakeString("hi"), MakeBool(true))
	obj.ObjectSet("numbers", arr)
	arr.Unref()
	obj.ObjectSet("nothing", Null)

	var sb strings.Builder
	require.NoError(t, Serialize(&sb, obj, SerializeOptions{Format: FormatPlainEJSON}))

	parsed, err := Parse(sb.String())
	require.NoError(t, err)
	defer parsed.Unref()

	require.True(t, Equal(obj, parsed))
}

func TestRefCountDiscipline(t *testing.T) {
	v := MakeString("owned")
	require.Equal(t, int32(1), v.RefCount())

	arr := MakeArray()
	arr.ArrayAppend(v)
	require.Equal(t, int32(2), v.RefCount())

	v.Unref() // caller's original reference
	require.Equal(t, int32(1), v.RefCount())

	arr.Unref() // releases the array's reference too
}

func TestSetStructuralDedup(t *testing.T) {
	s := MakeSet()
	defer s.Unref()

	a := MakeArray(MakeNumber(1), MakeNumber(2))
	b := MakeArray(MakeNumber(1), MakeNumber(2))
	defer a.Unref()
	defer b.Unref()

	require.True(t, s.SetAdd(a))
	require.False(t, s.SetAdd(b), "structurally equal member must not be added twice")
	require.Equal(t, 1, s.Len())
}

func TestContainerChangeWatch(t *testing.T) {
	arr := MakeArray()
	defer arr.Unref()

	var seen int
	unwatch := arr.Watch(func(*Value) { seen++ })
	defer unwatch()

	n := MakeNumber(1)
	arr.ArrayAppend(n)
	n.Unref()
	require.Equal(t, 1, seen)
}

func TestDeepCloneIndependence(t *testing.T) {
	orig := MakeArray(MakeString("a"))
	defer orig.Unref()

	clone := DeepClone(orig)
	defer clone.Unref()

	extra := MakeString("b")
	clone.ArrayAppend(extra)
	extra.Unref()

	if diff := cmp.Diff(1, orig.Len()); diff != "" {
		t.Fatalf("original mutated by clone append (-want +got):\n%s", diff)
	}
	require.Equal(t, 2, clone.Len())
}
