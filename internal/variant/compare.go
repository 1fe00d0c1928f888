package variant

// Equal reports structural equality (spec §3 "equality is structural").
// Containers compare member-by-member in order; sets compare as
// multisets (order-independent). Native/dynamic variants compare by
// identity, since their entities have no generic structural form.
func Equal(a, b *Value) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindBytes:
		return bytesEqual(a.by, b.by)
	case KindArray, KindTuple:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for _, e := range a.obj {
			ov, ok := b.ObjectGet(e.key)
			if !ok || !Equal(e.val, ov) {
				return false
			}
		}
		return true
	case KindSet:
		if len(a.set) != len(b.set) {
			return false
		}
		used := make([]bool, len(b.set))
		for _, am := range a.set {
			found := false
			for i, bm := range b.set {
				if !used[i] && Equal(am, bm) {
					used[i] = true
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case KindNative, KindDynamic:
		return a == b
	default:
		return false
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DeepClone produces a new value tree with fresh refcounts throughout;
// native/dynamic members are cloned by reference (their entities are
// opaque) per spec §4.1.
func DeepClone(v *Value) *Value {
	switch v.kind {
	case KindNull:
		return Null
	case KindBool:
		return MakeBool(v.b)
	case KindNumber:
		return MakeNumber(v.n)
	case KindString:
		return MakeString(v.s)
	case KindBytes:
		return MakeBytes(v.by)
	case KindArray:
		out := MakeArray()
		for _, m := range v.arr {
			c := DeepClone(m)
			out.ArrayAppend(c)
			c.Unref()
		}
		return out
	case KindTuple:
		members := make([]*Value, len(v.arr))
		for i, m := range v.arr {
			members[i] = DeepClone(m)
		}
		out := MakeTuple(members...)
		for _, m := range members {
			m.Unref()
		}
		return out
	case KindObject:
		out := MakeObject()
		for _, e := range v.obj {
			c := DeepClone(e.val)
			out.ObjectSet(e.key, c)
			c.Unref()
		}
		return out
	case KindSet:
		out := MakeSet()
		for _, m := range v.set {
			c := DeepClone(m)
			out.SetAdd(c)
			c.Unref()
		}
		return out
	default:
		// Native/dynamic: shallow-clone (shared entity, new refcount slot).
		return ShallowClone(v)
	}
}

// ShallowClone produces a new Value sharing the same member references
// (each Ref'd once more) rather than deep-copying them.
func ShallowClone(v *Value) *Value {
	switch v.kind {
	case KindArray:
		return MakeArray(v.arr...)
	case KindTuple:
		return MakeTuple(v.arr...)
	case KindObject:
		out := MakeObject()
		for _, e := range v.obj {
			out.ObjectSet(e.key, e.val)
		}
		return out
	case KindSet:
		out := MakeSet()
		for _, m := range v.set {
			out.SetAdd(m)
		}
		return out
	case KindNative:
		nv := newValue(KindNative)
		nv.native = v.native
		return nv
	case KindDynamic:
		nv := newValue(KindDynamic)
		nv.dynamic = v.dynamic
		return nv
	default:
		return DeepClone(v)
	}
}
