// Package variant implements PurC's reference-counted polymorphic value
// type (spec §3 "Variant", §4.1 "Variant store"). Every runtime datum —
// attribute results, context symbols, message payloads, observer
// watch-targets — is a *Value.
package variant

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Kind discriminates the variant's underlying representation.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindBytes
	KindArray
	KindObject
	KindSet
	KindTuple
	KindNative
	KindDynamic
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBytes:
		return "byte-sequence"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindSet:
		return "set"
	case KindTuple:
		return "tuple"
	case KindNative:
		return "native"
	case KindDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// NativeOps is the virtual table a native variant's entity exposes.
// Every method is optional (nil means unsupported) except the entity
// itself, matching spec §3 "a native variant pairs an opaque entity
// pointer with a virtual table of operations".
type NativeOps struct {
	PropertyGetter func(entity any, name string) (*Value, bool)
	PropertySetter func(entity any, name string, v *Value) error
	// DidMatched answers whether candidate is a logical alias of entity,
	// used for selector-style observer matches (spec §4.1).
	DidMatched func(entity any, candidate *Value) bool
	OnForget   func(entity any)
	OnRelease  func(entity any)
	Cleaner    func(entity any)
}

// DynamicOps pairs a getter/setter callback pair (spec §3 "dynamic
// variant").
type DynamicOps struct {
	Getter func(args []*Value) (*Value, error)
	Setter func(args []*Value) (*Value, error)
}

// changeWatchers lets a container broadcast mutation to interested
// parties (the observer registry) without variant depending on it.
type changeWatchers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(*Value)
}

func (w *changeWatchers) add(fn func(*Value)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fns == nil {
		w.fns = make(map[int]func(*Value))
	}
	id := w.next
	w.next++
	w.fns[id] = fn
	return func() {
		w.mu.Lock()
		delete(w.fns, id)
		w.mu.Unlock()
	}
}

func (w *changeWatchers) notify(v *Value) {
	w.mu.Lock()
	fns := make([]func(*Value), 0, len(w.fns))
	for _, fn := range w.fns {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// Value is a reference-counted, tagged runtime value. The zero Value is
// not valid; always obtain one via the Make* constructors.
type Value struct {
	kind Kind
	refs int32 // atomic

	b  bool
	n  float64
	s  string
	by []byte

	arr []*Value // array / tuple members, in order
	obj []objEntry
	set []*Value // set members, unique by structural equality

	native  *nativeState
	dynamic *DynamicOps

	watchers *changeWatchers
}

type objEntry struct {
	key string
	val *Value
}

type nativeState struct {
	entity any
	ops    NativeOps
}

func newValue(k Kind) *Value {
	return &Value{kind: k, refs: 1}
}

// Null, True, False are shared immutable singletons for the trivial kinds.
var (
	Null  = &Value{kind: KindNull, refs: 1}
	True  = &Value{kind: KindBool, refs: 1, b: true}
	False = &Value{kind: KindBool, refs: 1, b: false}
)

func MakeBool(b bool) *Value {
	if b {
		return True
	}
	return False
}

func MakeNumber(n float64) *Value { return &Value{kind: KindNumber, refs: 1, n: n} }

func MakeString(s string) *Value { return &Value{kind: KindString, refs: 1, s: s} }

func MakeBytes(b []byte) *Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &Value{kind: KindBytes, refs: 1, by: cp}
}

// MakeArray takes ownership references (Ref) on every member.
func MakeArray(members ...*Value) *Value {
	v := newValue(KindArray)
	for _, m := range members {
		v.arr = append(v.arr, m.Ref())
	}
	return v
}

func MakeTuple(members ...*Value) *Value {
	v := newValue(KindTuple)
	for _, m := range members {
		v.arr = append(v.arr, m.Ref())
	}
	return v
}

func MakeObject() *Value { return newValue(KindObject) }

func MakeSet() *Value { return newValue(KindSet) }

// MakeNative pairs entity with ops (spec §3 "native variant").
func MakeNative(entity any, ops NativeOps) *Value {
	v := newValue(KindNative)
	v.native = &nativeState{entity: entity, ops: ops}
	return v
}

// MakeDynamic pairs a getter/setter callback (spec §3 "dynamic variant").
func MakeDynamic(ops DynamicOps) *Value {
	v := newValue(KindDynamic)
	v.dynamic = &ops
	return v
}

// Kind reports the value's tag.
func (v *Value) Kind() Kind { return v.kind }

// Is reports whether v has the given kind.
func (v *Value) Is(k Kind) bool { return v.kind == k }

// Ref increments the reference count and returns v, for chaining into a
// container insert (spec §4.1 "ref is O(1)").
func (v *Value) Ref() *Value {
	atomic.AddInt32(&v.refs, 1)
	return v
}

// Unref decrements the reference count; at zero it releases container
// members and invokes OnRelease for native/dynamic entities (spec §4.1).
func (v *Value) Unref() {
	if v == nil {
		return
	}
	if atomic.AddInt32(&v.refs, -1) > 0 {
		return
	}
	switch v.kind {
	case KindArray, KindTuple:
		for _, m := range v.arr {
			m.Unref()
		}
	case KindObject:
		for _, e := range v.obj {
			e.val.Unref()
		}
	case KindSet:
		for _, m := range v.set {
			m.Unref()
		}
	case KindNative:
		if v.native.ops.OnRelease != nil {
			v.native.ops.OnRelease(v.native.entity)
		}
	}
}

// RefCount returns the current reference count, for tests and invariant
// checks (spec §8).
func (v *Value) RefCount() int32 { return atomic.LoadInt32(&v.refs) }

// Bool, Number, String, Bytes are typed accessors; they panic if called
// on the wrong kind, since that is always a caller bug (mirrors the
// source's PURC_VARIANT_ASSERT-family macros).
func (v *Value) Bool() bool {
	v.mustBe(KindBool)
	return v.b
}

func (v *Value) Number() float64 {
	v.mustBe(KindNumber)
	return v.n
}

func (v *Value) String() string {
	v.mustBe(KindString)
	return v.s
}

func (v *Value) Bytes() []byte {
	v.mustBe(KindBytes)
	return v.by
}

func (v *Value) mustBe(k Kind) {
	if v.kind != k {
		panic(fmt.Sprintf("variant: expected %s, got %s", k, v.kind))
	}
}

// Len reports member count for array/object/set/tuple/bytes/string.
func (v *Value) Len() int {
	switch v.kind {
	case KindArray, KindTuple, KindSet:
		if v.kind == KindSet {
			return len(v.set)
		}
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	case KindBytes:
		return len(v.by)
	case KindString:
		return len(v.s)
	default:
		return 0
	}
}

// ArrayGet returns the i'th array/tuple member without transferring
// ownership (caller must Ref if it retains the value beyond the
// container's lifetime).
func (v *Value) ArrayGet(i int) *Value {
	v.mustBeOneOf(KindArray, KindTuple)
	return v.arr[i]
}

// ArrayAppend appends to an array, Ref-ing the member, and broadcasts a
// change notification (spec §4.1).
func (v *Value) ArrayAppend(m *Value) {
	v.mustBe(KindArray)
	v.arr = append(v.arr, m.Ref())
	v.notifyChange()
}

// ArraySet replaces an array member at i, unref-ing the old one.
func (v *Value) ArraySet(i int, m *Value) {
	v.mustBe(KindArray)
	old := v.arr[i]
	v.arr[i] = m.Ref()
	old.Unref()
	v.notifyChange()
}

// ObjectGet looks up a key.
func (v *Value) ObjectGet(key string) (*Value, bool) {
	v.mustBe(KindObject)
	for _, e := range v.obj {
		if e.key == key {
			return e.val, true
		}
	}
	return nil, false
}

// ObjectSet inserts or replaces a key, Ref-ing val.
func (v *Value) ObjectSet(key string, val *Value) {
	v.mustBe(KindObject)
	for i, e := range v.obj {
		if e.key == key {
			e.val.Unref()
			v.obj[i].val = val.Ref()
			v.notifyChange()
			return
		}
	}
	v.obj = append(v.obj, objEntry{key: key, val: val.Ref()})
	v.notifyChange()
}

// ObjectKeys returns keys in insertion order.
func (v *Value) ObjectKeys() []string {
	v.mustBe(KindObject)
	keys := make([]string, len(v.obj))
	for i, e := range v.obj {
		keys[i] = e.key
	}
	return keys
}

// SetAdd inserts m if no structurally-equal member exists already
// (spec §3 "equality is structural"); returns whether it was added.
func (v *Value) SetAdd(m *Value) bool {
	v.mustBe(KindSet)
	for _, existing := range v.set {
		if Equal(existing, m) {
			return false
		}
	}
	v.set = append(v.set, m.Ref())
	v.notifyChange()
	return true
}

// SetMembers returns the set's members in insertion order.
func (v *Value) SetMembers() []*Value {
	v.mustBe(KindSet)
	return v.set
}

func (v *Value) mustBeOneOf(ks ...Kind) {
	for _, k := range ks {
		if v.kind == k {
			return
		}
	}
	panic(fmt.Sprintf("variant: unexpected kind %s", v.kind))
}

// Watch registers fn to be called whenever this container mutates, and
// returns a function that removes the watch. Only meaningful for
// array/object/set values; the observer registry calls this when an
// HVML `observe` targets a container (spec §4.1/§4.3).
func (v *Value) Watch(fn func(*Value)) func() {
	if v.watchers == nil {
		v.watchers = &changeWatchers{}
	}
	return v.watchers.add(fn)
}

func (v *Value) notifyChange() {
	if v.watchers != nil {
		v.watchers.notify(v)
	}
}

// Entity returns the opaque entity of a native variant.
func (v *Value) Entity() any {
	v.mustBe(KindNative)
	return v.native.entity
}

// DidMatched answers whether candidate aliases this native variant
// (spec §4.1).
func (v *Value) DidMatched(candidate *Value) bool {
	if v.kind != KindNative || v.native.ops.DidMatched == nil {
		return false
	}
	return v.native.ops.DidMatched(v.native.entity, candidate)
}

// Forget invokes the native entity's on_forget hook, used when an
// observer watching this variant is revoked (spec §4.3 "Revocation").
func (v *Value) Forget() {
	if v.kind == KindNative && v.native.ops.OnForget != nil {
		v.native.ops.OnForget(v.native.entity)
	}
}

// DynamicGet/DynamicSet invoke a dynamic variant's getter/setter.
func (v *Value) DynamicGet(args []*Value) (*Value, error) {
	v.mustBe(KindDynamic)
	return v.dynamic.Getter(args)
}

func (v *Value) DynamicSet(args []*Value) (*Value, error) {
	v.mustBe(KindDynamic)
	if v.dynamic.Setter == nil {
		return nil, fmt.Errorf("variant: dynamic value has no setter")
	}
	return v.dynamic.Setter(args)
}
