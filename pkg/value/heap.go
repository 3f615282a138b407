package value

import "fmt"

// header carries the refcount every heap object needs. Embedding it gives
// each concrete type its hdr() accessor for free.
type header struct {
	rc int32
}

func (h *header) hdr() *header { return h }

// HeapObject is anything Value.Obj can point at: it must know how to tear
// itself down (releasing any Values it owns) when its refcount reaches
// zero. This is the minimal contract; HeapString implements only this.
type HeapObject interface {
	hdr() *header
	Drop()
}

// StructObject is the polymorphic collection vtable spec.md §3 describes:
// array, tuple, dict, class instance, and function value all implement
// it. IdxGet/IdxSet report ok=false when the operation is unsupported for
// that variant (e.g. class instances don't support string-keyed IdxGet —
// field access goes through CLASS_GET_INNER/CLASS_SET_INNER instead) or
// when the key is out of range. The VM reports a failed IdxGet like a
// binop error; a failed IdxSet aborts.
type StructObject interface {
	HeapObject
	IdxGet(key Value) (Value, bool)
	IdxSet(key Value, v Value) bool
	Len() int32
}

// HeapString is an immutable, refcounted byte vector. Concatenation always
// allocates a fresh string (spec.md §3); there is no rope or
// copy-on-write optimization, matching the teacher's plain-value approach
// to strings throughout the retrieved corpus.
type HeapString struct {
	header
	Bytes []byte
}

// NewString allocates a HeapString with refcount 1.
func NewString(b []byte) *HeapString {
	return &HeapString{header: header{rc: 1}, Bytes: b}
}

func (s *HeapString) Drop() {}

// ConcatStrings returns a new, independently refcounted string holding
// a's bytes followed by b's. It does not consume or release a or b.
func ConcatStrings(a, b *HeapString) *HeapString {
	out := make([]byte, 0, len(a.Bytes)+len(b.Bytes))
	out = append(out, a.Bytes...)
	out = append(out, b.Bytes...)
	return NewString(out)
}

// Array is an ordered, growable vector of Values.
type Array struct {
	header
	Items []Value
}

// NewArray allocates an Array with the given initial capacity (spec.md's
// ARRAY_NEW operand) and zero length.
func NewArray(capacity int) *Array {
	return &Array{header: header{rc: 1}, Items: make([]Value, 0, capacity)}
}

func (a *Array) Drop() {
	for _, v := range a.Items {
		Release(v)
	}
}

func (a *Array) Len() int32 { return int32(len(a.Items)) }

func (a *Array) IdxGet(key Value) (Value, bool) {
	if key.Kind != KindInt {
		return Value{}, false
	}
	if key.I < 0 || int(key.I) >= len(a.Items) {
		return Value{}, false
	}
	return a.Items[key.I], true
}

func (a *Array) IdxSet(key, v Value) bool {
	if key.Kind != KindInt || key.I < 0 || int(key.I) >= len(a.Items) {
		return false
	}
	Release(a.Items[key.I])
	Retain(v)
	a.Items[key.I] = v
	return true
}

// Push appends v to the array, taking ownership (the caller's reference is
// transferred, matching ARRAY_PUSH's "increment its refcount" contract
// applied at the call site in the VM, not here).
func (a *Array) Push(v Value) { a.Items = append(a.Items, v) }

// Tuple is a fixed-length, otherwise array-like collection. Vellum has no
// tuple literal syntax that grows after construction, so IdxSet is
// supported (tuples are mutable storage, just fixed-size) but there is no
// Push.
type Tuple struct {
	header
	Items []Value
}

func NewTuple(length int) *Tuple {
	items := make([]Value, length)
	for i := range items {
		items[i] = None
	}
	return &Tuple{header: header{rc: 1}, Items: items}
}

func (t *Tuple) Drop() {
	for _, v := range t.Items {
		Release(v)
	}
}

func (t *Tuple) Len() int32 { return int32(len(t.Items)) }

func (t *Tuple) IdxGet(key Value) (Value, bool) {
	if key.Kind != KindInt || key.I < 0 || int(key.I) >= len(t.Items) {
		return Value{}, false
	}
	return t.Items[key.I], true
}

func (t *Tuple) IdxSet(key, v Value) bool {
	if key.Kind != KindInt || key.I < 0 || int(key.I) >= len(t.Items) {
		return false
	}
	Release(t.Items[key.I])
	Retain(v)
	t.Items[key.I] = v
	return true
}

// ClassInterface is the refcounted per-class record describing field
// layout. Two instances share behaviour iff their ClassInterface pointers
// are identical (invariant I7) — dispatch and equality both rely on Go
// pointer identity, never on Name comparison.
type ClassInterface struct {
	header
	Name        string
	FieldIndex  map[string]int
	FieldNames  []string
	Flags       uint32
}

// NewClassInterface allocates a ClassInterface with refcount 1.
func NewClassInterface(name string, fields []string) *ClassInterface {
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		idx[f] = i
	}
	return &ClassInterface{header: header{rc: 1}, Name: name, FieldIndex: idx, FieldNames: fields}
}

func (c *ClassInterface) Drop() {}

// ClassInstance is a fixed field vector laid out by a ClassInterface.
type ClassInstance struct {
	header
	Interface *ClassInterface
	Fields    []Value
}

// NewClassInstance allocates an instance with all fields set to None.
func NewClassInstance(iface *ClassInterface) *ClassInstance {
	fields := make([]Value, len(iface.FieldNames))
	for i := range fields {
		fields[i] = None
	}
	return &ClassInstance{header: header{rc: 1}, Interface: iface, Fields: fields}
}

func (ci *ClassInstance) Drop() {
	for _, v := range ci.Fields {
		Release(v)
	}
}

func (ci *ClassInstance) Len() int32 { return int32(len(ci.Fields)) }

// IdxGet/IdxSet are unsupported for class instances: field access is
// CLASS_GET_INNER/CLASS_SET_INNER by slot index, resolved at parse time
// against the instance's static class, not a runtime vtable dispatch.
func (ci *ClassInstance) IdxGet(Value) (Value, bool) { return Value{}, false }
func (ci *ClassInstance) IdxSet(Value, Value) bool   { return false }

// GetField/SetField implement CLASS_GET_INNER/CLASS_SET_INNER.
func (ci *ClassInstance) GetField(slot int) Value {
	if slot < 0 || slot >= len(ci.Fields) {
		return None
	}
	return ci.Fields[slot]
}

func (ci *ClassInstance) SetField(slot int, v Value) {
	if slot < 0 || slot >= len(ci.Fields) {
		return
	}
	Release(ci.Fields[slot])
	Retain(v)
	ci.Fields[slot] = v
}

// FnValue is a closure-like function reference carrying bound prefix
// arguments, created the first time BIND_ARG_TO_FUNC is applied to a bare
// function index (see pkg/vm's CALL_FUNC_VALUE handling).
type FnValue struct {
	header
	FnIdx int
	Bound []Value
}

func NewFnValue(fnIdx int) *FnValue {
	return &FnValue{header: header{rc: 1}, FnIdx: fnIdx}
}

func (f *FnValue) Drop() {
	for _, v := range f.Bound {
		Release(v)
	}
}

func (f *FnValue) Len() int32 { return int32(len(f.Bound)) }

func (f *FnValue) IdxGet(Value) (Value, bool) { return Value{}, false }
func (f *FnValue) IdxSet(Value, Value) bool   { return false }

func (f *FnValue) Bind(v Value) {
	Retain(v)
	f.Bound = append(f.Bound, v)
}

// AsStruct type-asserts v.Obj into the Struct vtable, used by IDX_GET /
// IDX_SET / IDX_SET_STATIC. ok is false both when v isn't a struct-kinded
// Value and when the concrete variant doesn't implement indexing support.
func AsStruct(v Value) (StructObject, bool) {
	if v.Kind != KindStruct {
		return nil, false
	}
	s, ok := v.Obj.(StructObject)
	return s, ok
}

// DebugString renders a Value for diagnostics (error messages, the print
// native, the debugger). It is not vellum's user-facing string
// conversion; that lives in the VM's "str" native per SPEC_FULL.md §5.
func DebugString(v Value) string {
	switch v.Kind {
	case KindNone:
		return "nil"
	case KindBool:
		return fmt.Sprintf("%t", v.B)
	case KindInt:
		return fmt.Sprintf("%d", v.I)
	case KindDouble:
		return fmt.Sprintf("%g", v.D)
	case KindString:
		return string(v.Obj.(*HeapString).Bytes)
	case KindFn:
		return fmt.Sprintf("<fn %d>", v.FnIdx)
	case KindStruct:
		switch o := v.Obj.(type) {
		case *Array:
			return fmt.Sprintf("<array len=%d>", len(o.Items))
		case *Tuple:
			return fmt.Sprintf("<tuple len=%d>", len(o.Items))
		case *Dict:
			return fmt.Sprintf("<dict len=%d>", o.count)
		case *ClassInstance:
			return fmt.Sprintf("<%s instance>", o.Interface.Name)
		case *FnValue:
			return fmt.Sprintf("<fn %d bound=%d>", o.FnIdx, len(o.Bound))
		}
		return "<struct>"
	case KindError:
		return "<error>"
	default:
		return "<?>"
	}
}
