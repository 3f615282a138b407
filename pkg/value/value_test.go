package value

import "testing"

func TestRetainRelease_DropsAtZero(t *testing.T) {
	s := NewString([]byte("hi"))
	v := Str(s)
	if RefCount(v) != 1 {
		t.Fatalf("expected refcount 1, got %d", RefCount(v))
	}
	Retain(v)
	if RefCount(v) != 2 {
		t.Fatalf("expected refcount 2, got %d", RefCount(v))
	}
	Release(v)
	if RefCount(v) != 1 {
		t.Fatalf("expected refcount 1 after one release, got %d", RefCount(v))
	}
	Release(v)
	if RefCount(v) != 0 {
		t.Fatalf("expected refcount 0 after second release, got %d", RefCount(v))
	}
}

func TestConcatStrings_FreshAllocation(t *testing.T) {
	a := NewString([]byte("a"))
	b := NewString([]byte("b"))
	c := ConcatStrings(a, b)
	if string(c.Bytes) != "ab" {
		t.Fatalf("expected \"ab\", got %q", c.Bytes)
	}
	if c == a || c == b {
		t.Fatalf("expected a fresh allocation")
	}
	if RefCount(Str(c)) != 1 {
		t.Fatalf("expected fresh string to have refcount 1, got %d", RefCount(Str(c)))
	}
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{None, false},
		{Bool(false), false},
		{Bool(true), true},
		{Int(0), true},
		{Str(NewString(nil)), true},
	}
	for _, c := range cases {
		if got := c.v.Truthy(); got != c.want {
			t.Errorf("Truthy(%+v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestEqual_ByteLexicographicStrings(t *testing.T) {
	a := Str(NewString([]byte("abc")))
	b := Str(NewString([]byte("abc")))
	c := Str(NewString([]byte("abd")))
	if !Equal(a, b) {
		t.Fatalf("expected equal strings to compare equal")
	}
	if Equal(a, c) {
		t.Fatalf("expected distinct strings to compare unequal")
	}
}

func TestLess_Numeric(t *testing.T) {
	lt, ok := Less(Int(1), Int(2))
	if !ok || !lt {
		t.Fatalf("expected 1 < 2")
	}
	lt, ok = Less(Double(2.5), Int(2))
	if !ok || lt {
		t.Fatalf("expected 2.5 not < 2")
	}
	_, ok = Less(Bool(true), Int(1))
	if ok {
		t.Fatalf("expected bool/int comparison to be undefined")
	}
}

func TestArray_PushAndIdxGetSet(t *testing.T) {
	a := NewArray(0)
	a.Push(Int(10))
	a.Push(Int(20))
	if a.Len() != 2 {
		t.Fatalf("expected len 2, got %d", a.Len())
	}
	v, ok := a.IdxGet(Int(1))
	if !ok || v.I != 20 {
		t.Fatalf("expected 20, got %+v ok=%v", v, ok)
	}
	if !a.IdxSet(Int(0), Int(99)) {
		t.Fatalf("expected IdxSet to succeed")
	}
	v, _ = a.IdxGet(Int(0))
	if v.I != 99 {
		t.Fatalf("expected 99, got %d", v.I)
	}
	if _, ok := a.IdxGet(Int(5)); ok {
		t.Fatalf("expected out-of-range IdxGet to fail")
	}
}

func TestClassInstance_FieldAccessBySlot(t *testing.T) {
	iface := NewClassInterface("Point", []string{"x", "y"})
	inst := NewClassInstance(iface)
	inst.SetField(iface.FieldIndex["x"], Int(3))
	inst.SetField(iface.FieldIndex["y"], Int(4))
	if inst.GetField(0).I != 3 || inst.GetField(1).I != 4 {
		t.Fatalf("unexpected fields: %+v", inst.Fields)
	}
}

func TestFnValue_Bind(t *testing.T) {
	fv := NewFnValue(3)
	fv.Bind(Int(1))
	fv.Bind(Int(2))
	if len(fv.Bound) != 2 || fv.Bound[0].I != 1 || fv.Bound[1].I != 2 {
		t.Fatalf("unexpected bound args: %+v", fv.Bound)
	}
}
