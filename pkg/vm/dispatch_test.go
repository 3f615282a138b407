package vm

import (
	"bytes"
	"testing"
)

func TestClassDispatchByReceiverIdentity(t *testing.T) {
	src := `
class A { @x; }
class B { @x; }
def (r: A) label() { return "a"; }
def (r: B) label() { return "b"; }
va = new A{};
vb = new B{};
print label(va);
print label(vb);
`
	out, result := run(t, src)
	if result.IsError() {
		t.Fatalf("unexpected error result")
	}
	if out != "ab" {
		t.Fatalf("stdout = %q, want %q", out, "ab")
	}
}

func TestClassFieldGetSet(t *testing.T) {
	src := `
class P { @x; }
def (p: P) getx() { return @x; }
def (p: P) setx(v) { @x = v; }
pt = new P{};
setx(pt, 42);
print getx(pt);
`
	out, result := run(t, src)
	if result.IsError() {
		t.Fatalf("unexpected error result")
	}
	if out != "42" {
		t.Fatalf("stdout = %q, want %q", out, "42")
	}
}

// TestDispatchOnNonClassValueReportsAndContinues exercises spec.md §7's
// non-fatal path: a dispatch miss on a non-may_fail function reports the
// failure and leaves the call's destination register None rather than
// aborting the whole program.
func TestDispatchOnNonClassValueReportsAndContinues(t *testing.T) {
	src := `
class A { @x; }
def (r: A) label() { return "a"; }
print label(1);
`
	var errOut bytes.Buffer
	prog := mustParse(t, src)
	var out bytes.Buffer
	tl := NewThreadLocal(&out)
	tl.ErrOut = &errOut
	result := RunProgram(tl, prog)
	if result.IsError() {
		t.Fatalf("a non-may_fail function's dispatch miss should not propagate as ErrorSentinel")
	}
	if out.String() != "nil" {
		t.Fatalf("stdout = %q, want %q (destination register falls back to None)", out.String(), "nil")
	}
	if errOut.Len() == 0 {
		t.Fatalf("expected the dispatch miss to be reported to ErrOut")
	}
}
