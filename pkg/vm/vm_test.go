package vm

import (
	"bytes"
	"testing"

	"github.com/kristofer/vellum/pkg/parser"
	"github.com/kristofer/vellum/pkg/program"
	"github.com/kristofer/vellum/pkg/value"
)

func mustParse(t *testing.T, src string) *program.Program {
	t.Helper()
	prog, err := parser.Parse([]byte(src), "test.vl", "/tmp")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return prog
}

func run(t *testing.T, src string) (string, value.Value) {
	t.Helper()
	prog := mustParse(t, src)
	var out bytes.Buffer
	tl := NewThreadLocal(&out)
	result := RunProgram(tl, prog)
	return out.String(), result
}

func TestHelloWorld(t *testing.T) {
	out, result := run(t, `print "hi";`)
	if out != "hi" {
		t.Fatalf("stdout = %q, want %q", out, "hi")
	}
	if result.IsError() {
		t.Fatalf("unexpected error result")
	}
}

func TestRecursionFibonacci(t *testing.T) {
	src := `
def f(n) {
  if (n <= 1) { return n; }
  return f(n-1) + f(n-2);
}
print f(10);
`
	out, _ := run(t, src)
	if out != "55" {
		t.Fatalf("stdout = %q, want %q", out, "55")
	}
}

func TestNativeLenOnString(t *testing.T) {
	out, _ := run(t, `print len("hello");`)
	if out != "5" {
		t.Fatalf("stdout = %q, want %q", out, "5")
	}
}

func TestNativeStrIntRoundTrip(t *testing.T) {
	out, _ := run(t, `print str(int("42"));`)
	if out != "42" {
		t.Fatalf("stdout = %q, want %q", out, "42")
	}
}

func TestStringConcatWithGCEnabled(t *testing.T) {
	src := `print "a"+"b";`
	prog := mustParse(t, src)
	var out bytes.Buffer
	tl := NewThreadLocal(&out)
	tl.EnableGC(1 << 30)
	RunProgram(tl, prog)
	if out.String() != "ab" {
		t.Fatalf("stdout = %q, want %q", out.String(), "ab")
	}
}

func TestLogicalShortCircuit(t *testing.T) {
	src := `
def side() {
  print "x";
  return true;
}
false && side();
`
	out, _ := run(t, src)
	if out != "" {
		t.Fatalf("stdout = %q, want empty (side() must not run)", out)
	}
}

func TestArithmeticTypeErrorNonFailingFunction(t *testing.T) {
	// A top-level binop type error on a function that is not may_fail
	// reports and continues, leaving the destination register None
	// (spec.md §7): the program should finish rather than abort.
	out, result := run(t, `print 1 + "a";`)
	_ = out
	if result.IsError() {
		t.Fatalf("non-failing function's type error should not propagate as ErrorSentinel")
	}
}
