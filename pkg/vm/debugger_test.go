package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kristofer/vellum/pkg/value"
)

func testFrame() *Frame {
	return &Frame{
		Name:    "main",
		FuncIdx: 0,
		PC:      4,
		Regs:    []value.Value{value.Int(7), value.None},
		Locals:  []value.Value{value.Bool(true)},
	}
}

func TestDebuggerShouldPauseBreakpoint(t *testing.T) {
	d := NewDebugger(strings.NewReader(""), &bytes.Buffer{})
	d.Enable()
	f := testFrame()
	if d.ShouldPause(f) {
		t.Fatalf("should not pause without a matching breakpoint")
	}
	d.AddBreakpoint(f.FuncIdx, f.PC)
	if !d.ShouldPause(f) {
		t.Fatalf("expected ShouldPause to report true at a breakpoint")
	}
	d.RemoveBreakpoint(f.FuncIdx, f.PC)
	if d.ShouldPause(f) {
		t.Fatalf("expected ShouldPause to report false after removing the breakpoint")
	}
}

func TestDebuggerDisabledNeverPauses(t *testing.T) {
	d := NewDebugger(strings.NewReader(""), &bytes.Buffer{})
	f := testFrame()
	d.AddBreakpoint(f.FuncIdx, f.PC)
	if d.ShouldPause(f) {
		t.Fatalf("a disabled debugger must never pause")
	}
}

func TestDebuggerInteractivePromptRegsThenContinue(t *testing.T) {
	var out bytes.Buffer
	d := NewDebugger(strings.NewReader("regs\ncontinue\n"), &out)
	f := testFrame()
	if !d.InteractivePrompt(f) {
		t.Fatalf("expected 'continue' to resume execution")
	}
	if !strings.Contains(out.String(), "r0 = 7") {
		t.Fatalf("expected registers dump to include r0 = 7, got %q", out.String())
	}
	if d.stepMode {
		t.Fatalf("'continue' must clear step mode")
	}
}

func TestDebuggerInteractivePromptStepEntersStepMode(t *testing.T) {
	d := NewDebugger(strings.NewReader("step\n"), &bytes.Buffer{})
	f := testFrame()
	if !d.InteractivePrompt(f) {
		t.Fatalf("expected 'step' to resume execution")
	}
	if !d.stepMode {
		t.Fatalf("'step' must enable step mode")
	}
}

func TestDebuggerInteractivePromptQuitStopsExecution(t *testing.T) {
	d := NewDebugger(strings.NewReader("quit\n"), &bytes.Buffer{})
	f := testFrame()
	if d.InteractivePrompt(f) {
		t.Fatalf("expected 'quit' to stop execution")
	}
}

func TestDebuggerInteractivePromptEOFStopsExecution(t *testing.T) {
	d := NewDebugger(strings.NewReader(""), &bytes.Buffer{})
	f := testFrame()
	if d.InteractivePrompt(f) {
		t.Fatalf("expected EOF with no commands to stop execution")
	}
}
