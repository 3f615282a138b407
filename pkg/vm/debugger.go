package vm

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/kristofer/vellum/pkg/value"
)

// breakpointKey identifies one instruction: a function and a PC within
// it. The register VM has no flat, cross-function instruction index (the
// teacher's single Instructions slice doesn't exist here — every
// function owns its own bytecode.Buffer), so a breakpoint is keyed on the
// pair instead of a lone ip.
type breakpointKey struct {
	FuncIdx int
	PC      int
}

// Debugger generalizes the teacher's interactive Debugger (breakpoints,
// step mode, stack/locals inspection commands) to the register VM:
// breakpoints key on (funcIdx, pc) instead of a flat instruction index,
// and the inspection commands print register/local contents instead of
// an operand stack. In and Out are explicit (rather than os.Stdin/
// fmt.Println as the teacher hardcodes) so debugger_test.go can drive a
// session without a terminal.
type Debugger struct {
	In  io.Reader
	Out io.Writer

	breakpoints map[breakpointKey]bool
	stepMode    bool
	enabled     bool
}

// NewDebugger returns a disabled debugger; Enable activates it.
func NewDebugger(in io.Reader, out io.Writer) *Debugger {
	return &Debugger{In: in, Out: out, breakpoints: make(map[breakpointKey]bool)}
}

func (d *Debugger) Enable()  { d.enabled = true }
func (d *Debugger) Disable() { d.enabled = false }

func (d *Debugger) SetStepMode(enabled bool) { d.stepMode = enabled }

func (d *Debugger) AddBreakpoint(funcIdx, pc int) {
	d.breakpoints[breakpointKey{funcIdx, pc}] = true
}

func (d *Debugger) RemoveBreakpoint(funcIdx, pc int) {
	delete(d.breakpoints, breakpointKey{funcIdx, pc})
}

func (d *Debugger) ClearBreakpoints() {
	d.breakpoints = make(map[breakpointKey]bool)
}

// ShouldPause reports whether execution should pause before running the
// instruction at f's current PC.
func (d *Debugger) ShouldPause(f *Frame) bool {
	if !d.enabled {
		return false
	}
	if d.stepMode {
		return true
	}
	return d.breakpoints[breakpointKey{f.FuncIdx, f.PC}]
}

// ShowRegisters prints every register in f, skipping None slots the way
// the teacher's ShowLocals skips unset locals.
func (d *Debugger) ShowRegisters(f *Frame) {
	fmt.Fprintln(d.Out, "Registers:")
	any := false
	for i, v := range f.Regs {
		if v.Kind == value.KindNone {
			continue
		}
		any = true
		fmt.Fprintf(d.Out, "  r%d = %s\n", i, value.DebugString(v))
	}
	if !any {
		fmt.Fprintln(d.Out, "  (none set)")
	}
}

// ShowLocals prints every local in f, mirroring ShowRegisters.
func (d *Debugger) ShowLocals(f *Frame) {
	fmt.Fprintln(d.Out, "Locals:")
	any := false
	for i, v := range f.Locals {
		if v.Kind == value.KindNone {
			continue
		}
		any = true
		fmt.Fprintf(d.Out, "  l%d = %s\n", i, value.DebugString(v))
	}
	if !any {
		fmt.Fprintln(d.Out, "  (none set)")
	}
}

// ShowCallStack prints f's Link chain, innermost first.
func (d *Debugger) ShowCallStack(f *Frame) {
	fmt.Fprintln(d.Out, "Call stack (innermost first):")
	for cur := f; cur != nil; cur = cur.Link {
		fmt.Fprintf(d.Out, "  %s [func=%d pc=%d]\n", cur.Name, cur.FuncIdx, cur.PC)
	}
}

// InteractivePrompt pauses execution and reads commands from d.In until
// one of them resumes execution (continue/step/next), returning whether
// the VM should keep running (false means the session ended, e.g. EOF).
func (d *Debugger) InteractivePrompt(f *Frame) (resume bool) {
	fmt.Fprintln(d.Out, "=== paused ===")
	fmt.Fprintf(d.Out, "func=%d pc=%d\n", f.FuncIdx, f.PC)

	scanner := bufio.NewScanner(d.In)
	for {
		fmt.Fprint(d.Out, "debug> ")
		if !scanner.Scan() {
			return false
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch strings.Fields(line)[0] {
		case "help", "h", "?":
			fmt.Fprintln(d.Out, "commands: continue(c) step(s) next(n) regs(r) locals(l) stack(st) quit(q)")
		case "continue", "c":
			d.SetStepMode(false)
			return true
		case "step", "s", "next", "n":
			d.SetStepMode(true)
			return true
		case "regs", "r":
			d.ShowRegisters(f)
		case "locals", "l":
			d.ShowLocals(f)
		case "stack", "st":
			d.ShowCallStack(f)
		case "quit", "q":
			return false
		default:
			fmt.Fprintf(d.Out, "unknown command %q\n", line)
		}
	}
}
