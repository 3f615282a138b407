package vm

import (
	"fmt"
	"strings"
)

// StackFrame is one entry of a RuntimeError's trace: the function that was
// executing, and where. Generalizes the teacher's StackFrame (name,
// selector, instruction pointer, source line/col scraped post hoc) to the
// register VM, which has a source map instead of a line table.
type StackFrame struct {
	Name         string
	FuncIdx      int
	PC           int
	SourceOffset int
	HaveOffset   bool
}

// RuntimeError is a VM-surfaced failure: a fatal abort, or the rendered
// form of a binop/raise failure kept around for the caller to inspect.
// Mirrors the teacher's RuntimeError/StackFrame pair in pkg/vm/errors.go.
type RuntimeError struct {
	Message    string
	StackTrace []StackFrame
}

func newRuntimeError(message string, stack []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, StackTrace: stack}
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for i := len(e.StackTrace) - 1; i >= 0; i-- {
		f := e.StackTrace[i]
		fmt.Fprintf(&b, "\n  at %s (pc=%d)", f.Name, f.PC)
	}
	return b.String()
}

// trace walks a frame's Link chain into a StackTrace, innermost frame
// first, matching the order the teacher's call stack is pushed in.
func trace(f *Frame) []StackFrame {
	var out []StackFrame
	for cur := f; cur != nil; cur = cur.Link {
		off, ok := cur.PData.FindSourceOffset(cur.FuncIdx, cur.PC)
		out = append(out, StackFrame{
			Name:         cur.Name,
			FuncIdx:      cur.FuncIdx,
			PC:           cur.PC,
			SourceOffset: off,
			HaveOffset:   ok,
		})
	}
	return out
}

// reportError renders a RuntimeError for a binop/call failure at frame's
// current instruction and writes it to tl.ErrOut, implementing spec.md
// §7's "surfaces binop errors by calling an error-reporting hook (prints
// to stderr)". It does not abort; the caller decides whether to propagate
// or continue per the may_fail policy.
func (tl *ThreadLocal) reportError(f *Frame, pc int, msg string) {
	re := newRuntimeError(msg, trace(f))
	rendered := re.Error()
	if off, ok := f.PData.FindSourceOffset(f.FuncIdx, pc); ok {
		if caret := RenderSourceCaret(f.PData.Source, off); caret != "" {
			rendered = rendered + "\n" + caret
		}
	}
	fmt.Fprintln(tl.ErrOut, rendered)
}

// abort reports a fatal error and invokes tl.AbortHook, which by default
// prints and exits the process (spec.md §7's abort hook, "au_fatal").
// Tests substitute a non-exiting hook so a fatal path can be observed
// without killing the test binary.
func (tl *ThreadLocal) abort(f *Frame, msg string) {
	re := newRuntimeError(msg, trace(f))
	tl.AbortHook(re.Error())
}

// RenderSourceCaret implements the source-line-and-caret printer
// spec.md §7 describes and SPEC_FULL.md §8 calls out as a supplemented
// feature (sourced from original_source's error_printer.c, dropped by
// the distillation). It rescans src to find the line containing offset
// and returns that line followed by a second line with a caret under the
// single byte at that offset; no line number is printed.
func RenderSourceCaret(src []byte, offset int) string {
	if offset < 0 || offset > len(src) {
		return ""
	}
	lineStart := offset
	for lineStart > 0 && src[lineStart-1] != '\n' {
		lineStart--
	}
	lineEnd := offset
	for lineEnd < len(src) && src[lineEnd] != '\n' {
		lineEnd++
	}
	line := string(src[lineStart:lineEnd])
	col := offset - lineStart
	caret := strings.Repeat(" ", col) + "^"
	return fmt.Sprintf("%s\n%s", line, caret)
}
