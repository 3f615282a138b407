package program

import (
	"testing"

	"github.com/kristofer/vellum/pkg/bytecode"
	"github.com/kristofer/vellum/pkg/value"
)

func TestFn_NumArgsPerKind(t *testing.T) {
	bc := &Fn{Kind: FnBytecode, Bytecode: &BytecodeFn{NumArgs: 2}}
	if bc.NumArgs() != 2 {
		t.Fatalf("expected 2, got %d", bc.NumArgs())
	}

	nat := &Fn{Kind: FnNative, Native: &NativeFn{NumArgs: 1}}
	if nat.NumArgs() != 1 {
		t.Fatalf("expected 1, got %d", nat.NumArgs())
	}

	imp := &Fn{Kind: FnImporter, Importer: &ImporterFn{NumArgs: 3}}
	if imp.NumArgs() != 3 {
		t.Fatalf("expected 3, got %d", imp.NumArgs())
	}

	disp := &Fn{Kind: FnDispatch, Dispatch: &DispatchFn{NumArgs: 1, Fallback: -1}}
	if disp.NumArgs() != 1 {
		t.Fatalf("expected 1, got %d", disp.NumArgs())
	}

	none := &Fn{Kind: FnNone}
	if none.NumArgs() != 0 {
		t.Fatalf("expected 0 for FnNone, got %d", none.NumArgs())
	}
}

func TestProgramData_FindSourceOffset(t *testing.T) {
	p := NewProgramData("main.vl", "/tmp")
	p.SourceMap = []SourceMapEntry{
		{BcFrom: 0, BcTo: 8, SourceOffset: 0, FuncIdx: 0},
		{BcFrom: 12, BcTo: 20, SourceOffset: 15, FuncIdx: 0},
		{BcFrom: 0, BcTo: 4, SourceOffset: 100, FuncIdx: 1},
	}

	off, ok := p.FindSourceOffset(0, 4)
	if !ok || off != 0 {
		t.Fatalf("expected offset 0, got %d ok=%v", off, ok)
	}
	off, ok = p.FindSourceOffset(0, 16)
	if !ok || off != 15 {
		t.Fatalf("expected offset 15, got %d ok=%v", off, ok)
	}
	if _, ok := p.FindSourceOffset(0, 9999); ok {
		t.Fatalf("expected lookup miss for out-of-range pc")
	}
	off, ok = p.FindSourceOffset(1, 2)
	if !ok || off != 100 {
		t.Fatalf("expected offset 100 for func 1, got %d ok=%v", off, ok)
	}
}

func TestImporterFn_ResolveCache(t *testing.T) {
	imp := &ImporterFn{TargetModuleIdx: 0, Name: "greet", NumArgs: 0}
	if _, _, ok := imp.Resolved(); ok {
		t.Fatalf("expected unresolved importer initially")
	}
	target := NewProgramData("a.vl", "/tmp")
	imp.SetResolved(target, 3)
	mod, idx, ok := imp.Resolved()
	if !ok || mod != target || idx != 3 {
		t.Fatalf("unexpected resolution: mod=%v idx=%d ok=%v", mod, idx, ok)
	}
}

func TestDispatchFn_PerClassSelection(t *testing.T) {
	a := value.NewClassInterface("A", nil)
	b := value.NewClassInterface("B", nil)
	d := &DispatchFn{
		PerClass: map[*value.ClassInterface]int{a: 1, b: 2},
		Fallback: -1,
	}
	if d.PerClass[a] != 1 || d.PerClass[b] != 2 {
		t.Fatalf("unexpected dispatch table: %+v", d.PerClass)
	}
	other := value.NewClassInterface("A", nil) // same name, distinct identity
	if _, ok := d.PerClass[other]; ok {
		t.Fatalf("expected dispatch to key on identity, not name")
	}
}

func TestProgramData_BytecodeFnHoldsCode(t *testing.T) {
	buf := bytecode.NewBuffer()
	buf.WriteABC(bytecode.OpRetNull, 0, 0, 0)
	bf := &BytecodeFn{Code: buf, NumRegisters: 4, NumLocals: 1}
	if bf.Code.Len() != bytecode.InstrSize {
		t.Fatalf("expected one instruction, got %d bytes", bf.Code.Len())
	}
}
