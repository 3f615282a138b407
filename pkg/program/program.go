// Package program defines the compiled artifact the vellum parser
// produces: the function table, constant pool, import table, class table,
// and source map that together make up one module's ProgramData, plus the
// Program wrapper pairing a module's top-level bytecode with its data.
package program

import (
	"github.com/kristofer/vellum/pkg/bytecode"
	"github.com/kristofer/vellum/pkg/value"
)

// FnKind tags which variant of Fn is populated.
type FnKind uint8

const (
	FnNone FnKind = iota
	FnBytecode
	FnNative
	FnImporter
	FnDispatch
)

// BytecodeFn is a parsed function body: its emitted code plus the frame
// shape the VM must allocate to run it.
type BytecodeFn struct {
	Code           *bytecode.Buffer
	NumArgs        int
	NumLocals      int
	NumRegisters   int
	Class          *value.ClassInterface // non-nil for a bound method
	SourceMapStart int
	FuncIdx        int
	MayFail        bool // set once a RAISE is parsed in this function's body
}

// VMContext is the minimal surface a native function needs from the
// running interpreter. It is declared here, not in pkg/vm, so that Fn's
// native variant can reference it without pkg/program importing pkg/vm
// (which itself must import pkg/program for ProgramData) — vm.ThreadLocal
// implements this interface.
type VMContext interface {
	Print(s string)
}

// NativeFunc is the contract spec.md §1 says is the only thing specified
// about standard-library built-ins: how the VM calls them, not what they
// do. See SPEC_FULL.md §5 for the minimal registry built on it.
type NativeFunc func(ctx VMContext, pData *ProgramData, args []value.Value) value.Value

// NativeFn wraps a NativeFunc with its declared arity, which CALL uses as
// the number of arg-stack values to pop.
type NativeFn struct {
	Fn      NativeFunc
	Name    string
	NumArgs int
}

// ImporterFn is a placeholder that forwards calls to a function in
// another loaded module, resolved and cached on first call.
type ImporterFn struct {
	TargetModuleIdx int
	Name            string
	NumArgs         int

	resolved       bool
	resolvedModule *ProgramData
	resolvedFnIdx  int
}

// Resolved reports whether this importer's target has been looked up yet,
// and if so returns the target module and function index.
func (imp *ImporterFn) Resolved() (*ProgramData, int, bool) {
	return imp.resolvedModule, imp.resolvedFnIdx, imp.resolved
}

// SetResolved caches the target module/function for subsequent calls.
// SPEC_FULL.md §9 generalizes the teacher's raw-pointer wiring to this
// (module, fn-index) pair specifically so that the cache can be
// invalidated (resolved=false) without leaving a dangling pointer.
func (imp *ImporterFn) SetResolved(mod *ProgramData, fnIdx int) {
	imp.resolvedModule = mod
	imp.resolvedFnIdx = fnIdx
	imp.resolved = true
}

// DispatchFn selects an implementation at call time based on the first
// argument's class interface identity (invariant I7).
type DispatchFn struct {
	PerClass map[*value.ClassInterface]int // ClassInterface -> Fns index
	Fallback int                           // -1 if there is no class-free fallback
	NumArgs  int
}

// Fn is one entry in a ProgramData's flat function table.
type Fn struct {
	Kind     FnKind
	Name     string
	Bytecode *BytecodeFn
	Native   *NativeFn
	Importer *ImporterFn
	Dispatch *DispatchFn
}

// NumArgs reports the declared arity regardless of Kind. CALL pops this
// many values off the arg-stack; the number of PUSH_ARGs at the call
// site is not checked against it.
func (f *Fn) NumArgs() int {
	switch f.Kind {
	case FnBytecode:
		return f.Bytecode.NumArgs
	case FnNative:
		return f.Native.NumArgs
	case FnImporter:
		return f.Importer.NumArgs
	case FnDispatch:
		return f.Dispatch.NumArgs
	default:
		return 0
	}
}

// ConstKind tags a constant-pool slot's materialized form.
type ConstKind uint8

const (
	ConstInt ConstKind = iota
	ConstDouble
	ConstString
)

// ConstSlot is one constant-pool entry: its kind plus backing bytes. The
// materialized heap Value (for strings) is cached by the VM's
// ThreadLocal, not here — spec.md places that cache on the thread-local
// specifically so a string constant is allocated at most once per
// session, even across multiple Exec calls sharing the same ProgramData.
type ConstSlot struct {
	Kind ConstKind
	I    int32
	D    float64
	S    []byte
}

// Import is one `import "path" [as alias]` record.
type Import struct {
	Path           string
	ModuleAliasIdx int // -1 if no alias was declared
}

// ImportedModule is the per-alias resolution table: names visible as
// `alias::name` are looked up here and, on first use, lazily appended as
// importer/placeholder Fn entries in the importing module's Fns table.
type ImportedModule struct {
	Alias    string
	FnMap    map[string]int // name -> index into the importing module's Fns
	ConstMap map[string]int
}

// SourceMapEntry attributes a bytecode range within one function to a
// byte offset in that function's source text.
type SourceMapEntry struct {
	BcFrom       int
	BcTo         int
	SourceOffset int
	FuncIdx      int
}

// ProgramData is the parsed-and-compiled artifact of one source file.
type ProgramData struct {
	Fns     []*Fn
	FnIndex map[string]int

	Consts []ConstSlot

	Imports         []Import
	ImportedModules []*ImportedModule

	Classes    []*value.ClassInterface
	ClassIndex map[string]int

	ExportedConsts map[string]int
	ExportedFns    map[string]bool

	SourceMap []SourceMapEntry
	Source    []byte

	FilePath string
	Cwd      string
}

// NewProgramData returns an empty, ready-to-populate ProgramData.
func NewProgramData(filePath, cwd string) *ProgramData {
	return &ProgramData{
		FnIndex:        make(map[string]int),
		ClassIndex:     make(map[string]int),
		ExportedConsts: make(map[string]int),
		ExportedFns:    make(map[string]bool),
		FilePath:       filePath,
		Cwd:            cwd,
	}
}

// FindSourceOffset locates the source_offset of the source-map entry
// covering pc within function funcIdx, used to render error positions
// (spec.md §7, "Source mapping").
func (p *ProgramData) FindSourceOffset(funcIdx, pc int) (int, bool) {
	for _, e := range p.SourceMap {
		if e.FuncIdx == funcIdx && pc >= e.BcFrom && pc <= e.BcTo {
			return e.SourceOffset, true
		}
	}
	return 0, false
}

// Program pairs a module's top-level bytecode with its ProgramData.
type Program struct {
	Main *BytecodeFn
	Data *ProgramData
}
