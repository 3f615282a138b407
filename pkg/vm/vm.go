// Package vm implements vellum's register-based, threaded-dispatch
// virtual machine: the ThreadLocal session context, call frames, and the
// Exec loop that interprets a *program.BytecodeFn against a
// *program.ProgramData.
package vm

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/kristofer/vellum/pkg/bytecode"
	"github.com/kristofer/vellum/pkg/program"
	"github.com/kristofer/vellum/pkg/value"
)

// selfTarget mirrors pkg/parser's selfTargetSentinel: CLASS_SET_INNER's
// target operand reads this value to mean "the current frame's receiver"
// rather than an explicit register. The two packages agree on the
// constant independently (parser emits it, VM interprets it) rather than
// sharing an import, since neither package otherwise depends on the
// other's internals.
const selfTarget = 0xFF

// ThreadLocal is the per-session interpreter context spec.md §9's design
// note requires be threaded explicitly rather than held in a
// package-level global: constant cache, loaded-module table, the active
// frame chain (used as the GC's root set), and the swappable print/abort
// hooks SPEC_FULL.md §5 calls for so output is redirectable in tests.
type ThreadLocal struct {
	Out    io.Writer
	ErrOut io.Writer

	// AbortHook is invoked on a fatal error (spec.md §7's "au_fatal"). The
	// default prints to ErrOut and calls os.Exit(1); tests install a
	// non-exiting hook (e.g. one that panics with a sentinel) so a fatal
	// path can be asserted without killing the test binary.
	AbortHook func(msg string)

	constCache map[*program.ProgramData]map[int]value.Value
	modules    map[string]*program.ProgramData // absolute path -> loaded module
	natives    map[string]*program.NativeFn

	// moduleGeneration counts successful module loads. Spec.md §9's design
	// note on module wiring calls for a generation counter so a cached
	// importer resolution can be invalidated if its module were ever
	// reloaded; this interpreter never reloads a module mid-session, so
	// the counter is tracked for fidelity but nothing currently reads it
	// to invalidate a cache (see DESIGN.md).
	moduleGeneration int

	// Frame is the innermost currently-executing frame, threaded through
	// Exec calls via Frame.Link. It is the GC's root.
	Frame *Frame

	gc *gcState

	// Debugger, when non-nil and enabled, pauses Exec's dispatch loop at
	// breakpoints and in step mode (see debugger.go). nil by default: the
	// common run path never pays for the ShouldPause check's map lookup
	// beyond a single nil comparison.
	Debugger *Debugger
}

// NewThreadLocal returns a session ready to run a Program, with stdout
// printing, stderr error reporting, and the minimal native registry
// (SPEC_FULL.md §5) installed.
func NewThreadLocal(out io.Writer) *ThreadLocal {
	tl := &ThreadLocal{
		Out:        out,
		ErrOut:     os.Stderr,
		constCache: make(map[*program.ProgramData]map[int]value.Value),
		modules:    make(map[string]*program.ProgramData),
		natives:    make(map[string]*program.NativeFn),
	}
	tl.AbortHook = tl.defaultAbort
	registerBuiltins(tl)
	return tl
}

func (tl *ThreadLocal) defaultAbort(msg string) {
	fmt.Fprintln(tl.ErrOut, msg)
	os.Exit(1)
}

// Print implements program.VMContext, the one hook a native function gets
// into the running session.
func (tl *ThreadLocal) Print(s string) {
	fmt.Fprint(tl.Out, s)
}

// RegisterNative installs a native function under name, visible to any
// ProgramData LinkNatives is subsequently called on. SPEC_FULL.md §5
// leaves this open for a host program to extend beyond the minimal
// registry in builtins.go.
func (tl *ThreadLocal) RegisterNative(name string, numArgs int, fn program.NativeFunc) {
	tl.natives[name] = &program.NativeFn{Fn: fn, Name: name, NumArgs: numArgs}
}

// LinkNatives appends a Fn entry for every registered native not already
// present in pData's function table, so `len(x)`-style calls resolve the
// same way a user-defined top-level function would. The parser has no
// notion of natives: any call site that names one (before or after this
// link step runs) gets the same FnNone placeholder resolveOrDeclareFn
// hands out for any other unresolved name, with CALL's imm16 already
// baked in as that slot's index. So a name that already has a FnIndex
// entry isn't necessarily linked — if the existing Fn is still FnNone,
// this overwrites it in place rather than skipping it, filling the slot
// every earlier-emitted CALL already points at. This link step runs once
// per loaded ProgramData, before that module's top level executes.
func (tl *ThreadLocal) LinkNatives(pData *program.ProgramData) {
	for name, nat := range tl.natives {
		if idx, exists := pData.FnIndex[name]; exists {
			if fn := pData.Fns[idx]; fn.Kind == program.FnNone {
				fn.Kind = program.FnNative
				fn.Native = nat
			}
			continue
		}
		idx := len(pData.Fns)
		pData.Fns = append(pData.Fns, &program.Fn{Kind: program.FnNative, Name: name, Native: nat})
		pData.FnIndex[name] = idx
	}
}

// constValue materializes pData's Consts[idx] into a Value, caching the
// heap form (string constants only) on tl so repeated LOAD_CONSTs of the
// same slot share one allocation for this ProgramData's lifetime — the
// "materialised heap string is allocated at most once" invariant from
// spec.md §3's ThreadLocal description.
func (tl *ThreadLocal) constValue(pData *program.ProgramData, idx int) value.Value {
	slot := pData.Consts[idx]
	switch slot.Kind {
	case program.ConstInt:
		return value.Int(slot.I)
	case program.ConstDouble:
		return value.Double(slot.D)
	case program.ConstString:
		cache := tl.constCache[pData]
		if cache == nil {
			cache = make(map[int]value.Value)
			tl.constCache[pData] = cache
		}
		if v, ok := cache[idx]; ok {
			return v
		}
		v := value.Str(value.NewString(append([]byte(nil), slot.S...)))
		cache[idx] = v
		return v
	default:
		return value.None
	}
}

// Frame is one activation of a bytecode function: its register file,
// local file, pending-argument stack, program counter, and a link to the
// caller's frame (for diagnostics and GC rooting).
type Frame struct {
	Regs     []value.Value
	Locals   []value.Value
	ArgStack []value.Value

	PC      int
	Code    *bytecode.Buffer
	PData   *program.ProgramData
	FuncIdx int
	Name    string
	MayFail bool

	Self value.Value // None unless this frame is a bound method call

	Link *Frame
}

// release drops every register and local except the ones named by
// exceptReg/exceptLocal (-1 to except nothing), implementing the "owning
// frame tears down" half of spec.md §3's heap object lifecycle.
func (f *Frame) release(exceptReg, exceptLocal int) {
	for i := range f.Regs {
		if i == exceptReg {
			continue
		}
		value.Release(f.Regs[i])
	}
	for i := range f.Locals {
		if i == exceptLocal {
			continue
		}
		value.Release(f.Locals[i])
	}
}

// storeRegCopy implements the "copy" half of the VM's copy/move
// discipline (spec.md §4.5): retain v, release whatever dest held.
func storeRegCopy(f *Frame, dest byte, v value.Value) {
	old := f.Regs[dest]
	value.Retain(v)
	value.Release(old)
	f.Regs[dest] = v
}

// storeRegMove assigns a freshly produced or ownership-transferred value
// into dest without retaining it, still releasing whatever it overwrites.
func storeRegMove(f *Frame, dest byte, v value.Value) {
	old := f.Regs[dest]
	value.Release(old)
	f.Regs[dest] = v
}

func storeLocalCopy(f *Frame, slot int, v value.Value) {
	old := f.Locals[slot]
	value.Retain(v)
	value.Release(old)
	f.Locals[slot] = v
}

func storeLocalMove(f *Frame, slot int, v value.Value) {
	old := f.Locals[slot]
	value.Release(old)
	f.Locals[slot] = v
}

// classInstanceAt resolves CLASS_SET_INNER/CLASS_GET_INNER's implicit
// target: selfTarget means frame.Self, anything else is an explicit
// register holding the instance under construction (see parser.go's
// selfTargetSentinel doc comment for why new Class{...} needs this).
func classInstanceAt(f *Frame, target byte) (*value.ClassInstance, bool) {
	var v value.Value
	if target == selfTarget {
		v = f.Self
	} else {
		v = f.Regs[target]
	}
	inst, ok := v.Obj.(*value.ClassInstance)
	return inst, ok
}

// Exec runs bcs against pData starting from a fresh frame seeded with
// args, returning its result value. link is the caller's frame, threaded
// for diagnostics and GC rooting; it is nil for the entry program's top
// level (RunProgram), while an imported module's top level is linked to
// the importing frame.
func Exec(tl *ThreadLocal, bcs *program.BytecodeFn, pData *program.ProgramData, args []value.Value, link *Frame) value.Value {
	f := &Frame{
		Regs:    make([]value.Value, bcs.NumRegisters),
		Locals:  make([]value.Value, bcs.NumLocals),
		Code:    bcs.Code,
		PData:   pData,
		FuncIdx: bcs.FuncIdx,
		MayFail: bcs.MayFail,
		Link:    link,
		Self:    value.None,
	}
	for i := range f.Regs {
		f.Regs[i] = value.None
	}
	for i := range f.Locals {
		f.Locals[i] = value.None
	}
	for i := 0; i < bcs.NumArgs && i < len(args); i++ {
		f.Locals[i] = args[i]
	}
	if bcs.Class != nil && len(args) > 0 {
		f.Self = args[0]
	}
	if bcs.FuncIdx >= 0 && bcs.FuncIdx < len(pData.Fns) {
		f.Name = pData.Fns[bcs.FuncIdx].Name
	}

	prev := tl.Frame
	tl.Frame = f
	defer func() { tl.Frame = prev }()

	code := bcs.Code
	for f.PC < code.Len() {
		if tl.Debugger != nil && tl.Debugger.ShouldPause(f) {
			if !tl.Debugger.InteractivePrompt(f) {
				f.release(-1, -1)
				return value.None
			}
		}
		pc := f.PC
		op, a, c1, c2 := code.ReadOp(pc)
		f.PC += bytecode.InstrSize

		switch op {
		case bytecode.OpExit:
			f.release(-1, -1)
			return value.None
		case bytecode.OpNop:

		case bytecode.OpMovU16:
			imm := code.ReadImm16(pc)
			storeRegMove(f, a, value.Int(int32(imm)))
		case bytecode.OpMovBool:
			storeRegMove(f, a, value.Bool(c1 != 0))
		case bytecode.OpLoadConst:
			v := tl.constValue(pData, int(code.ReadImm16(pc)))
			storeRegCopy(f, a, v)
		case bytecode.OpLoadNil:
			storeRegMove(f, a, value.None)
		case bytecode.OpLoadFunc:
			storeRegMove(f, a, value.Fn(int(code.ReadImm16(pc))))
		case bytecode.OpLoadSelf:
			storeRegCopy(f, a, f.Self)
		case bytecode.OpSetConst:
			// Emitted for every const declaration; the literal already
			// sits in the constant pool and ExportedConsts is populated
			// at parse time, so this opcode has no runtime effect.

		case bytecode.OpMovRegLocal:
			storeLocalCopy(f, int(c1), f.Regs[a])
		case bytecode.OpMovLocalReg:
			storeRegCopy(f, a, f.Locals[c1])

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
			bytecode.OpBAnd, bytecode.OpBOr, bytecode.OpBXor, bytecode.OpBShl, bytecode.OpBShr:
			lhs, rhs := f.Regs[c1], f.Regs[c2]
			res, ok := binArith(op, lhs, rhs)
			if !ok {
				if tl.failOrContinue(f, pc, a, fmt.Sprintf("type error: %s is not defined for these operands", op)) {
					return value.ErrorSentinel
				}
				continue
			}
			storeRegMove(f, a, res)

		case bytecode.OpEq:
			storeRegMove(f, a, value.Bool(value.Equal(f.Regs[c1], f.Regs[c2])))
		case bytecode.OpNeq:
			storeRegMove(f, a, value.Bool(!value.Equal(f.Regs[c1], f.Regs[c2])))
		case bytecode.OpLt, bytecode.OpGt, bytecode.OpLeq, bytecode.OpGeq:
			lhs, rhs := f.Regs[c1], f.Regs[c2]
			lt, ok := value.Less(lhs, rhs)
			if !ok {
				if tl.failOrContinue(f, pc, a, fmt.Sprintf("type error: %s is not defined for these operands", op)) {
					return value.ErrorSentinel
				}
				continue
			}
			eq := value.Equal(lhs, rhs)
			var res bool
			switch op {
			case bytecode.OpLt:
				res = lt
			case bytecode.OpGt:
				res = !lt && !eq
			case bytecode.OpLeq:
				res = lt || eq
			case bytecode.OpGeq:
				res = !lt
			}
			storeRegMove(f, a, value.Bool(res))

		case bytecode.OpNot:
			storeRegMove(f, a, value.Bool(!f.Regs[c1].Truthy()))
		case bytecode.OpBNot:
			src := f.Regs[c1]
			if src.Kind != value.KindInt {
				if tl.failOrContinue(f, pc, a, "type error: ~ requires an int") {
					return value.ErrorSentinel
				}
				continue
			}
			storeRegMove(f, a, value.Int(^src.I))
		case bytecode.OpNeg:
			src := f.Regs[c1]
			switch src.Kind {
			case value.KindInt:
				storeRegMove(f, a, value.Int(-src.I))
			case value.KindDouble:
				storeRegMove(f, a, value.Double(-src.D))
			default:
				if tl.failOrContinue(f, pc, a, "type error: unary - requires a number") {
					return value.ErrorSentinel
				}
				continue
			}

		case bytecode.OpJif:
			if f.Regs[a].Truthy() {
				f.PC = pc + bytecode.InstrSize + int(code.ReadImm16(pc))*bytecode.InstrSize
			}
		case bytecode.OpJnif:
			if !f.Regs[a].Truthy() {
				f.PC = pc + bytecode.InstrSize + int(code.ReadImm16(pc))*bytecode.InstrSize
			}
		case bytecode.OpJrel:
			f.PC = pc + bytecode.InstrSize + int(code.ReadImm16(pc))*bytecode.InstrSize
		case bytecode.OpJrelb:
			f.PC = pc + bytecode.InstrSize - int(code.ReadImm16(pc))*bytecode.InstrSize

		case bytecode.OpPushArg:
			value.Retain(f.Regs[a])
			f.ArgStack = append(f.ArgStack, f.Regs[a])

		case bytecode.OpCall:
			fnIdx := int(code.ReadImm16(pc))
			fn := pData.Fns[fnIdx]
			n := fn.NumArgs()
			args := popArgs(f, n)
			result := tl.callFn(fn, pData, args, f)
			if result.IsError() {
				if tl.failOrContinue(f, pc, a, fmt.Sprintf("call to %q failed", fn.Name)) {
					return value.ErrorSentinel
				}
				continue
			}
			storeRegMove(f, a, result)

		case bytecode.OpCallFuncValue:
			base := f.Regs[c1]
			fnIdx := base.FnIdx
			var bound []value.Value
			if fv, ok := base.Obj.(*value.FnValue); ok {
				fnIdx = fv.FnIdx
				bound = fv.Bound
			}
			fn := pData.Fns[fnIdx]
			arity := fn.NumArgs()
			nPop := arity - len(bound)
			if nPop < 0 {
				nPop = 0
			}
			popped := popArgs(f, nPop)
			callArgs := make([]value.Value, 0, len(bound)+len(popped))
			for _, b := range bound {
				value.Retain(b)
				callArgs = append(callArgs, b)
			}
			callArgs = append(callArgs, popped...)
			result := tl.callFn(fn, pData, callArgs, f)
			if result.IsError() {
				if tl.failOrContinue(f, pc, a, fmt.Sprintf("call to %q failed", fn.Name)) {
					return value.ErrorSentinel
				}
				continue
			}
			storeRegMove(f, a, result)

		case bytecode.OpBindArgToFunc:
			cur := f.Regs[a]
			var fv *value.FnValue
			if cur.Obj != nil {
				fv, _ = cur.Obj.(*value.FnValue)
			}
			if fv == nil {
				fv = value.NewFnValue(cur.FnIdx)
				tl.track(fv, 32)
			}
			if fn := pData.Fns[fv.FnIdx]; fn.Kind == program.FnDispatch {
				tl.abort(f, fmt.Sprintf("cannot bind arguments to dispatch function %q", fn.Name))
			}
			fv.Bind(f.Regs[c1])
			f.Regs[a] = value.Value{Kind: value.KindFn, FnIdx: fv.FnIdx, Obj: fv}

		case bytecode.OpRet:
			ret := f.Regs[a]
			f.release(int(a), -1)
			return ret
		case bytecode.OpRetLocal:
			ret := f.Locals[c1]
			f.release(-1, int(c1))
			return ret
		case bytecode.OpRetNull:
			f.release(-1, -1)
			return value.None
		case bytecode.OpRaise:
			ret := f.Regs[a]
			f.release(int(a), -1)
			return ret

		case bytecode.OpImport:
			tl.execImport(f, pData, int(code.ReadImm16(pc)))

		case bytecode.OpArrayNew:
			arr := value.NewArray(int(code.ReadImm16(pc)))
			tl.track(arr, 64)
			storeRegMove(f, a, value.Struct(arr))
		case bytecode.OpTupleNew:
			tup := value.NewTuple(int(code.ReadImm16(pc)))
			tl.track(tup, 64)
			storeRegMove(f, a, value.Struct(tup))
		case bytecode.OpDictNew:
			d := value.NewDict(int(code.ReadImm16(pc)))
			tl.track(d, 128)
			storeRegMove(f, a, value.Struct(d))
		case bytecode.OpArrayPush:
			arr, ok := f.Regs[a].Obj.(*value.Array)
			if !ok {
				tl.abort(f, "ARRAY_PUSH target is not an array")
				continue
			}
			value.Retain(f.Regs[c1])
			arr.Push(f.Regs[c1])

		case bytecode.OpIdxGet:
			base := f.Regs[c1]
			s, ok := value.AsStruct(base)
			if !ok {
				if tl.failOrContinue(f, pc, a, "type error: value does not support indexing") {
					return value.ErrorSentinel
				}
				continue
			}
			v, ok := s.IdxGet(f.Regs[c2])
			if !ok {
				if tl.failOrContinue(f, pc, a, "index error: key not found or out of range") {
					return value.ErrorSentinel
				}
				continue
			}
			storeRegCopy(f, a, v)
		case bytecode.OpIdxSet:
			base := f.Regs[a]
			s, ok := value.AsStruct(base)
			if !ok {
				tl.abort(f, "type error: value does not support indexing")
				continue
			}
			if !s.IdxSet(f.Regs[c1], f.Regs[c2]) {
				tl.abort(f, "index error: key not found or out of range")
			}
		case bytecode.OpIdxSetStatic:
			base := f.Regs[a]
			s, ok := value.AsStruct(base)
			if !ok {
				tl.abort(f, "type error: value does not support indexing")
				continue
			}
			key := tl.constValue(pData, int(c1))
			if !s.IdxSet(key, f.Regs[c2]) {
				tl.abort(f, "index error: key not found or out of range")
			}

		case bytecode.OpClassNew, bytecode.OpClassNewInitialized:
			iface := pData.Classes[code.ReadImm16(pc)]
			inst := value.NewClassInstance(iface)
			tl.track(inst, 64)
			storeRegMove(f, a, value.Struct(inst))
		case bytecode.OpClassGetInner:
			inst, ok := f.Self.Obj.(*value.ClassInstance)
			if !ok {
				tl.abort(f, "CLASS_GET_INNER used outside a method body")
				continue
			}
			storeRegCopy(f, a, inst.GetField(int(c1)))
		case bytecode.OpClassSetInner:
			inst, ok := classInstanceAt(f, c2)
			if !ok {
				tl.abort(f, "CLASS_SET_INNER target is not a class instance")
				continue
			}
			inst.SetField(int(a), f.Regs[c1])

		case bytecode.OpPrint:
			tl.Print(value.DebugString(f.Regs[a]))

		default:
			tl.abort(f, fmt.Sprintf("unknown opcode %v", op))
		}
	}
	f.release(-1, -1)
	return value.None
}

// popArgs takes the last n values pushed by PUSH_ARG, transferring their
// ownership to the caller (no retain/release: PUSH_ARG already retained
// on push, and the callee's frame teardown is what eventually releases
// them).
func popArgs(f *Frame, n int) []value.Value {
	if n <= 0 || len(f.ArgStack) < n {
		if n <= 0 {
			return nil
		}
		n = len(f.ArgStack)
	}
	start := len(f.ArgStack) - n
	args := append([]value.Value(nil), f.ArgStack[start:]...)
	f.ArgStack = f.ArgStack[:start]
	return args
}

// failOrContinue applies spec.md §7's binop-error propagation policy: if
// f's function is may_fail, the caller should return ErrorSentinel
// immediately (true); otherwise the destination register is set to None
// and execution continues (false). Either way the failure is reported.
func (tl *ThreadLocal) failOrContinue(f *Frame, pc int, dest byte, msg string) bool {
	tl.reportError(f, pc, msg)
	if f.MayFail {
		f.release(-1, -1)
		return true
	}
	storeRegMove(f, dest, value.None)
	return false
}

// callFn dispatches a Fn call by Kind, implementing spec.md §4.5's call
// sequencing. It returns value.ErrorSentinel for any non-fatal failure
// (dispatch miss, receiver identity mismatch) and invokes tl.abort for
// the fatal cases (undefined function, unresolved importer).
func (tl *ThreadLocal) callFn(fn *program.Fn, pData *program.ProgramData, args []value.Value, caller *Frame) value.Value {
	switch fn.Kind {
	case program.FnBytecode:
		if fn.Bytecode.Class != nil {
			if len(args) == 0 {
				return value.ErrorSentinel
			}
			inst, ok := args[0].Obj.(*value.ClassInstance)
			if !ok || inst.Interface != fn.Bytecode.Class {
				return value.ErrorSentinel
			}
		}
		return Exec(tl, fn.Bytecode, pData, args, caller)

	case program.FnNative:
		// A native has no Frame of its own to tear down, so the VM plays
		// that role here: every arg is released after the call, mirroring
		// a bytecode frame's local teardown, except the one slot (if any)
		// the native chose to hand back as its result.
		result := fn.Native.Fn(tl, pData, args)
		for _, arg := range args {
			if arg.Obj != nil && arg.Obj == result.Obj {
				continue
			}
			value.Release(arg)
		}
		return result

	case program.FnImporter:
		mod, idx, ok := fn.Importer.Resolved()
		if !ok {
			tl.abort(caller, fmt.Sprintf("import %q used before resolution", fn.Importer.Name))
			return value.ErrorSentinel
		}
		return tl.callFn(mod.Fns[idx], mod, args, caller)

	case program.FnDispatch:
		if len(args) == 0 {
			return value.ErrorSentinel
		}
		inst, ok := args[0].Obj.(*value.ClassInstance)
		if !ok {
			if fn.Dispatch.Fallback >= 0 {
				return tl.callFn(pData.Fns[fn.Dispatch.Fallback], pData, args, caller)
			}
			return value.ErrorSentinel
		}
		implIdx, ok := fn.Dispatch.PerClass[inst.Interface]
		if !ok {
			if fn.Dispatch.Fallback >= 0 {
				return tl.callFn(pData.Fns[fn.Dispatch.Fallback], pData, args, caller)
			}
			return value.ErrorSentinel
		}
		return tl.callFn(pData.Fns[implIdx], pData, args, caller)

	case program.FnNone:
		tl.abort(caller, fmt.Sprintf("call to undefined function %q", fn.Name))
		return value.ErrorSentinel

	default:
		return value.None
	}
}

// binArith implements ADD/SUB/MUL/DIV/MOD and the bitwise family. String
// concatenation is the one ADD special case (spec.md §3's "heap string…
// concatenation allocates a new string"); everything else requires two
// numeric operands, promoting to double if either side is.
func binArith(op bytecode.Opcode, lhs, rhs value.Value) (value.Value, bool) {
	if op == bytecode.OpAdd && lhs.Kind == value.KindString && rhs.Kind == value.KindString {
		ls := lhs.Obj.(*value.HeapString)
		rs := rhs.Obj.(*value.HeapString)
		return value.Str(value.ConcatStrings(ls, rs)), true
	}

	switch op {
	case bytecode.OpBAnd, bytecode.OpBOr, bytecode.OpBXor, bytecode.OpBShl, bytecode.OpBShr:
		if lhs.Kind != value.KindInt || rhs.Kind != value.KindInt {
			return value.Value{}, false
		}
		switch op {
		case bytecode.OpBAnd:
			return value.Int(lhs.I & rhs.I), true
		case bytecode.OpBOr:
			return value.Int(lhs.I | rhs.I), true
		case bytecode.OpBXor:
			return value.Int(lhs.I ^ rhs.I), true
		case bytecode.OpBShl:
			return value.Int(lhs.I << uint32(rhs.I)), true
		case bytecode.OpBShr:
			return value.Int(lhs.I >> uint32(rhs.I)), true
		}
	}

	lIsNum := lhs.Kind == value.KindInt || lhs.Kind == value.KindDouble
	rIsNum := rhs.Kind == value.KindInt || rhs.Kind == value.KindDouble
	if !lIsNum || !rIsNum {
		return value.Value{}, false
	}
	if lhs.Kind == value.KindInt && rhs.Kind == value.KindInt {
		a, b := lhs.I, rhs.I
		switch op {
		case bytecode.OpAdd:
			return value.Int(a + b), true
		case bytecode.OpSub:
			return value.Int(a - b), true
		case bytecode.OpMul:
			return value.Int(a * b), true
		case bytecode.OpDiv:
			if b == 0 {
				return value.Value{}, false
			}
			return value.Int(a / b), true
		case bytecode.OpMod:
			if b == 0 {
				return value.Value{}, false
			}
			return value.Int(a % b), true
		}
	}
	a, b := numericOf(lhs), numericOf(rhs)
	switch op {
	case bytecode.OpAdd:
		return value.Double(a + b), true
	case bytecode.OpSub:
		return value.Double(a - b), true
	case bytecode.OpMul:
		return value.Double(a * b), true
	case bytecode.OpDiv:
		return value.Double(a / b), true
	case bytecode.OpMod:
		return value.Double(math.Mod(a, b)), true
	}
	return value.Value{}, false
}

func numericOf(v value.Value) float64 {
	if v.Kind == value.KindInt {
		return float64(v.I)
	}
	return v.D
}
