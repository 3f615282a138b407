package bytecode

import (
	"fmt"
	"strings"
)

// ConstNamer renders a constant-pool index as a human-readable label for
// disassembly. The bytecode package doesn't know about the program
// package's constant pool (that would be an import cycle: program already
// imports bytecode), so callers such as cmd/vellum's -b dump supply one.
type ConstNamer func(idx int) string

// Disassemble renders every instruction in b as one text line, in the
// style "0000  LOAD_CONST   r0, #2 (\"hi\")". It is the repurposed,
// in-scope half of the teacher's binary .sg format: rather than a
// persisted on-disk encoding (spec.md explicitly places bytecode
// persistence out of scope), this produces the text view the CLI's -b
// flag and tests use to inspect emitted code.
func Disassemble(b *Buffer, constName ConstNamer) string {
	var out strings.Builder
	for pc := 0; pc+InstrSize <= b.Len(); pc += InstrSize {
		op, a, c1, c2 := b.ReadOp(pc)
		fmt.Fprintf(&out, "%04d  %-16s", pc/InstrSize, op)
		switch op {
		case OpMovU16, OpLoadConst, OpLoadFunc, OpSetConst, OpMovRegLocal, OpMovLocalReg,
			OpArrayNew, OpTupleNew, OpDictNew, OpClassNew, OpClassNewInitialized,
			OpClassGetInner, OpClassSetInner, OpCall, OpImport:
			imm := b.ReadImm16(pc)
			if (op == OpLoadConst || op == OpSetConst) && constName != nil {
				fmt.Fprintf(&out, "r%d, #%d (%s)", a, imm, constName(int(imm)))
			} else {
				fmt.Fprintf(&out, "r%d, %d", a, imm)
			}
		case OpJif, OpJnif:
			fmt.Fprintf(&out, "r%d, +%d", a, b.ReadImm16(pc))
		case OpJrel, OpJrelb:
			fmt.Fprintf(&out, "%d", b.ReadImm16(pc))
		case OpMovBool:
			fmt.Fprintf(&out, "%d, r%d", a, c1)
		case OpCallFuncValue:
			fmt.Fprintf(&out, "r%d, r%d", a, c1)
		case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpEq, OpNeq, OpLt, OpGt, OpLeq, OpGeq,
			OpBAnd, OpBOr, OpBXor, OpBShl, OpBShr, OpIdxGet, OpIdxSet, OpIdxSetStatic:
			fmt.Fprintf(&out, "r%d, r%d, r%d", a, c1, c2)
		case OpNot, OpBNot, OpNeg, OpBindArgToFunc, OpArrayPush:
			fmt.Fprintf(&out, "r%d, r%d", a, c1)
		case OpRet, OpRaise, OpPrint, OpLoadNil:
			fmt.Fprintf(&out, "r%d", a)
		case OpRetLocal:
			fmt.Fprintf(&out, "local %d", b.ReadImm16(pc))
		}
		out.WriteByte('\n')
	}
	return out.String()
}
