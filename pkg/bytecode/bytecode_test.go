package bytecode

import "testing"

func TestBuffer_ABCRoundTrip(t *testing.T) {
	b := NewBuffer()
	pc := b.WriteABC(OpAdd, 1, 2, 3)
	if pc != 0 {
		t.Fatalf("expected pc 0, got %d", pc)
	}
	op, a, c1, c2 := b.ReadOp(0)
	if op != OpAdd || a != 1 || c1 != 2 || c2 != 3 {
		t.Fatalf("unexpected decode: %s %d %d %d", op, a, c1, c2)
	}
	if b.Len() != InstrSize {
		t.Fatalf("expected length %d, got %d", InstrSize, b.Len())
	}
}

func TestBuffer_Imm16RoundTrip(t *testing.T) {
	b := NewBuffer()
	b.WriteImm16(OpLoadConst, 5, 0xBEEF)
	if got := b.ReadImm16(0); got != 0xBEEF {
		t.Fatalf("expected 0xBEEF, got 0x%X", got)
	}
	op, a, _, _ := b.ReadOp(0)
	if op != OpLoadConst || a != 5 {
		t.Fatalf("unexpected decode: %s %d", op, a)
	}
}

func TestBuffer_PatchImm16(t *testing.T) {
	b := NewBuffer()
	pc := b.WriteImm16(OpJrel, 0, 0)
	b.PatchImm16(pc, 7)
	if got := b.ReadImm16(pc); got != 7 {
		t.Fatalf("expected patched 7, got %d", got)
	}
}

func TestBuffer_LittleEndianLayout(t *testing.T) {
	b := NewBuffer()
	b.WriteImm16(OpJrel, 0, 0x0102)
	raw := b.Bytes()
	if raw[2] != 0x02 || raw[3] != 0x01 {
		t.Fatalf("expected little-endian bytes [0x02 0x01], got [0x%X 0x%X]", raw[2], raw[3])
	}
}

func TestDisassemble_RendersConstNames(t *testing.T) {
	b := NewBuffer()
	b.WriteImm16(OpLoadConst, 0, 2)
	b.WriteABC(OpAdd, 0, 0, 1)
	b.WriteABC(OpRet, 0, 0, 0)

	out := Disassemble(b, func(idx int) string {
		if idx == 2 {
			return `"hi"`
		}
		return "?"
	})

	if !contains(out, `LOAD_CONST`) || !contains(out, `"hi"`) {
		t.Fatalf("disassembly missing expected text: %s", out)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
