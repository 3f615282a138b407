package vm

import (
	"strconv"
	"time"

	"github.com/kristofer/vellum/pkg/program"
	"github.com/kristofer/vellum/pkg/value"
)

// registerBuiltins installs the minimal native registry SPEC_FULL.md §5
// calls for: just enough to exercise the native-function contract and
// run spec.md §8's scenarios without a standard library. Anything beyond
// this (HTTP, crypto, regex, JSON — present in the teacher's
// primitives.go) is individual standard-library surface spec.md places
// out of scope; ThreadLocal.RegisterNative is how a host program adds
// more.
func registerBuiltins(tl *ThreadLocal) {
	tl.RegisterNative("print", 1, nativePrint)
	tl.RegisterNative("len", 1, nativeLen)
	tl.RegisterNative("str", 1, nativeStr)
	tl.RegisterNative("int", 1, nativeInt)
	tl.RegisterNative("float", 1, nativeFloat)
	tl.RegisterNative("clock", 0, nativeClock)
}

func nativePrint(ctx program.VMContext, pData *program.ProgramData, args []value.Value) value.Value {
	ctx.Print(value.DebugString(argOr(args, 0)))
	return value.None
}

func nativeLen(ctx program.VMContext, pData *program.ProgramData, args []value.Value) value.Value {
	v := argOr(args, 0)
	switch v.Kind {
	case value.KindString:
		return value.Int(int32(len(v.Obj.(*value.HeapString).Bytes)))
	case value.KindStruct:
		if s, ok := value.AsStruct(v); ok {
			return value.Int(s.Len())
		}
	}
	return value.ErrorSentinel
}

// nativeStr renders v the same way PRINT does. It exists as its own
// native (rather than reusing DebugString's result directly) so the
// returned Value is a freshly allocated, independently refcounted
// string, per the copy/move discipline every call-result register write
// in the VM assumes.
func nativeStr(ctx program.VMContext, pData *program.ProgramData, args []value.Value) value.Value {
	return value.Str(value.NewString([]byte(value.DebugString(argOr(args, 0)))))
}

// nativeInt implements the numeric-string round trip spec.md §8 requires
// (str(int(s)) == s for a digit string s), plus double truncation and a
// pass-through for an already-int argument.
func nativeInt(ctx program.VMContext, pData *program.ProgramData, args []value.Value) value.Value {
	v := argOr(args, 0)
	switch v.Kind {
	case value.KindInt:
		return value.Int(v.I)
	case value.KindDouble:
		return value.Int(int32(v.D))
	case value.KindString:
		n, err := strconv.Atoi(string(v.Obj.(*value.HeapString).Bytes))
		if err != nil {
			return value.ErrorSentinel
		}
		return value.Int(int32(n))
	default:
		return value.ErrorSentinel
	}
}

func nativeFloat(ctx program.VMContext, pData *program.ProgramData, args []value.Value) value.Value {
	v := argOr(args, 0)
	switch v.Kind {
	case value.KindDouble:
		return value.Double(v.D)
	case value.KindInt:
		return value.Double(float64(v.I))
	case value.KindString:
		f, err := strconv.ParseFloat(string(v.Obj.(*value.HeapString).Bytes), 64)
		if err != nil {
			return value.ErrorSentinel
		}
		return value.Double(f)
	default:
		return value.ErrorSentinel
	}
}

// nativeClock wraps time.Now(), grounded on the teacher's
// primitives.go having a dedicated date/time section built on the
// standard time package rather than a third-party clock library.
func nativeClock(ctx program.VMContext, pData *program.ProgramData, args []value.Value) value.Value {
	return value.Double(float64(time.Now().UnixNano()) / 1e9)
}
