package vm

// native.go holds no types of its own: the native function contract is
// program.NativeFunc / program.NativeFn (declared there so a Fn's native
// variant doesn't force pkg/program to import pkg/vm). This file is the
// home for helpers around that contract that don't belong in builtins.go
// alongside the concrete registry.

import "github.com/kristofer/vellum/pkg/value"

// argOr returns args[i] if present, else value.None. Natives use it to
// tolerate being called with fewer arguments than their declared arity:
// neither the parser nor CALL checks a call's argument count against the
// callee's arity.
func argOr(args []value.Value, i int) value.Value {
	if i < 0 || i >= len(args) {
		return value.None
	}
	return args[i]
}
