package value

import (
	"fmt"
	"math"
)

func doubleBits(d float64) uint64 { return math.Float64bits(d) }

// ptrBits derives a stable hash seed from a heap object's identity. Using
// its formatted pointer address avoids reaching for the unsafe package
// just to hash by identity.
func ptrBits(o HeapObject) uint64 {
	s := fmt.Sprintf("%p", o)
	var h uint64 = 1469598103934665603
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}
