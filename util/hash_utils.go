// Package util holds small standalone helpers shared by the linear
// hash index packages.
package util

import (
	"github.com/OneOfOne/xxhash"
)

// HashCode mixes an arbitrary byte-string key down to a uint64. It is
// the default mixing function the hash engine uses for non-integer
// key types (spec.md §4.4).
func HashCode(key []byte) uint64 {
	h := xxhash.New64()
	h.Write(key)
	return h.Sum64()
}
