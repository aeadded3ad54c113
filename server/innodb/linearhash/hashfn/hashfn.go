// Package hashfn implements the hash engine (spec.md §4.4): the pair
// of hash values (h_low, h_high) for a key at the current file level,
// and their resolution against the split pointer to a concrete bucket
// id.
//
// Grounded on original_source's lh_compute_hash/lh_compute_bucket_number
// (`hash_set.lower_hash`/`upper_hash`, modulo against
// initial_map_size << file_level). The integer path reads the key's
// raw bytes as an unsigned integer in host byte order, matching the
// original's `*(int *)key` cast — design note §9 flags this as an
// inherent, documented endianness dependency of the on-disk format.
package hashfn

import (
	"encoding/binary"

	"github.com/zhukovaskychina/lhindex/util"
)

// KeyType selects how a key's bytes are reduced to an integer for
// hashing (spec.md §3 "key type tag").
type KeyType int

const (
	// KeyInt reads the key's bytes as an unsigned integer.
	KeyInt KeyType = iota
	// KeySignedInt reads the key's bytes as a signed integer; the bit
	// pattern is hashed identically to KeyInt (two's complement modulo
	// arithmetic is bit-pattern-equivalent to unsigned, matching the
	// original's bare (hash_t) cast).
	KeySignedInt
	// KeyByteString hashes arbitrary byte-string keys through a
	// caller-supplied (or default) mixing function.
	KeyByteString
)

// MixFunc deterministically reduces a byte-string key to a uint64. It
// must preserve uniform distribution (spec.md §4.4).
type MixFunc func(key []byte) uint64

// Engine computes hash pairs and resolves bucket ids for one map.
type Engine struct {
	KeyType KeyType
	N0      uint32
	Mix     MixFunc // used only when KeyType == KeyByteString; defaults to util.HashCode
}

// New builds an Engine. mix may be nil when keyType != KeyByteString.
func New(keyType KeyType, n0 uint32, mix MixFunc) *Engine {
	return &Engine{KeyType: keyType, N0: n0, Mix: mix}
}

// HashPair returns (h_low, h_high) for key at file level L:
//
//	h_low  = k mod (N0 * 2^L)
//	h_high = k mod (N0 * 2^(L+1))
func (e *Engine) HashPair(key []byte, level int) (low, high uint32) {
	k := e.reduce(key)
	lowMod := uint64(e.N0) << uint(level)
	highMod := uint64(e.N0) << uint(level+1)
	return uint32(k % lowMod), uint32(k % highMod)
}

func (e *Engine) reduce(key []byte) uint64 {
	if e.KeyType == KeyByteString {
		mix := e.Mix
		if mix == nil {
			mix = util.HashCode
		}
		return mix(key)
	}
	return rawHostUint(key)
}

// rawHostUint interprets up to 8 bytes of key as an unsigned integer
// in host (little-endian) byte order, zero-extending shorter keys and
// truncating longer ones to the low 8 bytes.
func rawHostUint(key []byte) uint64 {
	var buf [8]byte
	n := len(key)
	if n > 8 {
		n = 8
	}
	copy(buf[:n], key[:n])
	return binary.LittleEndian.Uint64(buf[:])
}

// ResolveBucket implements spec.md §4.4's bucket resolution: a record
// with hash result (low, high) resides in bucket low if low >= the
// split pointer p, else in bucket high.
func ResolveBucket(low, high, p uint32) uint32 {
	if low >= p {
		return low
	}
	return high
}
