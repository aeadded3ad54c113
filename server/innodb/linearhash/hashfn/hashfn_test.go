package hashfn

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func intKey(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func TestHashPairMatchesSpecFormula(t *testing.T) {
	e := New(KeyInt, 4, nil)

	// N0=4, L=0: lowMod=4, highMod=8
	low, high := e.HashPair(intKey(12), 0)
	assert.Equal(t, uint32(12%4), low)
	assert.Equal(t, uint32(12%8), high)
}

func TestResolveBucketUsesSplitPointer(t *testing.T) {
	// low < p: already split this round, use high
	assert.Equal(t, uint32(7), ResolveBucket(1, 7, 2))
	// low >= p: not yet split, use low
	assert.Equal(t, uint32(3), ResolveBucket(3, 7, 2))
}

func TestByteStringKeyUsesMixFunc(t *testing.T) {
	calls := 0
	e := New(KeyByteString, 4, func(key []byte) uint64 {
		calls++
		return 42
	})
	low, _ := e.HashPair([]byte("hello"), 0)
	assert.Equal(t, uint32(42%4), low)
	assert.Equal(t, 1, calls)
}

func TestByteStringDefaultsToUtilHashCode(t *testing.T) {
	e := New(KeyByteString, 4, nil)
	low1, high1 := e.HashPair([]byte("hello"), 0)
	low2, high2 := e.HashPair([]byte("hello"), 0)
	assert.Equal(t, low1, low2)
	assert.Equal(t, high1, high2)
}
