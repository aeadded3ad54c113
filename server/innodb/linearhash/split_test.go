package linearhash

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/lhindex/server/innodb/linearhash/record"
)

func u32key(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func newTestIndex(t *testing.T, recordsPerBucket int) *Index {
	t.Helper()
	idx, err := Initialise(Config{
		ID:               1,
		KeyType:          KeyInt,
		KeySize:          4,
		ValueSize:        4,
		InitialSize:      2,
		RecordsPerBucket: recordsPerBucket,
		Dir:              t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

// TestSplitRedistributesPrimaryPage covers testable property 4/5 and
// scenario S3: after a split, every record that belonged to the old
// bucket is still reachable by Query at its (possibly new) bucket.
func TestSplitRedistributesPrimaryPage(t *testing.T) {
	idx := newTestIndex(t, 4)

	// N0=2, L=0: buckets 0 and 1. Insert several keys into bucket 0.
	keys := []uint32{0, 2, 4, 6}
	for _, k := range keys {
		require.NoError(t, idx.Insert(u32key(k), u32key(k*10)))
	}

	require.NoError(t, idx.Split())

	out := make([]byte, 4)
	for _, k := range keys {
		require.NoError(t, idx.Query(u32key(k), out), "key %d must still be findable after split", k)
		require.Equal(t, k*10, binary.LittleEndian.Uint32(out))
	}

	stats := idx.Stats()
	require.Equal(t, 0, stats.Level)
	require.Equal(t, uint32(1), stats.SplitPointer)
	require.Equal(t, uint32(3), stats.Buckets) // N0=2 << 0 + p=1
}

// TestSplitAdvancesPointerAndWraps covers the level-rollover edge case:
// once p reaches N0 * 2^L, it resets to 0 and L increments.
func TestSplitAdvancesPointerAndWraps(t *testing.T) {
	idx := newTestIndex(t, 2)

	require.NoError(t, idx.Split()) // p: 0 -> 1
	require.Equal(t, uint32(1), idx.p)
	require.Equal(t, 0, idx.level)

	require.NoError(t, idx.Split()) // p: 1 -> wrap to 0, L -> 1
	require.Equal(t, uint32(0), idx.p)
	require.Equal(t, 1, idx.level)
}

// TestSplitRedistributesOverflowChain covers scenario S3's overflow
// variant: records that had spilled to the old bucket's overflow file
// and rehash differently move to the new bucket (its primary page while
// it has room, then its overflow file) and stay findable.
func TestSplitRedistributesOverflowChain(t *testing.T) {
	idx := newTestIndex(t, 1) // force everything past the first insert into overflow

	keys := []uint32{0, 2, 4, 6, 8}
	for _, k := range keys {
		require.NoError(t, idx.Insert(u32key(k), u32key(k*10)))
	}
	require.NoError(t, idx.Split())

	out := make([]byte, 4)
	for _, k := range keys {
		require.NoError(t, idx.Query(u32key(k), out), "key %d must still be findable after split", k)
		require.Equal(t, k*10, binary.LittleEndian.Uint32(out))
	}
}

// TestSplitReclaimsPrimaryPageSlotsBeforeOverflow covers spec.md §4.5
// step 4 directly: a record that spilled to the old bucket's overflow
// chain and rehashes into the newly created bucket must land in that
// bucket's primary page (taking a slot the primary-page move step left
// free), not straight in a freshly created overflow file, whenever
// the primary page has room.
func TestSplitReclaimsPrimaryPageSlotsBeforeOverflow(t *testing.T) {
	idx := newTestIndex(t, 1) // one primary slot per bucket

	// N0=2, L=0, p=0: bucket 0 is the one about to split. Key 0 takes
	// the bucket's only primary slot; key 2 then spills into bucket 0's
	// overflow chain (both hash to bucket 0 mod 2 == 0 at level 0).
	require.NoError(t, idx.Insert(u32key(0), u32key(100)))
	require.NoError(t, idx.Insert(u32key(2), u32key(200)))
	require.True(t, idx.Stats().LastInsertUsedOverflow)

	require.NoError(t, idx.Split())

	// With the next level's modulus (N0<<1 == 4), key 0 rehashes to 0 mod 4 == 0 and
	// stays in bucket 0; key 2 rehashes to 2 mod 4 == 2, the bucket
	// this split just created (N0<<0 + p(0) == 2). Key 2 must now sit
	// directly in bucket 2's primary page, in the slot the split's own
	// primary-page move step never filled (bucket 0 had no record that
	// needed to move there) — not in a freshly created overflow file.
	newBucketID := uint32(2)
	require.NoError(t, idx.loadSlot(0, newBucketID))
	slot := idx.cache.Slot(0)
	v := record.At(slot.Buf, idx.layout, 0)
	require.Equal(t, record.InUse, v.Status(), "key 2 must have reclaimed the new bucket's primary slot, not its overflow file")
	require.Equal(t, u32key(2), v.Key())
	require.Equal(t, u32key(200), v.Value())

	out := make([]byte, 4)
	require.NoError(t, idx.Query(u32key(0), out))
	require.Equal(t, uint32(100), binary.LittleEndian.Uint32(out))
	require.NoError(t, idx.Query(u32key(2), out))
	require.Equal(t, uint32(200), binary.LittleEndian.Uint32(out))
}
