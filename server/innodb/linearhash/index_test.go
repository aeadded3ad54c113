package linearhash

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertQueryRoundTrip(t *testing.T) {
	idx := newTestIndex(t, 4)

	require.NoError(t, idx.Insert(u32key(1), u32key(100)))

	out := make([]byte, 4)
	require.NoError(t, idx.Query(u32key(1), out))
	assert.Equal(t, uint32(100), binary.LittleEndian.Uint32(out))
}

// TestInsertUniqueRejectsDuplicate covers testable property 3.
func TestInsertUniqueRejectsDuplicate(t *testing.T) {
	idx := newTestIndex(t, 4)

	require.NoError(t, idx.Insert(u32key(1), u32key(100)))
	err := idx.Insert(u32key(1), u32key(200))
	assert.True(t, IsDuplicate(err))
}

// TestInsertUniqueRejectsDuplicateInOverflow proves the duplicate scan
// is promoted to the full chain, not just the primary page.
func TestInsertUniqueRejectsDuplicateInOverflow(t *testing.T) {
	idx := newTestIndex(t, 1)

	require.NoError(t, idx.Insert(u32key(1), u32key(100)))
	require.NoError(t, idx.Insert(u32key(3), u32key(300))) // same bucket, spills to overflow

	err := idx.Insert(u32key(3), u32key(999))
	assert.True(t, IsDuplicate(err))
}

func TestUpdateOverwritesPrimaryAndOverflow(t *testing.T) {
	idx := newTestIndex(t, 1)
	require.NoError(t, idx.Insert(u32key(1), u32key(100)))
	require.NoError(t, idx.Insert(u32key(3), u32key(300)))

	require.NoError(t, idx.Update(u32key(1), u32key(111)))
	require.NoError(t, idx.Update(u32key(3), u32key(333)))

	out := make([]byte, 4)
	require.NoError(t, idx.Query(u32key(1), out))
	assert.Equal(t, uint32(111), binary.LittleEndian.Uint32(out))
	require.NoError(t, idx.Query(u32key(3), out))
	assert.Equal(t, uint32(333), binary.LittleEndian.Uint32(out))
}

func TestUpdateInsertsWhenAbsent(t *testing.T) {
	idx := newTestIndex(t, 4)
	require.NoError(t, idx.Update(u32key(5), u32key(500)))

	out := make([]byte, 4)
	require.NoError(t, idx.Query(u32key(5), out))
	assert.Equal(t, uint32(500), binary.LittleEndian.Uint32(out))
}

func TestQueryMissingKeyNotFound(t *testing.T) {
	idx := newTestIndex(t, 4)
	out := make([]byte, 4)
	err := idx.Query(u32key(42), out)
	assert.True(t, IsNotFound(err))
}

func TestDeleteTombstonesAndReportsCount(t *testing.T) {
	idx := newTestIndex(t, 4)
	require.NoError(t, idx.Insert(u32key(7), u32key(70)))

	n, err := idx.Delete(u32key(7))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out := make([]byte, 4)
	assert.True(t, IsNotFound(idx.Query(u32key(7), out)))
}

func TestDeleteMissingKeyNotFound(t *testing.T) {
	idx := newTestIndex(t, 4)
	_, err := idx.Delete(u32key(9))
	assert.True(t, IsNotFound(err))
}

func TestDeleteFromOverflowChain(t *testing.T) {
	idx := newTestIndex(t, 1)
	require.NoError(t, idx.Insert(u32key(1), u32key(100)))
	require.NoError(t, idx.Insert(u32key(3), u32key(300)))

	n, err := idx.Delete(u32key(3))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out := make([]byte, 4)
	assert.True(t, IsNotFound(idx.Query(u32key(3), out)))
	require.NoError(t, idx.Query(u32key(1), out))
}

func TestStatsReportsOverflowUsage(t *testing.T) {
	idx := newTestIndex(t, 1)
	require.NoError(t, idx.Insert(u32key(1), u32key(100)))
	assert.False(t, idx.Stats().LastInsertUsedOverflow)

	require.NoError(t, idx.Insert(u32key(3), u32key(300)))
	assert.True(t, idx.Stats().LastInsertUsedOverflow)
}

func TestDestroyRemovesMainAndOverflowFiles(t *testing.T) {
	dir := t.TempDir()
	idx, err := Initialise(Config{
		ID:               2,
		KeyType:          KeyInt,
		KeySize:          4,
		ValueSize:        4,
		InitialSize:      2,
		RecordsPerBucket: 1,
		Dir:              dir,
	})
	require.NoError(t, err)

	require.NoError(t, idx.Insert(u32key(1), u32key(100)))
	require.NoError(t, idx.Insert(u32key(3), u32key(300))) // overflow file created

	matches, err := filepath.Glob(filepath.Join(dir, "2_*.ovf"))
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	require.NoError(t, idx.Destroy())

	_, err = os.Stat(filepath.Join(dir, "2_lh_main.bin"))
	assert.True(t, os.IsNotExist(err))
	matches, err = filepath.Glob(filepath.Join(dir, "2_*.ovf"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestInitialiseRejectsNonPowerOfTwo(t *testing.T) {
	_, err := Initialise(Config{
		ID:               3,
		KeyType:          KeyInt,
		KeySize:          4,
		ValueSize:        4,
		InitialSize:      3,
		RecordsPerBucket: 4,
		Dir:              t.TempDir(),
	})
	assert.Error(t, err)
}
