package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/lhindex/server/innodb/linearhash/pagefile"
)

func TestLoadFlushRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pf, err := pagefile.Open(filepath.Join(dir, "1_lh_main.bin"), 8)
	require.NoError(t, err)
	defer pf.Close()

	_, err = pf.AppendBucket(make([]byte, 8))
	require.NoError(t, err)

	c := New(pf, 8, 2)
	require.NoError(t, c.Load(0, 0))
	copy(c.Slot(0).Buf, []byte{1, 2, 3, 4, 5, 6, 7, 8})

	_, err = c.Flush(0, KeepMemory)
	require.NoError(t, err)
	assert.Equal(t, Flushed, c.Slot(0).State)

	buf := make([]byte, 8)
	require.NoError(t, pf.ReadBucket(0, buf))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, buf)
}

func TestLoadNoopWhenSameBucketActive(t *testing.T) {
	dir := t.TempDir()
	pf, err := pagefile.Open(filepath.Join(dir, "1_lh_main.bin"), 4)
	require.NoError(t, err)
	defer pf.Close()
	_, _ = pf.AppendBucket(make([]byte, 4))

	c := New(pf, 4, 1)
	require.NoError(t, c.Load(0, 0))
	c.Slot(0).Buf[0] = 42
	require.NoError(t, c.Load(0, 0)) // same bucket, must not re-read and clobber
	assert.Equal(t, byte(42), c.Slot(0).Buf[0])
}

func TestUnboundMaterialisesNewPage(t *testing.T) {
	dir := t.TempDir()
	pf, err := pagefile.Open(filepath.Join(dir, "1_lh_main.bin"), 4)
	require.NoError(t, err)
	defer pf.Close()
	_, _ = pf.AppendBucket(make([]byte, 4))

	c := New(pf, 4, 2)
	require.NoError(t, c.Load(1, Unbound))
	copy(c.Slot(1).Buf, []byte{9, 9, 9, 9})
	newID, err := c.Flush(1, KeepMemory)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), newID)

	count, err := pf.BucketCount()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), count)
}
