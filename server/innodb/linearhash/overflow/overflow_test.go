package overflow

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/lhindex/server/innodb/linearhash/record"
)

var layout = record.Layout{KeySize: 4, ValueSize: 4}

func key(n int) []byte {
	return []byte{0, 0, 0, byte(n)}
}

func byteCmp(a, b []byte) int {
	return bytes.Compare(a, b)
}

func TestOpenMissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "missing.ovf"), layout, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertNextUnordered(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1_0.ovf")

	f, err := Create(path, layout, nil)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Insert(key(1), key(10)))
	require.NoError(t, f.Insert(key(2), key(20)))
	require.NoError(t, f.Insert(key(3), key(30)))

	f.Reset()
	out := make([]byte, layout.Size())
	var seen [][]byte
	for {
		err := f.Next(out)
		if err == ErrNotFound {
			break
		}
		require.NoError(t, err)
		v := record.NewView(append([]byte{}, out...), layout)
		seen = append(seen, append([]byte{}, v.Key()...))
	}
	assert.Equal(t, [][]byte{key(1), key(2), key(3)}, seen)
}

func TestInsertOrderedMaintainsKeyOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1_1.ovf")

	f, err := Create(path, layout, byteCmp)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Insert(key(5), key(50)))
	require.NoError(t, f.Insert(key(1), key(10)))
	require.NoError(t, f.Insert(key(3), key(30)))

	f.Reset()
	out := make([]byte, layout.Size())
	var seen []byte
	for {
		err := f.Next(out)
		if err == ErrNotFound {
			break
		}
		require.NoError(t, err)
		v := record.NewView(append([]byte{}, out...), layout)
		seen = append(seen, v.Key()[3])
	}
	assert.Equal(t, []byte{1, 3, 5}, seen)
}

func TestRemoveTombstonesWithoutCompacting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1_2.ovf")

	f, err := Create(path, layout, nil)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Insert(key(1), key(10)))
	require.NoError(t, f.Insert(key(2), key(20)))

	out := make([]byte, layout.Size())
	require.NoError(t, f.Next(out)) // yields key(1)
	require.NoError(t, f.Remove())

	f.Reset()
	require.NoError(t, f.Next(out)) // key(1) is now a tombstone, skipped
	v := record.NewView(out, layout)
	assert.Equal(t, key(2), v.Key())

	assert.ErrorIs(t, f.Next(out), ErrNotFound)
}
