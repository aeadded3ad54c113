// Package overflow implements the per-bucket overflow list file
// (spec.md §4.2): a flat, append-biased sequence of fixed-width
// records holding whatever didn't fit in a bucket's primary page.
//
// Grounded on the teacher's storebytes/blocks.BlockFile open/create
// shape, generalised from one 16KB-page-per-file layout to a flat
// run of record.Layout-sized nodes, and on original_source's
// fll_open/fll_create/fll_reset/fll_next/fll_remove/fll_insert walk
// (no backward-pointer tricks, see DESIGN.md Open Question #2).
package overflow

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/zhukovaskychina/lhindex/server/innodb/linearhash/record"
)

// Comparator orders two keys: negative if a < b, zero if equal,
// positive if a > b. A nil Comparator means the file is unordered —
// insert always appends, and next() yields physical order. The index
// always supplies its comparator, including for the chains a split
// writes, so its chains stay key-ordered.
type Comparator func(a, b []byte) int

// ErrNotFound is returned by Open when the file doesn't exist, and by
// Next when the scan is exhausted.
var ErrNotFound = errors.New("overflow: not found")

// File is one bucket's overflow chain.
type File struct {
	osFile     *os.File
	layout     record.Layout
	comparator Comparator

	cursor      int64 // next physical node index to examine
	lastYielded int64
	hasLast     bool
}

// Open opens an existing overflow file, or ErrNotFound if none exists.
func Open(path string, layout record.Layout, cmp Comparator) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "overflow: stat %s", path)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "overflow: open %s", path)
	}
	return &File{osFile: f, layout: layout, comparator: cmp}, nil
}

// Create creates a new, empty overflow file at path, truncating any
// prior content.
func Create(path string, layout record.Layout, cmp Comparator) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "overflow: create %s", path)
	}
	return &File{osFile: f, layout: layout, comparator: cmp}, nil
}

// Close releases the file handle.
func (f *File) Close() error {
	if f.osFile == nil {
		return nil
	}
	err := f.osFile.Close()
	f.osFile = nil
	if err != nil {
		return errors.Wrap(err, "overflow: close")
	}
	return nil
}

// Reset rewinds the scan cursor to the first node.
func (f *File) Reset() {
	f.cursor = 0
	f.hasLast = false
}

func (f *File) nodeCount() (int64, error) {
	stat, err := f.osFile.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "overflow: stat")
	}
	return stat.Size() / int64(f.layout.Size()), nil
}

func (f *File) readNode(idx int64) (record.View, error) {
	buf := make([]byte, f.layout.Size())
	_, err := f.osFile.ReadAt(buf, idx*int64(f.layout.Size()))
	if err != nil {
		return record.View{}, err
	}
	return record.NewView(buf, f.layout), nil
}

// Next reads the next live (IN_USE) node into out, which must be
// layout.Size() bytes, skipping tombstones left by Remove. Returns
// ErrNotFound at end of file.
func (f *File) Next(out []byte) error {
	count, err := f.nodeCount()
	if err != nil {
		return err
	}
	for f.cursor < count {
		idx := f.cursor
		f.cursor++
		v, err := f.readNode(idx)
		if err != nil {
			return errors.Wrap(err, "overflow: read")
		}
		if v.Status() == record.InUse {
			copy(out, v.Bytes())
			f.lastYielded = idx
			f.hasLast = true
			return nil
		}
	}
	f.hasLast = false
	return ErrNotFound
}

// UpdateValue overwrites the value bytes of the node most recently
// yielded by Next, in place, leaving its key and status untouched.
func (f *File) UpdateValue(value []byte) error {
	if !f.hasLast {
		return errors.New("overflow: update without a preceding next")
	}
	size := f.layout.Size()
	offset := f.lastYielded*int64(size) + 1 + int64(f.layout.KeySize)
	if _, err := f.osFile.WriteAt(value, offset); err != nil {
		return errors.Wrap(err, "overflow: update value")
	}
	return nil
}

// Remove marks the node most recently yielded by Next as DELETED,
// without compacting the file.
func (f *File) Remove() error {
	if !f.hasLast {
		return errors.New("overflow: remove without a preceding next")
	}
	tomb := []byte{byte(record.Deleted)}
	_, err := f.osFile.WriteAt(tomb, f.lastYielded*int64(f.layout.Size()))
	if err != nil {
		return errors.Wrap(err, "overflow: remove")
	}
	return nil
}

// Insert appends a new IN_USE node holding (key, value). If the file
// was opened/created with a Comparator, the node is inserted at its
// sorted position instead (shifting the physical tail by one slot),
// so that Next continues to yield nodes in key order.
func (f *File) Insert(key, value []byte) error {
	size := f.layout.Size()
	node := make([]byte, size)
	record.NewView(node, f.layout).Put(record.InUse, key, value)

	if f.comparator == nil {
		return f.appendAt(node, -1)
	}

	pos, err := f.findInsertPos(key)
	if err != nil {
		return err
	}
	return f.appendAt(node, pos)
}

// findInsertPos returns the physical node index before which node
// should be inserted to keep live keys in ascending order, or -1 to
// append at EOF.
func (f *File) findInsertPos(key []byte) (int64, error) {
	count, err := f.nodeCount()
	if err != nil {
		return -1, err
	}
	for idx := int64(0); idx < count; idx++ {
		v, err := f.readNode(idx)
		if err != nil {
			return -1, errors.Wrap(err, "overflow: scan for insert position")
		}
		if v.Status() != record.InUse {
			continue
		}
		if f.comparator(v.Key(), key) > 0 {
			return idx, nil
		}
	}
	return -1, nil
}

// appendAt writes node at physical index pos, shifting the existing
// tail (pos..end) forward by one slot; pos < 0 means "append at EOF".
func (f *File) appendAt(node []byte, pos int64) error {
	size := int64(f.layout.Size())

	if pos < 0 {
		stat, err := f.osFile.Stat()
		if err != nil {
			return errors.Wrap(err, "overflow: stat")
		}
		if _, err := f.osFile.WriteAt(node, stat.Size()); err != nil {
			return errors.Wrap(err, "overflow: append")
		}
		return nil
	}

	offset := pos * size
	tail, err := io.ReadAll(io.NewSectionReader(f.osFile, offset, 1<<62))
	if err != nil {
		return errors.Wrap(err, "overflow: read tail")
	}
	if _, err := f.osFile.WriteAt(node, offset); err != nil {
		return errors.Wrap(err, "overflow: insert")
	}
	if len(tail) > 0 {
		if _, err := f.osFile.WriteAt(tail, offset+size); err != nil {
			return errors.Wrap(err, "overflow: shift tail")
		}
	}
	return nil
}

// Remove deletes the overflow file at path entirely (used by Destroy,
// not by the Remove-node-at-cursor operation above).
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "overflow: remove file %s", path)
	}
	return nil
}
