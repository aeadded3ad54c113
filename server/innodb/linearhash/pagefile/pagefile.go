// Package pagefile is the main-file I/O layer: a flat sequence of
// fixed-size bucket pages, addressed by bucket id (spec.md §6's
// "<id>_lh_main.bin" layout). It is grounded on the teacher's
// storage/store/blocks.BlockFile shape (open/create, ReadAt/WriteAt)
// adapted from 16KB InnoDB pages to the index's bucketBytes. There is
// no Sync method.
package pagefile

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/zhukovaskychina/lhindex/logger"
)

// File is the main data file holding every bucket's primary page,
// contiguous and in ascending bucket-id order.
type File struct {
	mu         sync.RWMutex
	osFile     *os.File
	path       string
	bucketSize int64
}

// Open opens (creating if necessary) the main file at path for pages
// of bucketSize bytes each.
func Open(path string, bucketSize int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "pagefile: open %s", path)
	}
	return &File{osFile: f, path: path, bucketSize: int64(bucketSize)}, nil
}

// Close releases the underlying file handle.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.osFile == nil {
		return nil
	}
	err := f.osFile.Close()
	f.osFile = nil
	if err != nil {
		return errors.Wrap(err, "pagefile: close")
	}
	return nil
}

// AppendBucket writes a brand-new page at the end of the file and
// returns the bucket id it now occupies (offset / bucketSize). Used
// both by Initialise's up-front page pre-write and by the split
// engine materialising the new upper bucket (spec.md §4.3 "appends at
// end of file").
func (f *File) AppendBucket(page []byte) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stat, err := f.osFile.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "pagefile: stat")
	}
	bucketID := uint32(stat.Size() / f.bucketSize)

	n, err := f.osFile.WriteAt(page, stat.Size())
	if err != nil {
		return 0, errors.Wrap(err, "pagefile: append")
	}
	if int64(n) != f.bucketSize {
		logger.Errorf("pagefile: short append of bucket %d (%d/%d bytes)", bucketID, n, f.bucketSize)
		return 0, errors.Wrap(ErrShortWrite, "pagefile: append")
	}
	return bucketID, nil
}

// ReadBucket reads the primary page for bucketID into buf, which must
// be exactly bucketSize bytes.
func (f *File) ReadBucket(bucketID uint32, buf []byte) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	offset := int64(bucketID) * f.bucketSize
	n, err := f.osFile.ReadAt(buf, offset)
	if err != nil {
		return errors.Wrapf(err, "pagefile: read bucket %d", bucketID)
	}
	if int64(n) != f.bucketSize {
		return errors.Wrapf(ErrShortRead, "pagefile: read bucket %d", bucketID)
	}
	return nil
}

// WriteBucket writes buf back to the primary page for bucketID.
func (f *File) WriteBucket(bucketID uint32, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	offset := int64(bucketID) * f.bucketSize
	n, err := f.osFile.WriteAt(buf, offset)
	if err != nil {
		return errors.Wrapf(err, "pagefile: write bucket %d", bucketID)
	}
	if int64(n) != f.bucketSize {
		return errors.Wrapf(ErrShortWrite, "pagefile: write bucket %d", bucketID)
	}
	return nil
}

// BucketCount returns how many whole buckets currently exist on disk.
func (f *File) BucketCount() (uint32, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stat, err := f.osFile.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "pagefile: stat")
	}
	return uint32(stat.Size() / f.bucketSize), nil
}

// Remove deletes the file at path; a missing file is not an error. It
// does not close any open File handle.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "pagefile: remove %s", path)
	}
	return nil
}
