// Package linearhash is a disk-resident Linear Hash index (Litwin's
// scheme) for embedded/flash-backed key-value storage: growth proceeds
// one bucket at a time, driven by a moving split pointer, with a
// per-bucket overflow chain absorbing what a fixed-size primary page
// can't hold.
//
// This file is the operation engine (spec.md §4.6): Initialise/Close/
// Destroy and Insert/Update/Query/Delete, composed from the hash
// engine, the page cache, and the overflow file. Grounded on
// original_source's ion_linear_hash_insert/query/delete and on the
// teacher's storage-engine shape (a long-lived main file handle plus
// per-operation overflow handles, as in storage/store/blocks.BlockFile).
package linearhash

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/zhukovaskychina/lhindex/logger"
	"github.com/zhukovaskychina/lhindex/server/conf"
	"github.com/zhukovaskychina/lhindex/server/innodb/linearhash/cache"
	"github.com/zhukovaskychina/lhindex/server/innodb/linearhash/hashfn"
	"github.com/zhukovaskychina/lhindex/server/innodb/linearhash/overflow"
	"github.com/zhukovaskychina/lhindex/server/innodb/linearhash/pagefile"
	"github.com/zhukovaskychina/lhindex/server/innodb/linearhash/record"
)

// globOverflowFiles enumerates a map's overflow files by directory
// listing rather than walking [0, bucketCount) (DESIGN.md Open
// Question #1): destroy must not miss overflow files left behind by
// buckets a caller already split away from, and a glob over the
// id-prefixed pattern finds exactly the files this map ever created
// regardless of current bucket count.
func globOverflowFiles(dir string, id int) ([]string, error) {
	pattern := filepath.Join(dir, fmt.Sprintf("%d_*.ovf", id))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "linearhash: glob %s", pattern)
	}
	return matches, nil
}

// KeyType and its values are re-exported from hashfn for callers that
// only need the index package.
type KeyType = hashfn.KeyType

const (
	KeyInt        = hashfn.KeyInt
	KeySignedInt  = hashfn.KeySignedInt
	KeyByteString = hashfn.KeyByteString
)

// WriteConcern selects Insert's behaviour when a key already exists
// (spec.md §3, §4.6).
type WriteConcern int

const (
	// InsertUnique rejects an insert whose key already has a live
	// record with ErrDuplicateKey.
	InsertUnique WriteConcern = iota
	// UpdateOrInsert overwrites the value in place if the key exists,
	// otherwise inserts.
	UpdateOrInsert
)

// Config is everything Initialise needs to create or reopen a map
// (spec.md §6's "initialise" parameters plus the directory a caller's
// dictionary facade would otherwise own).
type Config struct {
	ID               int
	KeyType          KeyType
	KeySize          int
	ValueSize        int
	InitialSize      uint32 // N0, must be a power of two >= 2
	RecordsPerBucket int
	MixFunc          hashfn.MixFunc // only consulted when KeyType == KeyByteString
	Dir              string         // directory for the main file and overflow files
	CacheSlots       int            // >= 2; defaults to 2 if 0
}

// Stats reports the counters original_source's test harness used to
// assert §8's testable properties 5 and 6 (SPEC_FULL.md SUPPLEMENTED
// FEATURES #1).
type Stats struct {
	Buckets      uint32
	Level        int
	SplitPointer uint32
	Records      int64

	// LastInsertUsedOverflow reports whether the most recent Insert/
	// Update had to spill into the overflow chain, so a caller can
	// implement a "split after any insert that touched overflow"
	// policy without the index forcing one (DESIGN.md Open Question 3).
	LastInsertUsedOverflow bool
}

// Index is one open linear hash map.
type Index struct {
	cfg    Config
	dirCfg *conf.Cfg
	layout record.Layout

	engine *hashfn.Engine
	file   *pagefile.File
	cache  *cache.Cache

	level        int
	p            uint32
	writeConcern WriteConcern
	records      int64
	lastOverflow bool

	comparator overflow.Comparator
}

func isPowerOfTwoGEQ2(n uint32) bool {
	return n >= 2 && bits.OnesCount32(n) == 1
}

// Initialise creates a map's main file, or opens an existing one without
// truncating it. When the file holds no pages yet it pre-writes
// InitialSize all-EMPTY primary pages (SPEC_FULL.md SUPPLEMENTED
// FEATURES #3); an existing file's pages are left as they are. The
// level, split pointer and record count always start at zero; they are
// not read back from the file.
func Initialise(cfg Config) (*Index, error) {
	if !isPowerOfTwoGEQ2(cfg.InitialSize) {
		return nil, NewError("initialise", ErrInvalidInitialSize)
	}
	if cfg.RecordsPerBucket <= 0 {
		cfg.RecordsPerBucket = 1
	}
	if cfg.CacheSlots < 2 {
		cfg.CacheSlots = 2
	}

	dirCfg := conf.NewCfg()
	dirCfg.OverflowDir = cfg.Dir
	if dirCfg.OverflowDir == "" {
		dirCfg.OverflowDir = "."
	}

	layout := record.Layout{KeySize: cfg.KeySize, ValueSize: cfg.ValueSize}
	bucketBytes := layout.Size() * cfg.RecordsPerBucket

	file, err := pagefile.Open(dirCfg.MainPath(cfg.ID), bucketBytes)
	if err != nil {
		return nil, NewError("initialise", errors.Wrap(ErrFileWrite, err.Error()))
	}

	existing, err := file.BucketCount()
	if err != nil {
		return nil, NewError("initialise", err)
	}

	idx := &Index{
		cfg:          cfg,
		dirCfg:       dirCfg,
		layout:       layout,
		engine:       hashfn.New(cfg.KeyType, cfg.InitialSize, cfg.MixFunc),
		file:         file,
		cache:        cache.New(file, bucketBytes, cfg.CacheSlots),
		level:        0,
		p:            0,
		writeConcern: InsertUnique,
	}
	idx.comparator = idx.buildComparator()

	if existing == 0 {
		empty := record.NewEmptyPage(layout, cfg.RecordsPerBucket)
		for i := uint32(0); i < cfg.InitialSize; i++ {
			if _, err := file.AppendBucket(empty); err != nil {
				return nil, NewError("initialise", errors.Wrap(ErrFileWrite, err.Error()))
			}
		}
		logger.Infof("linearhash: initialised map %d with %d buckets", cfg.ID, cfg.InitialSize)
	}

	return idx, nil
}

// buildComparator orders two keys for the overflow chain and the
// cursor engine's range scans (spec.md §4.2, §4.7). Byte-string keys
// compare lexicographically. Integer keys are stored little-endian
// (matching the hash engine's raw host-endian read, see hashfn.go), so
// a byte-wise compare would not agree with numeric magnitude — it must
// decode and compare as unsigned integers instead.
func (idx *Index) buildComparator() overflow.Comparator {
	if idx.cfg.KeyType == KeyByteString {
		return bytes.Compare
	}
	return func(a, b []byte) int {
		av, bv := littleEndianUint(a), littleEndianUint(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	}
}

// littleEndianUint decodes up to 8 bytes of key as a little-endian
// unsigned integer, zero-extending shorter keys, mirroring hashfn's
// rawHostUint so comparison and hashing agree on the same bit pattern.
func littleEndianUint(key []byte) uint64 {
	var buf [8]byte
	n := len(key)
	if n > 8 {
		n = 8
	}
	copy(buf[:n], key[:n])
	return binary.LittleEndian.Uint64(buf[:])
}

// Close releases the main file handle.
func (idx *Index) Close() error {
	if err := idx.file.Close(); err != nil {
		return NewError("close", errors.Wrap(ErrFileClose, err.Error()))
	}
	return nil
}

// Destroy removes the main file and every overflow file for this map's
// id, enumerated by directory listing rather than bucket-id range
// (DESIGN.md Open Question #1). Best-effort: it keeps going after an
// individual failure and returns the last error encountered.
func (idx *Index) Destroy() error {
	var lastErr error

	matches, err := globOverflowFiles(idx.dirCfg.OverflowDir, idx.cfg.ID)
	if err != nil {
		lastErr = err
	}
	for _, m := range matches {
		if err := overflow.Remove(m); err != nil {
			logger.Errorf("linearhash: destroy: %v", err)
			lastErr = err
		}
	}

	_ = idx.file.Close()
	if err := pagefile.Remove(idx.dirCfg.MainPath(idx.cfg.ID)); err != nil {
		logger.Errorf("linearhash: destroy: %v", err)
		lastErr = err
	}

	if lastErr != nil {
		return NewError("destroy", errors.Wrap(ErrDestruction, lastErr.Error()))
	}
	return nil
}

// SetWriteConcern changes the write concern used by future Inserts
// (SPEC_FULL.md SUPPLEMENTED FEATURES #5).
func (idx *Index) SetWriteConcern(wc WriteConcern) {
	idx.writeConcern = wc
}

// Stats reports the map's current size/level/records counters.
func (idx *Index) Stats() Stats {
	return Stats{
		Buckets:                idx.bucketCount(),
		Level:                  idx.level,
		SplitPointer:           idx.p,
		Records:                idx.records,
		LastInsertUsedOverflow: idx.lastOverflow,
	}
}

func (idx *Index) bucketCount() uint32 {
	return idx.cfg.InitialSize<<uint(idx.level) + idx.p
}

// bucketFor resolves key to its current bucket id via the hash engine
// (spec.md §4.4).
func (idx *Index) bucketFor(key []byte) uint32 {
	low, high := idx.engine.HashPair(key, idx.level)
	return hashfn.ResolveBucket(low, high, idx.p)
}

// loadSlot loads bucketID into cache slot i, translating the cache's
// own allocation-failure sentinel into the surfaced ErrOutOfMemory
// (spec.md §7).
func (idx *Index) loadSlot(i int, bucketID uint32) error {
	if err := idx.cache.Load(i, bucketID); err != nil {
		if errors.Is(err, cache.ErrOutOfMemory) {
			return errors.Wrap(ErrOutOfMemory, err.Error())
		}
		return err
	}
	return nil
}

func (idx *Index) overflowPath(bucket uint32) string {
	return idx.dirCfg.OverflowPath(idx.cfg.ID, bucket)
}

func (idx *Index) openOverflow(bucket uint32, createIfMissing bool) (*overflow.File, error) {
	f, err := overflow.Open(idx.overflowPath(bucket), idx.layout, idx.comparator)
	if err == overflow.ErrNotFound {
		if !createIfMissing {
			return nil, nil
		}
		f, err = overflow.Create(idx.overflowPath(bucket), idx.layout, idx.comparator)
		if err != nil {
			return nil, NewError("overflow", err)
		}
		return f, nil
	}
	if err != nil {
		return nil, NewError("overflow", err)
	}
	return f, nil
}

// Insert writes (key, value) under the index's current write concern
// (spec.md §4.6).
func (idx *Index) Insert(key, value []byte) error {
	return idx.insert(key, value)
}

// Update temporarily elevates write concern to update-or-insert,
// performs the insert, and restores the prior concern (spec.md §4.6).
func (idx *Index) Update(key, value []byte) error {
	prior := idx.writeConcern
	idx.writeConcern = UpdateOrInsert
	err := idx.insert(key, value)
	idx.writeConcern = prior
	return err
}

func (idx *Index) insert(key, value []byte) error {
	idx.lastOverflow = false
	bucket := idx.bucketFor(key)
	if err := idx.loadSlot(0, bucket); err != nil {
		return NewError("insert", err)
	}
	slot := idx.cache.Slot(0)

	freeIdx := -1
	for i := 0; i < idx.cfg.RecordsPerBucket; i++ {
		v := record.At(slot.Buf, idx.layout, i)
		switch v.Status() {
		case record.InUse:
			if bytes.Equal(v.Key(), key) {
				if idx.writeConcern == UpdateOrInsert {
					copy(v.Value(), value)
					if _, err := idx.cache.Flush(0, cache.KeepMemory); err != nil {
						return NewError("insert", err)
					}
					return nil
				}
				return NewError("insert", ErrDuplicateKey)
			}
		case record.Empty, record.Deleted:
			if freeIdx == -1 {
				freeIdx = i
			}
		}
	}

	// Primary page has no duplicate. Promote insert-unique to scan the
	// full chain (spec.md §4.6) so the at-most-one-live-slot invariant
	// holds even once records have spilled to overflow.
	ovf, err := idx.openOverflow(bucket, false)
	if err != nil {
		return NewError("insert", err)
	}
	if ovf != nil {
		defer ovf.Close()
		ovf.Reset()
		buf := make([]byte, idx.layout.Size())
		for {
			nerr := ovf.Next(buf)
			if nerr == overflow.ErrNotFound {
				break
			}
			if nerr != nil {
				return NewError("insert", nerr)
			}
			v := record.NewView(buf, idx.layout)
			if bytes.Equal(v.Key(), key) {
				idx.lastOverflow = true
				if idx.writeConcern == UpdateOrInsert {
					if err := ovf.UpdateValue(value); err != nil {
						return NewError("insert", err)
					}
					return nil
				}
				return NewError("insert", ErrDuplicateKey)
			}
		}
	}

	if freeIdx != -1 {
		record.At(slot.Buf, idx.layout, freeIdx).Put(record.InUse, key, value)
		if _, err := idx.cache.Flush(0, cache.KeepMemory); err != nil {
			return NewError("insert", err)
		}
		idx.records++
		return nil
	}

	if ovf == nil {
		ovf, err = idx.openOverflow(bucket, true)
		if err != nil {
			return NewError("insert", err)
		}
		defer ovf.Close()
	}
	if err := ovf.Insert(key, value); err != nil {
		return NewError("insert", errors.Wrap(ErrUnableToInsert, err.Error()))
	}
	idx.lastOverflow = true
	idx.records++
	logger.Debugf("linearhash: bucket %d overflowed on insert", bucket)
	return nil
}

// Query looks up key and copies its value into out (which must be
// ValueSize bytes), or returns ErrItemNotFound (spec.md §4.6).
//
// The primary-page scan stops at the first EMPTY slot without
// consulting overflow: inserts always fill the lowest non-IN_USE slot
// first, so once a page has ever spilled to overflow it can never
// regain an EMPTY slot (deletes leave DELETED tombstones, not EMPTY) —
// an EMPTY slot is therefore proof the key was never in this bucket.
func (idx *Index) Query(key, out []byte) error {
	bucket := idx.bucketFor(key)
	if err := idx.loadSlot(0, bucket); err != nil {
		return NewError("query", err)
	}
	slot := idx.cache.Slot(0)

	for i := 0; i < idx.cfg.RecordsPerBucket; i++ {
		v := record.At(slot.Buf, idx.layout, i)
		switch v.Status() {
		case record.Empty:
			return NewError("query", ErrItemNotFound)
		case record.InUse:
			if bytes.Equal(v.Key(), key) {
				copy(out, v.Value())
				return nil
			}
		}
	}

	ovf, err := idx.openOverflow(bucket, false)
	if err != nil {
		return NewError("query", err)
	}
	if ovf == nil {
		return NewError("query", ErrItemNotFound)
	}
	defer ovf.Close()
	ovf.Reset()
	buf := make([]byte, idx.layout.Size())
	for {
		nerr := ovf.Next(buf)
		if nerr == overflow.ErrNotFound {
			return NewError("query", ErrItemNotFound)
		}
		if nerr != nil {
			return NewError("query", nerr)
		}
		v := record.NewView(buf, idx.layout)
		switch c := idx.comparator(v.Key(), key); {
		case c == 0:
			copy(out, v.Value())
			return nil
		case c > 0:
			return NewError("query", ErrItemNotFound) // passed the key in an ordered chain
		}
	}
}

// Delete tombstones every live record matching key in the primary page
// and removes every matching overflow node, returning the number
// removed (0 surfaces as ErrItemNotFound, spec.md §4.6).
func (idx *Index) Delete(key []byte) (int, error) {
	bucket := idx.bucketFor(key)
	if err := idx.loadSlot(0, bucket); err != nil {
		return 0, NewError("delete", err)
	}
	slot := idx.cache.Slot(0)

	removed := 0
	for i := 0; i < idx.cfg.RecordsPerBucket; i++ {
		v := record.At(slot.Buf, idx.layout, i)
		if v.Status() == record.InUse && bytes.Equal(v.Key(), key) {
			v.SetStatus(record.Deleted)
			removed++
		}
	}
	if removed > 0 {
		if _, err := idx.cache.Flush(0, cache.KeepMemory); err != nil {
			return removed, NewError("delete", err)
		}
	}

	ovf, err := idx.openOverflow(bucket, false)
	if err != nil {
		return removed, NewError("delete", err)
	}
	if ovf != nil {
		defer ovf.Close()
		ovf.Reset()
		buf := make([]byte, idx.layout.Size())
		for {
			nerr := ovf.Next(buf)
			if nerr == overflow.ErrNotFound {
				break
			}
			if nerr != nil {
				return removed, NewError("delete", nerr)
			}
			v := record.NewView(buf, idx.layout)
			if bytes.Equal(v.Key(), key) {
				if err := ovf.Remove(); err != nil {
					return removed, NewError("delete", err)
				}
				removed++
			}
		}
	}

	idx.records -= int64(removed)
	if removed == 0 {
		return 0, NewError("delete", ErrItemNotFound)
	}
	return removed, nil
}
