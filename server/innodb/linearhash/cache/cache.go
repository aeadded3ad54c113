// Package cache implements the single/multi-slot page cache (spec.md
// §4.3): a small, fixed number of explicitly-addressed buffer slots,
// each holding one primary page. Unlike an associative LRU, the caller
// names the slot it wants (slot 0 = lower bucket, slot 1 = upper/new
// bucket during a split) — this is what lets the split engine hold two
// pages live at once without pinning logic.
//
// Grounded on the teacher's buffer_pool.BufferPage slot-state shape
// (invalid/flushed/active ~ the teacher's page states), deliberately
// simplified away from its LRU/associative addressing per design note
// §9 and spec.md §4.3's explicit requirement.
package cache

import (
	"github.com/pkg/errors"
	"github.com/zhukovaskychina/lhindex/logger"
	"github.com/zhukovaskychina/lhindex/server/innodb/linearhash/pagefile"
)

// State is a cache slot's relationship to the on-disk page it names.
type State int

const (
	// Invalid means the slot has no buffer allocated.
	Invalid State = iota
	// Flushed means a buffer exists but its contents are stale.
	Flushed
	// Active means the buffer's contents are authoritative for BucketID.
	Active
)

// Unbound is the sentinel bucket id requesting an empty buffer
// destined to become a new page on Flush (spec.md §4.3).
const Unbound uint32 = 0xFFFFFFFF

// ErrOutOfMemory is returned when a slot buffer could not be allocated
// (spec.md §7's "Resource: out-of-memory for cache allocation").
var ErrOutOfMemory = errors.New("cache: out of memory allocating slot buffer")

// FlushMode controls what Flush does to a slot's buffer afterward.
type FlushMode int

const (
	// KeepMemory transitions the slot to Flushed: buffer kept, marked stale.
	KeepMemory FlushMode = iota
	// ReleaseMemory transitions the slot to Invalid: buffer discarded.
	ReleaseMemory
)

// Slot is one explicitly-addressed cache buffer.
type Slot struct {
	BucketID uint32
	State    State
	Buf      []byte
}

// Cache is a fixed array of Slots, backed by one main pagefile.File.
type Cache struct {
	file       *pagefile.File
	bucketSize int
	slots      []Slot
}

// New creates a Cache with n slots (n >= 2 supports splits; n == 1
// supports insert/query/delete per spec.md §4.3).
func New(file *pagefile.File, bucketSize, n int) *Cache {
	return &Cache{file: file, bucketSize: bucketSize, slots: make([]Slot, n)}
}

// Load fills slot i with bucketID's page, per spec.md §4.3's
// no-op/flush-then-read/read-into-existing/allocate-then-read cases.
// bucketID == Unbound allocates a zero-initialised buffer for a new
// page instead of reading from disk.
func (c *Cache) Load(i int, bucketID uint32) error {
	s := &c.slots[i]

	if s.State == Active && s.BucketID == bucketID {
		return nil // already loaded, no-op
	}

	if s.State == Active {
		if err := c.flushSlot(s, KeepMemory); err != nil {
			return errors.Wrap(err, "cache: flush before load")
		}
	}

	if s.Buf == nil {
		buf, err := allocBuffer(c.bucketSize)
		if err != nil {
			return err
		}
		s.Buf = buf
	}

	if bucketID == Unbound {
		for i := range s.Buf {
			s.Buf[i] = 0
		}
		s.BucketID = Unbound
		s.State = Active
		return nil
	}

	if err := c.file.ReadBucket(bucketID, s.Buf); err != nil {
		return errors.Wrapf(err, "cache: load bucket %d into slot %d", bucketID, i)
	}
	s.BucketID = bucketID
	s.State = Active
	return nil
}

// Slot returns a pointer to slot i for direct scanning/mutation by the
// operation/split engines.
func (c *Cache) Slot(i int) *Slot {
	return &c.slots[i]
}

// allocBuffer allocates a slot's buffer, turning a runtime allocation
// failure (a bucketSize the Go runtime can't satisfy, e.g. a corrupt or
// adversarial Config) into ErrOutOfMemory instead of a process-ending
// panic, matching spec.md §7's resource-error taxonomy.
func allocBuffer(n int) (buf []byte, err error) {
	if n <= 0 {
		return nil, errors.Wrapf(ErrOutOfMemory, "cache: invalid slot size %d", n)
	}
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, errors.Wrapf(ErrOutOfMemory, "cache: allocate %d bytes: %v", n, r)
		}
	}()
	return make([]byte, n), nil
}

// Flush writes slot i's buffer back. If the slot names Unbound, this
// appends a new page at EOF (materialising a new bucket) and updates
// the slot's BucketID to the id it was just given.
func (c *Cache) Flush(i int, mode FlushMode) (uint32, error) {
	s := &c.slots[i]
	bucketID, err := c.flushSlot(s, mode)
	if err != nil {
		return 0, err
	}
	return bucketID, nil
}

func (c *Cache) flushSlot(s *Slot, mode FlushMode) (uint32, error) {
	if s.State == Invalid {
		return s.BucketID, nil
	}

	var bucketID uint32
	if s.BucketID == Unbound {
		id, err := c.file.AppendBucket(s.Buf)
		if err != nil {
			return 0, errors.Wrap(err, "cache: flush new page")
		}
		bucketID = id
		s.BucketID = id
		logger.Debugf("cache: materialised new bucket %d", id)
	} else {
		if err := c.file.WriteBucket(s.BucketID, s.Buf); err != nil {
			return 0, errors.Wrapf(err, "cache: flush bucket %d", s.BucketID)
		}
		bucketID = s.BucketID
	}

	switch mode {
	case KeepMemory:
		s.State = Flushed
	case ReleaseMemory:
		s.State = Invalid
		s.Buf = nil
	}
	return bucketID, nil
}
