// This file is the cursor engine (spec.md §4.7): a single Cursor type
// over a Predicate, unifying equality lookup and range scan behind one
// find/next/close walk across primary pages and overflow chains.
//
// Grounded on original_source's ion_predicate_t/evaluate_predicate
// dispatch (lh_find's predicate_equality/predicate_range branches):
// one cursor struct, one evaluate call per candidate record, with
// IS_GREATER short-circuiting an ordered overflow scan and IS_EQUAL
// yielding a result; range scans additionally wrap across buckets
// (`current_bucket = (current_bucket + 1) % current_size`) until
// back at the bucket the scan started from.
package linearhash

import (
	"github.com/zhukovaskychina/lhindex/server/innodb/linearhash/overflow"
	"github.com/zhukovaskychina/lhindex/server/innodb/linearhash/record"
)

// verdict is the three-way result of evaluating a predicate against a
// candidate key, matching the original's troolean IS_LESS/IS_EQUAL/
// IS_GREATER.
type verdict int

const (
	verdictLess verdict = iota
	verdictEqual
	verdictGreater
)

// Predicate decides whether a key satisfies a cursor's search
// condition relative to an ordered scan. evaluate takes the index's
// own key comparator rather than assuming byte order, since integer
// keys are compared numerically, not lexicographically (see
// Index.buildComparator) — the chain's actual ordering and the
// predicate's IS_GREATER short-circuit must agree on the same order.
type Predicate interface {
	evaluate(cmp overflow.Comparator, key []byte) verdict
	seedKey() []byte
}

// Equality matches exactly one key.
type Equality struct{ Key []byte }

func (e Equality) seedKey() []byte { return e.Key }

func (e Equality) evaluate(cmp overflow.Comparator, key []byte) verdict {
	switch c := cmp(key, e.Key); {
	case c == 0:
		return verdictEqual
	case c > 0:
		return verdictGreater
	default:
		return verdictLess
	}
}

// Range matches every key in [Low, High] inclusive.
type Range struct{ Low, High []byte }

func (r Range) seedKey() []byte { return r.Low }

func (r Range) evaluate(cmp overflow.Comparator, key []byte) verdict {
	if cmp(key, r.Low) < 0 {
		return verdictLess
	}
	if cmp(key, r.High) > 0 {
		return verdictGreater
	}
	return verdictEqual
}

// cursorStatus is the cursor's lifecycle state (spec.md §4.7).
type cursorStatus int

const (
	csUninitialised cursorStatus = iota
	csInitialised
	csActive
	csEndOfResults
)

// Cursor walks an index for every record satisfying a Predicate,
// bucket by bucket for range scans, one primary-page-then-overflow
// pass per bucket.
type Cursor struct {
	idx       *Index
	predicate Predicate
	isRange   bool

	status cursorStatus

	firstBucket   uint32
	currentBucket uint32

	primaryPos  int
	primaryDone bool
	ovf         *overflow.File
	ovfDone     bool

	pendingKey, pendingValue []byte
}

// Find opens a cursor over predicate and positions it at the first
// matching record, or leaves it at end-of-results if none exists
// (spec.md §4.7).
func (idx *Index) Find(predicate Predicate) (*Cursor, error) {
	_, isRange := predicate.(Range)
	c := &Cursor{idx: idx, predicate: predicate, isRange: isRange}

	c.firstBucket = idx.bucketFor(predicate.seedKey())
	c.currentBucket = c.firstBucket
	c.status = csInitialised

	if err := c.advance(); err != nil && err != ErrItemNotFound {
		return nil, NewError("find", err)
	}
	return c, nil
}

// Next copies the cursor's current record into key/value and advances
// to the next match. Returns ErrItemNotFound once the cursor is at
// end-of-results (including the very first call, if Find found no
// match at all).
func (c *Cursor) Next(key, value []byte) error {
	if c.status == csEndOfResults {
		return NewError("next", ErrItemNotFound)
	}
	copy(key, c.pendingKey)
	copy(value, c.pendingValue)
	c.status = csActive

	if err := c.advance(); err != nil && err != ErrItemNotFound {
		return NewError("next", err)
	}
	return nil
}

// Close releases the cursor's open overflow handle, if any.
func (c *Cursor) Close() error {
	if c.ovf != nil {
		err := c.ovf.Close()
		c.ovf = nil
		return err
	}
	return nil
}

// advance searches forward from the cursor's current position for the
// next matching record, staging it in pendingKey/pendingValue. On
// exhaustion it wraps to the next bucket for range predicates, or ends
// the cursor for equality predicates, per spec.md §4.7.
func (c *Cursor) advance() error {
	for {
		if !c.primaryDone {
			if ok, err := c.scanPrimaryStep(); err != nil {
				return err
			} else if ok {
				return nil
			}
			c.primaryDone = true
		}

		if !c.ovfDone {
			ok, err := c.scanOverflowStep()
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}

		if !c.isRange {
			c.status = csEndOfResults
			return ErrItemNotFound
		}

		c.currentBucket = (c.currentBucket + 1) % c.bucketCount()
		if c.currentBucket == c.firstBucket {
			c.status = csEndOfResults
			return ErrItemNotFound
		}
		c.resetBucketState()
	}
}

func (c *Cursor) resetBucketState() {
	if c.ovf != nil {
		c.ovf.Close()
		c.ovf = nil
	}
	c.primaryPos = 0
	c.primaryDone = false
	c.ovfDone = false
}

func (c *Cursor) bucketCount() uint32 {
	return c.idx.bucketCount()
}

// scanPrimaryStep scans currentBucket's primary page from primaryPos
// onward for the first match. The primary page is unordered (records
// settle into the first free slot, not sorted position), so every slot
// must be examined — there is no early-exit on IS_GREATER here.
func (c *Cursor) scanPrimaryStep() (bool, error) {
	if err := c.idx.loadSlot(0, c.currentBucket); err != nil {
		return false, err
	}
	slot := c.idx.cache.Slot(0)
	for i := c.primaryPos; i < c.idx.cfg.RecordsPerBucket; i++ {
		v := record.At(slot.Buf, c.idx.layout, i)
		c.primaryPos = i + 1
		if v.Status() != record.InUse {
			continue
		}
		if c.predicate.evaluate(c.idx.comparator, v.Key()) == verdictEqual {
			c.stage(v.Key(), v.Value())
			return true, nil
		}
	}
	return false, nil
}

// scanOverflowStep advances currentBucket's overflow chain (opening it
// lazily, on first use for this bucket) one match at a time. The
// chain is key-ordered, so IS_GREATER proves no further node can
// match and ends the scan for this bucket.
func (c *Cursor) scanOverflowStep() (bool, error) {
	if c.ovf == nil {
		ovf, err := c.idx.openOverflow(c.currentBucket, false)
		if err != nil {
			return false, err
		}
		if ovf == nil {
			c.ovfDone = true
			return false, nil
		}
		c.ovf = ovf
	}

	buf := make([]byte, c.idx.layout.Size())
	for {
		nerr := c.ovf.Next(buf)
		if nerr == overflow.ErrNotFound {
			c.ovfDone = true
			return false, nil
		}
		if nerr != nil {
			return false, nerr
		}
		v := record.NewView(buf, c.idx.layout)
		switch c.predicate.evaluate(c.idx.comparator, v.Key()) {
		case verdictGreater:
			c.ovfDone = true
			return false, nil
		case verdictEqual:
			c.stage(v.Key(), v.Value())
			return true, nil
		}
	}
}

func (c *Cursor) stage(key, value []byte) {
	c.pendingKey = append(c.pendingKey[:0], key...)
	c.pendingValue = append(c.pendingValue[:0], value...)
}
