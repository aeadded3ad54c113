package linearhash

import "errors"

// Sentinel errors surfaced by the index (spec.md §6 "Error codes
// consumed from collaborators" + §7 error taxonomy). Internal signals
// such as not-in-primary-page never cross this boundary; they are
// converted to one of these, or to a continuation, before returning.
var (
	// ErrInvalidInitialSize is returned when the requested initial
	// bucket count is not a power of two >= 2.
	ErrInvalidInitialSize = errors.New("linearhash: initial size must be a power of two >= 2")

	// ErrItemNotFound is returned by Query/Delete/cursor advancement
	// when no matching record exists.
	ErrItemNotFound = errors.New("linearhash: item not found")

	// ErrDuplicateKey is returned by Insert under insert-unique write
	// concern when the key already has a live record.
	ErrDuplicateKey = errors.New("linearhash: duplicate key")

	// ErrUnableToInsert is returned when neither the primary page nor
	// the overflow file could accept a new record.
	ErrUnableToInsert = errors.New("linearhash: unable to insert record")

	// ErrFileWrite wraps a failure opening the main file or writing its
	// initial pages during Initialise.
	ErrFileWrite = errors.New("linearhash: file write error")

	// ErrFileClose wraps a failure closing the main file.
	ErrFileClose = errors.New("linearhash: file close error")

	// ErrOutOfMemory surfaces a cache slot buffer allocation failure
	// (see cache.ErrOutOfMemory, translated at the boundary by
	// Index.loadSlot).
	ErrOutOfMemory = errors.New("linearhash: out of memory")

	// ErrDestruction is accumulated by Destroy when any file removal
	// fails; Destroy is best-effort and keeps going (spec.md §7).
	ErrDestruction = errors.New("linearhash: destruction error")
)

// Error wraps a sentinel with the operation that produced it, matching
// the shape of the teacher's buffer_pool.BufferPoolError.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "<nil>"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with the operation name that produced it.
func NewError(op string, err error) error {
	return &Error{Op: op, Err: err}
}

func IsNotFound(err error) bool       { return errors.Is(err, ErrItemNotFound) }
func IsDuplicate(err error) bool      { return errors.Is(err, ErrDuplicateKey) }
func IsOutOfMemory(err error) bool    { return errors.Is(err, ErrOutOfMemory) }
func IsUnableToInsert(err error) bool { return errors.Is(err, ErrUnableToInsert) }
func IsFileWrite(err error) bool      { return errors.Is(err, ErrFileWrite) }
func IsDestruction(err error) bool    { return errors.Is(err, ErrDestruction) }
