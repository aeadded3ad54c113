package pagefile

import "errors"

// ErrShortRead and ErrShortWrite are the integrity errors spec.md §7
// names for a primary file I/O that didn't move the expected number of
// bytes.
var (
	ErrShortRead  = errors.New("pagefile: short read")
	ErrShortWrite = errors.New("pagefile: short write")
)
