package repository

import "errors"

// Sentinel kinds for event store errors.
var (
	// ErrStorage marks failures of the storage engine itself (I/O, corruption,
	// unreachable database). It is fatal to the operation that hit it.
	ErrStorage       = errors.New("storage failure")
	ErrInvalidLimit  = errors.New("invalid list limit")
	ErrUnknownDriver = errors.New("unknown store driver")
)
