package workorders

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means the work order changed since it was read.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrDuplicate means a unique constraint rejected the write. Repeating it
	// cannot succeed.
	ErrDuplicate = errors.New("duplicate record")
)
