package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrLocked indicates another process holds the file (sharing or lock violation)
	ErrLocked = errors.New("file is locked")

	// ErrTooManyCollisions indicates the destination folder has exhausted the
	// "name (N)" counter space
	ErrTooManyCollisions = errors.New("too many name collisions")

	// ErrPermission indicates the process may not read the source or write
	// the destination
	ErrPermission = errors.New("permission denied")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
