package util

import (
	"errors"
	"syscall"
)

// IsLockContention reports whether err means another process currently holds
// the file open in a way that blocks the operation. This is the one failure a
// move retries; permission and not-found errors are never contention.
func IsLockContention(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrLocked) {
		return true
	}

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	return isContentionErrno(errno)
}

// IsCrossDevice reports whether a rename failed because source and
// destination live on different filesystems.
func IsCrossDevice(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	return isCrossDeviceErrno(errno)
}
