//go:build !windows

package util

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func isContentionErrno(errno syscall.Errno) bool {
	switch errno {
	case unix.EBUSY, unix.ETXTBSY, unix.EWOULDBLOCK:
		return true
	}
	return false
}

func isCrossDeviceErrno(errno syscall.Errno) bool {
	return errno == unix.EXDEV
}
