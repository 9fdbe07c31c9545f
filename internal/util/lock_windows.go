//go:build windows

package util

import (
	"syscall"

	"golang.org/x/sys/windows"
)

func isContentionErrno(errno syscall.Errno) bool {
	switch errno {
	case windows.ERROR_SHARING_VIOLATION, windows.ERROR_LOCK_VIOLATION:
		return true
	}
	return false
}

func isCrossDeviceErrno(errno syscall.Errno) bool {
	return errno == windows.ERROR_NOT_SAME_DEVICE
}
