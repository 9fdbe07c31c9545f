package main

import (
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/franz/download-janitor/internal/util"
)

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	name := fmt.Sprintf("Disk space (%s)", label)

	dir, err := windows.UTF16PtrFromString(existingParent(path))
	if err != nil {
		return checkResult{name: name, warning: true, message: err.Error()}
	}

	var avail, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(dir, &avail, &total, &free); err != nil {
		return checkResult{
			name:    name,
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	if avail < 1<<30 {
		return checkResult{name: name, warning: true, message: fmt.Sprintf("%s available (low space!)", util.FormatBytes(int64(avail)))}
	}
	return checkResult{name: name, message: fmt.Sprintf("%s available", util.FormatBytes(int64(avail)))}
}
