//go:build windows

package util

import (
	"os"
	"path/filepath"
	"strings"
)

// IsSameFilesystem compares volume names; Windows has no st_dev.
func IsSameFilesystem(path1, path2 string) (bool, error) {
	if _, err := os.Stat(path1); err != nil {
		return false, err
	}
	if _, err := os.Stat(path2); err != nil {
		return false, err
	}
	abs1, err := filepath.Abs(path1)
	if err != nil {
		return false, err
	}
	abs2, err := filepath.Abs(path2)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(filepath.VolumeName(abs1), filepath.VolumeName(abs2)), nil
}
