//go:build darwin

package util

import (
	"fmt"
	"syscall"
)

func detectPlatformMount(path string) (*MountInfo, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil, fmt.Errorf("failed to stat filesystem: %w", err)
	}

	fsType := int8ArrayToString(stat.Fstypename[:])
	return &MountInfo{
		Network:    isNetworkFSType(fsType) || fsType == "osxfuse",
		FSType:     fsType,
		MountPoint: int8ArrayToString(stat.Mntonname[:]),
	}, nil
}

// int8ArrayToString converts a null-terminated int8 array to a Go string
func int8ArrayToString(arr []int8) string {
	b := make([]byte, 0, len(arr))
	for _, c := range arr {
		if c == 0 {
			break
		}
		b = append(b, byte(c))
	}
	return string(b)
}
