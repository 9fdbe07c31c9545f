package util

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MountInfo describes the filesystem a path lives on
type MountInfo struct {
	Network    bool   // Whether the filesystem is network-mounted
	FSType     string // Filesystem type as reported by the OS (nfs4, cifs, apfs...)
	MountPoint string // Mount point of the filesystem, empty if unknown
}

// networkFSTypes are substrings of filesystem type names that denote remote mounts.
// Kernel change notifications are unreliable on all of them.
var networkFSTypes = []string{
	"nfs",
	"cifs",
	"smb",
	"afpfs",
	"webdav",
	"ncpfs",
	"9p",
	"fuse.sshfs",
	"fuse.rclone",
}

// DetectMount reports the filesystem a path lives on
func DetectMount(path string) (*MountInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	return detectPlatformMount(absPath)
}

// IsNetworkPath checks if a path is on a network filesystem (convenience function)
func IsNetworkPath(path string) bool {
	info, err := DetectMount(path)
	if err != nil {
		return false
	}
	return info.Network
}

func isNetworkFSType(fsType string) bool {
	fsType = strings.ToLower(fsType)
	for _, netType := range networkFSTypes {
		if strings.Contains(fsType, netType) {
			return true
		}
	}
	return false
}
