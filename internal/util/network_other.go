//go:build !linux && !darwin

package util

// detectPlatformMount assumes a local filesystem where detection is unsupported
func detectPlatformMount(path string) (*MountInfo, error) {
	return &MountInfo{}, nil
}
