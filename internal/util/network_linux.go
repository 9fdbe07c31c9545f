//go:build linux

package util

import (
	"bufio"
	"io"
	"os"
	"strings"
)

type mountEntry struct {
	mountPoint string
	fsType     string
}

func detectPlatformMount(path string) (*MountInfo, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mounts, err := parseMounts(f)
	if err != nil {
		return nil, err
	}

	entry, ok := findMount(mounts, path)
	if !ok {
		return &MountInfo{}, nil
	}
	return &MountInfo{
		Network:    isNetworkFSType(entry.fsType),
		FSType:     entry.fsType,
		MountPoint: entry.mountPoint,
	}, nil
}

// parseMounts reads /proc/mounts format: device mountpoint fstype options dump pass
func parseMounts(r io.Reader) ([]mountEntry, error) {
	var mounts []mountEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mounts = append(mounts, mountEntry{
			mountPoint: unescapeMountField(fields[1]),
			fsType:     fields[2],
		})
	}
	return mounts, scanner.Err()
}

// findMount returns the longest mount point containing path
func findMount(mounts []mountEntry, path string) (mountEntry, bool) {
	var best mountEntry
	found := false
	for _, m := range mounts {
		if !pathWithin(path, m.mountPoint) {
			continue
		}
		// Later entries shadow earlier ones on the same mount point
		if !found || len(m.mountPoint) >= len(best.mountPoint) {
			best = m
			found = true
		}
	}
	return best, found
}

func pathWithin(path, mountPoint string) bool {
	if mountPoint == "/" {
		return strings.HasPrefix(path, "/")
	}
	return path == mountPoint || strings.HasPrefix(path, mountPoint+"/")
}

// unescapeMountField decodes the octal escapes the kernel uses for
// whitespace and backslashes in mount points (\040, \011, \012, \134)
func unescapeMountField(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	r := strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)
	return r.Replace(s)
}
