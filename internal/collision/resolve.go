// Package collision picks a free file name inside a destination folder using
// "name (N).ext" numbering.
package collision

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/spf13/afero"

	"github.com/franz/download-janitor/internal/util"
)

// MaxCounter bounds the suffix search
const MaxCounter = 10000

var numbered = regexp.MustCompile(`^(.*) \((\d+)\)$`)

// Resolve returns a path inside destFolder that did not exist when checked.
// A name already carrying a " (N)" suffix is re-based so numbering continues
// from N+1 instead of stacking suffixes. Nothing is reserved: a concurrent
// writer can still take the name before the caller does.
func Resolve(fsys afero.Fs, destFolder, desiredName string) (string, error) {
	candidate := filepath.Join(destFolder, desiredName)
	exists, err := afero.Exists(fsys, candidate)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", candidate, err)
	}
	if !exists {
		return candidate, nil
	}

	base, ext := splitName(desiredName)
	counter := 2
	if m := numbered.FindStringSubmatch(base); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil && n < MaxCounter {
			base = m[1]
			counter = n + 1
		}
	}

	for ; counter <= MaxCounter; counter++ {
		candidate = filepath.Join(destFolder, fmt.Sprintf("%s (%d)%s", base, counter, ext))
		exists, err := afero.Exists(fsys, candidate)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %s in %s", util.ErrTooManyCollisions, desiredName, destFolder)
}

// splitName separates stem and extension. A leading-dot name such as
// ".bashrc" is all stem.
func splitName(name string) (string, string) {
	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]
	if stem == "" {
		return name, ""
	}
	return stem, ext
}
