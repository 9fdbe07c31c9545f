package util

import (
	"crypto/sha1"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// GenerateContentHash creates a SHA1 hash of file content
// Used to catalogue sorted files; it never influences classification
func GenerateContentHash(fsys afero.Fs, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
