package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsSameFilesystem(t *testing.T) {
	tmpDir := t.TempDir()

	dirA := filepath.Join(tmpDir, "a")
	dirB := filepath.Join(tmpDir, "b")
	for _, dir := range []string{dirA, dirB} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create dir: %v", err)
		}
	}

	same, err := IsSameFilesystem(dirA, dirB)
	if err != nil {
		t.Fatalf("IsSameFilesystem failed: %v", err)
	}
	if !same {
		t.Error("Expected sibling directories in one temp dir to share a filesystem")
	}
}

func TestIsSameFilesystem_MissingPath(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := IsSameFilesystem(tmpDir, filepath.Join(tmpDir, "missing")); err == nil {
		t.Error("Expected error for missing path")
	}
}
