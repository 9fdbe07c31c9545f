package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/download-janitor/internal/config"
	"github.com/franz/download-janitor/internal/sorter"
)

func TestSortFolders_SkipsUnreadableFolder(t *testing.T) {
	root := t.TempDir()
	inbox := filepath.Join(root, "Inbox")
	if err := os.MkdirAll(inbox, 0755); err != nil {
		t.Fatalf("failed to create inbox: %v", err)
	}
	if err := os.WriteFile(filepath.Join(inbox, "notes.txt"), []byte("hi"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	cfg := &config.Config{
		Root:             root,
		WatchFolders:     []string{inbox},
		BigFileThreshold: 1 << 30,
		BigFilesCategory: "Big Files",
		DefaultCategory:  "Unsorted",
		Categories:       config.DefaultCategories(),
	}
	s := sorter.New(&sorter.Config{Settings: cfg})

	batch := sortFolders(s, []string{filepath.Join(root, "missing"), inbox})

	if batch.Succeeded != 1 {
		t.Errorf("expected the readable folder to still be sorted, got %d successes", batch.Succeeded)
	}
	if _, err := os.Stat(filepath.Join(root, "Documents", "notes.txt")); err != nil {
		t.Errorf("expected notes.txt in Documents: %v", err)
	}
}
