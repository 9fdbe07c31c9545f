package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTerminalWidth_NotATerminal(t *testing.T) {
	file, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	defer file.Close()
	fd := int(file.Fd())

	tests := []struct {
		columns string
		want    int
	}{
		{"", defaultTerminalWidth},
		{"132", 132},
		{"wide", defaultTerminalWidth},
		{"0", defaultTerminalWidth},
		{"-40", defaultTerminalWidth},
	}

	for _, tt := range tests {
		t.Run("COLUMNS="+tt.columns, func(t *testing.T) {
			t.Setenv("COLUMNS", tt.columns)
			if got := terminalWidth(fd); got != tt.want {
				t.Errorf("terminalWidth() = %d, want %d", got, tt.want)
			}
		})
	}

	if IsTerminal(file.Fd()) {
		t.Error("A regular file should not be reported as a terminal")
	}
}
