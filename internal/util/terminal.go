package util

import (
	"os"
	"strconv"

	"golang.org/x/term"
)

const defaultTerminalWidth = 80

// IsTerminal checks if the given file descriptor is a terminal
func IsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// GetTerminalWidth returns the width of stdout. When stdout is piped the
// COLUMNS variable is honored, so `dlj history | less` keeps the shell's
// width; otherwise it is 80.
func GetTerminalWidth() int {
	return terminalWidth(int(os.Stdout.Fd()))
}

func terminalWidth(fd int) int {
	if width, _, err := term.GetSize(fd); err == nil && width > 0 {
		return width
	}
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && cols > 0 {
		return cols
	}
	return defaultTerminalWidth
}
