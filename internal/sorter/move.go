package sorter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/franz/download-janitor/internal/util"
)

// move renames src to dest, falling back to copy and delete when the two
// paths are on different devices
func (s *Sorter) move(src, dest string) error {
	err := s.fs.Rename(src, dest)
	if err == nil || !util.IsCrossDevice(err) {
		return err
	}

	util.DebugLog("Cross-device move, copying %s -> %s", src, dest)
	err = util.Retry(s.copyRetry, func() error {
		return s.copyFile(src, dest)
	}, "copy "+filepath.Base(src))
	if err != nil {
		return err
	}

	if err := s.fs.Remove(src); err != nil {
		// The copy is complete; a stale source only means it is sorted twice.
		util.WarnLog("Failed to delete source file %s: %v", src, err)
	}
	return nil
}

// copyFile copies src to dest through a .part file so dest never exists
// half-written
func (s *Sorter) copyFile(src, dest string) error {
	in, err := s.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tempPath := dest + ".part"
	out, err := s.fs.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	written, err := io.CopyBuffer(out, in, make([]byte, s.bufferSize))
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err == nil && written != info.Size() {
		err = fmt.Errorf("short copy: wrote %d of %d bytes", written, info.Size())
	}
	if err != nil {
		s.fs.Remove(tempPath)
		return fmt.Errorf("failed to copy: %w", err)
	}

	if err := s.fs.Rename(tempPath, dest); err != nil {
		s.fs.Remove(tempPath)
		return fmt.Errorf("failed to rename: %w", err)
	}

	if err := s.fs.Chtimes(dest, info.ModTime(), info.ModTime()); err != nil {
		util.DebugLog("Failed to preserve mtime on %s: %v", dest, err)
	}

	return nil
}
