//go:build !windows

package sorter

import (
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franz/download-janitor/internal/store"
	"github.com/franz/download-janitor/internal/util"
)

// crossDeviceFs refuses direct renames out of /in the way rename(2) does
// across mount points
type crossDeviceFs struct {
	afero.Fs
}

func (c *crossDeviceFs) Rename(oldname, newname string) error {
	if len(oldname) > 3 && oldname[:4] == "/in/" {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: syscall.EXDEV}
	}
	return c.Fs.Rename(oldname, newname)
}

func TestCrossDeviceMoveCopiesAndRemovesSource(t *testing.T) {
	fsys := &crossDeviceFs{Fs: afero.NewMemMapFs()}
	f := newFixture(t, func(c *Config) { c.Fs = fsys; c.BufferSize = 4 })

	mtime := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	f.write(t, "/in/archive.tar", "0123456789abcdef")
	require.NoError(t, fsys.Chtimes("/in/archive.tar", mtime, mtime))

	res := f.sorter.SortFile("/in/archive.tar")

	require.Equal(t, store.StatusSuccess, res.Status, "err: %v", res.Err)
	assert.False(t, f.exists("/in/archive.tar"))
	assert.False(t, f.exists(res.DestPath+".part"))

	content, err := afero.ReadFile(fsys, res.DestPath)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", string(content))

	info, err := fsys.Stat(res.DestPath)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime), "mtime preserved")
}

func TestOSLockErrnoIsRetried(t *testing.T) {
	locked := &lockingFs{Fs: afero.NewMemMapFs(), locked: 1, err: syscall.EBUSY}
	f := newFixture(t, func(c *Config) { c.Fs = locked })
	f.write(t, "/in/clip.mov", "moov")

	res := f.sorter.SortFile("/in/clip.mov")

	assert.Equal(t, store.StatusSuccess, res.Status)
	assert.Equal(t, 2, locked.renames)
}

// flakyCopyFs is cross-device and fails the first failures temp-file
// creations with err
type flakyCopyFs struct {
	crossDeviceFs
	failures int
	err      error
	opens    int
}

func (f *flakyCopyFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if strings.HasSuffix(name, ".part") {
		f.opens++
		if f.opens <= f.failures {
			return nil, &os.PathError{Op: "open", Path: name, Err: f.err}
		}
	}
	return f.crossDeviceFs.OpenFile(name, flag, perm)
}

func TestCrossDeviceCopyRetriesTransientIO(t *testing.T) {
	fsys := &flakyCopyFs{crossDeviceFs: crossDeviceFs{Fs: afero.NewMemMapFs()}, failures: 2, err: syscall.EIO}
	f := newFixture(t, func(c *Config) { c.Fs = fsys })
	f.write(t, "/in/backup.zip", "PK")

	res := f.sorter.SortFile("/in/backup.zip")

	require.Equal(t, store.StatusSuccess, res.Status, "err: %v", res.Err)
	assert.Equal(t, 3, fsys.opens)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, f.sleeps)
	assert.False(t, f.exists("/in/backup.zip"))
}

func TestCrossDeviceCopyPermanentErrorNotRetried(t *testing.T) {
	fsys := &flakyCopyFs{crossDeviceFs: crossDeviceFs{Fs: afero.NewMemMapFs()}, failures: 10, err: syscall.EACCES}
	f := newFixture(t, func(c *Config) { c.Fs = fsys })
	f.write(t, "/in/backup.zip", "PK")

	res := f.sorter.SortFile("/in/backup.zip")

	assert.Equal(t, store.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, util.ErrPermission)
	assert.Equal(t, 1, fsys.opens)
	assert.Empty(t, f.sleeps)
	assert.True(t, f.exists("/in/backup.zip"), "source kept when the copy fails")
	require.Len(t, f.audit.all(), 1)
}
