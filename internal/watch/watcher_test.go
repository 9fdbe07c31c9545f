package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franz/download-janitor/internal/config"
	"github.com/franz/download-janitor/internal/sorter"
	"github.com/franz/download-janitor/internal/store"
)

func testSettings(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		Root:             root,
		WatchFolders:     []string{filepath.Join(root, "Inbox")},
		SettleDuration:   0,
		BigFileThreshold: 1 << 30,
		BigFilesCategory: "Big Files",
		DefaultCategory:  "Unsorted",
		IgnoreExtensions: []string{"crdownload"},
		Categories:       config.DefaultCategories(),
	}
}

func startWatcher(t *testing.T, settings *config.Config) (*Watcher, chan sorter.Result) {
	t.Helper()
	results := make(chan sorter.Result, 16)
	w := New(Options{
		Settings:      settings,
		Sorter:        sorter.New(&sorter.Config{Settings: settings}),
		SweepInterval: 20 * time.Millisecond,
		OnResult:      func(res sorter.Result) { results <- res },
	})
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w, results
}

func waitResult(t *testing.T, results chan sorter.Result) sorter.Result {
	t.Helper()
	select {
	case res := <-results:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a sort")
		return sorter.Result{}
	}
}

func TestWatcherSortsNewFile(t *testing.T) {
	settings := testSettings(t)
	_, results := startWatcher(t, settings)
	inbox := settings.WatchFolders[0]

	require.NoError(t, os.WriteFile(filepath.Join(inbox, "paper.pdf"), []byte("%PDF"), 0644))

	got := waitResult(t, results)
	assert.Equal(t, store.StatusSuccess, got.Status)
	assert.Equal(t, filepath.Join(settings.Root, "Documents", "paper.pdf"), got.DestPath)
	assert.FileExists(t, got.DestPath)
	assert.NoFileExists(t, filepath.Join(inbox, "paper.pdf"))
}

func TestWatcherSortsFilesPresentAtStart(t *testing.T) {
	settings := testSettings(t)
	inbox := settings.WatchFolders[0]
	require.NoError(t, os.MkdirAll(inbox, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "old.zip"), []byte("PK"), 0644))

	_, results := startWatcher(t, settings)

	got := waitResult(t, results)
	assert.Equal(t, "Archives", got.Category)
	assert.Equal(t, store.StatusSuccess, got.Status)
}

func TestWatcherWaitsForPartialDownloadRename(t *testing.T) {
	settings := testSettings(t)
	_, results := startWatcher(t, settings)
	inbox := settings.WatchFolders[0]

	partial := filepath.Join(inbox, "movie.mp4.crdownload")
	require.NoError(t, os.WriteFile(partial, []byte("frames"), 0644))

	select {
	case res := <-results:
		t.Fatalf("partial download was sorted: %+v", res)
	case <-time.After(150 * time.Millisecond):
	}
	assert.FileExists(t, partial)

	require.NoError(t, os.Rename(partial, filepath.Join(inbox, "movie.mp4")))

	got := waitResult(t, results)
	assert.Equal(t, "Videos", got.Category)
	assert.FileExists(t, filepath.Join(settings.Root, "Videos", "movie.mp4"))
}

func TestWatcherCreatesMissingInbox(t *testing.T) {
	settings := testSettings(t)
	startWatcher(t, settings)

	assert.DirExists(t, settings.WatchFolders[0])
}

func TestStopPreventsFurtherSorts(t *testing.T) {
	settings := testSettings(t)
	settings.SettleDuration = time.Hour
	w, results := startWatcher(t, settings)
	inbox := settings.WatchFolders[0]

	require.NoError(t, os.WriteFile(filepath.Join(inbox, "late.txt"), []byte("x"), 0644))
	require.Eventually(t, func() bool { return w.Tracker().Tracked() == 1 }, 5*time.Second, 10*time.Millisecond)

	w.Stop()
	assert.Equal(t, 0, w.Tracker().Tracked())

	select {
	case res := <-results:
		t.Fatalf("sorted after stop: %+v", res)
	case <-time.After(100 * time.Millisecond):
	}
	assert.FileExists(t, filepath.Join(inbox, "late.txt"))

	assert.NotPanics(t, w.Stop)
	assert.Error(t, w.Start(context.Background()), "a stopped watcher cannot be restarted")
}

func TestHandleRoutesEvents(t *testing.T) {
	settings := testSettings(t)
	inbox := settings.WatchFolders[0]
	require.NoError(t, os.MkdirAll(inbox, 0755))
	w := New(Options{Settings: settings, Sorter: sorter.New(&sorter.Config{Settings: settings})})

	file := filepath.Join(inbox, "a.png")
	require.NoError(t, os.WriteFile(file, []byte("png"), 0644))

	w.handle(fsnotify.Event{Name: file, Op: fsnotify.Create})
	assert.True(t, w.Tracker().IsTracked(file))

	w.handle(fsnotify.Event{Name: file, Op: fsnotify.Rename})
	assert.False(t, w.Tracker().IsTracked(file))

	w.handle(fsnotify.Event{Name: file, Op: fsnotify.Write})
	assert.True(t, w.Tracker().IsTracked(file))

	w.handle(fsnotify.Event{Name: file, Op: fsnotify.Remove})
	assert.False(t, w.Tracker().IsTracked(file))

	ignored := filepath.Join(inbox, "b.crdownload")
	require.NoError(t, os.WriteFile(ignored, []byte("part"), 0644))
	w.handle(fsnotify.Event{Name: ignored, Op: fsnotify.Create})
	assert.False(t, w.Tracker().IsTracked(ignored))

	w.handle(fsnotify.Event{Name: inbox, Op: fsnotify.Create})
	assert.Equal(t, 0, w.Tracker().Tracked(), "directories are not tracked")
}

// flakySubscriptions hands out real fsnotify subscriptions, failing the
// attempts listed in fail, and records every backoff wait
type flakySubscriptions struct {
	mu       sync.Mutex
	w        *Watcher
	attempts int
	fail     map[int]bool
	onFail   func()
	current  *fsnotify.Watcher
	waits    []time.Duration
}

func (f *flakySubscriptions) subscribe() (*fsnotify.Watcher, error) {
	f.mu.Lock()
	f.attempts++
	failing := f.fail[f.attempts]
	f.mu.Unlock()

	if failing {
		if f.onFail != nil {
			f.onFail()
		}
		return nil, errors.New("notifier unavailable")
	}

	fw, err := f.w.subscribe()
	if err == nil {
		f.mu.Lock()
		f.current = fw
		f.mu.Unlock()
	}
	return fw, err
}

func (f *flakySubscriptions) after(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	f.waits = append(f.waits, d)
	f.mu.Unlock()
	return time.After(time.Millisecond)
}

func (f *flakySubscriptions) snapshot() (int, *fsnotify.Watcher, []time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts, f.current, append([]time.Duration(nil), f.waits...)
}

func TestWatcherResubscribesAfterFailure(t *testing.T) {
	settings := testSettings(t)
	inbox := settings.WatchFolders[0]

	results := make(chan sorter.Result, 16)
	w := New(Options{
		Settings:      settings,
		Sorter:        sorter.New(&sorter.Config{Settings: settings}),
		SweepInterval: 20 * time.Millisecond,
		MinBackoff:    10 * time.Millisecond,
		MaxBackoff:    40 * time.Millisecond,
		OnResult:      func(res sorter.Result) { results <- res },
	})

	subs := &flakySubscriptions{w: w, fail: map[int]bool{2: true}}
	// A file that lands while nothing is subscribed must still be sorted
	subs.onFail = func() {
		os.WriteFile(filepath.Join(inbox, "missed.pdf"), []byte("%PDF"), 0644)
	}
	w.newSubscription = subs.subscribe
	w.after = subs.after

	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	_, first, _ := subs.snapshot()
	require.NotNil(t, first)
	require.NoError(t, first.Close())

	got := waitResult(t, results)
	assert.Equal(t, store.StatusSuccess, got.Status)
	assert.Equal(t, filepath.Join(settings.Root, "Documents", "missed.pdf"), got.DestPath)

	attempts, current, waits := subs.snapshot()
	assert.Equal(t, 3, attempts)
	assert.NotSame(t, first, current)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, waits)

	// The new subscription delivers events
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "later.png"), []byte("PNG"), 0644))
	got = waitResult(t, results)
	assert.Equal(t, "Images", got.Category)
	assert.FileExists(t, filepath.Join(settings.Root, "Images", "later.png"))
}
