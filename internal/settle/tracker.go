// Package settle turns noisy file change notifications into a single
// "ready" signal per file once its size and modification time stop changing.
package settle

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/spf13/afero"

	"github.com/franz/download-janitor/internal/util"
)

// DefaultSweepInterval is how often tracked files are re-checked
const DefaultSweepInterval = time.Second

// Settled is emitted once per quiet episode of a tracked file
type Settled struct {
	Path string
	Size int64
}

// Listener receives settled signals. A panicking listener is logged and
// does not affect other listeners or the sweep.
type Listener func(Settled)

// Options configures a Tracker
type Options struct {
	SettleDuration time.Duration
	SweepInterval  time.Duration    // default DefaultSweepInterval
	Fs             afero.Fs         // default OS filesystem
	Now            func() time.Time // default time.Now
}

type entry struct {
	lastSeenAt time.Time
	size       int64
	modTime    time.Time
	version    uint64
}

// Tracker holds per-path state. Event ingestion and the sweep both go
// through mu; the sweep stats outside the lock and only applies its result
// when the entry version it observed is still current.
type Tracker struct {
	settle   time.Duration
	interval time.Duration
	fs       afero.Fs
	now      func() time.Time

	mu        sync.Mutex
	entries   map[string]*entry
	version   uint64
	listeners []Listener
	stopped   bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewTracker creates a tracker. It does nothing until Start or Sweep is called.
func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		settle:   opts.SettleDuration,
		interval: opts.SweepInterval,
		fs:       opts.Fs,
		now:      opts.Now,
		entries:  make(map[string]*entry),
	}
	if t.interval <= 0 {
		t.interval = DefaultSweepInterval
	}
	if t.fs == nil {
		t.fs = afero.NewOsFs()
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// OnSettled registers a listener
func (t *Tracker) OnSettled(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// OnFileEvent records activity on path. Every call resets the quiet timer,
// even when size and mtime are unchanged. A path that no longer exists, or
// is not a regular file, is dropped.
func (t *Tracker) OnFileEvent(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}

	info, err := t.fs.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		if _, ok := t.entries[path]; ok {
			util.DebugLog("settle: %s gone, untracking", path)
		}
		delete(t.entries, path)
		return
	}

	t.version++
	e, ok := t.entries[path]
	if !ok {
		e = &entry{}
		t.entries[path] = e
		util.DebugLog("settle: tracking %s (%s)", path, util.FormatBytes(info.Size()))
	}
	e.lastSeenAt = t.now()
	e.size = info.Size()
	e.modTime = info.ModTime()
	e.version = t.version
}

// UntrackFile forgets path without emitting anything
func (t *Tracker) UntrackFile(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, path)
}

// Tracked returns the number of files currently waiting to settle
func (t *Tracker) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// IsTracked reports whether path is waiting to settle
func (t *Tracker) IsTracked(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[path]
	return ok
}

type snapshot struct {
	path    string
	version uint64
	size    int64
	modTime time.Time
}

// Sweep re-checks every tracked file once and emits settled signals for
// files that have been quiet for the settle duration.
func (t *Tracker) Sweep() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	snaps := make([]snapshot, 0, len(t.entries))
	for path, e := range t.entries {
		snaps = append(snaps, snapshot{path: path, version: e.version, size: e.size, modTime: e.modTime})
	}
	t.mu.Unlock()

	var ready []Settled
	for _, s := range snaps {
		info, err := t.fs.Stat(s.path)

		t.mu.Lock()
		e, ok := t.entries[s.path]
		if !ok || e.version != s.version {
			// Changed or removed concurrently; the newer state wins.
			t.mu.Unlock()
			continue
		}

		switch {
		case errors.Is(err, fs.ErrNotExist):
			delete(t.entries, s.path)
			util.DebugLog("settle: %s vanished before settling", s.path)
		case err != nil:
			util.DebugLog("settle: stat %s: %v", s.path, err)
		case info.Size() != s.size || !info.ModTime().Equal(s.modTime):
			t.version++
			e.size = info.Size()
			e.modTime = info.ModTime()
			e.lastSeenAt = t.now()
			e.version = t.version
		case t.now().Sub(e.lastSeenAt) >= t.settle:
			delete(t.entries, s.path)
			ready = append(ready, Settled{Path: s.path, Size: e.size})
		}
		t.mu.Unlock()
	}

	for _, ev := range ready {
		t.emit(ev)
	}
}

func (t *Tracker) emit(ev Settled) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	listeners := append([]Listener(nil), t.listeners...)
	t.mu.Unlock()

	util.DebugLog("settle: %s settled (%s)", ev.Path, util.FormatBytes(ev.Size))
	for _, l := range listeners {
		if r := panics.Try(func() { l(ev) }); r != nil {
			util.ErrorLog("settle: listener panicked for %s: %v", ev.Path, r.Value)
		}
	}
}

// Start runs the periodic sweep until ctx is cancelled or Stop is called
func (t *Tracker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	if t.cancel != nil || t.stopped {
		t.mu.Unlock()
		cancel()
		return
	}
	t.cancel = cancel
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Sweep()
			}
		}
	}()
}

// Stop halts the sweep and waits for it to exit. No settled signal is
// emitted after Stop returns. Tracked state is discarded.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.stopped = true
	cancel, done := t.cancel, t.done
	t.entries = make(map[string]*entry)
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
