// Package watch feeds filesystem notifications for the watch folders into a
// settle tracker and sorts each file once it has settled.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/franz/download-janitor/internal/config"
	"github.com/franz/download-janitor/internal/report"
	"github.com/franz/download-janitor/internal/settle"
	"github.com/franz/download-janitor/internal/sorter"
	"github.com/franz/download-janitor/internal/util"
)

// Resubscribe backoff bounds after a notification failure
const (
	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// FileSorter sorts one settled file
type FileSorter interface {
	SortFile(path string) sorter.Result
}

// Options configures a Watcher
type Options struct {
	Settings      *config.Config
	Sorter        FileSorter
	Logger        *report.EventLogger
	SweepInterval time.Duration // default settle.DefaultSweepInterval
	MinBackoff    time.Duration // first resubscribe delay
	MaxBackoff    time.Duration // resubscribe delay cap
	OnResult      func(sorter.Result)
}

// Watcher owns the notification subscription, the settle tracker and a
// single dispatcher goroutine that runs sorts off the sweep path.
type Watcher struct {
	settings *config.Config
	sorter   FileSorter
	logger   *report.EventLogger
	onResult func(sorter.Result)
	tracker  *settle.Tracker
	minWait  time.Duration
	maxWait  time.Duration

	// replaceable in tests
	newSubscription func() (*fsnotify.Watcher, error)
	after           func(time.Duration) <-chan time.Time

	queueMu sync.Mutex
	queue   []string
	signal  chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      *conc.WaitGroup
	running bool
	stopped bool
}

// New creates a watcher for the settings' watch folders
func New(opts Options) *Watcher {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = DefaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = DefaultMaxBackoff
	}

	w := &Watcher{
		settings: opts.Settings,
		sorter:   opts.Sorter,
		logger:   opts.Logger,
		onResult: opts.OnResult,
		minWait:  opts.MinBackoff,
		maxWait:  opts.MaxBackoff,
		signal:   make(chan struct{}, 1),
		tracker: settle.NewTracker(settle.Options{
			SettleDuration: opts.Settings.SettleDuration,
			SweepInterval:  opts.SweepInterval,
		}),
	}
	w.newSubscription = w.subscribe
	w.after = time.After
	w.tracker.OnSettled(w.enqueue)
	return w
}

// Tracker exposes the settle tracker, mainly for status output
func (w *Watcher) Tracker() *settle.Tracker {
	return w.tracker
}

// Start creates missing watch folders, seeds the tracker with files already
// present and begins watching. It returns once the first subscription is in
// place; later subscription failures are retried in the background.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("watcher already running")
	}
	if w.stopped {
		return errors.New("watcher cannot be restarted")
	}

	for _, folder := range w.settings.WatchFolders {
		if err := os.MkdirAll(folder, 0755); err != nil {
			return fmt.Errorf("create watch folder %s: %w", folder, err)
		}
		if mount, err := util.DetectMount(folder); err == nil && mount.Network {
			util.WarnLog("Watch folder %s is on a network filesystem (%s); change notifications may be delayed or missing",
				folder, mount.FSType)
		}
	}

	fw, err := w.newSubscription()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg = conc.NewWaitGroup()
	w.running = true

	w.tracker.Start(ctx)
	w.seed()

	w.wg.Go(func() { w.subscriptionLoop(ctx, fw) })
	w.wg.Go(func() { w.dispatch(ctx) })

	for _, folder := range w.settings.WatchFolders {
		util.InfoLog("Watching %s (settle %s)", folder, w.settings.SettleDuration)
		w.logger.LogWatch(folder, "start", nil)
	}
	return nil
}

// Stop ends the subscription and the sweep, and waits for an in-flight
// sort to finish. Settled files not yet dispatched are dropped; they are
// picked up by the next run's seed scan.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.stopped = true
	cancel, wg := w.cancel, w.wg
	w.mu.Unlock()

	cancel()
	w.tracker.Stop()
	wg.Wait()

	for _, folder := range w.settings.WatchFolders {
		w.logger.LogWatch(folder, "stop", nil)
	}
	util.InfoLog("Watcher stopped")
}

func (w *Watcher) subscribe() (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create notifier: %w", err)
	}
	for _, folder := range w.settings.WatchFolders {
		if err := fw.Add(folder); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watch %s: %w", folder, err)
		}
	}
	return fw, nil
}

// seed feeds files already sitting in the watch folders to the tracker
func (w *Watcher) seed() {
	for _, folder := range w.settings.WatchFolders {
		entries, err := os.ReadDir(folder)
		if err != nil {
			util.WarnLog("Failed to scan %s: %v", folder, err)
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(folder, entry.Name())
			if !w.settings.ShouldIgnore(path) {
				w.tracker.OnFileEvent(path)
			}
		}
	}
}

// subscriptionLoop consumes notifications and resubscribes with backoff
// whenever the subscription fails
func (w *Watcher) subscriptionLoop(ctx context.Context, fw *fsnotify.Watcher) {
	backoff := w.minWait
	for {
		started := time.Now()
		err := w.consume(ctx, fw)
		fw.Close()
		if ctx.Err() != nil {
			return
		}

		if time.Since(started) > w.maxWait {
			backoff = w.minWait
		}
		util.WarnLog("Watch subscription failed: %v (resubscribing in %s)", err, backoff)
		w.logger.LogWatch("", "resubscribe", err)

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.after(backoff):
			}

			backoff *= 2
			if backoff > w.maxWait {
				backoff = w.maxWait
			}

			fw, err = w.newSubscription()
			if err == nil {
				break
			}
			util.WarnLog("Resubscribe failed: %v (retrying in %s)", err, backoff)
		}

		// Anything that arrived while unsubscribed is picked up here.
		w.seed()
	}
}

// consume handles events until ctx ends or the subscription reports an error
func (w *Watcher) consume(ctx context.Context, fw *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("event stream closed")
			}
			w.handle(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("error stream closed")
			}
			return err
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.settings.ShouldIgnore(ev.Name) {
		return
	}

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.tracker.UntrackFile(ev.Name)
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write), ev.Has(fsnotify.Chmod):
		w.tracker.OnFileEvent(ev.Name)
	}
}

// enqueue runs on the sweep goroutine and must not block
func (w *Watcher) enqueue(ev settle.Settled) {
	w.logger.LogSettle(ev.Path, ev.Size)

	w.queueMu.Lock()
	w.queue = append(w.queue, ev.Path)
	w.queueMu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *Watcher) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.signal:
		}

		w.queueMu.Lock()
		batch := w.queue
		w.queue = nil
		w.queueMu.Unlock()

		for _, path := range batch {
			if ctx.Err() != nil {
				return
			}
			res := w.sorter.SortFile(path)
			if w.onResult == nil {
				continue
			}
			if r := panics.Try(func() { w.onResult(res) }); r != nil {
				util.ErrorLog("Result handler panicked for %s: %v", path, r.Value)
			}
		}
	}
}
