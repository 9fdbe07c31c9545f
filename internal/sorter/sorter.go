// Package sorter classifies a settled file and moves it into its category
// folder, recording every terminal outcome worth auditing.
package sorter

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"github.com/spf13/afero"

	"github.com/franz/download-janitor/internal/classify"
	"github.com/franz/download-janitor/internal/collision"
	"github.com/franz/download-janitor/internal/config"
	"github.com/franz/download-janitor/internal/report"
	"github.com/franz/download-janitor/internal/store"
	"github.com/franz/download-janitor/internal/util"
)

// Skip reasons
const (
	ReasonVanished      = "File no longer exists"
	ReasonIgnored       = "ignored extension"
	ReasonNotRegular    = "not a regular file"
	ReasonAlreadySorted = "already in destination folder"
	ReasonLocked        = "File is locked"
)

// Lock retry policy for a source held open by another process
const (
	DefaultLockRetries = 3
	DefaultLockDelay   = 500 * time.Millisecond
)

// AuditSink receives one record per audited sort attempt
type AuditSink interface {
	InsertRecord(rec *store.Record) error
}

// Result is the outcome of one SortFile call
type Result struct {
	Status     store.Status
	SourcePath string
	DestPath   string
	Category   string
	Size       int64
	Reason     string // why a file was skipped
	Err        error
	Audited    bool
}

// Config holds sorter configuration
type Config struct {
	Settings     *config.Config
	Fs           afero.Fs            // default OS filesystem
	Audit        AuditSink           // nil disables auditing
	Logger       *report.EventLogger // nil disables the event log
	RunID        string              // default random UUID
	LockRetries  int                 // attempts for a locked source, default 3
	LockDelay    time.Duration       // fixed delay between attempts, default 500ms
	Sleep        func(time.Duration) // default time.Sleep
	BufferSize   int                 // cross-device copy buffer, default 128KB
	DryRun       bool
	ShowProgress bool
}

// Sorter moves files from watch folders into category folders. SortFile is
// safe for concurrent use.
type Sorter struct {
	settings   *config.Config
	classifier *classify.Classifier
	fs         afero.Fs
	audit      AuditSink
	logger     *report.EventLogger
	runID      string
	lockRetry  *util.RetryConfig
	copyRetry  *util.RetryConfig
	bufferSize int
	dryRun     bool
	progress   bool

	mu        sync.Mutex
	listeners []func(Result)
}

// New creates a Sorter. The settings are snapshotted by the classifier.
func New(cfg *Config) *Sorter {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.LockRetries <= 0 {
		cfg.LockRetries = DefaultLockRetries
	}
	if cfg.LockDelay <= 0 {
		cfg.LockDelay = DefaultLockDelay
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 128 * 1024
	}

	lockRetry := util.LockRetryConfig(cfg.LockRetries, cfg.LockDelay)
	lockRetry.Sleep = cfg.Sleep

	// Transient I/O during a cross-device copy is retried with backoff.
	// Contention is left to the outer lock policy.
	copyRetry := util.DefaultRetryConfig()
	copyRetry.Sleep = cfg.Sleep
	copyRetry.ShouldRetry = func(err error) bool {
		return !util.IsLockContention(err) && util.IsRetryableError(err)
	}

	return &Sorter{
		settings:   cfg.Settings,
		classifier: classify.New(cfg.Settings),
		fs:         cfg.Fs,
		audit:      cfg.Audit,
		logger:     cfg.Logger,
		runID:      cfg.RunID,
		lockRetry:  lockRetry,
		copyRetry:  copyRetry,
		bufferSize: cfg.BufferSize,
		dryRun:     cfg.DryRun,
		progress:   cfg.ShowProgress,
	}
}

// RunID identifies the records written by this sorter
func (s *Sorter) RunID() string {
	return s.runID
}

// OnSorted registers a listener for successful sorts. Panics are logged and
// swallowed.
func (s *Sorter) OnSorted(fn func(Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SortFile classifies and moves one file. It never panics on I/O failure;
// every outcome is reported through the Result.
func (s *Sorter) SortFile(path string) Result {
	start := time.Now()
	res := Result{SourcePath: path}

	info, err := s.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s.skip(res, ReasonVanished)
	}
	if err != nil {
		return s.fail(res, "", fmt.Errorf("stat: %w", err))
	}
	if !info.Mode().IsRegular() {
		return s.skip(res, ReasonNotRegular)
	}
	if s.settings.ShouldIgnore(path) {
		return s.skip(res, ReasonIgnored)
	}

	res.Size = info.Size()
	dest := s.classifier.Classify(filepath.Ext(path), res.Size)
	res.Category = dest.Category

	if filepath.Clean(filepath.Dir(path)) == filepath.Clean(dest.Folder) {
		return s.skip(res, ReasonAlreadySorted)
	}

	if s.dryRun {
		res.DestPath, err = collision.Resolve(s.fs, dest.Folder, filepath.Base(path))
		if err != nil {
			res.Status = store.StatusFailed
			res.Err = err
			return res
		}
		res.Status = store.StatusSuccess
		util.InfoLog("DRY-RUN: would move %s -> %s", path, res.DestPath)
		return res
	}

	if err := s.fs.MkdirAll(dest.Folder, 0755); err != nil {
		return s.fail(res, "", fmt.Errorf("create %s: %w", dest.Folder, err))
	}

	res.DestPath, err = collision.Resolve(s.fs, dest.Folder, filepath.Base(path))
	if err != nil {
		return s.fail(res, "", err)
	}

	var hash string
	if s.settings.HashContent {
		hash, err = util.GenerateContentHash(s.fs, path)
		if errors.Is(err, fs.ErrNotExist) {
			return s.skip(res, ReasonVanished)
		}
		if err != nil {
			util.WarnLog("Failed to hash %s: %v", path, err)
		}
	}

	err = util.Retry(s.lockRetry, func() error {
		return s.move(path, res.DestPath)
	}, "move "+filepath.Base(path))

	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !s.exists(path) && !s.exists(res.DestPath):
		return s.skip(res, ReasonVanished)
	case util.IsLockContention(err):
		return s.locked(res, hash, err)
	default:
		return s.fail(res, hash, err)
	}

	res.Status = store.StatusSuccess
	res.Audited = s.record(res, hash)
	s.logger.LogSort(s.runID, path, res.DestPath, res.Category, res.Size, time.Since(start))
	util.DebugLog("Sorted %s -> %s (%s)", path, res.DestPath, util.FormatBytes(res.Size))
	s.notify(res)

	return res
}

func (s *Sorter) exists(path string) bool {
	ok, _ := afero.Exists(s.fs, path)
	return ok
}

// skip reports a benign skip. Nothing is audited.
func (s *Sorter) skip(res Result, reason string) Result {
	res.Status = store.StatusSkipped
	res.Reason = reason
	res.DestPath = ""
	s.logger.LogSkip(s.runID, res.SourcePath, reason, nil)
	util.DebugLog("Skipped %s: %s", res.SourcePath, reason)
	return res
}

// locked reports a file that stayed locked through every retry
func (s *Sorter) locked(res Result, hash string, err error) Result {
	res.Status = store.StatusSkipped
	res.Reason = ReasonLocked
	res.Err = err
	res.Audited = s.record(res, hash)
	s.logger.LogSkip(s.runID, res.SourcePath, ReasonLocked, err)
	util.WarnLog("Skipped %s: %s (%v)", res.SourcePath, ReasonLocked, err)
	return res
}

func (s *Sorter) fail(res Result, hash string, err error) Result {
	if errors.Is(err, fs.ErrPermission) && !errors.Is(err, util.ErrPermission) {
		err = fmt.Errorf("%w: %w", util.ErrPermission, err)
	}
	res.Status = store.StatusFailed
	res.Err = err
	res.Audited = s.record(res, hash)
	s.logger.LogFail(s.runID, res.SourcePath, res.DestPath, err)
	util.ErrorLog("Failed to sort %s: %v", res.SourcePath, err)
	return res
}

// record writes an audit record. A failed insert is logged and never
// changes the outcome of the sort.
func (s *Sorter) record(res Result, hash string) bool {
	if s.audit == nil {
		return false
	}

	rec := &store.Record{
		RunID:        s.runID,
		OriginalName: filepath.Base(res.SourcePath),
		SourcePath:   res.SourcePath,
		DestPath:     res.DestPath,
		Category:     res.Category,
		FileSize:     res.Size,
		SortedAt:     time.Now().UTC(),
		Status:       res.Status,
		ContentHash:  hash,
	}
	if res.DestPath != "" {
		rec.FinalName = filepath.Base(res.DestPath)
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}

	if err := s.audit.InsertRecord(rec); err != nil {
		util.WarnLog("Failed to write audit record for %s: %v", res.SourcePath, err)
		return false
	}
	return true
}

func (s *Sorter) notify(res Result) {
	s.mu.Lock()
	listeners := append(([]func(Result))(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		if r := panics.Try(func() { fn(res) }); r != nil {
			util.ErrorLog("Sorted listener panicked for %s: %v", res.SourcePath, r.Value)
		}
	}
}
