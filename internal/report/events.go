package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/franz/download-janitor/internal/util"
)

// EventType represents the type of event
type EventType string

const (
	EventSort   EventType = "sort"
	EventSkip   EventType = "skip"
	EventFail   EventType = "fail"
	EventSettle EventType = "settle"
	EventWatch  EventType = "watch"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// ParseLevel maps a level name to an EventLevel, defaulting to info
func ParseLevel(s string) EventLevel {
	level := EventLevel(s)
	if _, ok := levelPriority[level]; ok {
		return level
	}
	return LevelInfo
}

// Event is one line of the JSONL event log
type Event struct {
	Timestamp time.Time         `json:"ts"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	RunID     string            `json:"run_id,omitempty"`
	SrcPath   string            `json:"src_path,omitempty"`
	DestPath  string            `json:"dest_path,omitempty"`
	Category  string            `json:"category,omitempty"`
	SizeBytes int64             `json:"size_bytes,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Duration  int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to one JSONL file per day in outputDir.
// A nil *EventLogger is a valid no-op sink.
type EventLogger struct {
	dir      string
	minLevel EventLevel
	now      func() time.Time

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	day     string
	path    string
	closed  bool
	warned  bool
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	l := &EventLogger{
		dir:      outputDir,
		minLevel: minLevel,
		now:      time.Now,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.rotateLocked(l.now()); err != nil {
		return nil, err
	}
	return l, nil
}

// rotateLocked switches to the file for t's day if it is not already open
func (l *EventLogger) rotateLocked(t time.Time) error {
	day := t.Format("20060102")
	if l.file != nil && l.day == day {
		return nil
	}

	path := filepath.Join(l.dir, fmt.Sprintf("events-%s.jsonl", day))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}

	if l.file != nil {
		l.file.Close()
	}
	l.file = file
	l.encoder = json.NewEncoder(file)
	l.day = day
	l.path = path
	return nil
}

// Log writes an event to the current day's file
func (l *EventLogger) Log(event *Event) error {
	if l == nil {
		return nil
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	now := l.now()
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}

	if err := l.rotateLocked(now); err != nil {
		return l.writeFailedLocked(err)
	}

	if err := l.encoder.Encode(event); err != nil {
		return l.writeFailedLocked(fmt.Errorf("failed to encode event: %w", err))
	}

	return nil
}

// writeFailedLocked reports the first write failure on the console. Later
// failures are only returned.
func (l *EventLogger) writeFailedLocked(err error) error {
	if !l.warned {
		l.warned = true
		util.WarnLog("Event log %s is not writable, further errors suppressed: %v", l.dir, err)
	}
	return err
}

// LogSort logs a successful move
func (l *EventLogger) LogSort(runID, srcPath, destPath, category string, sizeBytes int64, duration time.Duration) error {
	return l.Log(&Event{
		Level:     LevelInfo,
		Event:     EventSort,
		RunID:     runID,
		SrcPath:   srcPath,
		DestPath:  destPath,
		Category:  category,
		SizeBytes: sizeBytes,
		Duration:  duration.Milliseconds(),
	})
}

// LogSkip logs a file that was left in place. Skips without an error are
// benign and logged at debug level.
func (l *EventLogger) LogSkip(runID, srcPath, reason string, err error) error {
	event := &Event{
		Level:   LevelDebug,
		Event:   EventSkip,
		RunID:   runID,
		SrcPath: srcPath,
		Reason:  reason,
	}
	if err != nil {
		event.Level = LevelWarning
		event.Error = err.Error()
	}
	return l.Log(event)
}

// LogFail logs a sort attempt that failed permanently
func (l *EventLogger) LogFail(runID, srcPath, destPath string, err error) error {
	event := &Event{
		Level:    LevelError,
		Event:    EventFail,
		RunID:    runID,
		SrcPath:  srcPath,
		DestPath: destPath,
	}
	if err != nil {
		event.Error = err.Error()
	}
	return l.Log(event)
}

// LogSettle logs a file that finished settling
func (l *EventLogger) LogSettle(path string, sizeBytes int64) error {
	return l.Log(&Event{
		Level:     LevelDebug,
		Event:     EventSettle,
		SrcPath:   path,
		SizeBytes: sizeBytes,
	})
}

// LogWatch logs a watcher lifecycle change such as start, stop or resubscribe
func (l *EventLogger) LogWatch(folder, action string, err error) error {
	event := &Event{
		Level:   LevelInfo,
		Event:   EventWatch,
		SrcPath: folder,
		Reason:  action,
	}
	if err != nil {
		event.Level = LevelWarning
		event.Error = err.Error()
	}
	return l.Log(event)
}

// Close closes the event log file. Later calls to Log are ignored.
func (l *EventLogger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Path returns the path of the file currently being written
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// NullLogger returns a no-op event logger. The nil receiver makes every
// Log* call return nil without touching disk.
func NullLogger() *EventLogger {
	return nil
}
