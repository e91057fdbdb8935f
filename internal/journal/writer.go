package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ErrNoRun is returned when an event is recorded outside a run.
var ErrNoRun = errors.New("journal: no active run")

// Options configures rotation of the journal file.
type Options struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Writer appends events to the journal. A nil *Writer accepts every call and
// records nothing, so callers can run without a journal.
type Writer struct {
	mu      sync.Mutex
	out     *lumberjack.Logger
	path    string
	run     RunID
	summary Summary
	now     func() time.Time
}

// Open prepares the journal at path, creating its directory.
func Open(path string, opts Options) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	return &Writer{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		},
		path: path,
		now:  time.Now,
	}, nil
}

// Path returns the active journal file.
func (w *Writer) Path() string {
	if w == nil {
		return ""
	}
	return w.path
}

// StartRun begins a run and writes RUN_START.
func (w *Writer) StartRun(command, version string) (RunID, error) {
	if w == nil {
		return "", nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	id := RunID(uuid.NewString())
	err := w.writeLocked(Event{
		RunID: id,
		Type:  EventRunStart,
		Metadata: map[string]string{
			"command": command,
			"version": version,
		},
	})
	if err != nil {
		return "", fmt.Errorf("write RUN_START: %w", err)
	}
	w.run = id
	w.summary = Summary{}
	return id, nil
}

// RunID returns the active run, or "" outside a run.
func (w *Writer) RunID() RunID {
	if w == nil {
		return ""
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.run
}

// Record writes one event in the active run.
func (w *Writer) Record(t EventType, source, destination, reason string) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.run == "" {
		return ErrNoRun
	}
	if err := w.writeLocked(Event{
		RunID:       w.run,
		Type:        t,
		Source:      source,
		Destination: destination,
		Reason:      reason,
	}); err != nil {
		return err
	}
	w.summary.Add(t)
	return nil
}

// RecordLink records a primary link.
func (w *Writer) RecordLink(source, destination string) error {
	return w.Record(EventLink, source, destination, "")
}

// RecordExternal records an audio or subtitle link.
func (w *Writer) RecordExternal(source, destination string) error {
	return w.Record(EventLinkExternal, source, destination, "")
}

// RecordUnlink records removal of a broken link.
func (w *Writer) RecordUnlink(link string) error {
	return w.Record(EventUnlink, "", link, "")
}

// RecordOrphan records removal of an orphaned secondary link.
func (w *Writer) RecordOrphan(link string) error {
	return w.Record(EventOrphan, "", link, "")
}

// RecordFailed records a source that was added to a failure list.
func (w *Writer) RecordFailed(source, reason string) error {
	return w.Record(EventFailed, source, "", reason)
}

// Summary returns the counts of the active run.
func (w *Writer) Summary() Summary {
	if w == nil {
		return Summary{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.summary
}

// EndRun writes RUN_END with the run summary and closes the run.
func (w *Writer) EndRun(status RunStatus) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.run == "" {
		return ErrNoRun
	}
	err := w.writeLocked(Event{
		RunID: w.run,
		Type:  EventRunEnd,
		Metadata: map[string]string{
			"status":         string(status),
			"linked":         strconv.Itoa(w.summary.Linked),
			"linkedExternal": strconv.Itoa(w.summary.LinkedExternal),
			"unlinked":       strconv.Itoa(w.summary.Unlinked),
			"orphans":        strconv.Itoa(w.summary.Orphans),
			"failed":         strconv.Itoa(w.summary.Failed),
		},
	})
	if err != nil {
		return fmt.Errorf("write RUN_END: %w", err)
	}
	w.run = ""
	return nil
}

// Rotate moves the active file aside and starts a new one.
func (w *Writer) Rotate() error {
	if w == nil {
		return nil
	}
	return w.out.Rotate()
}

// Close closes the journal file.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Close()
}

func (w *Writer) writeLocked(e Event) error {
	e.Timestamp = w.now()
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.out.Write(data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
