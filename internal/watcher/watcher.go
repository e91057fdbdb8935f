// Package watcher turns filesystem notifications for the source tree into
// per-directory batches of new files and an immediate stream of deletions.
//
// Creations are grouped by directory and released once the directory has
// been quiet for the quiet period. Deletions are passed on at once. From
// Start until SignalScanComplete every event is held in a GapBuffer so the
// initial scan and live events never race; the buffer is then replayed in
// arrival order through the live path.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"medialink/internal/classifier"
	"medialink/internal/logging"
)

const (
	// DefaultQuietPeriod is how long a directory must stay idle before its
	// batch is released.
	DefaultQuietPeriod = 10 * time.Second
	// DefaultTickInterval is how often pending batches are examined.
	DefaultTickInterval = time.Second
)

// ErrStopped is returned by Wait once the engine has been stopped.
var ErrStopped = errors.New("watcher stopped")

// Config configures an Engine.
type Config struct {
	Root           string
	QuietPeriod    time.Duration
	TickInterval   time.Duration
	IgnorePatterns []string
	Source         Source
	Clock          Clock
	Logger         *slog.Logger
}

// Engine is the batching watcher for one source root.
type Engine struct {
	root        string
	quietPeriod time.Duration
	tick        time.Duration
	source      Source
	clock       Clock
	filter      *FileFilter
	logger      *slog.Logger

	mu        sync.Mutex
	pending   map[string]*Batch
	queue     *deadlineQueue
	ready     []Batch
	deletions []string
	gap       *GapBuffer
	started   bool
	stopped   bool

	sub      Subscription
	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	scanOnce sync.Once
	wg       sync.WaitGroup
}

// New validates cfg and returns an Engine that has not started yet.
func New(cfg Config) (*Engine, error) {
	if cfg.Root == "" {
		return nil, errors.New("watcher: root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = DefaultQuietPeriod
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Source == nil {
		cfg.Source = NewFSNotifySource(cfg.Logger)
	}
	filter, err := NewFileFilter(cfg.IgnorePatterns)
	if err != nil {
		return nil, err
	}
	return &Engine{
		root:        root,
		quietPeriod: cfg.QuietPeriod,
		tick:        cfg.TickInterval,
		source:      cfg.Source,
		clock:       cfg.Clock,
		filter:      filter,
		logger:      logging.NewComponentLogger(cfg.Logger, "watcher"),
		pending:     make(map[string]*Batch),
		queue:       newDeadlineQueue(),
		gap:         &GapBuffer{},
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}, nil
}

// Start subscribes to the source and begins capturing events into the gap
// buffer. It returns once the subscription is in place.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	if e.started {
		return errors.New("watcher: already started")
	}
	info, err := os.Stat(e.root)
	if err != nil {
		return fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", e.root)
	}
	sub, err := e.source.Subscribe(e.root)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", e.root, err)
	}
	e.sub = sub
	e.started = true

	ticker := e.clock.NewTicker(e.tick)
	e.wg.Add(1)
	go e.run(sub, ticker)

	e.logger.Info("watching source tree", logging.Path(e.root), logging.Duration("quiet_period", e.quietPeriod))
	return nil
}

// Stop ends the subscription, drops every pending batch and releases anyone
// blocked in Wait. Batches already released stay collectable.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopped = true
		sub := e.sub
		dropped := len(e.pending)
		e.pending = make(map[string]*Batch)
		e.queue.Reset()
		e.mu.Unlock()

		close(e.done)
		if sub != nil {
			if err := sub.Close(); err != nil {
				e.logger.Warn("closing subscription", logging.Error(err))
			}
		}
		e.wg.Wait()
		if dropped > 0 {
			e.logger.Info("dropped pending batches on stop", logging.Int(logging.FieldCount, dropped))
		}
	})
}

// SignalScanComplete ends gap protection. Buffered events are replayed in
// arrival order, then live handling begins. Later calls do nothing.
func (e *Engine) SignalScanComplete() {
	e.scanOnce.Do(func() {
		e.mu.Lock()
		events := e.gap.Drain()
		for _, ev := range events {
			e.applyLocked(ev)
		}
		signal := len(e.ready) > 0 || len(e.deletions) > 0
		e.mu.Unlock()

		e.logger.Info("initial scan complete, replayed buffered events", logging.Int(logging.FieldCount, len(events)))
		if signal {
			e.notify()
		}
	})
}

// CollectBatches returns every batch whose quiet period has elapsed, in the
// order the periods ended. It never blocks.
func (e *Engine) CollectBatches() []Batch {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.ready
	e.ready = nil
	return out
}

// CollectDeletions returns deleted paths in notification order. It never
// blocks.
func (e *Engine) CollectDeletions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.deletions
	e.deletions = nil
	return out
}

// Ready is signalled when batches or deletions become available.
func (e *Engine) Ready() <-chan struct{} { return e.wake }

// Wait blocks until batches or deletions are available, ctx ends or the
// engine stops.
func (e *Engine) Wait(ctx context.Context) error {
	for {
		e.mu.Lock()
		available := len(e.ready) > 0 || len(e.deletions) > 0
		stopped := e.stopped
		e.mu.Unlock()
		if available {
			return nil
		}
		if stopped {
			return ErrStopped
		}
		select {
		case <-e.wake:
		case <-e.done:
			return ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PendingDirs returns the number of directories still accumulating.
func (e *Engine) PendingDirs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Buffering reports whether gap protection is still active.
func (e *Engine) Buffering() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gap.Active()
}

func (e *Engine) run(sub Subscription, ticker Ticker) {
	defer e.wg.Done()
	defer ticker.Stop()

	events := sub.Events()
	errs := sub.Errors()
	for {
		select {
		case <-e.done:
			return
		case ev, ok := <-events:
			if !ok {
				e.logger.Warn("event stream closed")
				return
			}
			e.handle(ev)
			ev.markHandled()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			e.logger.Warn("watch error", logging.Error(err))
		case <-ticker.C():
			e.flushDue()
		}
	}
}

func (e *Engine) handle(ev Event) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	if e.gap.Active() {
		e.gap.Append(ev)
		e.mu.Unlock()
		return
	}
	e.applyLocked(ev)
	signal := len(e.deletions) > 0 && ev.Kind == EventDelete
	e.mu.Unlock()
	if signal {
		e.notify()
	}
}

// applyLocked is the live handling of one event. e.mu must be held.
func (e *Engine) applyLocked(ev Event) {
	if e.filter.ShouldIgnore(ev.Path) {
		return
	}
	switch ev.Kind {
	case EventDelete:
		e.deletions = append(e.deletions, ev.Path)
	case EventCreate:
		if ev.IsDir || classifier.Classify(ev.Path) == classifier.Ignored {
			return
		}
		dir := filepath.Dir(ev.Path)
		b, ok := e.pending[dir]
		if !ok {
			b = newBatch(dir)
			e.pending[dir] = b
		}
		now := e.clock.Now()
		b.add(ev.Path, now)
		e.queue.Touch(dir, now.Add(e.quietPeriod))
	}
}

// flushDue moves batches whose quiet period has elapsed to the ready list.
func (e *Engine) flushDue() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	due := e.queue.PopDue(e.clock.Now())
	for _, dir := range due {
		b := e.pending[dir]
		delete(e.pending, dir)
		if b == nil {
			continue
		}
		e.ready = append(e.ready, b.snapshot())
		e.logger.Debug("batch ready", logging.String(logging.FieldDir, dir), logging.Int(logging.FieldCount, len(b.Paths)))
	}
	e.mu.Unlock()
	if len(due) > 0 {
		e.notify()
	}
}

func (e *Engine) notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}
