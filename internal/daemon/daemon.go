// Package daemon runs medialink: it takes the single-instance lock, starts
// the watcher before anything else, reconciles and re-links the library,
// performs the initial scan and then serves live batches and deletions
// until its context ends.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"medialink/internal/config"
	"medialink/internal/identify"
	"medialink/internal/journal"
	"medialink/internal/logging"
	"medialink/internal/processor"
	"medialink/internal/reconcile"
	"medialink/internal/scanner"
	"medialink/internal/watcher"
)

// Identifier describes batches of files.
type Identifier interface {
	Batch(ctx context.Context, paths []string, folder string) ([]identify.MediaInfo, error)
}

// Refresher notifies the media server after new links appear.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

// Progress receives the initial scan's progress, one step per directory.
type Progress interface {
	StartProgress(total int)
	UpdateProgress(current int, message string)
	EndProgress()
}

// Options wires a Daemon. Config, Identifier and Processor are required.
type Options struct {
	Config     *config.Config
	Identifier Identifier
	Processor  *processor.Processor
	Refresher  Refresher
	Progress   Progress
	Journal    *journal.Writer
	Source     watcher.Source
	Clock      watcher.Clock
	Logger     *slog.Logger
	Version    string
}

// Daemon coordinates the watcher, the startup passes and the live loop.
type Daemon struct {
	cfg        *config.Config
	identifier Identifier
	processor  *processor.Processor
	refresher  Refresher
	progress   Progress
	journal    *journal.Writer
	source     watcher.Source
	clock      watcher.Clock
	reconciler *reconcile.Reconciler
	stability  *watcher.StabilityChecker
	base       *slog.Logger
	logger     *slog.Logger
	version    string

	lockPath string
	lock     *flock.Flock
	started  chan struct{}
}

// Report summarises a startup pass or a one-shot scan.
type Report struct {
	Reconcile *reconcile.Report
	Relinked  int
	Scan      processor.Summary
	Duration  time.Duration
}

// New constructs a daemon.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Identifier == nil || opts.Processor == nil {
		return nil, errors.New("daemon requires config, identifier and processor")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	lockPath := opts.Config.LockPath()
	return &Daemon{
		cfg:        opts.Config,
		identifier: opts.Identifier,
		processor:  opts.Processor,
		refresher:  opts.Refresher,
		progress:   opts.Progress,
		journal:    opts.Journal,
		source:     opts.Source,
		clock:      opts.Clock,
		reconciler: reconcile.New(opts.Config.Paths.SourceDir, opts.Logger),
		stability:  watcher.NewStabilityChecker(opts.Config.StableThreshold()),
		base:       opts.Logger,
		logger:     logging.NewComponentLogger(opts.Logger, "daemon"),
		version:    opts.Version,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
		started:    make(chan struct{}),
	}, nil
}

// Started is closed once the initial scan has finished and live events are
// being handled.
func (d *Daemon) Started() <-chan struct{} { return d.started }

// Run performs the startup sequence and serves live events until ctx ends.
// Cancellation is a clean shutdown and returns nil.
func (d *Daemon) Run(ctx context.Context) (err error) {
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.release()

	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}
	d.startRun("run")
	defer func() { d.endRun(ctx, err) }()

	engine, err := watcher.New(watcher.Config{
		Root:           d.cfg.Paths.SourceDir,
		QuietPeriod:    d.cfg.QuietPeriod(),
		TickInterval:   d.cfg.TickInterval(),
		IgnorePatterns: d.cfg.Watch.IgnorePatterns,
		Source:         d.source,
		Clock:          d.clock,
		Logger:         d.base,
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Events arriving from here on are held until SignalScanComplete.
	if err := engine.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer engine.Stop()

	report, err := d.startup(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	d.logger.Info("startup complete",
		logging.Int("removed_links", report.Reconcile.Total()),
		logging.Int("relinked", report.Relinked),
		logging.Int("linked", report.Scan.Linked),
		logging.Int("failed", report.Scan.Failed),
		logging.Duration("duration", report.Duration))

	engine.SignalScanComplete()
	close(d.started)
	return d.loop(ctx, engine)
}

// Scan runs the startup passes once without watching.
func (d *Daemon) Scan(ctx context.Context) (report *Report, err error) {
	if err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.release()

	if err := d.cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare directories: %w", err)
	}
	d.startRun("scan")
	defer func() { d.endRun(ctx, err) }()
	return d.startup(ctx)
}

// ReconcileOnce sweeps both library roots under the lock.
func (d *Daemon) ReconcileOnce(ctx context.Context) (report *reconcile.Report, err error) {
	if err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.release()

	d.startRun("reconcile")
	defer func() { d.endRun(ctx, err) }()
	return d.Reconcile()
}

// startup runs reconciliation, the re-link pass and the initial scan in that
// order, then asks for a library refresh when anything was linked.
func (d *Daemon) startup(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}

	rec, err := d.Reconcile()
	report.Reconcile = rec
	if err != nil {
		return report, err
	}

	relinked, err := d.Relink(ctx)
	report.Relinked = relinked
	if err != nil {
		return report, err
	}

	scan, err := d.InitialScan(ctx)
	report.Scan = scan
	if err != nil {
		return report, err
	}
	if scan.Linked > 0 || relinked > 0 {
		d.refresh(ctx)
	}
	report.Duration = time.Since(start)
	return report, nil
}

func (d *Daemon) loop(ctx context.Context, engine *watcher.Engine) error {
	for {
		if err := engine.Wait(ctx); err != nil {
			if errors.Is(err, watcher.ErrStopped) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if deleted := engine.CollectDeletions(); len(deleted) > 0 {
			d.HandleDeletions(deleted)
		}
		var linked int
		for _, batch := range engine.CollectBatches() {
			if ctx.Err() != nil {
				return nil
			}
			summary := d.HandleBatch(ctx, batch)
			linked += summary.Linked + summary.Externals
		}
		if linked > 0 {
			d.refresh(ctx)
		}
	}
}

func (d *Daemon) acquire() error {
	if err := ensureDir(d.lockPath); err != nil {
		return fmt.Errorf("prepare lock: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another medialink instance holds %s", d.lockPath)
	}
	return nil
}

func (d *Daemon) release() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release lock", logging.Error(err))
	}
}

func (d *Daemon) startRun(command string) {
	if d.journal == nil {
		return
	}
	id, err := d.journal.StartRun(command, d.version)
	if err != nil {
		d.logger.Warn("cannot start journal run", logging.Error(err))
		return
	}
	d.logger.Debug("journal run started", logging.String("run_id", string(id)))
}

func (d *Daemon) endRun(ctx context.Context, err error) {
	if d.journal == nil || d.journal.RunID() == "" {
		return
	}
	status := journal.RunStatusCompleted
	switch {
	case err != nil:
		status = journal.RunStatusFailed
	case ctx.Err() != nil:
		status = journal.RunStatusInterrupted
	}
	if err := d.journal.EndRun(status); err != nil {
		d.logger.Warn("cannot end journal run", logging.Error(err))
	}
}

func (d *Daemon) refresh(ctx context.Context) {
	if d.refresher == nil {
		return
	}
	if err := d.refresher.RefreshAll(ctx); err != nil {
		d.logger.Warn("library refresh failed", logging.Error(err))
	}
}

// destinationRoots returns the movies and series roots.
func (d *Daemon) destinationRoots() []string {
	return d.cfg.DestinationRoots()
}

// linkedVideos lists the valid video links of both roots.
func (d *Daemon) linkedVideos() ([]scanner.LinkedVideo, error) {
	return scanner.LinkedVideos(d.destinationRoots()...)
}
