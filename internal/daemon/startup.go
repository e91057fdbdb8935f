package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"medialink/internal/failures"
	"medialink/internal/logging"
	"medialink/internal/processor"
	"medialink/internal/reconcile"
	"medialink/internal/scanner"
	"medialink/internal/services"
)

// Reconcile sweeps the movies and series roots and journals what was removed.
func (d *Daemon) Reconcile() (*reconcile.Report, error) {
	total := &reconcile.Report{}
	var errs []error
	for _, root := range d.destinationRoots() {
		report, err := d.reconciler.Reconcile(root)
		if err != nil {
			errs = append(errs, fmt.Errorf("reconcile %s: %w", root, err))
		}
		if report == nil {
			continue
		}
		for _, link := range report.RemovedLinks {
			d.journalErr(d.journal.RecordUnlink(link))
		}
		for _, link := range report.RemovedOrphans {
			d.journalErr(d.journal.RecordOrphan(link))
		}
		total.Merge(report)
	}
	return total, errors.Join(errs...)
}

// Relink recomputes the external media of every valid video link and links
// whatever appeared since it was processed. Links are handled by a bounded
// worker group; individual failures are logged.
func (d *Daemon) Relink(ctx context.Context) (int, error) {
	linked, err := d.linkedVideos()
	if err != nil {
		d.logger.Warn("cannot list every linked video", logging.Error(err))
	}
	if len(linked) == 0 {
		return 0, ctx.Err()
	}

	var created atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Daemon.RelinkWorkers)
	for _, lv := range linked {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			links, err := d.processor.Relink(lv.Source, lv.Link)
			if err != nil {
				d.logger.Warn("relink failed", logging.Path(lv.Source), logging.Error(err))
			}
			created.Add(int64(len(links)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(created.Load()), err
	}
	if n := created.Load(); n > 0 {
		d.logger.Info("relinked external media", logging.Int(logging.FieldCount, int(n)))
	}
	return int(created.Load()), nil
}

// InitialScan feeds every unprocessed video of the source tree through
// identification and processing, one directory at a time. Files already
// linked with a sidecar and files on a failure list are skipped.
func (d *Daemon) InitialScan(ctx context.Context) (processor.Summary, error) {
	var summary processor.Summary

	skip, err := scanner.ProcessedSources(d.destinationRoots()...)
	if err != nil {
		d.logger.Warn("cannot read every processed source", logging.Error(err))
	}
	failed, err := failures.LoadAll(d.processor.FailureLists()...)
	if err != nil {
		d.logger.Warn("cannot read failure lists", logging.Error(err))
	}
	for path := range failed {
		skip[path] = struct{}{}
	}

	batches, err := scanner.ScanBatches(d.cfg.Paths.SourceDir, scanner.Options{Skip: skip, Logger: d.base})
	if err != nil {
		return summary, fmt.Errorf("scan source tree: %w", err)
	}
	if d.progress != nil && len(batches) > 0 {
		d.progress.StartProgress(len(batches))
		defer d.progress.EndProgress()
	}
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if d.progress != nil {
			d.progress.UpdateProgress(i+1, d.folderContext(batch.Dir))
		}
		summary.Merge(d.processFiles(ctx, batch.Dir, batch.Files))
	}
	if summary.Total() > 0 {
		d.logger.Info("initial scan finished", logging.String("summary", summary.String()))
	}
	return summary, nil
}

// processFiles identifies videos from one directory in a single request and
// processes each answer. When the batch cannot be identified at all every
// file is marked failed; other identification errors leave the files for a
// later retry.
func (d *Daemon) processFiles(ctx context.Context, dir string, files []string) processor.Summary {
	var summary processor.Summary
	if len(files) == 0 {
		return summary
	}
	infos, err := d.identifier.Batch(ctx, files, d.folderContext(dir))
	if err == nil && len(infos) != len(files) {
		err = services.Wrap(services.ErrValidation, "daemon", "identify",
			fmt.Sprintf("%d answers for %d files", len(infos), len(files)), nil)
	}
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			for _, f := range files {
				summary.Add(d.processor.FailUnidentified(f, err))
			}
			return summary
		}
		d.logger.Warn("identification failed, will retry later",
			logging.String(logging.FieldDir, dir),
			logging.Int(logging.FieldCount, len(files)),
			logging.Error(err))
		for _, f := range files {
			summary.Add(processor.Result{SourcePath: f, Outcome: processor.Skipped, Error: err})
		}
		return summary
	}
	for i, f := range files {
		if ctx.Err() != nil {
			break
		}
		summary.Add(d.processor.Process(ctx, f, infos[i]))
	}
	return summary
}

// folderContext returns dir relative to the source root, or "" for the root
// itself.
func (d *Daemon) folderContext(dir string) string {
	rel, err := filepath.Rel(d.cfg.Paths.SourceDir, dir)
	if err != nil || rel == "." {
		return ""
	}
	return rel
}

func (d *Daemon) journalErr(err error) {
	if err != nil {
		d.logger.Warn("journal write failed", logging.Error(err))
	}
}

func ensureDir(file string) error {
	return os.MkdirAll(filepath.Dir(file), 0o755)
}
