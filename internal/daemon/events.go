package daemon

import (
	"context"
	"path/filepath"
	"strings"

	"medialink/internal/classifier"
	"medialink/internal/logging"
	"medialink/internal/processor"
	"medialink/internal/scanner"
	"medialink/internal/watcher"
)

// HandleDeletions reacts to removed source paths. A single deletion can
// orphan links in either root, so both are reconciled in full.
func (d *Daemon) HandleDeletions(paths []string) {
	d.logger.Debug("source paths deleted", logging.Int(logging.FieldCount, len(paths)))
	if _, err := d.Reconcile(); err != nil {
		d.logger.Warn("reconcile after deletion failed", logging.Error(err))
	}
}

// HandleBatch processes one flushed directory batch. Paths that vanished are
// dropped, paths still being written wait for a later event and videos that
// are already linked are ignored. New videos are identified and linked, and
// new audio or subtitle files are attached to the videos they belong to.
func (d *Daemon) HandleBatch(ctx context.Context, batch watcher.Batch) processor.Summary {
	var summary processor.Summary

	var videos, externals []string
	for _, p := range batch.Paths {
		switch {
		case scanner.IsIgnored(d.cfg.Paths.SourceDir, p):
			d.logger.Debug("path is under an ignored directory", logging.Path(p))
		case classifier.IsVideo(p):
			videos = append(videos, p)
		case classifier.IsExternal(p):
			externals = append(externals, p)
		}
	}
	videos = d.unprocessed(d.stable(ctx, videos))
	externals = d.stable(ctx, externals)

	if len(videos) > 0 {
		d.logger.Info("processing batch",
			logging.String(logging.FieldDir, batch.Dir),
			logging.Int(logging.FieldCount, len(videos)))
		summary.Merge(d.processFiles(ctx, batch.Dir, videos))
	}
	if len(externals) > 0 {
		summary.Externals += d.attachExternals(externals)
	}
	return summary
}

// unprocessed drops videos that already have a link with a sidecar. Events
// captured while the startup scan ran are replayed afterwards and may name
// files the scan has already linked. Files on a failure list are kept so a
// new event retries them.
func (d *Daemon) unprocessed(videos []string) []string {
	if len(videos) == 0 {
		return nil
	}
	done, err := scanner.ProcessedSources(d.destinationRoots()...)
	if err != nil {
		d.logger.Warn("cannot read every processed source", logging.Error(err))
	}
	kept := videos[:0]
	for _, p := range videos {
		if _, ok := done[p]; ok {
			d.logger.Debug("video already linked", logging.Path(p))
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

// stable drops paths that vanished or are still growing.
func (d *Daemon) stable(ctx context.Context, paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	report, err := d.stability.Check(ctx, paths)
	if err != nil {
		return nil
	}
	for _, p := range report.Unstable {
		d.logger.Info("file still changing, skipping for now", logging.Path(p))
	}
	return report.Stable
}

// attachExternals re-links every linked video whose base name prefixes one
// of the new files. The matcher decides which files actually belong to it.
func (d *Daemon) attachExternals(paths []string) int {
	linked, err := d.linkedVideos()
	if err != nil {
		d.logger.Warn("cannot list every linked video", logging.Error(err))
	}
	var created int
	seen := make(map[string]struct{})
	for _, p := range paths {
		name := filepath.Base(p)
		for _, lv := range linked {
			if _, ok := seen[lv.Link]; ok {
				continue
			}
			if !strings.HasPrefix(name, classifier.BaseName(lv.Source)) {
				continue
			}
			seen[lv.Link] = struct{}{}
			links, err := d.processor.Relink(lv.Source, lv.Link)
			if err != nil {
				d.logger.Warn("relink failed", logging.Path(lv.Source), logging.Error(err))
			}
			created += len(links)
		}
	}
	if created > 0 {
		d.logger.Info("linked new external media", logging.Int(logging.FieldCount, created))
	}
	return created
}
