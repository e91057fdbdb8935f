// Package reconcile removes destination links that no longer lead anywhere.
//
// A sweep runs in two phases. The validity phase walks every symlink under a
// destination root, deletes those whose target is gone (together with the
// .nfo of a removed video link) and records which directories still hold a
// valid video link. The orphan phase then deletes every audio or subtitle
// link that has no valid video link beside it, even when the track itself
// still exists. In a directory holding several videos (a season folder) a
// track belongs to the video whose name it extends. Empty directories left
// behind are removed and stale entries in the root's .failed list are pruned.
package reconcile

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"medialink/internal/classifier"
	"medialink/internal/failures"
	"medialink/internal/logging"
	"medialink/internal/organizer"
	"medialink/internal/symlink"
)

// Report lists what one sweep removed.
type Report struct {
	Root            string
	RemovedLinks    []string
	RemovedOrphans  []string
	RemovedSidecars []string
	RemovedDirs     []string
	PrunedFailures  []string
}

// Total returns the number of removed links.
func (r *Report) Total() int {
	return len(r.RemovedLinks) + len(r.RemovedOrphans)
}

// Empty reports whether the sweep changed nothing.
func (r *Report) Empty() bool {
	return r.Total() == 0 && len(r.RemovedSidecars) == 0 && len(r.RemovedDirs) == 0 && len(r.PrunedFailures) == 0
}

// Merge adds other's entries to r.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.RemovedLinks = append(r.RemovedLinks, other.RemovedLinks...)
	r.RemovedOrphans = append(r.RemovedOrphans, other.RemovedOrphans...)
	r.RemovedSidecars = append(r.RemovedSidecars, other.RemovedSidecars...)
	r.RemovedDirs = append(r.RemovedDirs, other.RemovedDirs...)
	r.PrunedFailures = append(r.PrunedFailures, other.PrunedFailures...)
}

// Reconciler sweeps destination roots.
type Reconciler struct {
	// SourceRoot locates the .failed entries of each destination root. When
	// empty the failure lists are left untouched.
	SourceRoot string
	Logger     *slog.Logger
}

// New returns a Reconciler for files under sourceRoot.
func New(sourceRoot string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reconciler{SourceRoot: sourceRoot, Logger: logging.NewComponentLogger(logger, "reconcile")}
}

// Reconcile sweeps destRoot with a default Reconciler.
func Reconcile(destRoot string) (*Report, error) {
	return New("", nil).Reconcile(destRoot)
}

// Reconcile runs both phases over destRoot. A missing root yields an empty
// report. Failures on individual entries are logged and skipped; only an
// unreadable root is returned as an error.
func (r *Reconciler) Reconcile(destRoot string) (*Report, error) {
	report := &Report{Root: destRoot}
	info, err := os.Stat(destRoot)
	if errors.Is(err, fs.ErrNotExist) {
		return report, nil
	}
	if err != nil {
		return report, err
	}
	if !info.IsDir() {
		return report, &fs.PathError{Op: "reconcile", Path: destRoot, Err: errors.New("not a directory")}
	}

	sweep := &sweep{
		report:       report,
		logger:       r.logger(),
		validPrimary: make(map[string][]string),
	}
	if err := sweep.validity(destRoot); err != nil {
		return report, err
	}
	sweep.orphans()
	sweep.pruneDirs(destRoot)

	if r.SourceRoot != "" {
		pruned, err := failures.New(destRoot, r.SourceRoot).Prune()
		if err != nil {
			r.logger().Warn("cannot prune failure list", logging.Path(destRoot), logging.Error(err))
		}
		report.PrunedFailures = pruned
	}

	if !report.Empty() {
		r.logger().Info("reconciled destination",
			logging.Path(destRoot),
			logging.Int("removed_links", len(report.RemovedLinks)),
			logging.Int("removed_orphans", len(report.RemovedOrphans)),
			logging.Int("removed_dirs", len(report.RemovedDirs)),
			logging.Int("pruned_failures", len(report.PrunedFailures)),
		)
	}
	return report, nil
}

func (r *Reconciler) logger() *slog.Logger {
	if r.Logger == nil {
		return logging.NewNop()
	}
	return r.Logger
}

type sweep struct {
	report       *Report
	logger       *slog.Logger
	validPrimary map[string][]string // directory -> base names of valid video links
	secondaries  []string
	dirs         []string
}

// validity is the first phase.
func (s *sweep) validity(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			s.logger.Warn("cannot read destination entry", logging.Path(path), logging.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root {
				s.dirs = append(s.dirs, path)
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}

		if symlink.IsBroken(path) {
			s.removeBroken(path, d.Name())
			return nil
		}
		if _, err := os.Stat(path); err != nil {
			s.logger.Warn("cannot resolve link", logging.Path(path), logging.Error(err))
			return nil
		}
		dir := filepath.Dir(path)
		switch {
		case classifier.IsVideo(d.Name()):
			s.validPrimary[dir] = append(s.validPrimary[dir], classifier.BaseName(d.Name()))
		case classifier.IsExternal(d.Name()):
			s.secondaries = append(s.secondaries, path)
		}
		return nil
	})
}

func (s *sweep) removeBroken(path, name string) {
	if !s.remove(path) {
		return
	}
	s.logger.Info("removed broken link", logging.Path(path))
	s.report.RemovedLinks = append(s.report.RemovedLinks, path)

	if !classifier.IsVideo(name) {
		return
	}
	nfo := organizer.NFOPath(path)
	if _, err := os.Lstat(nfo); err == nil && s.remove(nfo) {
		s.logger.Info("removed sidecar", logging.Path(nfo))
		s.report.RemovedSidecars = append(s.report.RemovedSidecars, nfo)
	}
}

// orphans is the second phase.
func (s *sweep) orphans() {
	for _, path := range s.secondaries {
		if s.hasPrimary(path) {
			continue
		}
		if s.remove(path) {
			s.logger.Info("removed orphaned link", logging.Path(path))
			s.report.RemovedOrphans = append(s.report.RemovedOrphans, path)
		}
	}
}

func (s *sweep) hasPrimary(secondary string) bool {
	name := filepath.Base(secondary)
	for _, base := range s.validPrimary[filepath.Dir(secondary)] {
		if extends(name, base) {
			return true
		}
	}
	return false
}

// extends reports whether name starts with base without continuing a number
// that base ends in: "Show - S01E10.srt" extends "Show - S01E10" but
// "Show - S01E100.srt" does not.
func extends(name, base string) bool {
	if !strings.HasPrefix(name, base) {
		return false
	}
	rest := name[len(base):]
	if base == "" || rest == "" {
		return true
	}
	return !isDigit(base[len(base)-1]) || !isDigit(rest[0])
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// pruneDirs removes empty directories deepest first. The root is kept.
func (s *sweep) pruneDirs(root string) {
	sort.SliceStable(s.dirs, func(i, j int) bool {
		return depth(s.dirs[i]) > depth(s.dirs[j])
	})
	for _, dir := range s.dirs {
		if dir == root {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if s.remove(dir) {
			s.logger.Info("removed empty directory", logging.Path(dir))
			s.report.RemovedDirs = append(s.report.RemovedDirs, dir)
		}
	}
}

func (s *sweep) remove(path string) bool {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return err == nil
	}
	s.logger.Warn("cannot remove", logging.Path(path), logging.Error(err))
	return false
}

func depth(path string) int {
	return strings.Count(filepath.Clean(path), string(filepath.Separator))
}
