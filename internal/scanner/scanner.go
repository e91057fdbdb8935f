// Package scanner enumerates the source tree for the initial scan and reads
// back what the destination tree already holds.
package scanner

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"medialink/internal/classifier"
	"medialink/internal/logging"
	"medialink/internal/organizer"
	"medialink/internal/symlink"
)

// IgnoreFile marks a directory whose subtree the scan skips.
const IgnoreFile = ".ignore"

// ScanErrorType represents the type of scanning error.
type ScanErrorType string

const (
	// DirectoryNotFound indicates the directory does not exist.
	DirectoryNotFound ScanErrorType = "DIRECTORY_NOT_FOUND"
	// PermissionDenied indicates insufficient permissions to read the directory.
	PermissionDenied ScanErrorType = "PERMISSION_DENIED"
)

// ScanError represents an error that occurred during directory scanning.
type ScanError struct {
	Type ScanErrorType
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return string(e.Type) + ": " + e.Path
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// DirBatch is the set of video files found directly inside one directory.
type DirBatch struct {
	Dir   string
	Files []string
}

// Options configures ScanBatches.
type Options struct {
	// Skip holds absolute paths of files and directories to leave out,
	// typically the union of processed and failed sources.
	Skip   map[string]struct{}
	Logger *slog.Logger
}

// ScanBatches walks root and groups its video files by directory. Directories
// containing an IgnoreFile and directories listed in Skip are skipped along
// with their subtrees. Unreadable subdirectories are logged and skipped.
func ScanBatches(root string, opts Options) ([]DirBatch, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := checkRoot(abs); err != nil {
		return nil, err
	}

	var batches []DirBatch
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == abs {
				return classify(path, err)
			}
			logger.Warn("cannot read source entry", logging.Path(path), logging.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if _, skip := opts.Skip[path]; skip {
			logger.Info("skipping directory marked as failed", logging.Path(path))
			return filepath.SkipDir
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			logger.Warn("cannot read source directory", logging.Path(path), logging.Error(err))
			return filepath.SkipDir
		}
		var files []string
		for _, entry := range entries {
			if entry.Name() == IgnoreFile && !entry.IsDir() {
				logger.Info("ignoring directory", logging.Path(path))
				return filepath.SkipDir
			}
			if entry.IsDir() || !classifier.IsVideo(entry.Name()) {
				continue
			}
			full := filepath.Join(path, entry.Name())
			if _, skip := opts.Skip[full]; skip {
				continue
			}
			files = append(files, full)
		}
		if len(files) > 0 {
			batches = append(batches, DirBatch{Dir: path, Files: files})
		}
		return nil
	})
	return batches, err
}

// IsIgnored reports whether path lies in a directory subtree marked with an
// IgnoreFile, looking no higher than root.
func IsIgnored(root, path string) bool {
	root = filepath.Clean(root)
	dir := filepath.Dir(filepath.Clean(path))
	for {
		if _, err := os.Lstat(filepath.Join(dir, IgnoreFile)); err == nil {
			return true
		}
		if dir == root {
			return false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}

// LinkedVideo is a valid video link in a destination tree.
type LinkedVideo struct {
	Link   string
	Source string
	HasNFO bool
}

// LinkedVideos returns every video symlink under the given destination roots
// whose target exists. Missing roots are skipped.
func LinkedVideos(destRoots ...string) ([]LinkedVideo, error) {
	var linked []LinkedVideo
	var errs []error
	for _, root := range destRoots {
		if root == "" {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root && errors.Is(err, fs.ErrNotExist) {
					return filepath.SkipAll
				}
				if d != nil && d.IsDir() && path != root {
					return filepath.SkipDir
				}
				if path == root {
					return err
				}
				return nil
			}
			if d.Type()&fs.ModeSymlink == 0 || !classifier.IsVideo(d.Name()) {
				return nil
			}
			target, err := symlink.Target(path)
			if err != nil {
				return nil
			}
			if _, err := os.Stat(target); err != nil {
				return nil
			}
			_, nfoErr := os.Stat(organizer.NFOPath(path))
			linked = append(linked, LinkedVideo{Link: path, Source: target, HasNFO: nfoErr == nil})
			return nil
		})
		if err != nil {
			errs = append(errs, classify(root, err))
		}
	}
	return linked, errors.Join(errs...)
}

// ProcessedSources returns the sources of linked videos that already have a
// sidecar. The initial scan skips them.
func ProcessedSources(destRoots ...string) (map[string]struct{}, error) {
	linked, err := LinkedVideos(destRoots...)
	processed := make(map[string]struct{}, len(linked))
	for _, lv := range linked {
		if lv.HasNFO {
			processed[lv.Source] = struct{}{}
		}
	}
	return processed, err
}

func checkRoot(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return classify(path, err)
	}
	if !info.IsDir() {
		return &ScanError{
			Type: DirectoryNotFound,
			Path: path,
			Err:  errors.New("path is not a directory"),
		}
	}
	return nil
}

func classify(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &ScanError{Type: DirectoryNotFound, Path: path, Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &ScanError{Type: PermissionDenied, Path: path, Err: err}
	default:
		return err
	}
}
