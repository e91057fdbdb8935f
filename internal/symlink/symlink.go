// Package symlink creates and inspects symlinks whose targets are stored relative
// to the link's own directory, so a destination tree stays valid when the whole
// tree is relocated.
package symlink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LinkErrorType represents the type of link error.
type LinkErrorType string

const (
	// SourceNotFound indicates the link target does not exist.
	SourceNotFound LinkErrorType = "SOURCE_NOT_FOUND"
	// PathConflict indicates the destination exists and is not a symlink.
	PathConflict LinkErrorType = "PATH_CONFLICT"
	// PermissionDenied indicates insufficient permissions for the operation.
	PermissionDenied LinkErrorType = "PERMISSION_DENIED"
)

// LinkError represents an error that occurred while creating a link.
type LinkError struct {
	Type LinkErrorType
	Path string
	Err  error
}

func (e *LinkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Path)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// IsPathConflict reports whether err is a LinkError of type PathConflict.
func IsPathConflict(err error) bool {
	var linkErr *LinkError
	return errors.As(err, &linkErr) && linkErr.Type == PathConflict
}

// Result describes what CreateRelativeSymlink did.
type Result string

const (
	Created   Result = "CREATED"
	Replaced  Result = "REPLACED"
	Unchanged Result = "UNCHANGED"
)

// Options configures link creation.
type Options struct {
	// ReplaceFiles allows a regular file at the destination to be replaced.
	// Directories are never replaced.
	ReplaceFiles bool
}

// CreateRelativeSymlink creates dst as a symlink to src using a path relative
// to dst's parent directory. Missing parent directories are created.
//
// An existing link that already resolves to src is left untouched. A link that
// points elsewhere is replaced. Any other entry at dst is a PathConflict.
func CreateRelativeSymlink(src, dst string) (Result, error) {
	return CreateRelativeSymlinkWithOptions(src, dst, Options{})
}

// CreateRelativeSymlinkWithOptions is CreateRelativeSymlink with a caller policy
// for non-link entries at dst.
func CreateRelativeSymlinkWithOptions(src, dst string, opts Options) (Result, error) {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return "", err
	}
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(absSrc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &LinkError{Type: SourceNotFound, Path: absSrc, Err: err}
		}
		return "", classify(absSrc, err)
	}

	parent := filepath.Dir(absDst)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", classify(parent, err)
	}

	rel, err := filepath.Rel(parent, absSrc)
	if err != nil {
		return "", fmt.Errorf("compute relative path from %s to %s: %w", parent, absSrc, err)
	}

	info, err := os.Lstat(absDst)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.Symlink(rel, absDst); err != nil {
			if errors.Is(err, fs.ErrExist) {
				// Lost a race with a concurrent writer; re-evaluate once.
				return CreateRelativeSymlinkWithOptions(src, dst, opts)
			}
			return "", classify(absDst, err)
		}
		return Created, nil
	case err != nil:
		return "", classify(absDst, err)
	}

	if info.Mode()&os.ModeSymlink == 0 {
		if info.IsDir() || !opts.ReplaceFiles {
			return "", &LinkError{Type: PathConflict, Path: absDst, Err: fmt.Errorf("existing %s is not a symlink", describeMode(info))}
		}
		if err := replaceWithLink(rel, absDst); err != nil {
			return "", err
		}
		return Replaced, nil
	}

	if same, err := PointsTo(absDst, absSrc); err == nil && same {
		return Unchanged, nil
	}

	if err := replaceWithLink(rel, absDst); err != nil {
		return "", err
	}
	return Replaced, nil
}

// replaceWithLink atomically swaps dst for a symlink to target by renaming a
// temporary link over it.
func replaceWithLink(target, dst string) error {
	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp"+strconv.FormatInt(time.Now().UnixNano(), 36))
	if err := os.Symlink(target, tmp); err != nil {
		return classify(dst, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return classify(dst, err)
	}
	return nil
}

// Target returns the absolute path a symlink points at, without following
// further links. Relative targets are resolved against the link's directory.
func Target(link string) (string, error) {
	raw, err := os.Readlink(link)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(raw) {
		raw = filepath.Join(filepath.Dir(link), raw)
	}
	return filepath.Clean(raw), nil
}

// Resolve returns the fully symlink-resolved absolute path of the link target.
// A broken link yields an error satisfying errors.Is(err, fs.ErrNotExist).
func Resolve(link string) (string, error) {
	target, err := Target(link)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(target)
}

// PointsTo reports whether link resolves to the same file as src.
func PointsTo(link, src string) (bool, error) {
	target, err := Target(link)
	if err != nil {
		return false, err
	}
	if target == filepath.Clean(src) {
		return true, nil
	}
	resolvedTarget, err := filepath.EvalSymlinks(target)
	if err != nil {
		return false, nil
	}
	resolvedSrc, err := filepath.EvalSymlinks(src)
	if err != nil {
		return false, nil
	}
	return resolvedTarget == resolvedSrc, nil
}

// IsSymlink reports whether path is a symlink. Missing paths are not links.
func IsSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// IsBroken reports whether path is a symlink whose target no longer exists.
func IsBroken(path string) bool {
	if !IsSymlink(path) {
		return false
	}
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}

func classify(path string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return &LinkError{Type: PermissionDenied, Path: path, Err: err}
	}
	return err
}

func describeMode(info fs.FileInfo) string {
	if info.IsDir() {
		return "directory"
	}
	return "file"
}
