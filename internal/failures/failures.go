// Package failures maintains the .failed list kept in each destination root.
// Each line is a source path relative to the source root. Listed files are
// skipped by the initial scan so they are not retried on every start.
package failures

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// FileName is the name of the list inside a destination root.
const FileName = ".failed"

// List is the failure list of one destination root.
type List struct {
	DestRoot   string
	SourceRoot string

	mu sync.Mutex
}

// New returns the list stored in destRoot for files under sourceRoot.
func New(destRoot, sourceRoot string) *List {
	return &List{DestRoot: destRoot, SourceRoot: sourceRoot}
}

// Path returns the location of the list file.
func (l *List) Path() string {
	return filepath.Join(l.DestRoot, FileName)
}

// Mark records sourcePath. It reports whether the entry was added.
func (l *List) Mark(sourcePath string) (bool, error) {
	rel, err := l.relative(sourcePath)
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		return false, err
	}
	if slices.Contains(entries, rel) {
		return false, nil
	}
	return true, l.write(append(entries, rel))
}

// Unmark removes sourcePath. It reports whether an entry was removed.
func (l *List) Unmark(sourcePath string) (bool, error) {
	rel, err := l.relative(sourcePath)
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		return false, err
	}
	kept := slices.DeleteFunc(slices.Clone(entries), func(e string) bool { return e == rel })
	if len(kept) == len(entries) {
		return false, nil
	}
	return true, l.write(kept)
}

// Load returns the absolute source paths in the list.
func (l *List) Load() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, rel := range entries {
		paths = append(paths, l.absolute(rel))
	}
	return paths, nil
}

// Prune drops entries whose source no longer exists and returns them as
// absolute paths.
func (l *List) Prune() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	var kept, pruned []string
	for _, rel := range entries {
		abs := l.absolute(rel)
		if _, err := os.Lstat(abs); errors.Is(err, fs.ErrNotExist) {
			pruned = append(pruned, abs)
			continue
		}
		kept = append(kept, rel)
	}
	if len(pruned) == 0 {
		return nil, nil
	}
	return pruned, l.write(kept)
}

func (l *List) relative(sourcePath string) (string, error) {
	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		return "", err
	}
	if l.SourceRoot == "" {
		return abs, nil
	}
	rel, err := filepath.Rel(l.SourceRoot, abs)
	if err != nil {
		return "", fmt.Errorf("relative path for %s: %w", sourcePath, err)
	}
	return filepath.ToSlash(rel), nil
}

func (l *List) absolute(rel string) string {
	p := filepath.FromSlash(rel)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(l.SourceRoot, p)
}

func (l *List) read() ([]string, error) {
	f, err := os.Open(l.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !slices.Contains(entries, line) {
			entries = append(entries, line)
		}
	}
	return entries, scanner.Err()
}

// write replaces the list atomically. An empty list removes the file.
func (l *List) write(entries []string) error {
	if len(entries) == 0 {
		if err := os.Remove(l.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	if err := os.MkdirAll(l.DestRoot, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(l.DestRoot, FileName+".tmp-*")
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)
	for _, e := range entries {
		_, _ = w.WriteString(e + "\n")
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), l.Path()); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Set is the union of several lists, used by the initial scan.
type Set map[string]struct{}

// LoadAll merges the entries of lists into one Set. Unreadable lists are
// returned as an error alongside whatever could be read.
func LoadAll(lists ...*List) (Set, error) {
	set := make(Set)
	var errs []error
	for _, l := range lists {
		if l == nil {
			continue
		}
		paths, err := l.Load()
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", l.Path(), err))
			continue
		}
		for _, p := range paths {
			set[p] = struct{}{}
		}
	}
	return set, errors.Join(errs...)
}

// Contains reports whether path is listed.
func (s Set) Contains(path string) bool {
	_, ok := s[path]
	return ok
}
