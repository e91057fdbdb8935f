package watcher

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultIgnorePatterns returns the patterns for partial downloads and
// temporary files that never reach the batch.
func DefaultIgnorePatterns() []string {
	return []string{
		"*.tmp",
		"*.part",
		"*.partial",
		"*.download",
		"*.crdownload",
		"*.!qB",
		"*.!ut",
		"*.aria2",
		".~*",
	}
}

// FileFilter matches paths against ignore patterns. A pattern matches when it
// matches the base name, the whole path, or any trailing run of path
// segments.
type FileFilter struct {
	patterns []string
	globs    []glob.Glob
}

// NewFileFilter compiles patterns. Nil or empty patterns select the defaults.
func NewFileFilter(patterns []string) (*FileFilter, error) {
	if len(patterns) == 0 {
		patterns = DefaultIgnorePatterns()
	}
	f := &FileFilter{patterns: append([]string(nil), patterns...)}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		f.globs = append(f.globs, g)
	}
	return f, nil
}

// ShouldIgnore reports whether path matches any pattern.
func (f *FileFilter) ShouldIgnore(path string) bool {
	if f == nil {
		return false
	}
	slashed := filepath.ToSlash(path)
	base := filepath.Base(path)
	for _, g := range f.globs {
		if g.Match(base) || g.Match(slashed) || matchesSuffix(g, slashed) {
			return true
		}
	}
	return false
}

// Patterns returns a copy of the configured patterns.
func (f *FileFilter) Patterns() []string {
	return append([]string(nil), f.patterns...)
}

func matchesSuffix(g glob.Glob, slashed string) bool {
	parts := strings.Split(strings.Trim(slashed, "/"), "/")
	for i := 1; i < len(parts); i++ {
		if g.Match(strings.Join(parts[i:], "/")) {
			return true
		}
	}
	return false
}
