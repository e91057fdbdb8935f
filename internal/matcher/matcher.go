// Package matcher finds external audio and subtitle tracks that belong to a
// video file.
package matcher

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"medialink/internal/classifier"
	"medialink/internal/logging"
)

// DefaultMaxDepth bounds the recursive search below the video's directory.
const DefaultMaxDepth = 5

// MatchSet holds the external tracks found for one video, deduplicated by
// resolved path and ordered by discovery.
type MatchSet struct {
	Audio    []string
	Subtitle []string
}

// Len returns the total number of matched files.
func (m MatchSet) Len() int {
	return len(m.Audio) + len(m.Subtitle)
}

// All returns audio paths followed by subtitle paths.
func (m MatchSet) All() []string {
	all := make([]string, 0, m.Len())
	all = append(all, m.Audio...)
	return append(all, m.Subtitle...)
}

// Contains reports whether path is part of the set.
func (m MatchSet) Contains(path string) bool {
	for _, p := range m.All() {
		if p == path {
			return true
		}
	}
	return false
}

// Matcher searches a bounded region around a video for external media.
type Matcher struct {
	// Root is the source root. When the video lives directly in Root its
	// siblings are unrelated releases and are not searched.
	Root     string
	MaxDepth int
	Logger   *slog.Logger
}

// New returns a Matcher for the given source root.
func New(root string, maxDepth int, logger *slog.Logger) *Matcher {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Matcher{Root: root, MaxDepth: maxDepth, Logger: logging.NewComponentLogger(logger, "matcher")}
}

// FindExternalMedia searches with default settings and no source root.
func FindExternalMedia(videoPath string) MatchSet {
	return New("", DefaultMaxDepth, nil).FindExternalMedia(videoPath)
}

// FindExternalMedia returns every audio and subtitle file whose name starts
// with the video's base name. It looks in the video's directory, then in each
// sibling directory (non-recursively), then in subdirectories up to MaxDepth
// levels below the video's directory. Enumeration errors are logged and the
// affected directory contributes no matches.
func (m *Matcher) FindExternalMedia(videoPath string) MatchSet {
	c := &collector{
		prefix: classifier.BaseName(videoPath),
		seen:   make(map[string]struct{}),
		logger: m.logger(),
	}
	if c.prefix == "" {
		return MatchSet{}
	}

	videoDir := filepath.Dir(videoPath)
	c.scanDir(videoDir)

	if m.searchSiblings(videoDir) {
		parent := filepath.Dir(videoDir)
		entries, err := os.ReadDir(parent)
		if err != nil {
			c.warn(parent, err)
		}
		for _, entry := range entries {
			sibling := filepath.Join(parent, entry.Name())
			if sibling == videoDir || !isDir(sibling, entry) {
				continue
			}
			c.scanDir(sibling)
		}
	}

	c.walkSubdirs(videoDir, m.maxDepth())
	return c.set
}

func (m *Matcher) searchSiblings(videoDir string) bool {
	parent := filepath.Dir(videoDir)
	if parent == videoDir {
		return false
	}
	if m.Root == "" {
		return true
	}
	root := filepath.Clean(m.Root)
	if filepath.Clean(videoDir) == root {
		return false
	}
	rel, err := filepath.Rel(root, videoDir)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (m *Matcher) maxDepth() int {
	if m.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return m.MaxDepth
}

func (m *Matcher) logger() *slog.Logger {
	if m.Logger == nil {
		return logging.NewNop()
	}
	return m.Logger
}

type collector struct {
	prefix string
	seen   map[string]struct{}
	set    MatchSet
	logger *slog.Logger
}

// scanDir considers the direct children of dir.
func (c *collector) scanDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		c.warn(dir, err)
		return
	}
	for _, entry := range entries {
		c.consider(filepath.Join(dir, entry.Name()), entry)
	}
}

// walkSubdirs considers files in subdirectories of dir down to maxDepth.
func (c *collector) walkSubdirs(dir string, maxDepth int) {
	base := strings.Count(filepath.Clean(dir), string(filepath.Separator))
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			c.warn(path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.Count(path, string(filepath.Separator))-base > maxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Dir(path) == dir {
			return nil
		}
		c.consider(path, d)
		return nil
	})
	if err != nil {
		c.warn(dir, err)
	}
}

func (c *collector) consider(path string, entry fs.DirEntry) {
	name := entry.Name()
	if !strings.HasPrefix(name, c.prefix) {
		return
	}
	audio := classifier.IsAudio(name)
	if !audio && !classifier.IsSubtitle(name) {
		return
	}
	if isDir(path, entry) {
		return
	}

	key := path
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		key = resolved
	} else if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	if _, dup := c.seen[key]; dup {
		return
	}
	c.seen[key] = struct{}{}

	if audio {
		c.set.Audio = append(c.set.Audio, path)
	} else {
		c.set.Subtitle = append(c.set.Subtitle, path)
	}
}

func (c *collector) warn(path string, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	c.logger.Warn("cannot enumerate directory", logging.Path(path), logging.Error(err))
}

// isDir follows symlinks so a linked directory counts as a directory.
func isDir(path string, entry fs.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
