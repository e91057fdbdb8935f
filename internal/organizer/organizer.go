// Package organizer places links for identified media into the library tree
// and attaches external audio and subtitle tracks next to them.
package organizer

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"medialink/internal/classifier"
	"medialink/internal/logging"
	"medialink/internal/matcher"
	"medialink/internal/symlink"
)

// Linker creates primary and secondary destination links.
type Linker struct {
	Options symlink.Options
	Logger  *slog.Logger
}

// NewLinker returns a Linker that logs through logger.
func NewLinker(logger *slog.Logger) *Linker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Linker{Logger: logging.NewComponentLogger(logger, "organizer")}
}

// LinkExternalMedia links matches next to videoDest using a default Linker.
func LinkExternalMedia(videoSrc, videoDest string, matches matcher.MatchSet) ([]string, error) {
	return NewLinker(nil).LinkExternalMedia(videoSrc, videoDest, matches)
}

// LinkVideo creates the primary link for a video.
func (l *Linker) LinkVideo(src, dest string) (symlink.Result, error) {
	result, err := symlink.CreateRelativeSymlinkWithOptions(src, dest, l.Options)
	if err != nil {
		return result, err
	}
	if result != symlink.Unchanged {
		l.logger().Info("linked video", logging.Path(src), logging.String(logging.FieldDest, dest), logging.String("result", string(result)))
	}
	return result, nil
}

// LinkExternalMedia links every file in matches next to videoDest. Each link
// is named after the destination video's base name followed by the suffix
// that distinguished the external file from the source video, keeping the
// external file's own extension. Existing correct links are left alone and
// links pointing elsewhere are replaced. The returned paths are the links
// that were created or replaced. A failure on one file does not stop the
// others; all failures are returned joined.
func (l *Linker) LinkExternalMedia(videoSrc, videoDest string, matches matcher.MatchSet) ([]string, error) {
	srcBase := classifier.BaseName(videoSrc)
	destBase := classifier.BaseName(videoDest)
	destDir := filepath.Dir(videoDest)

	var linked []string
	var errs []error
	for _, external := range matches.All() {
		dest, err := ExternalDestination(srcBase, destDir, destBase, external)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result, err := symlink.CreateRelativeSymlinkWithOptions(external, dest, l.Options)
		if err != nil {
			l.logger().Warn("cannot link external media", logging.Path(external), logging.String(logging.FieldDest, dest), logging.Error(err))
			errs = append(errs, err)
			continue
		}
		if result == symlink.Unchanged {
			continue
		}
		l.logger().Debug("linked external media", logging.Path(external), logging.String(logging.FieldDest, dest))
		linked = append(linked, dest)
	}
	return linked, errors.Join(errs...)
}

// ExternalDestination computes the link path for an external file. srcBase is
// the source video's name without extension, destBase the destination
// video's.
func ExternalDestination(srcBase, destDir, destBase, external string) (string, error) {
	name := filepath.Base(external)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if !strings.HasPrefix(stem, srcBase) {
		return "", fmt.Errorf("external file %q does not start with %q", name, srcBase)
	}
	suffix := strings.TrimPrefix(stem, srcBase)
	return filepath.Join(destDir, destBase+suffix+ext), nil
}

func (l *Linker) logger() *slog.Logger {
	if l.Logger == nil {
		return logging.NewNop()
	}
	return l.Logger
}
