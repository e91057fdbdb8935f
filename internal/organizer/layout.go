package organizer

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"medialink/internal/normalizer"
)

// TVShowNFO is the series-level sidecar written once per series folder.
const TVShowNFO = "tvshow.nfo"

// FolderName returns "<Title> (<Year>)" with the title escaped for use as a
// path component. A zero year is omitted.
func FolderName(title string, year int) string {
	safe := normalizer.EscapeFilename(title)
	if year <= 0 {
		return safe
	}
	return fmt.Sprintf("%s (%d)", safe, year)
}

// MovieDestination returns <root>/<Title> (<Year>)/<Title> (<Year>)<ext>.
func MovieDestination(root, title string, year int, sourcePath string) string {
	name := FolderName(title, year)
	return filepath.Join(root, name, name+filepath.Ext(sourcePath))
}

// SeriesFolder returns the top-level folder of a series under root.
func SeriesFolder(root, title string, year int) string {
	return filepath.Join(root, FolderName(title, year))
}

// EpisodeDestination returns
// <root>/<Title> (<Year>)/Season <S>/<Title> - S<ss>E<ee><ext>.
// Numeric season and episode values are zero-padded to two digits; other
// values (for example a "19-20" double episode) are used as given.
func EpisodeDestination(root, title string, year int, season, episode, sourcePath string) string {
	safe := normalizer.EscapeFilename(title)
	seasonDir := "Season " + seasonLabel(season)
	file := fmt.Sprintf("%s - S%sE%s%s", safe, PadNumber(season), PadNumber(episode), filepath.Ext(sourcePath))
	return filepath.Join(SeriesFolder(root, title, year), seasonDir, file)
}

// NFOPath returns the sidecar path that accompanies a destination video.
func NFOPath(videoDest string) string {
	return strings.TrimSuffix(videoDest, filepath.Ext(videoDest)) + ".nfo"
}

// PadNumber formats a whole number with at least two digits and returns any
// other value unchanged.
func PadNumber(value string) string {
	value = strings.TrimSpace(value)
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return value
	}
	return fmt.Sprintf("%02d", n)
}

func seasonLabel(value string) string {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil && n >= 0 {
		return strconv.Itoa(n)
	}
	return value
}
