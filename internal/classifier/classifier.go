// Package classifier decides what kind of media a path refers to, based only on its extension.
package classifier

import (
	"path/filepath"
	"strings"
)

// Kind represents the media kind of a path.
type Kind string

const (
	Video    Kind = "VIDEO"
	Audio    Kind = "AUDIO"
	Subtitle Kind = "SUBTITLE"
	Ignored  Kind = "IGNORED"
)

// Extension sets, lower case with the leading dot.
var (
	videoExtensions    = []string{".mkv", ".mp4", ".avi", ".mov", ".m4v", ".m2ts"}
	audioExtensions    = []string{".mka", ".mp3", ".aac", ".ac3", ".dts", ".flac"}
	subtitleExtensions = []string{".ass", ".srt", ".ssa", ".sub", ".vtt"}
)

// Classify returns the media kind of a filename or path.
// Extension comparison is case-insensitive; names without a known extension are Ignored.
func Classify(name string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return Ignored
	}
	switch {
	case contains(videoExtensions, ext):
		return Video
	case contains(audioExtensions, ext):
		return Audio
	case contains(subtitleExtensions, ext):
		return Subtitle
	default:
		return Ignored
	}
}

// IsVideo reports whether name has a video extension.
func IsVideo(name string) bool { return Classify(name) == Video }

// IsAudio reports whether name has an external audio extension.
func IsAudio(name string) bool { return Classify(name) == Audio }

// IsSubtitle reports whether name has a subtitle extension.
func IsSubtitle(name string) bool { return Classify(name) == Subtitle }

// IsExternal reports whether name is an external audio or subtitle track.
func IsExternal(name string) bool {
	k := Classify(name)
	return k == Audio || k == Subtitle
}

// BaseName strips the directory and the final extension from a path.
// "dir/Show - 01.mkv" becomes "Show - 01".
func BaseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func contains(list []string, ext string) bool {
	for _, e := range list {
		if e == ext {
			return true
		}
	}
	return false
}
