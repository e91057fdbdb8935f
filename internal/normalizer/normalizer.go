// Package normalizer rewrites titles into names that are safe on every common filesystem.
package normalizer

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// invalidChars are rejected by Windows; '/' is also the separator on Linux and macOS.
const invalidChars = `<>:"/\|?*`

// EscapeFilename makes a title usable as a single path component.
// Each character from invalidChars becomes an underscore, trailing dots and
// spaces are removed, and the result is NFC-normalised so that titles coming
// from different sources compare equal byte for byte.
func EscapeFilename(name string) string {
	if name == "" {
		return ""
	}

	normalised := norm.NFC.String(name)

	var b strings.Builder
	b.Grow(len(normalised))
	for _, r := range normalised {
		if strings.ContainsRune(invalidChars, r) || r == 0 {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}

	return strings.TrimRight(b.String(), ". ")
}
