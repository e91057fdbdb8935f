// Package identify asks the language model what a directory's worth of
// video files are: movies or series episodes, with title, year, season and
// episode.
package identify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"medialink/internal/logging"
	"medialink/internal/services"
)

// MediaType distinguishes movies from series episodes.
type MediaType string

const (
	Movie  MediaType = "movie"
	Series MediaType = "series"
)

// Number holds a season or episode. Models answer with either a JSON number
// (5) or a string for ranges ("19-20"); both decode here. Numeric values are
// stored in canonical decimal form.
type Number string

// UnmarshalJSON accepts numbers, strings and null.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Number(canonical(strings.TrimSpace(s)))
		return nil
	}
	var f json.Number
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("season/episode must be a number or string: %w", err)
	}
	*n = Number(canonical(f.String()))
	return nil
}

// MarshalJSON writes integers as numbers and everything else as strings.
func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("null"), nil
	}
	if i, ok := n.Int(); ok {
		return []byte(strconv.Itoa(i)), nil
	}
	return json.Marshal(string(n))
}

// Int returns the value as an integer when it is one.
func (n Number) Int() (int, bool) {
	i, err := strconv.Atoi(string(n))
	if err != nil {
		return 0, false
	}
	return i, true
}

// First returns the leading number of a value such as "19-20".
func (n Number) First() (int, bool) {
	head, _, _ := strings.Cut(string(n), "-")
	i, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0, false
	}
	return i, true
}

// String returns the raw value.
func (n Number) String() string { return string(n) }

func canonical(s string) string {
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int(f)) {
		return strconv.Itoa(int(f))
	}
	return s
}

// MediaInfo is the model's answer for one file.
type MediaInfo struct {
	Type    MediaType `json:"type"`
	Title   string    `json:"title"`
	Year    int       `json:"year,omitempty"`
	Season  Number    `json:"season,omitempty"`
	Episode Number    `json:"episode,omitempty"`
}

// UnmarshalJSON tolerates a year given as a string.
func (m *MediaInfo) UnmarshalJSON(data []byte) error {
	type plain MediaInfo
	var raw struct {
		plain
		Year json.RawMessage `json:"year"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = MediaInfo(raw.plain)
	m.Type = MediaType(strings.ToLower(strings.TrimSpace(string(m.Type))))
	m.Title = strings.TrimSpace(m.Title)
	m.Year = 0
	var year Number
	if len(raw.Year) > 0 {
		if err := year.UnmarshalJSON(raw.Year); err != nil {
			return fmt.Errorf("year: %w", err)
		}
	}
	if y, ok := year.Int(); ok {
		m.Year = y
	}
	return nil
}

// Completer is the subset of the llm client used here.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Identifier turns batches of filenames into MediaInfo.
type Identifier struct {
	llm    Completer
	logger *slog.Logger
}

// New returns an Identifier using llm.
func New(llm Completer, logger *slog.Logger) *Identifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Identifier{llm: llm, logger: logging.NewComponentLogger(logger, "identify")}
}

// Batch identifies the files at paths, which share one directory. folder is
// that directory relative to the source root ("" for the root itself). The
// result has one entry per path in the same order; any other shape fails the
// whole batch.
func (i *Identifier) Batch(ctx context.Context, paths []string, folder string) ([]MediaInfo, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	names := make([]string, len(paths))
	for k, p := range paths {
		names[k] = filepath.Base(p)
	}

	content, err := i.llm.Complete(ctx, SystemPrompt, BuildPrompt(names, folder))
	if err != nil {
		return nil, err
	}
	infos, err := ParseResponse(content, len(paths))
	if err != nil {
		i.logger.Warn("unusable identification response",
			logging.String(logging.FieldDir, folder),
			logging.Int(logging.FieldCount, len(paths)),
			logging.Error(err))
		return nil, err
	}
	return infos, nil
}

// ParseResponse decodes a model answer that must hold exactly want entries.
func ParseResponse(content string, want int) ([]MediaInfo, error) {
	var infos []MediaInfo
	if err := decode(content, &infos); err != nil {
		return nil, services.Wrap(services.ErrValidation, "identify", "parse response", "expected a JSON array", err)
	}
	if len(infos) != want {
		return nil, services.Wrap(services.ErrValidation, "identify", "parse response",
			fmt.Sprintf("got %d entries for %d files", len(infos), want), nil)
	}
	return infos, nil
}

// Validate reports why info cannot be processed, or nil.
func (m MediaInfo) Validate() error {
	if m.Title == "" {
		return services.Wrap(services.ErrValidation, "identify", "", "missing title", nil)
	}
	switch m.Type {
	case Movie:
		return nil
	case Series:
		if m.Season == "" || m.Episode == "" {
			return services.Wrap(services.ErrValidation, "identify", "", "series without season/episode", nil)
		}
		return nil
	default:
		return services.Wrap(services.ErrValidation, "identify", "", fmt.Sprintf("unknown media type %q", m.Type), nil)
	}
}
