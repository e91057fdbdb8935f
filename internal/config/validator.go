package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationSeverity represents the severity of a validation issue.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue represents a single validation finding.
type ValidationIssue struct {
	Field    string // e.g. "paths.source_dir"
	Message  string
	Severity ValidationSeverity
}

// ValidationResult contains all validation findings.
type ValidationResult struct {
	Errors   []ValidationIssue
	Warnings []ValidationIssue
	Valid    bool // no errors; warnings are allowed
}

func (r *ValidationResult) add(issues []ValidationIssue) {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			r.Errors = append(r.Errors, issue)
		} else {
			r.Warnings = append(r.Warnings, issue)
		}
	}
}

// Validate runs the structural checks that make a configuration unusable and
// reports them as a single ValidationError. It does not touch the
// filesystem; see Check for the full report.
func (c *Config) Validate() error {
	issues := c.structuralIssues()
	var messages []string
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			messages = append(messages, issue.Field+": "+issue.Message)
		}
	}
	if len(messages) == 0 {
		return nil
	}
	return &ConfigError{Type: ValidationError, Message: strings.Join(messages, "; ")}
}

// Check returns every finding for cfg, including filesystem state of the
// configured directories and optional integrations.
func Check(cfg *Config) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationIssue{},
		Warnings: []ValidationIssue{},
	}
	result.add(cfg.structuralIssues())
	result.add(ValidatePaths(cfg))
	result.add(ValidateIntegrations(cfg))
	result.Valid = len(result.Errors) == 0
	return result
}

func (c *Config) structuralIssues() []ValidationIssue {
	var issues []ValidationIssue
	required := []struct {
		field string
		value string
	}{
		{"paths.source_dir", c.Paths.SourceDir},
		{"paths.movies_dir", c.Paths.MoviesDir},
		{"paths.series_dir", c.Paths.SeriesDir},
		{"llm.api_key", c.LLM.APIKey},
		{"tmdb.api_key", c.TMDB.APIKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			issues = append(issues, ValidationIssue{Field: r.field, Message: "must be set", Severity: SeverityError})
		}
	}

	if c.Paths.SourceDir != "" {
		for _, dest := range []struct{ field, dir string }{
			{"paths.movies_dir", c.Paths.MoviesDir},
			{"paths.series_dir", c.Paths.SeriesDir},
		} {
			if dest.dir != "" && directoriesOverlap(c.Paths.SourceDir, dest.dir) {
				issues = append(issues, ValidationIssue{
					Field:    dest.field,
					Message:  fmt.Sprintf("overlaps the source directory %q", c.Paths.SourceDir),
					Severity: SeverityError,
				})
			}
		}
	}

	for i, pattern := range c.Watch.IgnorePatterns {
		if _, err := glob.Compile(pattern, filepath.Separator); err != nil {
			issues = append(issues, ValidationIssue{
				Field:    fmt.Sprintf("watch.ignore_patterns[%d]", i),
				Message:  fmt.Sprintf("invalid pattern %q: %v", pattern, err),
				Severity: SeverityError,
			})
		}
	}

	switch c.Logging.Format {
	case "", "auto", "console", "json":
	default:
		issues = append(issues, ValidationIssue{
			Field:    "logging.format",
			Message:  fmt.Sprintf("unsupported value %q (want auto, console or json)", c.Logging.Format),
			Severity: SeverityError,
		})
	}

	if c.Watch.QuietPeriodSeconds > 0 && c.TickInterval() > c.QuietPeriod() {
		issues = append(issues, ValidationIssue{
			Field:    "watch.tick_interval_ms",
			Message:  "tick interval is longer than the quiet period",
			Severity: SeverityWarning,
		})
	}
	return issues
}

// ValidatePaths checks that the source tree exists and that each library
// root exists or can be created.
func ValidatePaths(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if dir := cfg.Paths.SourceDir; dir != "" {
		info, err := os.Stat(dir)
		switch {
		case os.IsNotExist(err):
			issues = append(issues, ValidationIssue{Field: "paths.source_dir", Message: "directory does not exist: " + dir, Severity: SeverityError})
		case os.IsPermission(err):
			issues = append(issues, ValidationIssue{Field: "paths.source_dir", Message: "directory is not accessible: " + dir, Severity: SeverityError})
		case err != nil:
			issues = append(issues, ValidationIssue{Field: "paths.source_dir", Message: "error accessing directory: " + err.Error(), Severity: SeverityError})
		case !info.IsDir():
			issues = append(issues, ValidationIssue{Field: "paths.source_dir", Message: "path is not a directory: " + dir, Severity: SeverityError})
		}
	}

	for _, dest := range []struct{ field, dir string }{
		{"paths.movies_dir", cfg.Paths.MoviesDir},
		{"paths.series_dir", cfg.Paths.SeriesDir},
		{"paths.state_dir", cfg.Paths.StateDir},
	} {
		if dest.dir == "" {
			continue
		}
		if issue, ok := checkWritableDir(dest.field, dest.dir); !ok {
			issues = append(issues, issue)
		}
	}
	return issues
}

// ValidateIntegrations reports half-configured optional services.
func ValidateIntegrations(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	for _, endpoint := range []struct{ field, raw string }{
		{"llm.base_url", cfg.LLM.BaseURL},
		{"tmdb.base_url", cfg.TMDB.BaseURL},
		{"jellyfin.url", cfg.Jellyfin.URL},
	} {
		if endpoint.raw == "" {
			continue
		}
		u, err := url.Parse(endpoint.raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			issues = append(issues, ValidationIssue{Field: endpoint.field, Message: "not an http(s) URL: " + endpoint.raw, Severity: SeverityError})
		}
	}

	jf := cfg.Jellyfin
	hasLibraries := jf.MoviesLibraryID != "" || jf.SeriesLibraryID != ""
	switch {
	case jf.URL != "" && jf.APIKey == "":
		issues = append(issues, ValidationIssue{Field: "jellyfin.api_key", Message: "jellyfin url is set without an api key; library refresh is disabled", Severity: SeverityWarning})
	case jf.URL != "" && !hasLibraries:
		issues = append(issues, ValidationIssue{Field: "jellyfin.movies_library_id", Message: "no library ids configured; library refresh is disabled", Severity: SeverityWarning})
	case jf.URL == "" && (jf.APIKey != "" || hasLibraries):
		issues = append(issues, ValidationIssue{Field: "jellyfin.url", Message: "jellyfin settings present without a url; library refresh is disabled", Severity: SeverityWarning})
	}
	return issues
}

// JellyfinEnabled reports whether library refresh is fully configured.
func (c *Config) JellyfinEnabled() bool {
	return c.Jellyfin.URL != "" && c.Jellyfin.APIKey != "" &&
		(c.Jellyfin.MoviesLibraryID != "" || c.Jellyfin.SeriesLibraryID != "")
}

func checkWritableDir(field, dir string) (ValidationIssue, bool) {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return ValidationIssue{Field: field, Message: "path exists but is not a directory: " + dir, Severity: SeverityError}, false
		}
		if !isDirectoryWritable(dir) {
			return ValidationIssue{Field: field, Message: "directory is not writable: " + dir, Severity: SeverityError}, false
		}
		return ValidationIssue{}, true
	}
	if !os.IsNotExist(err) {
		return ValidationIssue{Field: field, Message: "error accessing directory: " + err.Error(), Severity: SeverityError}, false
	}

	parent := nearestExisting(filepath.Dir(dir))
	if parent == "" {
		return ValidationIssue{Field: field, Message: "no existing parent directory for: " + dir, Severity: SeverityError}, false
	}
	if !isDirectoryWritable(parent) {
		return ValidationIssue{Field: field, Message: "parent directory is not writable: " + parent, Severity: SeverityError}, false
	}
	return ValidationIssue{Field: field, Message: "directory will be created: " + dir, Severity: SeverityWarning}, false
}

func nearestExisting(dir string) string {
	for {
		if info, err := os.Stat(dir); err == nil {
			if info.IsDir() {
				return dir
			}
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// isDirectoryWritable checks if a directory is writable by creating a temp file.
func isDirectoryWritable(dir string) bool {
	f, err := os.CreateTemp(dir, ".medialink_write_test")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

// directoriesOverlap checks if two directories overlap (one is parent/ancestor of the other).
func directoriesOverlap(dir1, dir2 string) bool {
	clean1 := filepath.Clean(dir1)
	clean2 := filepath.Clean(dir2)
	if clean1 == clean2 {
		return true
	}
	if strings.HasPrefix(clean2, clean1+string(filepath.Separator)) {
		return true
	}
	return strings.HasPrefix(clean1, clean2+string(filepath.Separator))
}
