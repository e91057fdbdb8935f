// Package config handles configuration loading and validation for medialink.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// ConfigErrorType represents the type of configuration error.
type ConfigErrorType string

const (
	FileNotFound    ConfigErrorType = "FILE_NOT_FOUND"
	InvalidTOML     ConfigErrorType = "INVALID_TOML"
	ValidationError ConfigErrorType = "VALIDATION_ERROR"
)

// ConfigError represents an error that occurred during configuration loading.
type ConfigError struct {
	Type    ConfigErrorType
	Path    string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	switch e.Type {
	case FileNotFound:
		return fmt.Sprintf("configuration file not found: %s", e.Path)
	case InvalidTOML:
		return fmt.Sprintf("invalid TOML in configuration file %s: %s", e.Path, e.Message)
	case ValidationError:
		return fmt.Sprintf("configuration validation error: %s", e.Message)
	default:
		return fmt.Sprintf("configuration error: %s", e.Message)
	}
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Paths holds the watched source tree and the two library roots.
type Paths struct {
	SourceDir string `toml:"source_dir"`
	MoviesDir string `toml:"movies_dir"`
	SeriesDir string `toml:"series_dir"`
	StateDir  string `toml:"state_dir"`
}

// Watch tunes the batching watcher.
type Watch struct {
	QuietPeriodSeconds int      `toml:"quiet_period_seconds"`
	TickIntervalMS     int      `toml:"tick_interval_ms"`
	StableThresholdMS  int      `toml:"stable_threshold_ms"`
	IgnorePatterns     []string `toml:"ignore_patterns"`
}

// Matching tunes the external media search.
type Matching struct {
	MaxDepth int `toml:"max_depth"`
}

// LLM contains the chat-completions connection used for identification.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
}

// TMDB contains configuration for The Movie Database API.
type TMDB struct {
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Language string `toml:"language"`
}

// Jellyfin contains configuration for library refresh after linking.
type Jellyfin struct {
	URL             string `toml:"url"`
	APIKey          string `toml:"api_key"`
	MoviesLibraryID string `toml:"movies_library_id"`
	SeriesLibraryID string `toml:"series_library_id"`
}

// Journal configures rotation of the JSONL event journal.
type Journal struct {
	MaxSizeMB  int `toml:"max_size_mb"`
	MaxBackups int `toml:"max_backups"`
	MaxAgeDays int `toml:"max_age_days"`
}

// Logging configures the process logger.
type Logging struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Daemon tunes the long-running service.
type Daemon struct {
	RelinkWorkers int `toml:"relink_workers"`
}

// Config is the full medialink configuration.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Watch    Watch    `toml:"watch"`
	Matching Matching `toml:"matching"`
	LLM      LLM      `toml:"llm"`
	TMDB     TMDB     `toml:"tmdb"`
	Jellyfin Jellyfin `toml:"jellyfin"`
	Journal  Journal  `toml:"journal"`
	Logging  Logging  `toml:"logging"`
	Daemon   Daemon   `toml:"daemon"`
}

// QuietPeriod returns the watcher quiet period.
func (c *Config) QuietPeriod() time.Duration {
	return time.Duration(c.Watch.QuietPeriodSeconds) * time.Second
}

// TickInterval returns the watcher tick.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Watch.TickIntervalMS) * time.Millisecond
}

// StableThreshold returns how long a file size must hold still before a
// batch path is processed. Zero disables the check.
func (c *Config) StableThreshold() time.Duration {
	return time.Duration(c.Watch.StableThresholdMS) * time.Millisecond
}

// LLMTimeout returns the per-request timeout for identification calls.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// JournalPath is the location of the event journal.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.jsonl")
}

// LockPath is the single-instance lock file of the daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "medialink.lock")
}

// DestinationRoots returns the library roots that exist in the configuration.
func (c *Config) DestinationRoots() []string {
	roots := make([]string, 0, 2)
	for _, root := range []string{c.Paths.MoviesDir, c.Paths.SeriesDir} {
		if root != "" {
			roots = append(roots, root)
		}
	}
	return roots
}

// Load reads the configuration at path. An empty path selects DefaultPath;
// a missing default file is not an error and yields defaults plus
// environment overrides. An explicitly named file must exist.
func Load(path string) (*Config, string, error) {
	cfg := Default()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultPath
	}
	resolved, err := expandPath(path)
	if err != nil {
		return nil, "", &ConfigError{Type: FileNotFound, Path: path, Message: err.Error(), Err: err}
	}

	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, resolved, &ConfigError{Type: InvalidTOML, Path: resolved, Message: err.Error(), Err: err}
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	case errors.Is(err, fs.ErrNotExist):
		return nil, resolved, &ConfigError{Type: FileNotFound, Path: resolved, Err: err}
	default:
		return nil, resolved, &ConfigError{Type: FileNotFound, Path: resolved, Message: err.Error(), Err: err}
	}

	if err := cfg.normalize(); err != nil {
		return nil, resolved, &ConfigError{Type: ValidationError, Path: resolved, Message: err.Error(), Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, resolved, err
	}
	return &cfg, resolved, nil
}

// Parse decodes TOML content on top of the defaults and normalizes it
// without validating.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Type: InvalidTOML, Message: err.Error(), Err: err}
	}
	if err := cfg.normalize(); err != nil {
		return nil, &ConfigError{Type: ValidationError, Message: err.Error(), Err: err}
	}
	return &cfg, nil
}

// SampleConfig returns the commented sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the sample configuration to path. An existing file is
// left alone and reported as an error.
func CreateSample(path string) error {
	resolved, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(resolved); err == nil {
		return fmt.Errorf("config file already exists: %s", resolved)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the state directory and the library roots.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.MoviesDir, c.Paths.SeriesDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if pathValue[1] == '/' || pathValue[1] == '\\' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath applies the configuration path rules (~ expansion, absolute,
// cleaned) to pathValue.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
