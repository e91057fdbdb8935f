package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWatch()
	c.normalizeLLM()
	c.normalizeTMDB()
	c.normalizeJellyfin()
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	c.normalizeJournal()
	if c.Matching.MaxDepth <= 0 {
		c.Matching.MaxDepth = defaultMaxDepth
	}
	if c.Daemon.RelinkWorkers <= 0 {
		c.Daemon.RelinkWorkers = defaultRelinkWorkers
	}
	return nil
}

func (c *Config) normalizePaths() error {
	envFallback(&c.Paths.SourceDir, "MIXED_PATH")
	envFallback(&c.Paths.MoviesDir, "MOVIES_DEST_PATH")
	envFallback(&c.Paths.SeriesDir, "SERIES_DEST_PATH")
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}

	var err error
	if c.Paths.SourceDir, err = expandPath(c.Paths.SourceDir); err != nil {
		return fmt.Errorf("paths.source_dir: %w", err)
	}
	if c.Paths.MoviesDir, err = expandPath(c.Paths.MoviesDir); err != nil {
		return fmt.Errorf("paths.movies_dir: %w", err)
	}
	if c.Paths.SeriesDir, err = expandPath(c.Paths.SeriesDir); err != nil {
		return fmt.Errorf("paths.series_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWatch() {
	if c.Watch.QuietPeriodSeconds <= 0 {
		c.Watch.QuietPeriodSeconds = defaultQuietPeriodSeconds
	}
	if c.Watch.TickIntervalMS <= 0 {
		c.Watch.TickIntervalMS = defaultTickIntervalMS
	}
	if c.Watch.StableThresholdMS < 0 {
		c.Watch.StableThresholdMS = 0
	}
	patterns := make([]string, 0, len(c.Watch.IgnorePatterns))
	for _, pattern := range c.Watch.IgnorePatterns {
		if pattern = strings.TrimSpace(pattern); pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	c.Watch.IgnorePatterns = patterns
}

func (c *Config) normalizeLLM() {
	envFallback(&c.LLM.APIKey, "LLM_API_KEY", "OPENROUTER_API_KEY")
	envFallback(&c.LLM.Model, "LLM_MODEL", "OPENROUTER_MODEL")
	envFallback(&c.LLM.BaseURL, "LLM_BASE_URL", "OPENROUTER_BASE_URL")
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.BaseURL = strings.TrimRight(c.LLM.BaseURL, "/")
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	if c.LLM.MaxRetries < 0 {
		c.LLM.MaxRetries = 0
	}
}

func (c *Config) normalizeTMDB() {
	envFallback(&c.TMDB.APIKey, "TMDB_API_KEY")
	c.TMDB.BaseURL = strings.TrimRight(strings.TrimSpace(c.TMDB.BaseURL), "/")
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = defaultTMDBBaseURL
	}
	c.TMDB.Language = strings.TrimSpace(c.TMDB.Language)
	if c.TMDB.Language == "" {
		c.TMDB.Language = defaultTMDBLanguage
	}
}

func (c *Config) normalizeJellyfin() {
	envFallback(&c.Jellyfin.URL, "JELLYFIN_URL")
	envFallback(&c.Jellyfin.APIKey, "JELLYFIN_API_KEY")
	envFallback(&c.Jellyfin.MoviesLibraryID, "JELLYFIN_MOVIES_LIBRARY_ID")
	envFallback(&c.Jellyfin.SeriesLibraryID, "JELLYFIN_SERIES_LIBRARY_ID")
	c.Jellyfin.URL = strings.TrimRight(c.Jellyfin.URL, "/")
}

func (c *Config) normalizeLogging() error {
	envFallback(&c.Logging.Level, "LOG_LEVEL")
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	var err error
	if c.Logging.File, err = expandPath(c.Logging.File); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	return nil
}

func (c *Config) normalizeJournal() {
	if c.Journal.MaxSizeMB <= 0 {
		c.Journal.MaxSizeMB = defaultJournalMaxSizeMB
	}
	if c.Journal.MaxBackups < 0 {
		c.Journal.MaxBackups = 0
	}
}

// envFallback fills an empty field from the first environment variable that
// is set and non-blank.
func envFallback(field *string, names ...string) {
	*field = strings.TrimSpace(*field)
	if *field != "" {
		return
	}
	for _, name := range names {
		if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
			*field = strings.TrimSpace(value)
			return
		}
	}
}
