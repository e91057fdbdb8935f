package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var envNames = []string{
	"MIXED_PATH", "MOVIES_DEST_PATH", "SERIES_DEST_PATH",
	"LLM_API_KEY", "OPENROUTER_API_KEY", "LLM_MODEL", "OPENROUTER_MODEL",
	"LLM_BASE_URL", "OPENROUTER_BASE_URL", "TMDB_API_KEY",
	"JELLYFIN_URL", "JELLYFIN_API_KEY", "JELLYFIN_MOVIES_LIBRARY_ID", "JELLYFIN_SERIES_LIBRARY_ID",
	"LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envNames {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	base := t.TempDir()
	path := writeConfig(t, `
[paths]
source_dir = "`+filepath.Join(base, "mixed")+`"
movies_dir = "`+filepath.Join(base, "movies")+`"
series_dir = "`+filepath.Join(base, "series")+`/"

[watch]
quiet_period_seconds = 3
ignore_patterns = ["*.bak", "  "]

[llm]
api_key = "llm-key"
base_url = "http://llm.local/v1/"

[tmdb]
api_key = "tmdb-key"
`)

	cfg, resolved, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Paths.SeriesDir != filepath.Join(base, "series") {
		t.Fatalf("series dir not cleaned: %q", cfg.Paths.SeriesDir)
	}
	if cfg.QuietPeriod().Seconds() != 3 {
		t.Fatalf("quiet period = %v", cfg.QuietPeriod())
	}
	if cfg.TickInterval().Milliseconds() != 1000 {
		t.Fatalf("tick interval default not applied: %v", cfg.TickInterval())
	}
	if len(cfg.Watch.IgnorePatterns) != 1 || cfg.Watch.IgnorePatterns[0] != "*.bak" {
		t.Fatalf("ignore patterns = %v", cfg.Watch.IgnorePatterns)
	}
	if cfg.LLM.BaseURL != "http://llm.local/v1" {
		t.Fatalf("llm base url = %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.Model != defaultLLMModel {
		t.Fatalf("llm model default not applied: %q", cfg.LLM.Model)
	}
	if cfg.TMDB.Language != "ru-RU" || cfg.Matching.MaxDepth != 5 || cfg.Daemon.RelinkWorkers != 4 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("log level = %q", cfg.Logging.Level)
	}
}

func TestLoadEnvironmentFallbacks(t *testing.T) {
	clearEnv(t)
	base := t.TempDir()
	t.Setenv("MIXED_PATH", filepath.Join(base, "mixed"))
	t.Setenv("MOVIES_DEST_PATH", filepath.Join(base, "movies"))
	t.Setenv("SERIES_DEST_PATH", filepath.Join(base, "series"))
	t.Setenv("OPENROUTER_API_KEY", "router-key")
	t.Setenv("OPENROUTER_MODEL", "some/model")
	t.Setenv("TMDB_API_KEY", "tmdb-key")
	t.Setenv("JELLYFIN_URL", "http://jf:8096/")
	t.Setenv("JELLYFIN_API_KEY", "jf-key")
	t.Setenv("JELLYFIN_SERIES_LIBRARY_ID", "series-lib")
	t.Setenv("LOG_LEVEL", "DEBUG")

	path := writeConfig(t, "[tmdb]\nlanguage = \"en-US\"\n")
	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.SourceDir != filepath.Join(base, "mixed") {
		t.Fatalf("source dir = %q", cfg.Paths.SourceDir)
	}
	if cfg.LLM.APIKey != "router-key" || cfg.LLM.Model != "some/model" {
		t.Fatalf("llm fallbacks not applied: %+v", cfg.LLM)
	}
	if cfg.LLM.BaseURL != defaultLLMBaseURL {
		t.Fatalf("llm base url = %q", cfg.LLM.BaseURL)
	}
	if cfg.TMDB.Language != "en-US" {
		t.Fatalf("file value lost: %q", cfg.TMDB.Language)
	}
	if cfg.Jellyfin.URL != "http://jf:8096" || !cfg.JellyfinEnabled() {
		t.Fatalf("jellyfin = %+v", cfg.Jellyfin)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level = %q", cfg.Logging.Level)
	}
}

func TestFileValueWinsOverEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_API_KEY", "primary")
	t.Setenv("OPENROUTER_API_KEY", "secondary")
	t.Setenv("TMDB_API_KEY", "from-env")

	cfg, err := Parse([]byte("[tmdb]\napi_key = \"from-file\"\n"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.TMDB.APIKey != "from-file" {
		t.Fatalf("tmdb key = %q", cfg.TMDB.APIKey)
	}
	if cfg.LLM.APIKey != "primary" {
		t.Fatalf("LLM_API_KEY should win over OPENROUTER_API_KEY, got %q", cfg.LLM.APIKey)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, _, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != FileNotFound {
		t.Fatalf("expected FILE_NOT_FOUND, got %v", err)
	}
}

func TestLoadMissingDefaultFileUsesEnvironment(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("MIXED_PATH", filepath.Join(home, "mixed"))
	t.Setenv("MOVIES_DEST_PATH", filepath.Join(home, "movies"))
	t.Setenv("SERIES_DEST_PATH", filepath.Join(home, "series"))
	t.Setenv("LLM_API_KEY", "k")
	t.Setenv("TMDB_API_KEY", "k")

	cfg, resolved, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != filepath.Join(home, ".config", "medialink", "config.toml") {
		t.Fatalf("resolved = %q", resolved)
	}
	if cfg.Paths.StateDir != filepath.Join(home, ".local", "share", "medialink") {
		t.Fatalf("state dir = %q", cfg.Paths.StateDir)
	}
	if cfg.JournalPath() != filepath.Join(cfg.Paths.StateDir, "journal.jsonl") {
		t.Fatalf("journal path = %q", cfg.JournalPath())
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "[paths\nsource_dir = 1")
	_, _, err := Load(path)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != InvalidTOML {
		t.Fatalf("expected INVALID_TOML, got %v", err)
	}
}

func TestLoadValidationError(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "[paths]\nsource_dir = \"/srv/mixed\"\n")
	_, _, err := Load(path)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != ValidationError {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
	for _, field := range []string{"paths.movies_dir", "paths.series_dir", "llm.api_key", "tmdb.api_key"} {
		if !strings.Contains(cfgErr.Message, field) {
			t.Fatalf("message %q does not mention %s", cfgErr.Message, field)
		}
	}
}

func TestExpandPathHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ExpandPath("~/media/../library")
	if err != nil {
		t.Fatalf("ExpandPath returned error: %v", err)
	}
	if got != filepath.Join(home, "library") {
		t.Fatalf("ExpandPath = %q", got)
	}
	if got, _ := ExpandPath(""); got != "" {
		t.Fatalf("empty path should stay empty, got %q", got)
	}
}

func TestCreateSample(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	if err := CreateSample(path); err == nil {
		t.Fatal("expected error when the file already exists")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("sample does not parse: %v", err)
	}
	if cfg.Watch.QuietPeriodSeconds != 10 || cfg.Matching.MaxDepth != 5 {
		t.Fatalf("sample values = %+v", cfg)
	}
}

func TestDestinationRoots(t *testing.T) {
	cfg := Default()
	cfg.Paths.MoviesDir = "/lib/movies"
	if roots := cfg.DestinationRoots(); len(roots) != 1 || roots[0] != "/lib/movies" {
		t.Fatalf("roots = %v", roots)
	}
	cfg.Paths.SeriesDir = "/lib/series"
	if roots := cfg.DestinationRoots(); len(roots) != 2 {
		t.Fatalf("roots = %v", roots)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.MoviesDir = filepath.Join(base, "lib", "movies")
	cfg.Paths.SeriesDir = filepath.Join(base, "lib", "series")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.MoviesDir, cfg.Paths.SeriesDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

func TestWatchTimingRoundTrip(t *testing.T) {
	clearEnv(t)
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("watch timings survive decoding", prop.ForAll(
		func(quiet, tick, stable int) bool {
			doc := "[watch]\nquiet_period_seconds = " + strconv.Itoa(quiet) +
				"\ntick_interval_ms = " + strconv.Itoa(tick) +
				"\nstable_threshold_ms = " + strconv.Itoa(stable) + "\n"
			cfg, err := Parse([]byte(doc))
			if err != nil {
				return false
			}
			return cfg.Watch.QuietPeriodSeconds == quiet &&
				cfg.Watch.TickIntervalMS == tick &&
				cfg.Watch.StableThresholdMS == stable
		},
		gen.IntRange(1, 3600),
		gen.IntRange(1, 60000),
		gen.IntRange(0, 60000),
	))

	properties.TestingRun(t)
}
