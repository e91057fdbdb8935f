package config

// DefaultPath is where the configuration is looked up when no path is given.
const DefaultPath = "~/.config/medialink/config.toml"

const (
	defaultStateDir           = "~/.local/share/medialink"
	defaultQuietPeriodSeconds = 10
	defaultTickIntervalMS     = 1000
	defaultMaxDepth           = 5
	defaultLLMBaseURL         = "https://openrouter.ai/api/v1"
	defaultLLMModel           = "perplexity/llama-3.1-sonar-small-128k-online"
	defaultLLMReferer         = "https://github.com/medialink/medialink"
	defaultLLMTitle           = "medialink"
	defaultLLMTimeoutSeconds  = 60
	defaultLLMMaxRetries      = 3
	defaultTMDBBaseURL        = "https://api.themoviedb.org/3"
	defaultTMDBLanguage       = "ru-RU"
	defaultJournalMaxSizeMB   = 10
	defaultJournalMaxBackups  = 5
	defaultLogLevel           = "info"
	defaultLogFormat          = "auto"
	defaultLogMaxSizeMB       = 20
	defaultLogMaxBackups      = 3
	defaultLogMaxAgeDays      = 30
	defaultRelinkWorkers      = 4
)

// Default returns a Config populated with repository defaults. Fields that
// have an environment fallback stay empty here and are filled by Load.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Watch: Watch{
			QuietPeriodSeconds: defaultQuietPeriodSeconds,
			TickIntervalMS:     defaultTickIntervalMS,
		},
		Matching: Matching{
			MaxDepth: defaultMaxDepth,
		},
		LLM: LLM{
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			MaxRetries:     defaultLLMMaxRetries,
		},
		TMDB: TMDB{
			BaseURL:  defaultTMDBBaseURL,
			Language: defaultTMDBLanguage,
		},
		Journal: Journal{
			MaxSizeMB:  defaultJournalMaxSizeMB,
			MaxBackups: defaultJournalMaxBackups,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
		Daemon: Daemon{
			RelinkWorkers: defaultRelinkWorkers,
		},
	}
}
