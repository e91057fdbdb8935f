package main

import (
	"fmt"
	"log/slog"

	"medialink/internal/config"
	"medialink/internal/daemon"
	"medialink/internal/identify"
	"medialink/internal/jellyfin"
	"medialink/internal/journal"
	"medialink/internal/llm"
	"medialink/internal/matcher"
	"medialink/internal/organizer"
	"medialink/internal/processor"
	"medialink/internal/tmdb"
	"medialink/internal/watcher"
)

// app bundles a daemon with the journal it writes to.
type app struct {
	daemon  *daemon.Daemon
	journal *journal.Writer
}

func (a *app) Close() error {
	return a.journal.Close()
}

func buildApp(cfg *config.Config, logger *slog.Logger, progress daemon.Progress) (*app, error) {
	jw, err := journal.Open(cfg.JournalPath(), journal.Options{
		MaxSizeMB:  cfg.Journal.MaxSizeMB,
		MaxBackups: cfg.Journal.MaxBackups,
		MaxAgeDays: cfg.Journal.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	completer := llm.NewClient(llm.Config{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		Referer:    cfg.LLM.Referer,
		Title:      cfg.LLM.Title,
		Timeout:    cfg.LLMTimeout(),
		MaxRetries: cfg.LLM.MaxRetries,
	}, llm.WithLogger(logger))

	metadata, err := tmdb.New(cfg.TMDB.APIKey, cfg.TMDB.BaseURL, cfg.TMDB.Language, tmdb.WithLogger(logger))
	if err != nil {
		jw.Close()
		return nil, err
	}

	proc, err := processor.New(processor.Config{
		SourceRoot: cfg.Paths.SourceDir,
		MoviesRoot: cfg.Paths.MoviesDir,
		SeriesRoot: cfg.Paths.SeriesDir,
		Metadata:   metadata,
		Matcher:    matcher.New(cfg.Paths.SourceDir, cfg.Matching.MaxDepth, logger),
		Linker:     organizer.NewLinker(logger),
		Journal:    jw,
		Logger:     logger,
	})
	if err != nil {
		jw.Close()
		return nil, err
	}

	var refresher daemon.Refresher
	if jf := jellyfin.NewFromConfig(cfg, nil, logger); jf != nil {
		refresher = jf
	}

	d, err := daemon.New(daemon.Options{
		Config:     cfg,
		Identifier: identify.New(completer, logger),
		Processor:  proc,
		Refresher:  refresher,
		Progress:   progress,
		Journal:    jw,
		Source:     watcher.NewFSNotifySource(logger),
		Clock:      watcher.SystemClock{},
		Logger:     logger,
		Version:    version,
	})
	if err != nil {
		jw.Close()
		return nil, err
	}
	return &app{daemon: d, journal: jw}, nil
}
