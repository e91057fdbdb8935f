// Package processor turns identified files into library entries: it looks
// the item up on TMDB, links it into the movies or series tree, writes the
// sidecars and attaches external audio and subtitles. Files that cannot be
// described are recorded in the failure list of the matching library root.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"medialink/internal/failures"
	"medialink/internal/identify"
	"medialink/internal/journal"
	"medialink/internal/logging"
	"medialink/internal/matcher"
	"medialink/internal/nfo"
	"medialink/internal/organizer"
	"medialink/internal/services"
	"medialink/internal/symlink"
	"medialink/internal/tmdb"
)

// Metadata is the subset of the TMDB client used here.
type Metadata interface {
	SearchMovie(ctx context.Context, title string, year int) (int64, error)
	SearchSeries(ctx context.Context, title string, year int) (int64, error)
	MovieDetails(ctx context.Context, id int64) (*tmdb.Movie, error)
	SeriesDetails(ctx context.Context, id int64) (*tmdb.Series, error)
	EpisodeDetails(ctx context.Context, id int64, season, episode int) (*tmdb.Episode, error)
}

// Config wires a Processor.
type Config struct {
	SourceRoot string
	MoviesRoot string
	SeriesRoot string
	Metadata   Metadata
	Matcher    *matcher.Matcher
	Linker     *organizer.Linker
	Journal    *journal.Writer
	Logger     *slog.Logger
}

// Processor links identified files. It is safe for concurrent use.
type Processor struct {
	cfg            Config
	movieFailures  *failures.List
	seriesFailures *failures.List
	logger         *slog.Logger

	mu          sync.Mutex
	seriesCache map[string]int64
}

// New returns a Processor.
func New(cfg Config) (*Processor, error) {
	if cfg.Metadata == nil {
		return nil, errors.New("processor: metadata client required")
	}
	if cfg.SourceRoot == "" || cfg.MoviesRoot == "" || cfg.SeriesRoot == "" {
		return nil, errors.New("processor: source, movies and series roots required")
	}
	logger := logging.NewComponentLogger(cfg.Logger, "processor")
	if cfg.Matcher == nil {
		cfg.Matcher = matcher.New(cfg.SourceRoot, matcher.DefaultMaxDepth, cfg.Logger)
	}
	if cfg.Linker == nil {
		cfg.Linker = organizer.NewLinker(cfg.Logger)
	}
	return &Processor{
		cfg:            cfg,
		movieFailures:  failures.New(cfg.MoviesRoot, cfg.SourceRoot),
		seriesFailures: failures.New(cfg.SeriesRoot, cfg.SourceRoot),
		logger:         logger,
		seriesCache:    make(map[string]int64),
	}, nil
}

// FailureLists returns the movies and series failure lists.
func (p *Processor) FailureLists() []*failures.List {
	return []*failures.List{p.movieFailures, p.seriesFailures}
}

// Process dispatches on the identified media type.
func (p *Processor) Process(ctx context.Context, src string, info identify.MediaInfo) Result {
	switch info.Type {
	case identify.Movie:
		return p.ProcessMovie(ctx, src, info)
	case identify.Series:
		return p.ProcessSeries(ctx, src, info)
	default:
		return p.fail(p.movieFailures, src, fmt.Sprintf("unknown media type %q", info.Type))
	}
}

// FailUnidentified records src in the movies failure list after the
// identification step could not describe it.
func (p *Processor) FailUnidentified(src string, cause error) Result {
	reason := "unidentified"
	if cause != nil {
		reason = "unidentified: " + cause.Error()
	}
	return p.fail(p.movieFailures, src, reason)
}

// ProcessMovie links a movie as <movies>/<Title> (<Year>)/<Title> (<Year>)<ext>
// next to a movie sidecar.
func (p *Processor) ProcessMovie(ctx context.Context, src string, info identify.MediaInfo) Result {
	if err := info.Validate(); err != nil {
		return p.fail(p.movieFailures, src, err.Error())
	}
	p.logger.Info("processing movie", logging.String("title", info.Title), logging.Int("year", info.Year), logging.Path(src))

	id, err := p.cfg.Metadata.SearchMovie(ctx, info.Title, info.Year)
	if err != nil {
		return p.metadataError(p.movieFailures, src, "movie search", err)
	}
	movie, err := p.cfg.Metadata.MovieDetails(ctx, id)
	if err != nil {
		return p.metadataError(p.movieFailures, src, "movie details", err)
	}

	dest := organizer.MovieDestination(p.cfg.MoviesRoot, info.Title, info.Year, src)
	result, ok := p.link(p.movieFailures, src, dest)
	if !ok {
		return result
	}
	if err := nfo.WriteMovie(organizer.NFOPath(dest), movie); err != nil {
		p.logger.Warn("cannot write movie sidecar", logging.String(logging.FieldDest, dest), logging.Error(err))
		result.Error = err
	}
	result.Externals = p.linkExternals(src, dest)
	p.succeed(src)
	return result
}

// ProcessSeries links an episode as
// <series>/<Title> (<Year>)/Season <S>/<Title> - S<ss>E<ee><ext>, writing
// tvshow.nfo once per series folder and an episode sidecar.
func (p *Processor) ProcessSeries(ctx context.Context, src string, info identify.MediaInfo) Result {
	if err := info.Validate(); err != nil {
		return p.fail(p.seriesFailures, src, err.Error())
	}
	season, okSeason := info.Season.First()
	episode, okEpisode := info.Episode.First()
	if !okSeason || !okEpisode {
		return p.fail(p.seriesFailures, src, fmt.Sprintf("unusable season %q episode %q", info.Season, info.Episode))
	}
	p.logger.Info("processing episode",
		logging.String("title", info.Title),
		logging.String("season", info.Season.String()),
		logging.String("episode", info.Episode.String()),
		logging.Path(src))

	id, err := p.seriesID(ctx, info.Title, info.Year)
	if err != nil {
		return p.metadataError(p.seriesFailures, src, "series search", err)
	}
	details, err := p.cfg.Metadata.EpisodeDetails(ctx, id, season, episode)
	if err != nil {
		return p.metadataError(p.seriesFailures, src, "episode details", err)
	}

	dest := organizer.EpisodeDestination(p.cfg.SeriesRoot, info.Title, info.Year, info.Season.String(), info.Episode.String(), src)
	result, ok := p.link(p.seriesFailures, src, dest)
	if !ok {
		return result
	}

	showNFO := filepath.Join(organizer.SeriesFolder(p.cfg.SeriesRoot, info.Title, info.Year), organizer.TVShowNFO)
	if _, err := os.Stat(showNFO); errors.Is(err, fs.ErrNotExist) {
		if series, err := p.cfg.Metadata.SeriesDetails(ctx, id); err != nil {
			p.logger.Warn("cannot fetch series details", logging.String("title", info.Title), logging.Error(err))
		} else if err := nfo.WriteSeries(showNFO, series); err != nil {
			p.logger.Warn("cannot write series sidecar", logging.String(logging.FieldDest, showNFO), logging.Error(err))
		}
	}
	if err := nfo.WriteEpisode(organizer.NFOPath(dest), details); err != nil {
		p.logger.Warn("cannot write episode sidecar", logging.String(logging.FieldDest, dest), logging.Error(err))
		result.Error = err
	}
	result.Externals = p.linkExternals(src, dest)
	p.succeed(src)
	return result
}

// Relink recomputes the external media of an already linked video and links
// whatever is missing. It returns the links created or replaced.
func (p *Processor) Relink(src, videoLink string) ([]string, error) {
	matches := p.cfg.Matcher.FindExternalMedia(src)
	if matches.Len() == 0 {
		return nil, nil
	}
	linked, err := p.cfg.Linker.LinkExternalMedia(src, videoLink, matches)
	for _, dest := range linked {
		if jerr := p.cfg.Journal.RecordExternal(p.targetOf(dest), dest); jerr != nil {
			p.logger.Warn("journal write failed", logging.Error(jerr))
		}
	}
	return linked, err
}

func (p *Processor) seriesID(ctx context.Context, title string, year int) (int64, error) {
	key := title + "_" + strconv.Itoa(year)
	p.mu.Lock()
	id, ok := p.seriesCache[key]
	p.mu.Unlock()
	if ok {
		return id, nil
	}
	id, err := p.cfg.Metadata.SearchSeries(ctx, title, year)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.seriesCache[key] = id
	p.mu.Unlock()
	return id, nil
}

func (p *Processor) link(list *failures.List, src, dest string) (Result, bool) {
	if _, err := p.cfg.Linker.LinkVideo(src, dest); err != nil {
		var linkErr *symlink.LinkError
		if errors.As(err, &linkErr) && linkErr.Type == symlink.SourceNotFound {
			p.logger.Debug("source vanished before linking", logging.Path(src))
			return Result{SourcePath: src, DestinationPath: dest, Outcome: Skipped}, false
		}
		reason := "link: " + err.Error()
		if symlink.IsPathConflict(err) {
			reason = "destination occupied: " + dest
		}
		result := p.fail(list, src, reason)
		result.DestinationPath = dest
		result.Error = err
		return result, false
	}
	if err := p.cfg.Journal.RecordLink(src, dest); err != nil {
		p.logger.Warn("journal write failed", logging.Error(err))
	}
	return Result{SourcePath: src, DestinationPath: dest, Outcome: Linked}, true
}

func (p *Processor) linkExternals(src, dest string) []string {
	linked, err := p.Relink(src, dest)
	if err != nil {
		p.logger.Warn("some external media could not be linked", logging.Path(src), logging.Error(err))
	}
	if len(linked) > 0 {
		p.logger.Info("linked external media", logging.Path(src), logging.Int(logging.FieldCount, len(linked)))
	}
	return linked
}

// metadataError marks src failed when TMDB has no answer for it and leaves
// it for a later retry when the failure is transient.
func (p *Processor) metadataError(list *failures.List, src, op string, err error) Result {
	if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrValidation) {
		result := p.fail(list, src, op+": "+err.Error())
		result.Error = err
		return result
	}
	p.logger.Warn("metadata lookup failed, will retry later", logging.String("op", op), logging.Path(src), logging.Error(err))
	return Result{SourcePath: src, Outcome: Skipped, Error: err}
}

func (p *Processor) fail(list *failures.List, src, reason string) Result {
	p.logger.Warn("marking file as failed", logging.Path(src), logging.String("reason", reason))
	if _, err := list.Mark(src); err != nil {
		p.logger.Warn("cannot update failure list", logging.String("list", list.Path()), logging.Error(err))
	}
	if err := p.cfg.Journal.RecordFailed(src, reason); err != nil {
		p.logger.Warn("journal write failed", logging.Error(err))
	}
	return Result{SourcePath: src, Outcome: Failed, Error: errors.New(reason)}
}

func (p *Processor) succeed(src string) {
	for _, list := range p.FailureLists() {
		if removed, err := list.Unmark(src); err != nil {
			p.logger.Warn("cannot update failure list", logging.String("list", list.Path()), logging.Error(err))
		} else if removed {
			p.logger.Info("cleared earlier failure", logging.Path(src))
		}
	}
}

func (p *Processor) targetOf(link string) string {
	target, err := symlink.Target(link)
	if err != nil {
		return ""
	}
	return target
}
