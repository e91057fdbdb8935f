package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"medialink/internal/failures"
	"medialink/internal/identify"
	"medialink/internal/journal"
	"medialink/internal/services"
	"medialink/internal/symlink"
	"medialink/internal/tmdb"
)

type fakeMetadata struct {
	movieErr, seriesErr, episodeErr error
	seriesSearches                  int
	seriesDetails                   int
	episodes                        [][2]int
}

func (f *fakeMetadata) SearchMovie(_ context.Context, title string, year int) (int64, error) {
	if f.movieErr != nil {
		return 0, f.movieErr
	}
	return 27205, nil
}

func (f *fakeMetadata) SearchSeries(_ context.Context, title string, year int) (int64, error) {
	f.seriesSearches++
	if f.seriesErr != nil {
		return 0, f.seriesErr
	}
	return 1396, nil
}

func (f *fakeMetadata) MovieDetails(_ context.Context, id int64) (*tmdb.Movie, error) {
	return &tmdb.Movie{ID: id, Title: "Начало", OriginalTitle: "Inception", ReleaseDate: "2010-07-15"}, nil
}

func (f *fakeMetadata) SeriesDetails(_ context.Context, id int64) (*tmdb.Series, error) {
	f.seriesDetails++
	return &tmdb.Series{ID: id, Name: "Show"}, nil
}

func (f *fakeMetadata) EpisodeDetails(_ context.Context, id int64, season, episode int) (*tmdb.Episode, error) {
	f.episodes = append(f.episodes, [2]int{season, episode})
	if f.episodeErr != nil {
		return nil, f.episodeErr
	}
	return &tmdb.Episode{ID: 100, Name: "Pilot", SeasonNumber: season, EpisodeNumber: episode}, nil
}

type env struct {
	source, movies, series string
	meta                   *fakeMetadata
	proc                   *Processor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	base := t.TempDir()
	e := &env{
		source: filepath.Join(base, "mixed"),
		movies: filepath.Join(base, "movies"),
		series: filepath.Join(base, "series"),
		meta:   &fakeMetadata{},
	}
	for _, dir := range []string{e.source, e.movies, e.series} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	proc, err := New(Config{SourceRoot: e.source, MoviesRoot: e.movies, SeriesRoot: e.series, Metadata: e.meta})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	e.proc = proc
	return e
}

func (e *env) touch(t *testing.T, rel string) string {
	t.Helper()
	path := filepath.Join(e.source, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func failed(t *testing.T, root, source string) []string {
	t.Helper()
	entries, err := failures.New(root, source).Load()
	if err != nil {
		t.Fatal(err)
	}
	return entries
}

func movieInfo() identify.MediaInfo {
	return identify.MediaInfo{Type: identify.Movie, Title: "Inception", Year: 2010}
}

func episodeInfo(episode identify.Number) identify.MediaInfo {
	return identify.MediaInfo{Type: identify.Series, Title: "Show", Year: 2008, Season: "1", Episode: episode}
}

func TestProcessMovieLinksSidecarAndExternals(t *testing.T) {
	e := newEnv(t)
	src := e.touch(t, "Inception.2010/Inception.2010.mkv")
	e.touch(t, "Inception.2010/Inception.2010.rus.mka")

	result := e.proc.Process(context.Background(), src, movieInfo())
	if result.Outcome != Linked || result.Error != nil {
		t.Fatalf("result = %+v", result)
	}

	dir := filepath.Join(e.movies, "Inception (2010)")
	if result.DestinationPath != filepath.Join(dir, "Inception (2010).mkv") {
		t.Fatalf("destination = %s", result.DestinationPath)
	}
	for _, name := range []string{"Inception (2010).mkv", "Inception (2010).nfo", "Inception (2010).rus.mka"} {
		if !exists(filepath.Join(dir, name)) {
			t.Errorf("missing %s", name)
		}
	}
	if len(result.Externals) != 1 {
		t.Fatalf("externals = %v", result.Externals)
	}
	target, err := os.Readlink(result.DestinationPath)
	if err != nil || filepath.IsAbs(target) {
		t.Fatalf("expected relative link, got %q, %v", target, err)
	}
}

func TestProcessMovieNotFoundIsMarkedFailed(t *testing.T) {
	e := newEnv(t)
	e.meta.movieErr = services.Wrap(services.ErrNotFound, "tmdb", "search", "no results", nil)
	src := e.touch(t, "Unknown.mkv")

	result := e.proc.Process(context.Background(), src, movieInfo())
	if result.Outcome != Failed {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	if got := failed(t, e.movies, e.source); len(got) != 1 || got[0] != src {
		t.Fatalf("movies failure list = %v", got)
	}
	if exists(filepath.Join(e.movies, "Inception (2010)")) {
		t.Fatal("nothing should be linked")
	}
}

func TestTransientMetadataErrorIsRetriedLater(t *testing.T) {
	e := newEnv(t)
	e.meta.movieErr = services.Wrap(services.ErrTransient, "tmdb", "request", "502", nil)
	src := e.touch(t, "Inception.mkv")

	result := e.proc.Process(context.Background(), src, movieInfo())
	if result.Outcome != Skipped || !errors.Is(result.Error, services.ErrTransient) {
		t.Fatalf("result = %+v", result)
	}
	if got := failed(t, e.movies, e.source); len(got) != 0 {
		t.Fatalf("transient failure was recorded: %v", got)
	}
}

func TestProcessSeriesWritesShowSidecarOnce(t *testing.T) {
	e := newEnv(t)
	first := e.touch(t, "Show/Show - 01.mkv")
	second := e.touch(t, "Show/Show - 02.mkv")
	e.touch(t, "Show/Subs/Show - 01.Group.ass")

	for i, src := range []string{first, second} {
		result := e.proc.Process(context.Background(), src, episodeInfo(identify.Number(strconv.Itoa(i+1))))
		if result.Outcome != Linked {
			t.Fatalf("episode %d: %+v", i+1, result)
		}
	}

	show := filepath.Join(e.series, "Show (2008)")
	for _, rel := range []string{
		"tvshow.nfo",
		"Season 1/Show - S01E01.mkv",
		"Season 1/Show - S01E01.nfo",
		"Season 1/Show - S01E01.Group.ass",
		"Season 1/Show - S01E02.mkv",
		"Season 1/Show - S01E02.nfo",
	} {
		if !exists(filepath.Join(show, filepath.FromSlash(rel))) {
			t.Errorf("missing %s", rel)
		}
	}
	if e.meta.seriesSearches != 1 {
		t.Errorf("series searched %d times, want cached id", e.meta.seriesSearches)
	}
	if e.meta.seriesDetails != 1 {
		t.Errorf("series details fetched %d times", e.meta.seriesDetails)
	}
}

func TestProcessSeriesMultiEpisodeUsesFirstForLookup(t *testing.T) {
	e := newEnv(t)
	src := e.touch(t, "Show/Show.S01E19-20.mkv")

	result := e.proc.Process(context.Background(), src, episodeInfo("19-20"))
	if result.Outcome != Linked {
		t.Fatalf("result = %+v", result)
	}
	if !strings.HasSuffix(result.DestinationPath, filepath.Join("Season 1", "Show - S01E19-20.mkv")) {
		t.Fatalf("destination = %s", result.DestinationPath)
	}
	if len(e.meta.episodes) != 1 || e.meta.episodes[0] != [2]int{1, 19} {
		t.Fatalf("episode lookups = %v", e.meta.episodes)
	}
}

func TestProcessSeriesWithoutEpisodeFailsInSeriesRoot(t *testing.T) {
	e := newEnv(t)
	src := e.touch(t, "Show/Show.mkv")

	result := e.proc.Process(context.Background(), src, episodeInfo(""))
	if result.Outcome != Failed {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	if got := failed(t, e.series, e.source); len(got) != 1 {
		t.Fatalf("series failure list = %v", got)
	}
	if got := failed(t, e.movies, e.source); len(got) != 0 {
		t.Fatalf("movies failure list = %v", got)
	}
}

func TestMissingEpisodeDetailsLinksNothing(t *testing.T) {
	e := newEnv(t)
	e.meta.episodeErr = services.Wrap(services.ErrNotFound, "tmdb", "request", "404", nil)
	src := e.touch(t, "Show/Show - 99.mkv")

	result := e.proc.Process(context.Background(), src, episodeInfo("99"))
	if result.Outcome != Failed {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	if exists(filepath.Join(e.series, "Show (2008)")) {
		t.Fatal("series folder should not exist")
	}
}

func TestSuccessClearsEarlierFailure(t *testing.T) {
	e := newEnv(t)
	src := e.touch(t, "Inception.mkv")
	e.proc.FailUnidentified(src, errors.New("model returned 0 entries"))
	if got := failed(t, e.movies, e.source); len(got) != 1 {
		t.Fatalf("failure list = %v", got)
	}

	if result := e.proc.Process(context.Background(), src, movieInfo()); result.Outcome != Linked {
		t.Fatalf("result = %+v", result)
	}
	if got := failed(t, e.movies, e.source); len(got) != 0 {
		t.Fatalf("failure list after success = %v", got)
	}
}

func TestVanishedSourceIsSkipped(t *testing.T) {
	e := newEnv(t)
	src := filepath.Join(e.source, "gone.mkv")

	result := e.proc.Process(context.Background(), src, movieInfo())
	if result.Outcome != Skipped || result.Error != nil {
		t.Fatalf("result = %+v", result)
	}
	if got := failed(t, e.movies, e.source); len(got) != 0 {
		t.Fatalf("failure list = %v", got)
	}
}

func TestDestinationConflictIsMarkedFailed(t *testing.T) {
	e := newEnv(t)
	src := e.touch(t, "Inception.mkv")
	dest := filepath.Join(e.movies, "Inception (2010)", "Inception (2010).mkv")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte("real file"), 0o644); err != nil {
		t.Fatal(err)
	}

	result := e.proc.Process(context.Background(), src, movieInfo())
	if result.Outcome != Failed {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	if !symlink.IsPathConflict(result.Error) {
		t.Errorf("error = %v, want a path conflict", result.Error)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "real file" {
		t.Fatal("regular file was replaced")
	}
}

func TestJournalRecordsLinks(t *testing.T) {
	e := newEnv(t)
	w, err := journal.Open(filepath.Join(t.TempDir(), "journal.jsonl"), journal.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })
	if _, err := w.StartRun("test", "dev"); err != nil {
		t.Fatal(err)
	}
	proc, err := New(Config{SourceRoot: e.source, MoviesRoot: e.movies, SeriesRoot: e.series, Metadata: e.meta, Journal: w})
	if err != nil {
		t.Fatal(err)
	}
	src := e.touch(t, "Inception.mkv")
	e.touch(t, "Inception.eng.srt")
	other := e.touch(t, "Other.mkv")

	proc.Process(context.Background(), src, movieInfo())
	proc.FailUnidentified(other, nil)

	summary := w.Summary()
	if summary.Linked != 1 || summary.LinkedExternal != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRelinkAddsLateExternalMedia(t *testing.T) {
	e := newEnv(t)
	src := e.touch(t, "Inception.mkv")
	result := e.proc.Process(context.Background(), src, movieInfo())
	if len(result.Externals) != 0 {
		t.Fatalf("unexpected externals %v", result.Externals)
	}

	e.touch(t, "Inception.rus.mka")
	linked, err := e.proc.Relink(src, result.DestinationPath)
	if err != nil {
		t.Fatalf("Relink returned error: %v", err)
	}
	if len(linked) != 1 || filepath.Base(linked[0]) != "Inception (2010).rus.mka" {
		t.Fatalf("linked = %v", linked)
	}
	again, err := e.proc.Relink(src, result.DestinationPath)
	if err != nil || len(again) != 0 {
		t.Fatalf("second relink = %v, %v", again, err)
	}
}

func TestSummary(t *testing.T) {
	var s Summary
	s.Add(Result{Outcome: Linked, Externals: []string{"a", "b"}})
	s.Add(Result{Outcome: Failed, Error: errors.New("x")})
	var other Summary
	other.Add(Result{Outcome: Skipped})
	s.Merge(other)

	if s.Total() != 3 || s.Externals != 2 || !s.HasErrors() {
		t.Fatalf("summary = %+v", s)
	}
	if got := s.String(); got != "Processed 3 files: 1 linked (2 external), 1 failed, 1 skipped" {
		t.Fatalf("String() = %q", got)
	}
}

func TestNewRequiresRootsAndMetadata(t *testing.T) {
	if _, err := New(Config{SourceRoot: "/a", MoviesRoot: "/b", SeriesRoot: "/c"}); err == nil {
		t.Fatal("expected error without metadata")
	}
	if _, err := New(Config{Metadata: &fakeMetadata{}}); err == nil {
		t.Fatal("expected error without roots")
	}
}
