package tmdb_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"medialink/internal/services"
	"medialink/internal/tmdb"
)

type recorder struct {
	mu       sync.Mutex
	requests []*http.Request
}

func (r *recorder) add(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
}

func (r *recorder) all() []*http.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*http.Request(nil), r.requests...)
}

func newServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*tmdb.Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	client, err := tmdb.New("key", server.URL, "ru-RU")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return client, rec
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := tmdb.New("  ", "", "")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSearchMovieSendsYearAndLanguage(t *testing.T) {
	client, rec := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"page":1,"results":[{"id":27205,"title":"Inception"},{"id":1}]}`))
	})

	id, err := client.SearchMovie(context.Background(), "Inception", 2010)
	if err != nil {
		t.Fatalf("SearchMovie returned error: %v", err)
	}
	if id != 27205 {
		t.Fatalf("id = %d, want first result", id)
	}
	reqs := rec.all()
	if len(reqs) != 1 {
		t.Fatalf("expected one request, got %d", len(reqs))
	}
	q := reqs[0].URL.Query()
	if reqs[0].URL.Path != "/search/movie" || q.Get("query") != "Inception" || q.Get("year") != "2010" ||
		q.Get("api_key") != "key" || q.Get("language") != "ru-RU" {
		t.Fatalf("unexpected request %s?%s", reqs[0].URL.Path, reqs[0].URL.RawQuery)
	}
}

func TestSearchSeriesRetriesWithoutYear(t *testing.T) {
	client, rec := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("first_air_date_year") != "" {
			_, _ = w.Write([]byte(`{"page":1,"results":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"page":1,"results":[{"id":1396,"name":"Breaking Bad"}]}`))
	})

	id, err := client.SearchSeries(context.Background(), "Breaking Bad", 2009)
	if err != nil {
		t.Fatalf("SearchSeries returned error: %v", err)
	}
	if id != 1396 {
		t.Fatalf("id = %d", id)
	}
	reqs := rec.all()
	if len(reqs) != 2 || reqs[0].URL.Path != "/search/tv" {
		t.Fatalf("expected two tv searches, got %d", len(reqs))
	}
	if reqs[0].URL.Query().Get("first_air_date_year") != "2009" || reqs[1].URL.Query().Has("first_air_date_year") {
		t.Fatalf("unexpected year parameters: %q then %q", reqs[0].URL.RawQuery, reqs[1].URL.RawQuery)
	}
}

func TestSearchWithoutYearDoesNotRetry(t *testing.T) {
	client, rec := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"page":1,"results":[]}`))
	})

	_, err := client.SearchMovie(context.Background(), "Nothing", 0)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if n := len(rec.all()); n != 1 {
		t.Fatalf("expected one request, got %d", n)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	client, err := tmdb.New("key", "https://example.invalid", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.SearchMovie(context.Background(), " ", 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMovieDetailsWithCredits(t *testing.T) {
	client, rec := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": 27205, "title": "Начало", "original_title": "Inception",
			"release_date": "2010-07-15", "runtime": 148, "vote_average": 8.4,
			"poster_path": "/poster.jpg",
			"genres": [{"id": 28, "name": "боевик"}],
			"production_companies": [{"id": 923, "name": "Legendary Pictures"}],
			"credits": {
				"cast": [{"name": "Leonardo DiCaprio", "character": "Cobb", "profile_path": "/leo.jpg"}],
				"crew": [{"name": "Christopher Nolan", "job": "Director"}]
			}
		}`))
	})

	movie, err := client.MovieDetails(context.Background(), 27205)
	if err != nil {
		t.Fatalf("MovieDetails returned error: %v", err)
	}
	if movie.OriginalTitle != "Inception" || movie.Runtime != 148 || len(movie.Credits.Cast) != 1 || movie.Credits.Crew[0].Job != "Director" {
		t.Fatalf("unexpected movie: %+v", movie)
	}
	req := rec.all()[0]
	if req.URL.Path != "/movie/27205" || req.URL.Query().Get("append_to_response") != "credits" {
		t.Fatalf("unexpected request %s?%s", req.URL.Path, req.URL.RawQuery)
	}
}

func TestEpisodeDetailsPath(t *testing.T) {
	client, rec := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 62085, "name": "Pilot", "season_number": 1, "episode_number": 1, "air_date": "2008-01-20"}`))
	})

	ep, err := client.EpisodeDetails(context.Background(), 1396, 1, 1)
	if err != nil {
		t.Fatalf("EpisodeDetails returned error: %v", err)
	}
	if ep.Name != "Pilot" || ep.AirDate != "2008-01-20" {
		t.Fatalf("unexpected episode: %+v", ep)
	}
	if path := rec.all()[0].URL.Path; path != "/tv/1396/season/1/episode/1" {
		t.Fatalf("path = %s", path)
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		marker error
	}{
		{http.StatusNotFound, services.ErrNotFound},
		{http.StatusTooManyRequests, services.ErrTransient},
		{http.StatusBadGateway, services.ErrTransient},
		{http.StatusUnauthorized, services.ErrConfiguration},
		{http.StatusBadRequest, services.ErrExternal},
	}
	for _, tt := range tests {
		client, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"status_code":34}`))
		})
		_, err := client.SeriesDetails(context.Background(), 1)
		if !errors.Is(err, tt.marker) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.marker, err)
		}
	}
}

func TestInvalidIDs(t *testing.T) {
	client, err := tmdb.New("key", "https://example.invalid", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.MovieDetails(context.Background(), 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("MovieDetails(0) = %v", err)
	}
	if _, err := client.EpisodeDetails(context.Background(), 1, 1, 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("EpisodeDetails(episode 0) = %v", err)
	}
}

func TestImageURLAndYear(t *testing.T) {
	if got := tmdb.ImageURL("/p.jpg"); got != "https://image.tmdb.org/t/p/original/p.jpg" {
		t.Fatalf("ImageURL = %q", got)
	}
	if got := tmdb.ImageURL(""); got != "" {
		t.Fatalf("ImageURL(\"\") = %q", got)
	}
	tests := map[string]string{"2010-07-15": "2010", "": "", "20-1": ""}
	for in, want := range tests {
		if got := tmdb.Year(in); got != want {
			t.Errorf("Year(%q) = %q, want %q", in, got, want)
		}
	}
}
