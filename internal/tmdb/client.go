// Package tmdb is a small client for the parts of The Movie Database API
// used to describe linked media: search, movie and series details with
// credits, and episode details.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"medialink/internal/logging"
	"medialink/internal/services"
)

const (
	DefaultBaseURL     = "https://api.themoviedb.org/3"
	defaultHTTPTimeout = 15 * time.Second
)

// Client provides access to the TMDB API.
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "tmdb")
		}
	}
}

// New creates a TMDB client. An empty baseURL selects the public API.
func New(apiKey, baseURL, language string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "tmdb", "new", "api key required", nil)
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		language:   strings.TrimSpace(language),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// SearchMovie returns the id of the first movie matching title. When a year
// is given and yields nothing, the search is repeated without it. No match
// is reported as services.ErrNotFound.
func (c *Client) SearchMovie(ctx context.Context, title string, year int) (int64, error) {
	return c.search(ctx, "/search/movie", "year", title, year)
}

// SearchSeries is SearchMovie for TV shows, filtering on first air year.
func (c *Client) SearchSeries(ctx context.Context, title string, year int) (int64, error) {
	return c.search(ctx, "/search/tv", "first_air_date_year", title, year)
}

func (c *Client) search(ctx context.Context, path, yearParam, title string, year int) (int64, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, services.Wrap(services.ErrValidation, "tmdb", "search", "query must not be empty", nil)
	}
	params := url.Values{}
	params.Set("query", title)
	if year > 0 {
		params.Set(yearParam, strconv.Itoa(year))
	}

	var payload searchResponse
	if err := c.get(ctx, path, params, &payload); err != nil {
		return 0, err
	}
	if len(payload.Results) == 0 && year > 0 {
		c.logger.Info("no results with year, retrying without",
			logging.String("query", title),
			logging.Int("year", year))
		params.Del(yearParam)
		payload = searchResponse{}
		if err := c.get(ctx, path, params, &payload); err != nil {
			return 0, err
		}
	}
	if len(payload.Results) == 0 {
		return 0, services.Wrap(services.ErrNotFound, "tmdb", "search", fmt.Sprintf("no results for %q", title), nil)
	}
	return payload.Results[0].ID, nil
}

// MovieDetails fetches a movie with its credits.
func (c *Client) MovieDetails(ctx context.Context, id int64) (*Movie, error) {
	if id <= 0 {
		return nil, services.Wrap(services.ErrValidation, "tmdb", "movie details", "movie id must be positive", nil)
	}
	var movie Movie
	if err := c.get(ctx, fmt.Sprintf("/movie/%d", id), withCredits(), &movie); err != nil {
		return nil, err
	}
	return &movie, nil
}

// SeriesDetails fetches a TV show with its credits.
func (c *Client) SeriesDetails(ctx context.Context, id int64) (*Series, error) {
	if id <= 0 {
		return nil, services.Wrap(services.ErrValidation, "tmdb", "series details", "show id must be positive", nil)
	}
	var series Series
	if err := c.get(ctx, fmt.Sprintf("/tv/%d", id), withCredits(), &series); err != nil {
		return nil, err
	}
	return &series, nil
}

// EpisodeDetails fetches one episode of a show.
func (c *Client) EpisodeDetails(ctx context.Context, id int64, season, episode int) (*Episode, error) {
	if id <= 0 {
		return nil, services.Wrap(services.ErrValidation, "tmdb", "episode details", "show id must be positive", nil)
	}
	if season < 0 || episode <= 0 {
		return nil, services.Wrap(services.ErrValidation, "tmdb", "episode details",
			fmt.Sprintf("invalid season %d episode %d", season, episode), nil)
	}
	var ep Episode
	path := fmt.Sprintf("/tv/%d/season/%d/episode/%d", id, season, episode)
	if err := c.get(ctx, path, url.Values{}, &ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

func withCredits() url.Values {
	params := url.Values{}
	params.Set("append_to_response", "credits")
	return params
}

func (c *Client) get(ctx context.Context, path string, params url.Values, target any) error {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "tmdb", "build url", "", err)
	}
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return services.Wrap(services.ErrExternal, "tmdb", "build request", "", err)
	}
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return services.Wrap(services.ErrTransient, "tmdb", "request", fmt.Sprintf("%s (latency=%v)", path, latency), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return services.Wrap(services.MarkerForStatus(resp.StatusCode), "tmdb", "request",
			fmt.Sprintf("%s returned %d (latency=%v): %s", path, resp.StatusCode, latency, strings.TrimSpace(string(body))), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return services.Wrap(services.ErrExternal, "tmdb", "decode", path, err)
	}
	c.logger.Debug("tmdb request", logging.String("endpoint", path), logging.Duration("latency", latency))
	return nil
}
