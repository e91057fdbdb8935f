// Package jellyfin asks a Jellyfin server to rescan the libraries that
// receive new links.
package jellyfin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medialink/internal/config"
	"medialink/internal/logging"
	"medialink/internal/services"
)

// HTTPDoer describes the HTTP client used by the notifier.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client triggers library refreshes. A nil *Client is disabled and every
// call on it is a no-op.
type Client struct {
	baseURL    string
	apiKey     string
	libraryIDs []string
	client     HTTPDoer
	logger     *slog.Logger
}

// New constructs a client for the given libraries. client may be nil.
func New(baseURL, apiKey string, libraryIDs []string, client HTTPDoer, logger *slog.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	var ids []string
	for _, id := range libraryIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		libraryIDs: ids,
		client:     client,
		logger:     logging.NewComponentLogger(logger, "jellyfin"),
	}
}

// NewFromConfig returns nil when refresh is not fully configured.
func NewFromConfig(cfg *config.Config, client HTTPDoer, logger *slog.Logger) *Client {
	if cfg == nil || !cfg.JellyfinEnabled() {
		return nil
	}
	return New(cfg.Jellyfin.URL, cfg.Jellyfin.APIKey,
		[]string{cfg.Jellyfin.MoviesLibraryID, cfg.Jellyfin.SeriesLibraryID}, client, logger)
}

// Libraries returns the configured library ids.
func (c *Client) Libraries() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.libraryIDs...)
}

// RefreshAll refreshes every configured library. Failures are logged and
// returned joined; one failing library does not skip the others.
func (c *Client) RefreshAll(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, id := range c.libraryIDs {
		if err := c.Refresh(ctx, id); err != nil {
			c.logger.Warn("library refresh failed", logging.String("library", id), logging.Error(err))
			errs = append(errs, err)
			continue
		}
		c.logger.Info("library refresh requested", logging.String("library", id))
	}
	return errors.Join(errs...)
}

// Refresh asks the server to rescan one library item recursively.
func (c *Client) Refresh(ctx context.Context, libraryID string) error {
	if c == nil || c.baseURL == "" || c.apiKey == "" {
		return nil
	}
	params := url.Values{}
	params.Set("Recursive", "true")
	params.Set("ImageRefreshMode", "Default")
	params.Set("MetadataRefreshMode", "Default")
	params.Set("ReplaceAllImages", "false")
	params.Set("ReplaceAllMetadata", "false")
	refreshURL := fmt.Sprintf("%s/Items/%s/Refresh?%s", c.baseURL, url.PathEscape(libraryID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, refreshURL, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "jellyfin", "build request", "", err)
	}
	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "jellyfin", "refresh", libraryID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return services.Wrap(services.MarkerForStatus(resp.StatusCode), "jellyfin", "refresh",
			fmt.Sprintf("%s returned %d", libraryID, resp.StatusCode), nil)
	}
	return nil
}
