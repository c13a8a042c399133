package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/phenomenon0/capper-engine/pkg/sports"
)

const (
	// DefaultBaseURL is the game-stats service base URL.
	DefaultBaseURL = "http://localhost:8085"

	defaultRateLimit = 10.0 // requests per second
	defaultBurst     = 5
)

// HTTPClient fetches team stats and injury reports from the game-stats
// service JSON API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientOption configures the client.
type ClientOption func(*HTTPClient)

// WithBaseURL sets a custom base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *HTTPClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

// WithRateLimit sets custom rate limiting. Non-positive values keep the
// defaults.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *HTTPClient) {
		if rps <= 0 || burst <= 0 {
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewHTTPClient creates a new stats API client.
func NewHTTPClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// TeamStats implements Fetcher.
func (c *HTTPClient) TeamStats(ctx context.Context, sport sports.Sport, teamID string) (*TeamStats, error) {
	var ts TeamStats
	path := fmt.Sprintf("/v1/%s/teams/%s/stats", url.PathEscape(string(sport)), url.PathEscape(teamID))
	if err := c.get(ctx, path, &ts); err != nil {
		return nil, err
	}
	if ts.TeamID == "" {
		ts.TeamID = teamID
	}
	return &ts, nil
}

// Injuries implements Fetcher.
func (c *HTTPClient) Injuries(ctx context.Context, sport sports.Sport, teamID string) (*InjuryReport, error) {
	var report InjuryReport
	path := fmt.Sprintf("/v1/%s/teams/%s/injuries", url.PathEscape(string(sport)), url.PathEscape(teamID))
	if err := c.get(ctx, path, &report); err != nil {
		return nil, err
	}
	if report.TeamID == "" {
		report.TeamID = teamID
	}
	return &report, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
