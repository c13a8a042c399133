package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient posts a Query to a research service and returns its body.
type HTTPClient struct {
	name       string
	url        string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the service at url.
func NewHTTPClient(name, url string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		name:       name,
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements Client.
func (c *HTTPClient) Name() string { return c.name }

// Research implements Client.
func (c *HTTPClient) Research(ctx context.Context, q Query) (string, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("marshal query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("research API error %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	return string(data), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
