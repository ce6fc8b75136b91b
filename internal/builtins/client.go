// ABOUTME: Retrying HTTP client the builtin tools use to reach public joke and fact APIs.
// ABOUTME: Wraps go-retryablehttp with slog logging and JSON decoding.

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// maxUpstreamBody caps how much of an upstream response is read.
const maxUpstreamBody = 1 << 20

// ClientConfig configures the upstream HTTP client.
type ClientConfig struct {
	Timeout      time.Duration // per attempt
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
	Logger       *slog.Logger
}

// Client performs GET requests against upstream APIs.
type Client struct {
	http      *retryablehttp.Client
	userAgent string
}

// NewClient creates a Client. Zero values get conservative defaults.
func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.Logger = logger.With("component", "upstream")
	rc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	} else {
		rc.RetryWaitMin = 200 * time.Millisecond
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	} else {
		rc.RetryWaitMax = 2 * time.Second
	}
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}
	// Hand back the last response so callers can report its status.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	ua := cfg.UserAgent
	if ua == "" {
		ua = "quip-gateway"
	}

	return &Client{http: rc, userAgent: ua}
}

// getJSON fetches url and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upstream returned %s", resp.Status)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUpstreamBody)).Decode(out); err != nil {
		return fmt.Errorf("decoding upstream response: %w", err)
	}
	return nil
}
