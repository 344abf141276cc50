// Package fetch retrieves monitored pages over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// maxBodyBytes caps how much of a page is read; listing pages are small and
// anything larger is almost certainly not one.
const maxBodyBytes = 4 << 20

// Client fetches raw page content with a bounded timeout.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	attempts   uint
}

// New creates a fetcher. The timeout ceiling comes from the supplied
// http.Client.
func New(httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		attempts:   3,
	}
}

// Fetch performs one GET of pageURL and returns the response body. DNS
// failures, connection failures, timeouts, and non-2xx responses all surface
// as a single error class; the caller retries on its next cycle.
func (c *Client) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	var body []byte

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}

			// Chrome-like headers to avoid getting blocked by the target site.
			req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
			req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
			req.Header.Set("Accept-Language", "ja,en-US;q=0.9,en;q=0.8")

			start := time.Now()
			resp, err := c.httpClient.Do(req)
			if err != nil {
				c.logger.Warn("HTTP request failed",
					"url", pageURL,
					"duration_ms", time.Since(start).Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
				c.logger.Warn("HTTP request returned non-2xx status",
					"url", pageURL,
					"status_code", resp.StatusCode)
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}

			c.logger.Debug("Page fetched",
				"url", pageURL,
				"status_code", resp.StatusCode,
				"bytes", len(body),
				"duration_ms", time.Since(start).Milliseconds())
			return nil
		},
		retry.Attempts(c.attempts),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.MaxJitter(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying fetch after error", "url", pageURL, "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}

	return body, nil
}
