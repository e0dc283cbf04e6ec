package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// APIError represents an error response from the Binance API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
	RetryAfter time.Duration // From the Retry-After header, 0 if absent
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// doRequest performs a single HTTP request after acquiring rate-budget
// headroom for its weight.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, weight int) ([]byte, error) {
	waited, err := c.budget.Acquire(ctx, weight)
	if err != nil {
		return nil, err
	}
	if waited > 0 {
		c.logger.Debug("rate budget wait",
			"waited", waited,
			"weight", weight,
			"path", path,
		)
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	return body, nil
}

// doWithRetry performs a request with exponential backoff retry.
// Retryable means a 5xx or 429 response, or a connection-level failure.
// A 429 response honors the server's Retry-After verbatim and resets the
// attempt counter instead of consuming a retry.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values, weight int) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; {
		body, err := c.doRequest(ctx, method, path, query, weight)
		if err == nil {
			return body, nil
		}

		lastErr = err

		// Check if error is retryable
		if apiErr, ok := err.(*APIError); ok {
			if !apiErr.IsRetryable() {
				return nil, err
			}
			if apiErr.StatusCode == http.StatusTooManyRequests && apiErr.RetryAfter > 0 {
				c.logger.Warn("rate limited by server",
					"retry_after", apiErr.RetryAfter,
					"path", path,
				)
				if err := sleepCtx(ctx, apiErr.RetryAfter); err != nil {
					return nil, err
				}
				attempt = 0
				backoff = c.retryBackoff
				continue
			}
		} else if ctx.Err() != nil {
			// Connection-level failures retry; a dead context does not.
			return nil, err
		}

		attempt++
		if attempt > c.maxRetries {
			break
		}

		// Add jitter: backoff * (0.5 to 1.5)
		jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
		c.logger.Debug("retrying request",
			"attempt", attempt,
			"backoff", jitter,
			"path", path,
		)

		if err := sleepCtx(ctx, jitter); err != nil {
			return nil, err
		}

		backoff *= 2
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// get performs a GET request with retries and unmarshals the response.
func (c *Client) get(ctx context.Context, path string, query url.Values, weight int, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodGet, path, query, weight)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// parseRetryAfter parses a Retry-After header value in seconds.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
