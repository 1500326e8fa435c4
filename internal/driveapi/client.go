package driveapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// DefaultBaseURL is the hosted-drive REST service's v3 endpoint.
const DefaultBaseURL = "https://www.googleapis.com/drive/v3"

// DefaultUploadBaseURL is the resumable-upload endpoint: the same host as
// DefaultBaseURL under a distinct /upload path prefix, per the hosted-drive
// API's own convention.
const DefaultUploadBaseURL = "https://www.googleapis.com/upload/drive/v3"

// FolderMimeType is the MIME type the hosted-drive service assigns folders.
const FolderMimeType = "application/vnd.google-apps.folder"

const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "drivesync/0.1"
)

// TokenSource provides OAuth2 bearer tokens, refreshing as needed.
// Defined at the consumer (driveapi/) per "accept interfaces, return structs".
type TokenSource interface {
	Token() (string, error)
}

// Client is an HTTP client for the hosted-drive REST API. It handles
// request construction, bearer authentication, retry with exponential
// backoff, and error classification.
type Client struct {
	baseURL       string
	uploadBaseURL string
	httpClient    *http.Client
	token         TokenSource
	logger        *slog.Logger

	// sleepFunc is called to wait between retries. Tests override this to
	// avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a hosted-drive API client.
func NewClient(baseURL, uploadBaseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:       baseURL,
		uploadBaseURL: uploadBaseURL,
		httpClient:    httpClient,
		token:         token,
		logger:        logger,
		sleepFunc:     timeSleep,
	}
}

// Do executes an authenticated request against baseURL+path with retry on
// transient errors. The caller must close the response body on success.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	return c.doRetry(ctx, c.baseURL+path, method, body, nil)
}

// DoAbsolute executes an authenticated request against an absolute URL
// (e.g., a Location header returned by the upload-session endpoint).
func (c *Client) DoAbsolute(ctx context.Context, method, url string, body io.Reader, headers http.Header) (*http.Response, error) {
	return c.doRetry(ctx, url, method, body, headers)
}

func (c *Client) doRetry(ctx context.Context, url, method string, body io.Reader, extraHeaders http.Header) (*http.Response, error) {
	var attempt int

	for {
		if err := rewindBody(body); err != nil {
			return nil, err
		}

		resp, err := c.doOnce(ctx, method, url, body, extraHeaders)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("driveapi: request canceled: %w", ctx.Err())
			}

			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("driveapi: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("driveapi: %s %s failed after %d retries: %w", method, url, maxRetries, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("driveapi: request canceled: %w", err)
			}

			attempt++

			continue
		}

		return nil, c.terminalError(method, resp.StatusCode, errBody, attempt)
	}
}

func (c *Client) doOnce(ctx context.Context, method, url string, body io.Reader, extraHeaders http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)

	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, vals := range extraHeaders {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed",
			slog.String("method", method),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)

		return nil, err
	}

	return resp, nil
}

// terminalError builds an APIError and logs the final failure.
func (c *Client) terminalError(method string, statusCode int, body []byte, attempt int) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		Message:    string(body),
		Err:        classifyStatus(statusCode),
	}

	if attempt > 0 {
		c.logger.Error("request failed after retries",
			slog.String("method", method),
			slog.Int("status", statusCode),
			slog.Int("attempts", attempt+1),
		)
	} else {
		c.logger.Warn("request failed",
			slog.String("method", method),
			slog.Int("status", statusCode),
		)
	}

	return apiErr
}

// retryBackoff returns the backoff duration for a retryable response,
// honoring a numeric Retry-After header on 429 responses.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// rewindBody seeks an io.Reader back to offset 0 if it implements io.Seeker,
// so a retry resends the full payload.
func rewindBody(body io.Reader) error {
	if body == nil {
		return nil
	}

	if seeker, ok := body.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("driveapi: rewinding request body for retry: %w", err)
		}
	}

	return nil
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
