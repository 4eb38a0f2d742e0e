package apicall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/felichat/felichat/common/redact"
	"github.com/felichat/felichat/common/retry"
)

const (
	// maxErrorBodyBytes bounds how much of an error response body is carried
	// into the diagnostic message.
	maxErrorBodyBytes = 512

	defaultTimeout = 60 * time.Second
)

// Config controls the executor's timeout and retry discipline.
type Config struct {
	// Timeout bounds each individual attempt. Defaults to 60 s.
	Timeout time.Duration
	// Retry configures attempt count and backoff between attempts.
	// Zero-valued fields fall back to retry.DefaultConfig.
	Retry retry.Config
}

// Client issues JSON POST calls with retries.  It is safe for concurrent use
// and is shared by the chat-completion and image-generation clients.
type Client struct {
	http  *http.Client
	retry retry.Config
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rc := cfg.Retry
	if rc.MaxAttempts <= 0 {
		rc.MaxAttempts = retry.DefaultConfig.MaxAttempts
	}
	if rc.Cooldown <= 0 {
		rc.Cooldown = retry.DefaultConfig.Cooldown
	}
	if rc.Backoff < 1 {
		rc.Backoff = retry.DefaultConfig.Backoff
	}
	if rc.MaxDelay <= 0 {
		rc.MaxDelay = retry.DefaultConfig.MaxDelay
	}
	return &Client{
		http:  &http.Client{Timeout: timeout},
		retry: rc,
	}
}

// PostJSON POSTs payload as JSON to url with the given headers and returns
// the uniform call envelope.  The call is attempted up to the configured
// number of times; between attempts the executor sleeps with exponential
// backoff (cancellable via ctx).  Success is strictly a 2xx response whose
// body is readable, well-formed JSON — a garbled body on a 2xx counts as a
// failed attempt.  After the final failed attempt the envelope carries the
// last observed HTTP status or transport error, with header values redacted
// from the diagnostic.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, payload any) Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{
			Status:  StatusMalformed,
			Message: fmt.Sprintf("apicall: marshal payload: %v", err),
		}
	}

	rc := c.retry
	rc.ShouldRetry = func(err error) bool {
		// Per-attempt timeouts and upstream errors are transient; only the
		// caller deciding to stop (ctx done) ends the loop early.
		return ctx.Err() == nil
	}

	var body []byte
	attempt := 0
	err = retry.Do(ctx, rc, func() error {
		attempt++
		slog.Debug("apicall: attempt", "url", url, "attempt", attempt, "max", rc.MaxAttempts)

		b, attemptErr := c.post(ctx, url, headers, data)
		if attemptErr != nil {
			return attemptErr
		}
		body = b
		return nil
	})
	if err != nil {
		msg := fmt.Sprintf("API call to %s failed after %d attempts: %v", url, rc.MaxAttempts, err)
		return Envelope{
			Status:  StatusTransport,
			Message: redact.String(msg, headerValues(headers)...),
		}
	}

	return Envelope{Status: StatusOK, Message: "success", Body: body}
}

// post performs one HTTP attempt.
func (c *Client) post(ctx context.Context, url string, headers map[string]string, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	// A 2xx whose body does not decode is a failed attempt: truncation and
	// proxy garbage are as transient as a 5xx and go back through the
	// retry loop.
	if !json.Valid(body) {
		return nil, fmt.Errorf("status %d: response body is not valid JSON", resp.StatusCode)
	}
	return body, nil
}

// headerValues collects header values so failure diagnostics can be redacted
// against them.
func headerValues(headers map[string]string) []string {
	vals := make([]string, 0, len(headers))
	for _, v := range headers {
		vals = append(vals, v)
	}
	return vals
}
