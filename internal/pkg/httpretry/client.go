// Package httpretry retries idempotent outbound HTTP calls with jittered
// exponential backoff. Retries never outlive the request context, so a
// caller-imposed deadline bounds the total time.
package httpretry

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/ses-guard/internal/pkg/logger"
)

// HTTPDoer executes HTTP requests. *http.Client and *RetryClient both
// satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient wraps an HTTPDoer with retries.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	onRetry    func(attempt int, req *http.Request, cause error)
}

// Option customizes a RetryClient.
type Option func(*RetryClient)

// WithBackoff overrides the base and maximum backoff delays.
func WithBackoff(base, max time.Duration) Option {
	return func(rc *RetryClient) {
		rc.baseDelay = base
		rc.maxDelay = max
	}
}

// WithOnRetry registers fn to be called before each retry.
func WithOnRetry(fn func(attempt int, req *http.Request, cause error)) Option {
	return func(rc *RetryClient) { rc.onRetry = fn }
}

// NewRetryClient wraps client. A nil client gets a 5s timeout; maxRetries
// is the number of attempts after the first and defaults to 3.
func NewRetryClient(client HTTPDoer, maxRetries int, opts ...Option) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	rc := &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  500 * time.Millisecond,
		maxDelay:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Do sends req, retrying transport errors and 429/5xx gateway statuses.
// Only GET, HEAD and OPTIONS requests, or requests with a replayable body,
// are retried. The last response is returned as-is so callers can inspect
// the status.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	if !replayable(req) {
		return rc.client.Do(req)
	}

	var (
		resp    *http.Response
		err     error
		waitFor time.Duration
	)
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if werr := rc.wait(req, attempt, waitFor, err); werr != nil {
				return nil, werr
			}
			if req.GetBody != nil {
				body, berr := req.GetBody()
				if berr != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", berr)
				}
				req.Body = body
			}
		}

		resp, err = rc.client.Do(req)
		if err != nil {
			if req.Context().Err() != nil || attempt == rc.maxRetries {
				return nil, err
			}
			waitFor = 0
			continue
		}
		if !retryableStatus(resp.StatusCode) || attempt == rc.maxRetries {
			return resp, nil
		}

		waitFor = retryAfter(resp.Header.Get("Retry-After"), rc.maxDelay)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		err = fmt.Errorf("httpretry: retryable status %d", resp.StatusCode)
	}
}

// wait sleeps before retry attempt. hint, when positive, comes from a
// Retry-After header and replaces the computed backoff.
func (rc *RetryClient) wait(req *http.Request, attempt int, hint time.Duration, cause error) error {
	delay := hint
	if delay <= 0 {
		delay = rc.backoff(attempt)
	}
	if rc.onRetry != nil {
		rc.onRetry(attempt, req, cause)
	}
	logger.Debug("[httpretry] retrying request",
		"attempt", attempt, "max", rc.maxRetries,
		"method", req.Method, "host", req.URL.Host, "wait", delay.String())

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-req.Context().Done():
		if cause != nil {
			return cause
		}
		return req.Context().Err()
	}
}

// backoff returns a full-jitter delay in [base/2, min(max, base*2^(attempt-1))].
func (rc *RetryClient) backoff(attempt int) time.Duration {
	ceiling := rc.baseDelay << (attempt - 1)
	if ceiling <= 0 || ceiling > rc.maxDelay {
		ceiling = rc.maxDelay
	}
	floor := rc.baseDelay / 2
	if ceiling <= floor {
		return ceiling
	}
	return floor + time.Duration(rand.Int63n(int64(ceiling-floor)))
}

func replayable(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// retryAfter parses a delta-seconds Retry-After value, capped at max.
// HTTP-date values are ignored.
func retryAfter(v string, max time.Duration) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > max {
		return max
	}
	return d
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
