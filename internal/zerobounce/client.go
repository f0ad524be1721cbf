// Package zerobounce validates addresses against the ZeroBounce v2 API and
// caches results in Redis.
package zerobounce

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/pkg/httpretry"
	"github.com/ignite/ses-guard/internal/pkg/logger"
)

const (
	DefaultBaseURL  = "https://api.zerobounce.net/v2"
	DefaultCacheTTL = 30 * 24 * time.Hour
	DefaultTimeout  = 5 * time.Second

	cachePrefix = "zerobounce:"
)

// Config for the validator.
type Config struct {
	Enabled  bool
	APIKey   string
	BaseURL  string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Observer receives one call per validation outcome. source is "api" or
// "cache".
type Observer interface {
	ObserveValidation(source, status string)
}

type nopObserver struct{}

func (nopObserver) ObserveValidation(string, string) {}

// Client is the ZeroBounce API client.
type Client struct {
	cfg        Config
	httpClient httpretry.HTTPDoer
	cache      *redis.Client
	observer   Observer
}

// NewClient creates a validator. cache may be nil, in which case every call
// goes to the API.
func NewClient(cfg Config, cache *redis.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout}, 1,
			httpretry.WithBackoff(200*time.Millisecond, time.Second)),
		cache:    cache,
		observer: nopObserver{},
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// SetObserver installs a metrics observer.
func (c *Client) SetObserver(o Observer) {
	if o != nil {
		c.observer = o
	}
}

// Enabled reports whether validation calls reach the API.
func (c *Client) Enabled() bool { return c.cfg.Enabled }

type validateResponse struct {
	Address         string          `json:"address"`
	Status          string          `json:"status"`
	SubStatus       string          `json:"sub_status"`
	ZeroBounceScore json.RawMessage `json:"zero_bounce_score"`
	Error           string          `json:"error"`
}

// Validate checks email. It never fails because the provider is down: an
// outage yields a valid result with status validation_unavailable, which is
// not cached.
func (c *Client) Validate(ctx context.Context, email string) (domain.Validation, error) {
	if !c.cfg.Enabled {
		return domain.Validation{Valid: true, Status: domain.ValidationDisabled}, nil
	}
	email = domain.NormalizeEmail(email)
	key := CacheKey(email)

	if v, ok := c.cached(ctx, key); ok {
		c.observer.ObserveValidation("cache", v.Status)
		return v, nil
	}

	v, err := c.fetch(ctx, email)
	if err != nil {
		logger.Warn("[zerobounce] validation unavailable", "email", email, "error", err)
		c.observer.ObserveValidation("api", domain.ValidationUnavailable)
		return domain.Validation{Valid: true, Status: domain.ValidationUnavailable}, nil
	}
	c.observer.ObserveValidation("api", v.Status)
	c.store(ctx, key, v)
	return v, nil
}

func (c *Client) fetch(ctx context.Context, email string) (domain.Validation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	params := url.Values{}
	params.Set("api_key", c.cfg.APIKey)
	params.Set("email", email)
	body, err := c.get(ctx, "/validate?"+params.Encode())
	if err != nil {
		return domain.Validation{}, err
	}

	var resp validateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Validation{}, fmt.Errorf("failed to decode validation response: %w", err)
	}
	if resp.Status == "" {
		if resp.Error != "" {
			return domain.Validation{}, fmt.Errorf("API error: %s", resp.Error)
		}
		return domain.Validation{}, errors.New("validation response has no status")
	}

	status := strings.ToLower(resp.Status)
	return domain.Validation{
		Valid:     status == "valid" || status == "catch-all",
		Status:    status,
		SubStatus: resp.SubStatus,
		Score:     parseScore(resp.ZeroBounceScore),
	}, nil
}

// parseScore accepts the score as a JSON number or numeric string.
func parseScore(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return nil
	}
	var parsed float64
	if _, err := fmt.Sscanf(s, "%g", &parsed); err != nil {
		return nil
	}
	return &parsed
}

// Credits returns the remaining API credits.
func (c *Client) Credits(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := c.get(ctx, "/getcredits?"+url.Values{"api_key": {c.cfg.APIKey}}.Encode())
	if err != nil {
		return 0, err
	}
	var resp struct {
		Credits json.Number `json:"Credits"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to decode credits response: %w", err)
	}
	n, err := resp.Credits.Int64()
	if err != nil {
		return 0, fmt.Errorf("invalid credits value %q", resp.Credits)
	}
	if n < 0 {
		return 0, errors.New("invalid API key")
	}
	return int(n), nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error (status %d)", resp.StatusCode)
	}
	return body, nil
}

// CacheKey is the Redis key for an address.
func CacheKey(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(email)))
	return cachePrefix + hex.EncodeToString(sum[:])
}

func (c *Client) cached(ctx context.Context, key string) (domain.Validation, bool) {
	if c.cache == nil {
		return domain.Validation{}, false
	}
	raw, err := c.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("[zerobounce] cache read failed", "error", err)
		}
		return domain.Validation{}, false
	}
	var v domain.Validation
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.Validation{}, false
	}
	return v, true
}

func (c *Client) store(ctx context.Context, key string, v domain.Validation) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.cfg.CacheTTL).Err(); err != nil {
		logger.Warn("[zerobounce] cache write failed", "error", err)
	}
}
