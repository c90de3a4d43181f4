package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rickgao/dxtrade-go/internal/version"
)

// Authenticator produces the authentication headers for one request.
// requestPath includes the query string when present.
type Authenticator interface {
	Sign(ctx context.Context, method, requestPath string, body []byte) (http.Header, error)
}

// tokenInvalidator is implemented by session-based authenticators. A 401
// response invalidates the held token and the request is retried once.
type tokenInvalidator interface {
	InvalidateToken()
}

// RetryConfig controls the retry loop for transient request failures.
type RetryConfig struct {
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // first backoff delay
	MaxDelay   time.Duration // backoff cap
}

// DefaultRetryConfig returns the standard retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  300 * time.Millisecond,
		MaxDelay:   60 * time.Second,
	}
}

// Client provides access to the DXtrade REST API.
type Client struct {
	baseURL    string
	auth       Authenticator
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string

	retry   RetryConfig
	limiter *RateLimiter
	cache   *IdempotencyCache
	drift   *driftEstimator
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a REST client for the given base URL. auth may be nil
// for endpoints that require no authentication.
func NewClient(baseURL string, auth Authenticator, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		auth:    auth,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:    slog.Default(),
		userAgent: version.UserAgent(),
		retry:     DefaultRetryConfig(),
		limiter:   NewRateLimiter(10, 20),
		cache:     NewIdempotencyCache(time.Hour),
		drift:     newDriftEstimator(30 * time.Second),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the request rate limit. rps <= 0 disables the limiter.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = NewRateLimiter(rps, burst)
	}
}

// WithIdempotencyTTL sets how long cached responses stay valid.
func WithIdempotencyTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cache = NewIdempotencyCache(ttl)
	}
}

// WithClockDriftThreshold sets the drift above which requests fail with a
// ClockDriftError.
func WithClockDriftThreshold(threshold time.Duration) ClientOption {
	return func(c *Client) {
		c.drift = newDriftEstimator(threshold)
	}
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// ClockDrift returns the most recently observed offset between the server
// clock and the local clock. Zero until a response with a Date header has
// been seen.
func (c *Client) ClockDrift() time.Duration {
	return c.drift.current()
}
