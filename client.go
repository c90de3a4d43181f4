package dxtrade

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rickgao/dxtrade-go/api"
	"github.com/rickgao/dxtrade-go/auth"
	"github.com/rickgao/dxtrade-go/stream"
)

// ErrNoSessionToken is returned by Login when the configured credential
// scheme does not carry a session token.
var ErrNoSessionToken = errors.New("dxtrade: credentials carry no session token")

// Client bundles the REST client and the stream manager behind a single
// configuration. Both transports share one auth strategy, so a session
// established over REST is the session the streams ride on.
type Client struct {
	cfg      Config
	logger   *slog.Logger
	strategy auth.Strategy
	rest     *api.Client
	streams  *stream.Manager
}

// Option configures a Client beyond what Config covers.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
	onError    stream.ErrorHandler
}

// WithLogger sets the logger shared by the REST and stream layers.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient sets the HTTP client used for REST calls and session
// logins. The Config timeout is ignored when this is set.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithStreamErrorHandler receives terminal stream failures, such as an
// exhausted reconnect cycle.
func WithStreamErrorHandler(h stream.ErrorHandler) Option {
	return func(o *options) { o.onError = h }
}

// New builds a Client from cfg. Zero-valued tunables take their defaults;
// the stream manager is only constructed when at least one stream is
// enabled.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTP.Timeout}
	}

	strategy, err := auth.NewStrategy(cfg.Credentials, cfg.BaseURL, httpClient, logger)
	if err != nil {
		return nil, err
	}

	restOpts := []api.ClientOption{
		api.WithHTTPClient(httpClient),
		api.WithLogger(logger),
		api.WithRetryConfig(api.RetryConfig{
			MaxRetries: cfg.HTTP.MaxRetries,
			BaseDelay:  cfg.HTTP.RetryBaseDelay,
			MaxDelay:   cfg.HTTP.RetryMaxDelay,
		}),
		api.WithRateLimit(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst),
		api.WithIdempotencyTTL(cfg.HTTP.IdempotencyTTL),
		api.WithClockDriftThreshold(cfg.HTTP.DriftThreshold),
	}
	if cfg.HTTP.UserAgent != "" {
		restOpts = append(restOpts, api.WithUserAgent(cfg.HTTP.UserAgent))
	}

	c := &Client{
		cfg:      cfg,
		logger:   logger,
		strategy: strategy,
		rest:     api.NewClient(cfg.BaseURL, strategy, restOpts...),
	}

	if cfg.Stream.EnableMarketData || cfg.Stream.EnablePortfolio {
		mgr, err := stream.NewManager(stream.ManagerConfig{
			MarketDataURL:    cfg.MarketDataURL,
			PortfolioURL:     cfg.PortfolioURL,
			Account:          cfg.Account,
			EnableMarketData: cfg.Stream.EnableMarketData,
			EnablePortfolio:  cfg.Stream.EnablePortfolio,
			Conn:             cfg.connConfig(),
			OnError:          o.onError,
		}, strategy, sessionTokens(strategy), logger)
		if err != nil {
			return nil, err
		}
		c.streams = mgr
	}

	return c, nil
}

// REST returns the typed REST client.
func (c *Client) REST() *api.Client { return c.rest }

// Streams returns the stream manager, or nil when both streams are
// disabled in the Config.
func (c *Client) Streams() *stream.Manager { return c.streams }

// Login establishes a session and returns the session token. Session
// credentials log in on demand and reuse a still-valid token; bearer
// credentials return the configured token. HMAC credentials carry no
// session and fail with ErrNoSessionToken.
func (c *Client) Login(ctx context.Context) (string, error) {
	switch s := c.strategy.(type) {
	case *auth.SessionStrategy:
		return s.Token(ctx)
	case *auth.BearerStrategy:
		return s.Token(), nil
	default:
		return "", ErrNoSessionToken
	}
}

// Logout releases the server-side session. Only session credentials hold
// one; for the other schemes Logout is a no-op.
func (c *Client) Logout(ctx context.Context) error {
	if s, ok := c.strategy.(*auth.SessionStrategy); ok {
		return s.Logout(ctx)
	}
	return nil
}

// Close destroys the stream connections and releases the session.
func (c *Client) Close(ctx context.Context) error {
	if c.streams != nil {
		c.streams.Close()
	}
	return c.Logout(ctx)
}

// sessionTokens adapts the auth strategy to the stream layer's session
// token requirement.
func sessionTokens(strategy auth.Strategy) stream.TokenProvider {
	switch s := strategy.(type) {
	case *auth.SessionStrategy:
		return s
	case *auth.BearerStrategy:
		return staticToken(s.Token())
	default:
		return noToken{}
	}
}

// staticToken serves a fixed token, for bearer credentials whose token is
// the session itself.
type staticToken string

func (t staticToken) Token(context.Context) (string, error) { return string(t), nil }

// noToken stands in for HMAC credentials. The push endpoints want a
// session token, so stream subscriptions fail under this provider;
// REST-only use is unaffected.
type noToken struct{}

func (noToken) Token(context.Context) (string, error) { return "", ErrNoSessionToken }
