package dxtrade

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rickgao/dxtrade-go/auth"
	"github.com/rickgao/dxtrade-go/errs"
	"github.com/rickgao/dxtrade-go/stream"
)

// Default values for optional configuration fields.
const (
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = 300 * time.Millisecond
	DefaultRetryMaxDelay  = 60 * time.Second
	DefaultRateLimitRPS   = 10.0
	DefaultRateLimitBurst = 20
	DefaultIdempotencyTTL = time.Hour
	DefaultDriftThreshold = 30 * time.Second
)

// Config is the root configuration for a Client. Start from DefaultConfig
// or LoadConfig; the zero value disables both streams.
type Config struct {
	// BaseURL is the REST API root, without a trailing slash.
	BaseURL string `yaml:"base_url"`

	// MarketDataURL and PortfolioURL are the websocket endpoints. Each is
	// required only when its stream is enabled.
	MarketDataURL string `yaml:"market_data_url"`
	PortfolioURL  string `yaml:"portfolio_url"`

	// Account is the default account code for orders and subscriptions.
	Account string `yaml:"account"`

	Credentials auth.Credentials `yaml:"credentials"`

	HTTP   HTTPConfig   `yaml:"http"`
	Stream StreamConfig `yaml:"stream"`
}

// HTTPConfig tunes the REST request pipeline.
type HTTPConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	DriftThreshold time.Duration `yaml:"drift_threshold"`

	// UserAgent overrides the default dxtrade-go/<version> header.
	UserAgent string `yaml:"user_agent"`
}

// StreamConfig tunes the push connections.
type StreamConfig struct {
	EnableMarketData bool `yaml:"enable_market_data"`
	EnablePortfolio  bool `yaml:"enable_portfolio"`

	// Handshake enables the post-dial auth message exchange. The platform
	// authenticates the dial itself through headers, so this is off by
	// default.
	Handshake bool `yaml:"handshake"`

	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	AuthTimeout          time.Duration `yaml:"auth_timeout"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	QueueSize            int           `yaml:"queue_size"`
	AutoReconnect        bool          `yaml:"auto_reconnect"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay    time.Duration `yaml:"max_reconnect_delay"`
}

// DefaultConfig returns a Config with every tunable at its default and
// both streams enabled. URLs and credentials must still be filled in.
func DefaultConfig() Config {
	conn := stream.DefaultConnConfig()
	return Config{
		HTTP: HTTPConfig{
			Timeout:        DefaultHTTPTimeout,
			MaxRetries:     DefaultMaxRetries,
			RetryBaseDelay: DefaultRetryBaseDelay,
			RetryMaxDelay:  DefaultRetryMaxDelay,
			RateLimitRPS:   DefaultRateLimitRPS,
			RateLimitBurst: DefaultRateLimitBurst,
			IdempotencyTTL: DefaultIdempotencyTTL,
			DriftThreshold: DefaultDriftThreshold,
		},
		Stream: StreamConfig{
			EnableMarketData:     true,
			EnablePortfolio:      true,
			ConnectTimeout:       conn.ConnectTimeout,
			AuthTimeout:          conn.AuthTimeout,
			HeartbeatInterval:    conn.HeartbeatInterval,
			WriteTimeout:         conn.WriteTimeout,
			QueueSize:            conn.QueueSize,
			AutoReconnect:        conn.AutoReconnect,
			MaxReconnectAttempts: conn.MaxReconnectAttempts,
			ReconnectDelay:       conn.ReconnectDelay,
			MaxReconnectDelay:    conn.MaxReconnectDelay,
		},
	}
}

// applyDefaults fills zero-valued tunables. Boolean fields are left alone;
// a Config built by hand chooses those explicitly.
func (c *Config) applyDefaults() {
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}
	if c.HTTP.MaxRetries == 0 {
		c.HTTP.MaxRetries = DefaultMaxRetries
	}
	if c.HTTP.RetryBaseDelay == 0 {
		c.HTTP.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.HTTP.RetryMaxDelay == 0 {
		c.HTTP.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.HTTP.RateLimitRPS == 0 {
		c.HTTP.RateLimitRPS = DefaultRateLimitRPS
	}
	if c.HTTP.RateLimitBurst == 0 {
		c.HTTP.RateLimitBurst = DefaultRateLimitBurst
	}
	if c.HTTP.IdempotencyTTL == 0 {
		c.HTTP.IdempotencyTTL = DefaultIdempotencyTTL
	}
	if c.HTTP.DriftThreshold == 0 {
		c.HTTP.DriftThreshold = DefaultDriftThreshold
	}

	conn := stream.DefaultConnConfig()
	if c.Stream.ConnectTimeout == 0 {
		c.Stream.ConnectTimeout = conn.ConnectTimeout
	}
	if c.Stream.AuthTimeout == 0 {
		c.Stream.AuthTimeout = conn.AuthTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = conn.WriteTimeout
	}
	if c.Stream.QueueSize == 0 {
		c.Stream.QueueSize = conn.QueueSize
	}
	if c.Stream.MaxReconnectAttempts == 0 {
		c.Stream.MaxReconnectAttempts = conn.MaxReconnectAttempts
	}
	if c.Stream.ReconnectDelay == 0 {
		c.Stream.ReconnectDelay = conn.ReconnectDelay
	}
	if c.Stream.MaxReconnectDelay == 0 {
		c.Stream.MaxReconnectDelay = conn.MaxReconnectDelay
	}
}

// Validate checks that required fields are set and values are sane.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return &errs.ConfigError{Message: "base_url is required"}
	}
	if err := c.Credentials.Validate(); err != nil {
		return err
	}
	if c.Stream.EnableMarketData && c.MarketDataURL == "" {
		return &errs.ConfigError{Message: "market_data_url is required when the market data stream is enabled"}
	}
	if c.Stream.EnablePortfolio && c.PortfolioURL == "" {
		return &errs.ConfigError{Message: "portfolio_url is required when the portfolio stream is enabled"}
	}
	if c.HTTP.MaxRetries < 0 {
		return &errs.ConfigError{Message: "http.max_retries must be >= 0"}
	}
	if c.HTTP.RateLimitRPS < 0 {
		return &errs.ConfigError{Message: "http.rate_limit_rps must be >= 0"}
	}
	if c.Stream.QueueSize < 1 {
		return &errs.ConfigError{Message: "stream.queue_size must be >= 1"}
	}
	if c.Stream.MaxReconnectAttempts < 1 {
		return &errs.ConfigError{Message: "stream.max_reconnect_attempts must be >= 1"}
	}
	return nil
}

// connConfig maps the stream section onto a per-connection config. The
// URL and account are filled in by the manager.
func (c *Config) connConfig() stream.ConnConfig {
	return stream.ConnConfig{
		ConnectTimeout:       c.Stream.ConnectTimeout,
		Handshake:            c.Stream.Handshake,
		AuthTimeout:          c.Stream.AuthTimeout,
		HeartbeatInterval:    c.Stream.HeartbeatInterval,
		WriteTimeout:         c.Stream.WriteTimeout,
		QueueSize:            c.Stream.QueueSize,
		AutoReconnect:        c.Stream.AutoReconnect,
		MaxReconnectAttempts: c.Stream.MaxReconnectAttempts,
		ReconnectDelay:       c.Stream.ReconnectDelay,
		MaxReconnectDelay:    c.Stream.MaxReconnectDelay,
	}
}

// LoadConfig reads a YAML config file, expands ${VAR} environment
// references, applies defaults, and validates. The file is unmarshaled
// over DefaultConfig, so absent keys keep their defaults and the stream
// enable flags stay on unless the file turns them off.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
