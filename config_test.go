package dxtrade

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/dxtrade-go/auth"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("DX_TEST_PASSWORD", "secret123")

	yaml := `
base_url: https://demo.dx.trade/api
market_data_url: wss://demo.dx.trade/md
portfolio_url: wss://demo.dx.trade/ws
account: default:demo-1
credentials:
  type: session
  username: demo
  password: ${DX_TEST_PASSWORD}
  domain: default
http:
  timeout: 10s
  max_retries: 5
stream:
  enable_portfolio: false
  queue_size: 64
`
	cfg, err := LoadConfig(writeTempConfig(t, yaml))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.BaseURL != "https://demo.dx.trade/api" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "https://demo.dx.trade/api")
	}
	if cfg.Account != "default:demo-1" {
		t.Errorf("Account = %q, want %q", cfg.Account, "default:demo-1")
	}
	if cfg.Credentials.Type != auth.TypeSession {
		t.Errorf("Credentials.Type = %q, want %q", cfg.Credentials.Type, auth.TypeSession)
	}
	if cfg.Credentials.Password != "secret123" {
		t.Errorf("Credentials.Password = %q, want env-expanded %q", cfg.Credentials.Password, "secret123")
	}

	// Explicit values override defaults.
	if cfg.HTTP.Timeout != 10*time.Second {
		t.Errorf("HTTP.Timeout = %v, want 10s", cfg.HTTP.Timeout)
	}
	if cfg.HTTP.MaxRetries != 5 {
		t.Errorf("HTTP.MaxRetries = %d, want 5", cfg.HTTP.MaxRetries)
	}
	if cfg.Stream.QueueSize != 64 {
		t.Errorf("Stream.QueueSize = %d, want 64", cfg.Stream.QueueSize)
	}
	if cfg.Stream.EnablePortfolio {
		t.Error("Stream.EnablePortfolio = true, want false from file")
	}

	// Absent keys keep their defaults.
	if !cfg.Stream.EnableMarketData {
		t.Error("Stream.EnableMarketData = false, want default true")
	}
	if cfg.HTTP.RetryBaseDelay != DefaultRetryBaseDelay {
		t.Errorf("HTTP.RetryBaseDelay = %v, want default %v", cfg.HTTP.RetryBaseDelay, DefaultRetryBaseDelay)
	}
	if cfg.HTTP.RateLimitRPS != DefaultRateLimitRPS {
		t.Errorf("HTTP.RateLimitRPS = %v, want default %v", cfg.HTTP.RateLimitRPS, DefaultRateLimitRPS)
	}
	if cfg.Stream.MaxReconnectAttempts != 5 {
		t.Errorf("Stream.MaxReconnectAttempts = %d, want default 5", cfg.Stream.MaxReconnectAttempts)
	}
	if !cfg.Stream.AutoReconnect {
		t.Error("Stream.AutoReconnect = false, want default true")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	_, err := LoadConfig(writeTempConfig(t, "base_url: [unclosed"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("error = %v, want parse error", err)
	}
}

func TestLoadConfigValidates(t *testing.T) {
	yaml := `
market_data_url: wss://demo.dx.trade/md
portfolio_url: wss://demo.dx.trade/ws
credentials:
  type: bearer
  token: tok
`
	_, err := LoadConfig(writeTempConfig(t, yaml))
	if err == nil {
		t.Fatal("expected validation error for missing base_url")
	}
	if !strings.Contains(err.Error(), "base_url is required") {
		t.Errorf("error = %v, want base_url complaint", err)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.BaseURL = "https://demo.dx.trade/api"
		cfg.MarketDataURL = "wss://demo.dx.trade/md"
		cfg.PortfolioURL = "wss://demo.dx.trade/ws"
		cfg.Credentials = auth.Credentials{Type: auth.TypeBearer, Token: "tok"}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing base url", func(c *Config) { c.BaseURL = "" }, "base_url is required"},
		{"bad credentials", func(c *Config) { c.Credentials = auth.Credentials{Type: auth.TypeBearer} }, "bearer credentials require token"},
		{"market data without url", func(c *Config) { c.MarketDataURL = "" }, "market_data_url is required"},
		{"portfolio without url", func(c *Config) { c.PortfolioURL = "" }, "portfolio_url is required"},
		{"disabled stream needs no url", func(c *Config) {
			c.MarketDataURL = ""
			c.Stream.EnableMarketData = false
		}, ""},
		{"negative retries", func(c *Config) { c.HTTP.MaxRetries = -1 }, "http.max_retries"},
		{"zero queue", func(c *Config) { c.Stream.QueueSize = 0 }, "stream.queue_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestApplyDefaultsLeavesExplicitValues(t *testing.T) {
	cfg := Config{}
	cfg.HTTP.Timeout = 5 * time.Second
	cfg.Stream.QueueSize = 16
	cfg.applyDefaults()

	if cfg.HTTP.Timeout != 5*time.Second {
		t.Errorf("HTTP.Timeout = %v, want explicit 5s kept", cfg.HTTP.Timeout)
	}
	if cfg.Stream.QueueSize != 16 {
		t.Errorf("Stream.QueueSize = %d, want explicit 16 kept", cfg.Stream.QueueSize)
	}
	if cfg.HTTP.MaxRetries != DefaultMaxRetries {
		t.Errorf("HTTP.MaxRetries = %d, want default %d", cfg.HTTP.MaxRetries, DefaultMaxRetries)
	}
	if cfg.Stream.ReconnectDelay != 500*time.Millisecond {
		t.Errorf("Stream.ReconnectDelay = %v, want default 500ms", cfg.Stream.ReconnectDelay)
	}
}
