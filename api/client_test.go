package api

import (
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://broker.example.com/dxsca-web", nil)

		if c.baseURL != "https://broker.example.com/dxsca-web" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://broker.example.com/dxsca-web")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.retry.MaxRetries != 3 {
			t.Errorf("MaxRetries = %d, want %d", c.retry.MaxRetries, 3)
		}
		if c.retry.BaseDelay != 300*time.Millisecond {
			t.Errorf("BaseDelay = %v, want %v", c.retry.BaseDelay, 300*time.Millisecond)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
		if c.limiter == nil {
			t.Error("limiter should not be nil")
		}
		if c.cache == nil {
			t.Error("idempotency cache should not be nil")
		}
	})

	t.Run("trailing slash trimmed", func(t *testing.T) {
		c := NewClient("https://broker.example.com/", nil)
		if c.baseURL != "https://broker.example.com" {
			t.Errorf("baseURL = %q, want trailing slash removed", c.baseURL)
		}
	})

	t.Run("with timeout option", func(t *testing.T) {
		c := NewClient("https://broker.example.com", nil, WithTimeout(5*time.Second))
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 5*time.Second)
		}
	})

	t.Run("with retry config", func(t *testing.T) {
		cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
		c := NewClient("https://broker.example.com", nil, WithRetryConfig(cfg))
		if c.retry != cfg {
			t.Errorf("retry = %+v, want %+v", c.retry, cfg)
		}
	})

	t.Run("with logger option", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("https://broker.example.com", nil, WithLogger(logger))
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("https://broker.example.com", nil, WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})

	t.Run("rate limit disabled", func(t *testing.T) {
		c := NewClient("https://broker.example.com", nil, WithRateLimit(0, 0))
		if c.limiter != nil {
			t.Error("limiter should be nil when disabled")
		}
	})

	t.Run("with user agent", func(t *testing.T) {
		c := NewClient("https://broker.example.com", nil, WithUserAgent("custom/1.0"))
		if c.userAgent != "custom/1.0" {
			t.Errorf("userAgent = %q, want %q", c.userAgent, "custom/1.0")
		}
	})
}

// TestDefaultRetryConfig checks the documented retry defaults.
func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.BaseDelay != 300*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 300ms", cfg.BaseDelay)
	}
	if cfg.MaxDelay != 60*time.Second {
		t.Errorf("MaxDelay = %v, want 60s", cfg.MaxDelay)
	}
}
