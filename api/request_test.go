package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/dxtrade-go/errs"
)

// fastRetry keeps backoff delays negligible in tests.
func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
}

func TestDo_RetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, WithRetryConfig(fastRetry(3)))

	if _, err := c.Do(context.Background(), http.MethodGet, "/status", nil, nil, ""); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3", got)
	}
}

func TestDo_NoRetryOnClientError(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"success":false,"message":"no such order"}`)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, WithRetryConfig(fastRetry(3)))

	_, err := c.Do(context.Background(), http.MethodGet, "/orders/x", nil, nil, "")
	var httpErr *errs.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *errs.HTTPError", err)
	}
	if httpErr.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", httpErr.Status)
	}
	if httpErr.Message != "no such order" {
		t.Errorf("Message = %q, want server message", httpErr.Message)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1 (no retries)", got)
	}
}

func TestDo_RetryOn429(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, WithRetryConfig(fastRetry(2)))

	if _, err := c.Do(context.Background(), http.MethodGet, "/accounts", nil, nil, ""); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}

func TestDo_MaxRetriesExceeded(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, WithRetryConfig(fastRetry(2)))

	_, err := c.Do(context.Background(), http.MethodGet, "/accounts", nil, nil, "")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	var httpErr *errs.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusBadGateway {
		t.Errorf("error = %v, want wrapped 502 HTTPError", err)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3 (initial + 2 retries)", got)
	}
}

func TestDo_TimeoutClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil,
		WithTimeout(30*time.Millisecond),
		WithRetryConfig(fastRetry(0)),
	)

	_, err := c.Do(context.Background(), http.MethodGet, "/slow", nil, nil, "")
	var timeoutErr *errs.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error = %v, want *errs.TimeoutError", err)
	}
}

func TestDo_NetworkErrorClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	c := NewClient(server.URL, nil, WithRetryConfig(fastRetry(0)))

	_, err := c.Do(context.Background(), http.MethodGet, "/anything", nil, nil, "")
	var netErr *errs.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("error = %v, want *errs.NetworkError", err)
	}
}

func TestDo_RateLimitFailFast(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer server.Close()

	// 50 tokens/s, burst 2: the third instantaneous request must fail fast.
	c := NewClient(server.URL, nil,
		WithRateLimit(50, 2),
		WithRetryConfig(fastRetry(0)),
	)

	for i := 0; i < 2; i++ {
		if _, err := c.Do(context.Background(), http.MethodGet, "/accounts", nil, nil, ""); err != nil {
			t.Fatalf("Do %d failed: %v", i, err)
		}
	}

	_, err := c.Do(context.Background(), http.MethodGet, "/accounts", nil, nil, "")
	var rateErr *errs.RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("error = %v, want *errs.RateLimitError", err)
	}
	if rateErr.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", rateErr.RetryAfter)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2 (rejected request never sent)", got)
	}

	// One refill interval later the request goes through.
	time.Sleep(25 * time.Millisecond)
	if _, err := c.Do(context.Background(), http.MethodGet, "/accounts", nil, nil, ""); err != nil {
		t.Fatalf("Do after refill failed: %v", err)
	}
}

// refreshingAuth mimics the session strategy: it mints a new token after
// each invalidation.
type refreshingAuth struct {
	mu     sync.Mutex
	token  string
	logins int
}

func (f *refreshingAuth) Sign(_ context.Context, _, _ string, _ []byte) (http.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token == "" {
		f.logins++
		f.token = fmt.Sprintf("tok-%d", f.logins)
	}
	h := http.Header{}
	h.Set("X-Auth-Token", f.token)
	return h, nil
}

func (f *refreshingAuth) InvalidateToken() {
	f.mu.Lock()
	f.token = ""
	f.mu.Unlock()
}

func TestDo_SessionRefreshOn401(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("X-Auth-Token") != "tok-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer server.Close()

	auth := &refreshingAuth{token: "tok-1", logins: 1}
	c := NewClient(server.URL, auth, WithRetryConfig(fastRetry(0)))

	if _, err := c.Do(context.Background(), http.MethodGet, "/accounts", nil, nil, ""); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2 (401 then retry)", got)
	}
	if auth.logins != 2 {
		t.Errorf("logins = %d, want 2", auth.logins)
	}
}

func TestDo_SecondUnauthorizedSurfacesAuthError(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	auth := &refreshingAuth{}
	c := NewClient(server.URL, auth, WithRetryConfig(fastRetry(3)))

	_, err := c.Do(context.Background(), http.MethodGet, "/accounts", nil, nil, "")
	var authErr *errs.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want *errs.AuthError", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2 (single refresh attempt, no retry loop)", got)
	}
}

func TestDo_UnauthorizedWithoutSessionAuth(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, WithRetryConfig(fastRetry(3)))

	_, err := c.Do(context.Background(), http.MethodGet, "/accounts", nil, nil, "")
	var httpErr *errs.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusUnauthorized {
		t.Fatalf("error = %v, want 401 HTTPError", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestDo_IdempotentPOSTCached(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"success":true,"data":{"orderId":"srv-%d"}}`, hits.Add(1))
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)

	body := []byte(`{"symbol":"EUR/USD","volume":"0.1"}`)
	first, err := c.Do(context.Background(), http.MethodPost, "/orders", nil, body, "")
	if err != nil {
		t.Fatalf("first Do failed: %v", err)
	}
	second, err := c.Do(context.Background(), http.MethodPost, "/orders", nil, body, "")
	if err != nil {
		t.Fatalf("second Do failed: %v", err)
	}

	if string(first) != string(second) {
		t.Errorf("cached response differs: %q vs %q", first, second)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1 (second answered from cache)", got)
	}

	// A different body is a different request.
	if _, err := c.Do(context.Background(), http.MethodPost, "/orders", nil, []byte(`{"symbol":"GBP/USD"}`), ""); err != nil {
		t.Fatalf("third Do failed: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}

func TestDo_ExplicitIdempotencyKey(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)

	// Different bodies but the same caller-chosen key dedupe to one call.
	if _, err := c.Do(context.Background(), http.MethodPost, "/orders", nil, []byte(`{"a":1}`), "key-1"); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if _, err := c.Do(context.Background(), http.MethodPost, "/orders", nil, []byte(`{"a":2}`), "key-1"); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestDo_GETNeverCached(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)

	for i := 0; i < 3; i++ {
		if _, err := c.Do(context.Background(), http.MethodGet, "/accounts", nil, nil, ""); err != nil {
			t.Fatalf("Do %d failed: %v", i, err)
		}
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3 (GET bypasses cache)", got)
	}
}

func TestDo_IdempotencyTTLExpiry(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)

	start := time.Now()
	c.cache.now = func() time.Time { return start }

	body := []byte(`{"symbol":"EUR/USD"}`)
	if _, err := c.Do(context.Background(), http.MethodPost, "/orders", nil, body, ""); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	// Within the TTL: served from cache.
	c.cache.now = func() time.Time { return start.Add(59 * time.Minute) }
	if _, err := c.Do(context.Background(), http.MethodPost, "/orders", nil, body, ""); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("server hits = %d, want 1", got)
	}

	// Past the TTL: a fresh call is made.
	c.cache.now = func() time.Time { return start.Add(61 * time.Minute) }
	if _, err := c.Do(context.Background(), http.MethodPost, "/orders", nil, body, ""); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}

func TestDo_ClockDriftDetection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", time.Now().Add(-5*time.Minute).UTC().Format(http.TimeFormat))
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, WithRetryConfig(fastRetry(0)))

	_, err := c.Do(context.Background(), http.MethodGet, "/accounts", nil, nil, "")
	var driftErr *errs.ClockDriftError
	if !errors.As(err, &driftErr) {
		t.Fatalf("error = %v, want *errs.ClockDriftError", err)
	}
	if driftErr.Threshold != 30*time.Second {
		t.Errorf("Threshold = %v, want 30s", driftErr.Threshold)
	}

	drift := c.ClockDrift()
	if drift > -4*time.Minute {
		t.Errorf("ClockDrift() = %v, want about -5m", drift)
	}
}

func TestDo_SetsStandardHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q, want application/json", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", got)
		}
		if got := r.Header.Get("User-Agent"); got != "custom-agent/2.0" {
			t.Errorf("User-Agent = %q, want custom-agent/2.0", got)
		}
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, WithUserAgent("custom-agent/2.0"))

	if _, err := c.Do(context.Background(), http.MethodPost, "/orders", nil, []byte(`{}`), ""); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
}

// TestBackoffBound checks the schedule never exceeds the cap and grows
// monotonically once jitter is disabled.
func TestBackoffBound(t *testing.T) {
	bo := newBackOff(RetryConfig{
		MaxRetries: 10,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	})
	bo.RandomizationFactor = 0

	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		d := bo.NextBackOff()
		if d > 2*time.Second {
			t.Errorf("attempt %d: delay %v exceeds cap", i, d)
		}
		if d < prev {
			t.Errorf("attempt %d: delay %v decreased from %v", i, d, prev)
		}
		prev = d
	}
	if prev != 2*time.Second {
		t.Errorf("final delay = %v, want capped at 2s", prev)
	}
}
