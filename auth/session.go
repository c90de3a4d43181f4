package auth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/rickgao/dxtrade-go/errs"
)

const (
	// sessionTTL is how long the server keeps a session token valid.
	sessionTTL = time.Hour

	// expiryBuffer is subtracted from the server-side TTL so the client
	// refreshes before the token actually lapses.
	expiryBuffer = 5 * time.Minute

	// maxSessionAge forces a fresh login one hour after the last one
	// regardless of the tracked expiry.
	maxSessionAge = time.Hour

	// DefaultDomain is the DXtrade login domain used when none is configured.
	DefaultDomain = "default"
)

// SessionConfig configures a SessionStrategy.
type SessionConfig struct {
	BaseURL  string // REST base URL, no trailing slash
	Username string
	Password string
	Domain   string // defaults to DefaultDomain

	HTTPClient *http.Client // defaults to a 30s-timeout client
	Logger     *slog.Logger // defaults to slog.Default()
}

// SessionStrategy authenticates with username/password login and signs
// requests with the resulting session token. The token is refreshed
// transparently when it expires; concurrent refreshes are coalesced into a
// single login call.
type SessionStrategy struct {
	baseURL  string
	username string
	password string
	domain   string

	httpClient *http.Client
	logger     *slog.Logger
	group      singleflight.Group
	now        func() time.Time

	mu        sync.RWMutex
	token     string
	issuedAt  time.Time
	expiresAt time.Time
	lastLogin time.Time
}

// NewSessionStrategy creates a session strategy. No network call is made
// until the first Sign or Token call.
func NewSessionStrategy(cfg SessionConfig) (*SessionStrategy, error) {
	if cfg.BaseURL == "" {
		return nil, &errs.ConfigError{Message: "session strategy requires a base URL"}
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, &errs.ConfigError{Message: "session strategy requires username and password"}
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &SessionStrategy{
		baseURL:    cfg.BaseURL,
		username:   cfg.Username,
		password:   cfg.Password,
		domain:     cfg.Domain,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger.With("component", "session-auth"),
		now:        time.Now,
	}, nil
}

// Sign attaches the session token headers, logging in first if no valid
// token is held. The wire protocol requires both header forms.
func (s *SessionStrategy) Sign(ctx context.Context, _, _ string, _ []byte) (http.Header, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("X-Auth-Token", token)
	h.Set("Authorization", "DXAPI "+token)
	return h, nil
}

// Token returns a valid session token, performing a login when the held
// token is missing, expired, or older than the hard session ceiling.
// Concurrent callers share a single in-flight login.
func (s *SessionStrategy) Token(ctx context.Context) (string, error) {
	if token, ok := s.validToken(); ok {
		return token, nil
	}

	v, err, _ := s.group.Do("login", func() (interface{}, error) {
		// Another caller may have completed the login while we queued.
		if token, ok := s.validToken(); ok {
			return token, nil
		}
		return s.login(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// InvalidateToken drops the held token so the next call logs in again.
// The request pipeline calls this when the server answers 401.
func (s *SessionStrategy) InvalidateToken() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// Logout posts to /logout best-effort and clears the session state. Network
// failures are logged and swallowed; a dead server must not block teardown.
func (s *SessionStrategy) Logout(ctx context.Context) error {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/logout", nil)
		if err == nil {
			req.Header.Set("X-Auth-Token", token)
			req.Header.Set("Authorization", "DXAPI "+token)
			resp, err := s.httpClient.Do(req)
			if err != nil {
				s.logger.Warn("logout request failed", "error", err)
			} else {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}
	}

	s.mu.Lock()
	s.token = ""
	s.issuedAt = time.Time{}
	s.expiresAt = time.Time{}
	s.lastLogin = time.Time{}
	s.mu.Unlock()
	return nil
}

// validToken returns the held token if it is still usable.
func (s *SessionStrategy) validToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return "", false
	}
	now := s.now()
	if !now.Before(s.expiresAt) {
		return "", false
	}
	if now.Sub(s.lastLogin) > maxSessionAge {
		return "", false
	}
	return s.token, true
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Domain   string `json:"domain"`
}

type loginResponse struct {
	SessionToken string `json:"sessionToken"`
	Message      string `json:"message,omitempty"`
}

// login performs POST /login and stores the returned session token.
func (s *SessionStrategy) login(ctx context.Context) (string, error) {
	body, err := json.Marshal(loginRequest{
		Username: s.username,
		Password: s.password,
		Domain:   s.domain,
	})
	if err != nil {
		return "", &errs.AuthError{Message: "encode login request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return "", &errs.AuthError{Message: "build login request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &errs.AuthError{Message: "login request failed", Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &errs.AuthError{Message: "read login response", Cause: err}
	}

	var parsed loginResponse
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Message != "" {
			return "", &errs.AuthError{Message: fmt.Sprintf("login rejected: %s", parsed.Message)}
		}
		return "", &errs.AuthError{Message: fmt.Sprintf("login failed with status %d", resp.StatusCode)}
	}

	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &errs.AuthError{Message: "malformed login response", Cause: err}
	}
	if parsed.SessionToken == "" {
		return "", &errs.AuthError{Message: "login response missing session token"}
	}

	now := s.now()
	s.mu.Lock()
	s.token = parsed.SessionToken
	s.issuedAt = now
	s.lastLogin = now
	s.expiresAt = now.Add(sessionTTL - expiryBuffer)
	s.mu.Unlock()

	s.logger.Debug("session established", "expires_at", now.Add(sessionTTL-expiryBuffer))
	return parsed.SessionToken, nil
}
