// Package auth implements request signing for the DXtrade REST and WebSocket APIs.
//
// Three credential schemes are supported: static bearer tokens, HMAC request
// signing, and username/password session login with transparent token refresh.
// All of them implement Strategy, which produces the headers to attach to an
// outbound request.
package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rickgao/dxtrade-go/errs"
)

// Type identifies a credential scheme.
type Type string

const (
	TypeBearer  Type = "bearer"
	TypeHMAC    Type = "hmac"
	TypeSession Type = "session"
)

// Strategy decorates outbound requests with authentication headers.
type Strategy interface {
	// Sign returns the headers to attach to a request. requestPath includes
	// the query string when one is present. The session strategy may perform
	// a login call here, so Sign must be given a cancelable context.
	Sign(ctx context.Context, method, requestPath string, body []byte) (http.Header, error)
}

// Credentials holds one credential set. Type selects the scheme; only the
// fields for that scheme are read.
type Credentials struct {
	Type Type `yaml:"type"`

	// Bearer
	Token string `yaml:"token,omitempty"`

	// HMAC
	APIKey     string `yaml:"apiKey,omitempty"`
	SecretKey  string `yaml:"secretKey,omitempty"`
	Passphrase string `yaml:"passphrase,omitempty"`

	// Session
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Domain   string `yaml:"domain,omitempty"`
}

// Validate checks that the fields required by the credential type are set.
func (c Credentials) Validate() error {
	switch c.Type {
	case TypeBearer:
		if c.Token == "" {
			return &errs.ConfigError{Message: "bearer credentials require token"}
		}
	case TypeHMAC:
		if c.APIKey == "" || c.SecretKey == "" {
			return &errs.ConfigError{Message: "hmac credentials require apiKey and secretKey"}
		}
	case TypeSession:
		if c.Username == "" || c.Password == "" {
			return &errs.ConfigError{Message: "session credentials require username and password"}
		}
	default:
		return &errs.ConfigError{Message: "unknown credential type: " + string(c.Type)}
	}
	return nil
}

// NewStrategy builds the Strategy for the credential type. baseURL, httpClient
// and logger are used by the session strategy only; the other schemes ignore
// them.
func NewStrategy(creds Credentials, baseURL string, httpClient *http.Client, logger *slog.Logger) (Strategy, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	switch creds.Type {
	case TypeBearer:
		return NewBearerStrategy(creds.Token), nil
	case TypeHMAC:
		return NewHMACStrategy(creds.APIKey, creds.SecretKey, creds.Passphrase), nil
	case TypeSession:
		return NewSessionStrategy(SessionConfig{
			BaseURL:    baseURL,
			Username:   creds.Username,
			Password:   creds.Password,
			Domain:     creds.Domain,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	default:
		return nil, &errs.ConfigError{Message: "unknown credential type: " + string(creds.Type)}
	}
}
