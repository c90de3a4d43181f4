package auth

import (
	"context"
	"net/http"
)

// BearerStrategy sets a static bearer token on every request.
type BearerStrategy struct {
	token string
}

// NewBearerStrategy creates a strategy using the given static token.
func NewBearerStrategy(token string) *BearerStrategy {
	return &BearerStrategy{token: token}
}

// Sign sets the Authorization header. Stateless and never fails.
func (b *BearerStrategy) Sign(_ context.Context, _, _ string, _ []byte) (http.Header, error) {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+b.token)
	return h, nil
}

// Token returns the configured bearer token.
func (b *BearerStrategy) Token() string {
	return b.token
}
