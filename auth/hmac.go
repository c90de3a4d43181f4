package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"
)

// HMACStrategy signs each request with an HMAC-SHA256 signature over the
// request contents and a fresh millisecond timestamp.
type HMACStrategy struct {
	apiKey     string
	secretKey  string
	passphrase string

	now func() time.Time
}

// NewHMACStrategy creates a strategy for the given API key pair. passphrase
// may be empty; when set it is folded into the signature and sent as a header.
func NewHMACStrategy(apiKey, secretKey, passphrase string) *HMACStrategy {
	return &HMACStrategy{
		apiKey:     apiKey,
		secretKey:  secretKey,
		passphrase: passphrase,
		now:        time.Now,
	}
}

// Sign generates the DX-API-* authentication headers.
// The timestamp is generated fresh per call so a retried request carries a
// new signature rather than replaying a stale one.
func (h *HMACStrategy) Sign(_ context.Context, method, requestPath string, body []byte) (http.Header, error) {
	timestamp := strconv.FormatInt(h.now().UnixMilli(), 10)
	signature := h.signature(timestamp, method, requestPath, body)

	headers := http.Header{}
	headers.Set("DX-API-KEY", h.apiKey)
	headers.Set("DX-API-TIMESTAMP", timestamp)
	headers.Set("DX-API-SIGNATURE", signature)
	if h.passphrase != "" {
		headers.Set("DX-API-PASSPHRASE", h.passphrase)
	}
	return headers, nil
}

// signature computes base64(HMAC-SHA256(secret, timestamp+method+path+body+passphrase)).
func (h *HMACStrategy) signature(timestamp, method, requestPath string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(h.secretKey))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(method))
	mac.Write([]byte(requestPath))
	mac.Write(body)
	if h.passphrase != "" {
		mac.Write([]byte(h.passphrase))
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
