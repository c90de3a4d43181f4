package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"

	"github.com/rickgao/dxtrade-go/errs"
)

// apiEnvelope is the standard {success,data,message} response wrapper.
type apiEnvelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Message string            `json:"message,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Do executes one REST request through the full pipeline: idempotency
// lookup, rate-limit gate, authenticated send with retries, and error
// classification. The raw response body is returned on success.
//
// Mutating requests derive an idempotency key from the request fingerprint
// when none is supplied; GET requests never use the cache.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body []byte, idempotencyKey string) ([]byte, error) {
	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}
	fullURL := c.baseURL + requestPath

	useCache := c.cache != nil && method != http.MethodGet && method != http.MethodHead
	key := idempotencyKey
	if useCache {
		if key == "" {
			key = Fingerprint(method, fullURL, body)
		}
		if cached, ok := c.cache.Get(key); ok {
			c.logger.Debug("idempotency cache hit", "method", method, "path", path)
			return cached, nil
		}
	}

	if c.limiter != nil {
		if ok, retryAfter := c.limiter.Acquire(); !ok {
			return nil, &errs.RateLimitError{RetryAfter: retryAfter}
		}
	}

	bo := newBackOff(c.retry)
	var lastErr error

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := bo.NextBackOff()
			if delay == backoff.Stop {
				delay = c.retry.MaxDelay
			}
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", delay,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		respBody, err := c.attempt(ctx, method, fullURL, requestPath, body)
		if err == nil {
			if useCache {
				c.cache.Put(key, respBody)
			}
			return respBody, nil
		}

		lastErr = err
		if !errs.IsRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// attempt performs one authenticated exchange. A 401 from a session-backed
// authenticator invalidates the token and the request is re-sent once with
// a fresh login.
func (c *Client) attempt(ctx context.Context, method, fullURL, requestPath string, body []byte) ([]byte, error) {
	status, header, respBody, err := c.send(ctx, method, fullURL, requestPath, body)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		if inv, ok := c.auth.(tokenInvalidator); ok {
			c.logger.Debug("session token rejected, refreshing", "path", requestPath)
			inv.InvalidateToken()

			status, header, respBody, err = c.send(ctx, method, fullURL, requestPath, body)
			if err != nil {
				return nil, err
			}
			if status == http.StatusUnauthorized {
				return nil, &errs.AuthError{Message: "request rejected after session refresh"}
			}
		}
	}

	if err := c.drift.observe(header); err != nil {
		return nil, err
	}

	if status >= 400 {
		return nil, classify(status, header, respBody)
	}
	return respBody, nil
}

// send performs a single wire exchange and classifies transport failures.
func (c *Client) send(ctx context.Context, method, fullURL, requestPath string, body []byte) (int, http.Header, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.auth != nil {
		authHeaders, err := c.auth.Sign(ctx, method, requestPath, body)
		if err != nil {
			return 0, nil, nil, err
		}
		for key, values := range authHeaders {
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, classifyTransport(method, requestPath, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, &errs.NetworkError{Op: method + " " + requestPath, Cause: err}
	}

	return resp.StatusCode, resp.Header, respBody, nil
}

// classifyTransport maps a transport-level failure to the error taxonomy.
func classifyTransport(method, requestPath string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	op := method + " " + requestPath
	if errors.Is(err, context.DeadlineExceeded) {
		return &errs.TimeoutError{Op: op, Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &errs.TimeoutError{Op: op, Cause: err}
	}
	return &errs.NetworkError{Op: op, Cause: err}
}

// classify maps an HTTP error status to the error taxonomy.
func classify(status int, header http.Header, body []byte) error {
	var envelope apiEnvelope
	message := http.StatusText(status)
	if json.Unmarshal(body, &envelope) == nil && envelope.Message != "" {
		message = envelope.Message
	}

	switch status {
	case http.StatusTooManyRequests:
		var retryAfter time.Duration
		if secs, err := strconv.Atoi(header.Get("Retry-After")); err == nil {
			retryAfter = time.Duration(secs) * time.Second
		}
		return &errs.RateLimitError{RetryAfter: retryAfter}
	case http.StatusUnprocessableEntity:
		return &errs.ValidationError{Message: message, FieldErrors: envelope.Errors}
	default:
		return &errs.HTTPError{Status: status, Message: message, Body: body}
	}
}

// newBackOff builds the retry schedule for one request.
func newBackOff(cfg RetryConfig) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BaseDelay
	bo.MaxInterval = cfg.MaxDelay
	bo.Multiplier = 2
	return bo
}

// get performs a GET request and decodes the response into result.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.Do(ctx, http.MethodGet, path, query, nil, "")
	if err != nil {
		return err
	}
	return decodeResponse(body, result)
}

// post encodes payload, performs a POST request, and decodes the response.
func (c *Client) post(ctx context.Context, path string, payload any, idempotencyKey string, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	respBody, err := c.Do(ctx, http.MethodPost, path, nil, body, idempotencyKey)
	if err != nil {
		return err
	}
	return decodeResponse(respBody, result)
}

// del performs a DELETE request and decodes the response.
func (c *Client) del(ctx context.Context, path, idempotencyKey string, result any) error {
	respBody, err := c.Do(ctx, http.MethodDelete, path, nil, nil, idempotencyKey)
	if err != nil {
		return err
	}
	return decodeResponse(respBody, result)
}

// decodeResponse unwraps the {success,data,message} envelope and decodes
// data into result. Responses without an envelope decode directly.
func decodeResponse(body []byte, result any) error {
	if result == nil {
		return nil
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return &errs.ValidationError{Message: "unexpected response shape: " + err.Error()}
		}
		return nil
	}

	if err := json.Unmarshal(body, result); err != nil {
		return &errs.ValidationError{Message: "unexpected response shape: " + err.Error()}
	}
	return nil
}
