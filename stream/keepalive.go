package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// keepalive answers the server's application-level ping protocol. The
// server probes with a PingRequest frame, either as a JSON object or as
// the bare words "PingRequest"/"ping_request"; the reply proves the client
// is alive and still holds a valid session. Ping traffic is consumed here
// and never reaches event handlers. Reply failures are logged, not fatal.
type keepalive struct {
	tokens TokenProvider
	send   func(data []byte) error
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	stats PingStats
}

func newKeepalive(tokens TokenProvider, send func([]byte) error, logger *slog.Logger) *keepalive {
	return &keepalive{
		tokens: tokens,
		send:   send,
		logger: logger,
		now:    time.Now,
	}
}

// handle inspects one inbound frame and answers it when it belongs to the
// ping protocol. Returns true when the frame was consumed.
func (k *keepalive) handle(ctx context.Context, data []byte) bool {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Type == msgTypePingRequest {
		k.recordRequest()
		k.replyObject(ctx)
		return true
	}
	if isBareStringPing(data) {
		k.recordRequest()
		k.replyBare()
		return true
	}
	return false
}

// replyObject sends the structured reply carrying the session token and
// the reply time at millisecond precision.
func (k *keepalive) replyObject(ctx context.Context) {
	var token string
	if k.tokens != nil {
		t, err := k.tokens.Token(ctx)
		if err != nil {
			k.logger.Warn("ping reply skipped, no session token", "error", err)
			return
		}
		token = t
	}
	reply := pingResponse{
		Type:      msgTypePing,
		Session:   token,
		Timestamp: k.now().UTC().Format(pingTimestampLayout),
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		k.logger.Warn("ping reply marshal failed", "error", err)
		return
	}
	if err := k.send(payload); err != nil {
		k.logger.Warn("ping reply failed", "error", err)
		return
	}
	k.recordResponse()
}

// replyBare answers the degenerate variant with a bare text frame.
func (k *keepalive) replyBare() {
	if err := k.send([]byte(msgTypePing)); err != nil {
		k.logger.Warn("ping reply failed", "error", err)
		return
	}
	k.recordResponse()
}

func (k *keepalive) recordRequest() {
	k.mu.Lock()
	k.stats.RequestsReceived++
	k.stats.LastPingTime = k.now()
	k.mu.Unlock()
}

func (k *keepalive) recordResponse() {
	k.mu.Lock()
	k.stats.ResponsesSent++
	k.mu.Unlock()
}

func (k *keepalive) snapshot() PingStats {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.stats
}
