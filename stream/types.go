// Package stream maintains the push connections to the trading platform:
// one websocket for market data and one for portfolio updates, each with
// its own receive queue, keepalive handling, reconnect loop, and
// subscription replay. The Manager owns both connections and fans incoming
// events out to registered handlers.
package stream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rickgao/dxtrade-go/model"
)

var (
	// ErrNotConnected is returned when sending on a connection that is not
	// streaming.
	ErrNotConnected = errors.New("stream: not connected")

	// ErrAlreadyConnected is returned by Connect on a live connection.
	ErrAlreadyConnected = errors.New("stream: already connected")

	// ErrDestroyed is returned for any operation on a destroyed connection.
	ErrDestroyed = errors.New("stream: connection destroyed")

	// ErrAuthTimeout is returned when the server does not answer the auth
	// handshake within the configured window.
	ErrAuthTimeout = errors.New("stream: authentication timed out")

	// ErrStaleConnection triggers a reconnect when no traffic arrives for
	// three heartbeat intervals.
	ErrStaleConnection = errors.New("stream: stale connection, no heartbeat")

	// ErrNoStreamsEnabled is returned by the Manager when neither the
	// market-data nor the portfolio stream is enabled.
	ErrNoStreamsEnabled = errors.New("stream: no streams enabled")

	// ErrUnknownSubscription is returned when unsubscribing an id the
	// registry does not hold.
	ErrUnknownSubscription = errors.New("stream: unknown subscription id")
)

// State is the lifecycle state of a single connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthenticating
	StateSubscribing
	StateStreaming
	StateReconnecting
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// HeaderSigner produces the authentication headers for the websocket dial
// request. *auth.SessionStrategy satisfies it.
type HeaderSigner interface {
	Sign(ctx context.Context, method, requestPath string, body []byte) (http.Header, error)
}

// TokenProvider supplies the session token embedded in subscription
// requests and keepalive replies. *auth.SessionStrategy satisfies it.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Handler receives dispatched events. Handlers run on the connection's
// dispatch goroutine; a panicking handler is recovered and logged without
// affecting other handlers.
type Handler func(model.Event)

// ErrorHandler receives connection-level failures: reconnect exhaustion,
// authentication rejections, server error frames.
type ErrorHandler func(conn string, err error)

// ConnConfig tunes one stream connection.
type ConnConfig struct {
	// URL is the websocket endpoint.
	URL string

	// Account scopes subscription requests.
	Account string

	// ConnectTimeout bounds the dial handshake.
	ConnectTimeout time.Duration

	// Handshake enables the post-dial auth message exchange. The platform
	// authenticates the dial request itself through headers, so this is
	// off by default.
	Handshake bool

	// AuthTimeout bounds the wait for the handshake response.
	AuthTimeout time.Duration

	// HeartbeatInterval is the expected server heartbeat cadence. The
	// connection is considered stale after three missed intervals.
	HeartbeatInterval time.Duration

	// WriteTimeout bounds each outbound frame.
	WriteTimeout time.Duration

	// QueueSize bounds the receive queue. When the dispatch side falls
	// behind, new frames are dropped with a warning rather than blocking
	// the read loop.
	QueueSize int

	// AutoReconnect re-dials after an unexpected close.
	AutoReconnect bool

	// MaxReconnectAttempts caps one reconnect cycle. When exhausted the
	// connection goes back to disconnected and reports a terminal error.
	MaxReconnectAttempts int

	// ReconnectDelay is the initial backoff between attempts; it doubles
	// per attempt up to MaxReconnectDelay.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

// DefaultConnConfig returns the platform defaults.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		ConnectTimeout:       30 * time.Second,
		AuthTimeout:          10 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		WriteTimeout:         5 * time.Second,
		QueueSize:            1000,
		AutoReconnect:        true,
		MaxReconnectAttempts: 5,
		ReconnectDelay:       500 * time.Millisecond,
		MaxReconnectDelay:    30 * time.Second,
	}
}

// ManagerConfig tunes the stream manager and its two connections.
type ManagerConfig struct {
	// MarketDataURL and PortfolioURL are the two websocket endpoints.
	MarketDataURL string
	PortfolioURL  string

	// Account scopes subscriptions on both streams.
	Account string

	// EnableMarketData and EnablePortfolio select which streams Connect
	// establishes. Readiness only considers enabled streams.
	EnableMarketData bool
	EnablePortfolio  bool

	// Conn carries the per-connection tunables shared by both streams.
	Conn ConnConfig

	// OnError receives terminal connection failures. Optional.
	OnError ErrorHandler
}

// DefaultManagerConfig enables both streams with default connection
// settings.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		EnableMarketData: true,
		EnablePortfolio:  true,
		Conn:             DefaultConnConfig(),
	}
}

// ConnectionStatus is a point-in-time snapshot of one connection.
type ConnectionStatus struct {
	State             State
	Connected         bool
	Authenticated     bool
	Subscribed        bool
	MessageCount      int64
	ReconnectAttempts int
	LastMessageTime   time.Time
}

// PingStats counts keepalive traffic on one connection.
type PingStats struct {
	RequestsReceived int64
	ResponsesSent    int64
	LastPingTime     time.Time
}

// Status aggregates the manager's connections.
type Status struct {
	Connections map[string]ConnectionStatus
	PingStats   map[string]PingStats

	// Ready is true when every enabled connection is connected and
	// subscribed.
	Ready bool
}

// Connection names used by the manager.
const (
	ConnMarketData = "market-data"
	ConnPortfolio  = "portfolio"
)
