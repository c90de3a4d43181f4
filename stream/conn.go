package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/rickgao/dxtrade-go/errs"
	"github.com/rickgao/dxtrade-go/model"
)

// Conn is one push connection: a websocket, its bounded receive queue,
// keepalive handling, a heartbeat watchdog, and a reconnect loop that
// replays active subscriptions after recovery.
//
// Frames are read by one goroutine, queued, and dispatched by a single
// consumer, so handlers observe messages in arrival order. When the
// consumer falls behind, new frames are dropped with a warning rather
// than stalling the read loop.
type Conn struct {
	name   string
	cfg    ConnConfig
	signer HeaderSigner
	tokens TokenProvider
	logger *slog.Logger

	registry  *Registry
	keepalive *keepalive
	dispatch  func(model.Event)
	onError   ErrorHandler

	mu         sync.RWMutex
	ws         *websocket.Conn
	state      State
	gen        int // bumped per established or abandoned socket
	auth       bool
	subscribed bool
	msgCount   int64
	reconnects int
	lastMsg    time.Time
	done       chan struct{} // closed on Disconnect/Destroy

	writeMu sync.Mutex
	queue   chan queuedFrame
	wg      sync.WaitGroup
}

type queuedFrame struct {
	data       []byte
	receivedAt time.Time
}

// NewConn builds a connection. dispatch receives parsed events; onError
// receives terminal failures such as reconnect exhaustion. Both may be
// nil. Callbacks run on connection goroutines and must not call back into
// Disconnect or Destroy.
func NewConn(name string, cfg ConnConfig, signer HeaderSigner, tokens TokenProvider,
	dispatch func(model.Event), onError ErrorHandler, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = normalizeConnConfig(cfg)
	c := &Conn{
		name:     name,
		cfg:      cfg,
		signer:   signer,
		tokens:   tokens,
		logger:   logger.With("conn", name),
		registry: NewRegistry(),
		dispatch: dispatch,
		onError:  onError,
		queue:    make(chan queuedFrame, cfg.QueueSize),
	}
	c.keepalive = newKeepalive(tokens, c.writeFrame, c.logger)
	return c
}

func normalizeConnConfig(cfg ConnConfig) ConnConfig {
	def := DefaultConnConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = def.AuthTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = def.MaxReconnectDelay
	}
	return cfg
}

// Name returns the connection name used in logs and event envelopes.
func (c *Conn) Name() string { return c.name }

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status returns a point-in-time snapshot.
func (c *Conn) Status() ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	connected := false
	switch c.state {
	case StateConnected, StateAuthenticating, StateSubscribing, StateStreaming:
		connected = true
	}
	return ConnectionStatus{
		State:             c.state,
		Connected:         connected,
		Authenticated:     c.auth,
		Subscribed:        c.subscribed,
		MessageCount:      c.msgCount,
		ReconnectAttempts: c.reconnects,
		LastMessageTime:   c.lastMsg,
	}
}

// PingStats returns keepalive counters.
func (c *Conn) PingStats() PingStats {
	return c.keepalive.snapshot()
}

// Connect dials the stream and starts the background loops. Returns
// ErrAlreadyConnected on a live connection and ErrDestroyed after
// Destroy.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateDestroyed:
		c.mu.Unlock()
		return ErrDestroyed
	case StateDisconnected:
	default:
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	if err := c.establish(ctx, done); err != nil {
		c.mu.Lock()
		owned := c.done == done
		if owned {
			c.state = StateDisconnected
			c.done = nil
		}
		c.mu.Unlock()
		if owned {
			close(done)
		}
		return err
	}

	c.wg.Add(1)
	go c.processLoop(done)
	return nil
}

// establish dials, optionally runs the auth handshake, starts the socket
// loops, and replays active subscriptions. Used by Connect and by the
// reconnect loop.
func (c *Conn) establish(ctx context.Context, done chan struct{}) error {
	header, err := c.dialHeader(ctx)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.ConnectTimeout}
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	ws, resp, err := dialer.DialContext(dialCtx, c.cfg.URL, header)
	if err != nil {
		werr := &errs.WebSocketError{Reason: "dial " + c.cfg.URL, Cause: err}
		if resp != nil {
			werr.Code = resp.StatusCode
		}
		return werr
	}

	if !c.advance(done, StateConnected) {
		ws.Close()
		return ErrNotConnected
	}

	if c.cfg.Handshake {
		if !c.advance(done, StateAuthenticating) {
			ws.Close()
			return ErrNotConnected
		}
		if err := c.authenticate(ws); err != nil {
			ws.Close()
			return err
		}
	}

	ws.SetPingHandler(func(appData string) error {
		c.touch()
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.cfg.WriteTimeout))
	})
	ws.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	c.mu.Lock()
	if c.done != done || c.state == StateDestroyed {
		c.mu.Unlock()
		ws.Close()
		return ErrNotConnected
	}
	c.ws = ws
	c.gen++
	gen := c.gen
	c.auth = true
	c.subscribed = false
	c.reconnects = 0
	c.lastMsg = time.Now()
	c.state = StateSubscribing
	c.mu.Unlock()

	c.wg.Add(2)
	go c.readLoop(ws, gen, done)
	go c.heartbeatLoop(ws, gen, done)

	c.replay(ctx)

	c.mu.Lock()
	if c.gen == gen && c.state == StateSubscribing {
		c.state = StateStreaming
		c.subscribed = true
	}
	c.mu.Unlock()

	c.logger.Info("stream connected", "url", c.cfg.URL)
	return nil
}

// advance moves to state s unless the connection was shut down since done
// was issued.
func (c *Conn) advance(done chan struct{}, s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != done || c.state == StateDestroyed {
		return false
	}
	c.state = s
	return true
}

func (c *Conn) touch() {
	c.mu.Lock()
	c.lastMsg = time.Now()
	c.mu.Unlock()
}

// dialHeader signs the upgrade request. The session strategy performs its
// login here when no valid token is cached, so a bad credential surfaces
// as a connect error rather than a silent dead stream.
func (c *Conn) dialHeader(ctx context.Context) (http.Header, error) {
	if c.signer == nil {
		return nil, nil
	}
	requestPath := "/"
	if u, err := url.Parse(c.cfg.URL); err == nil && u.Path != "" {
		requestPath = u.Path
	}
	header, err := c.signer.Sign(ctx, http.MethodGet, requestPath, nil)
	if err != nil {
		return nil, fmt.Errorf("sign stream dial: %w", err)
	}
	return header, nil
}

// authenticate runs the post-dial handshake: send an auth frame, wait for
// the server's verdict.
func (c *Conn) authenticate(ws *websocket.Conn) error {
	payload, err := json.Marshal(authRequest{Type: msgTypeAuth, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return &errs.WebSocketError{Reason: "auth request", Cause: err}
	}
	ws.SetReadDeadline(time.Now().Add(c.cfg.AuthTimeout))
	defer ws.SetReadDeadline(time.Time{})
	_, data, err := ws.ReadMessage()
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return ErrAuthTimeout
		}
		return &errs.WebSocketError{Reason: "auth response", Cause: err}
	}
	var resp authResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return &errs.WebSocketError{Reason: "malformed auth response", Cause: err}
	}
	if !resp.Success {
		return &errs.AuthError{Message: "stream authentication rejected: " + resp.Message}
	}
	c.mu.Lock()
	c.auth = true
	c.mu.Unlock()
	return nil
}

// replay resends every active subscription. Failures are logged; the next
// reconnect will try again.
func (c *Conn) replay(ctx context.Context) {
	subs := c.registry.Active()
	for _, sub := range subs {
		if err := c.sendSubscription(ctx, sub); err != nil {
			c.logger.Warn("subscription replay failed", "subscription_id", sub.ID, "error", err)
		}
	}
	if len(subs) > 0 {
		c.logger.Info("subscriptions replayed", "count", len(subs))
	}
}

// Subscribe registers a subscription and sends it when streaming. When the
// connection is down the subscription is queued and sent on the next
// successful connect. The returned id is stable across replays.
func (c *Conn) Subscribe(ctx context.Context, eventType model.EventType, filter SubscriptionFilter) (string, error) {
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()
	if state == StateDestroyed {
		return "", ErrDestroyed
	}
	sub := c.registry.Add(eventType, filter)
	if state != StateStreaming {
		c.logger.Debug("subscription queued until connect", "subscription_id", sub.ID, "event_type", eventType)
		return sub.ID, nil
	}
	if err := c.sendSubscription(ctx, sub); err != nil {
		// Still registered: replay retries it after the next reconnect.
		return sub.ID, err
	}
	return sub.ID, nil
}

// Unsubscribe purges the subscription and tells the server when connected.
func (c *Conn) Unsubscribe(id string) error {
	if _, ok := c.registry.Remove(id); !ok {
		return ErrUnknownSubscription
	}
	c.mu.RLock()
	streaming := c.state == StateStreaming
	c.mu.RUnlock()
	if !streaming {
		return nil
	}
	return c.Send(unsubscribeRequest{Type: msgTypeUnsubscribe, SubscriptionID: id})
}

func (c *Conn) sendSubscription(ctx context.Context, sub Subscription) error {
	var token string
	if c.tokens != nil {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("session token: %w", err)
		}
		token = t
	}
	account := sub.Filter.AccountID
	if account == "" {
		account = c.cfg.Account
	}
	var req subscriptionRequest
	switch sub.Type {
	case model.EventTypePrice:
		req = marketDataSubscription(sub.ID, token, account, sub.Filter.Symbols)
	default:
		req = portfolioSubscription(sub.ID, token, account)
	}
	return c.Send(req)
}

// Send serializes v and writes it as one text frame. Returns
// ErrNotConnected when the socket is down.
func (c *Conn) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return c.writeFrame(data)
}

func (c *Conn) writeFrame(data []byte) error {
	c.mu.RLock()
	ws := c.ws
	open := c.state == StateStreaming || c.state == StateSubscribing
	c.mu.RUnlock()
	if ws == nil || !open {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return &errs.WebSocketError{Reason: "write frame", Cause: err}
	}
	return nil
}

// readLoop reads frames into the bounded queue until the socket dies.
func (c *Conn) readLoop(ws *websocket.Conn, gen int, done chan struct{}) {
	defer c.wg.Done()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				c.socketFailed(gen, &errs.WebSocketError{Reason: "read frame", Cause: err})
			}
			return
		}
		frame := queuedFrame{data: data, receivedAt: time.Now()}
		c.mu.Lock()
		c.msgCount++
		c.lastMsg = frame.receivedAt
		c.mu.Unlock()
		select {
		case c.queue <- frame:
		default:
			c.logger.Warn("receive queue full, dropping message")
		}
	}
}

// processLoop is the single consumer of the receive queue. It outlives
// individual sockets so ordering holds across reconnects.
func (c *Conn) processLoop(done chan struct{}) {
	defer c.wg.Done()
	for {
		select {
		case <-done:
			return
		case frame := <-c.queue:
			c.processFrame(frame)
		}
	}
}

func (c *Conn) processFrame(frame queuedFrame) {
	if c.keepalive.handle(context.Background(), frame.data) {
		return
	}

	var env envelope
	if err := json.Unmarshal(frame.data, &env); err != nil {
		c.logger.Warn("dropping malformed frame", "error", err)
		return
	}
	switch env.Type {
	case msgTypeHeartbeat:
		// Liveness was recorded in the read loop.
	case msgTypeSubscriptionAck:
		var ack subscriptionAck
		if err := json.Unmarshal(frame.data, &ack); err == nil {
			c.logger.Debug("subscription acknowledged", "subscription_id", ack.SubscriptionID)
		}
		c.mu.Lock()
		c.subscribed = true
		c.mu.Unlock()
	case msgTypeSubscriptionResponse:
		var resp subscriptionResponse
		if err := json.Unmarshal(frame.data, &resp); err != nil {
			c.logger.Warn("malformed subscription response", "error", err)
			return
		}
		c.mu.Lock()
		c.subscribed = resp.Success
		c.mu.Unlock()
		if !resp.Success {
			c.logger.Warn("subscription rejected", "request_id", resp.RequestID, "message", resp.Message)
		}
	case msgTypeAuthResponse:
		var resp authResponse
		if err := json.Unmarshal(frame.data, &resp); err != nil {
			c.logger.Warn("malformed authentication response", "error", err)
			return
		}
		c.mu.Lock()
		c.auth = resp.Success
		c.mu.Unlock()
		if !resp.Success {
			c.logger.Warn("stream authentication rejected", "message", resp.Message)
			c.reportError(&errs.AuthError{Message: "stream authentication rejected: " + resp.Message})
		}
	case msgTypeError, msgTypeErrorResponse:
		var se serverError
		if err := json.Unmarshal(frame.data, &se); err != nil {
			c.logger.Warn("malformed error frame", "error", err)
			return
		}
		c.logger.Error("server error frame", "code", se.code(), "message", se.Message)
	default:
		ev, ok := parseEvent(c.name, frame.receivedAt, env.Type, frame.data)
		if !ok {
			c.logger.Debug("skipping message", "type", env.Type)
			return
		}
		if c.dispatch != nil {
			c.dispatch(ev)
		}
	}
}

// heartbeatLoop pings the peer and watches for staleness: no inbound
// traffic for three heartbeat intervals kills the socket and triggers
// reconnect. A zero HeartbeatInterval disables the watchdog.
func (c *Conn) heartbeatLoop(ws *websocket.Conn, gen int, done chan struct{}) {
	defer c.wg.Done()
	interval := c.cfg.HeartbeatInterval
	if interval <= 0 {
		return
	}
	staleAfter := 3 * interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.RLock()
			current := c.gen == gen
			stale := current && time.Since(c.lastMsg) > staleAfter
			c.mu.RUnlock()
			if !current {
				return
			}
			if stale {
				c.logger.Warn("heartbeat timeout, connection stale", "stale_after", staleAfter)
				ws.Close()
				c.socketFailed(gen, ErrStaleConnection)
				return
			}
			_ = ws.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(c.cfg.WriteTimeout))
		}
	}
}

// socketFailed tears down one socket generation and kicks off reconnect.
// Both the read loop and the watchdog may call it; only the first caller
// for a generation acts.
func (c *Conn) socketFailed(gen int, cause error) {
	c.mu.Lock()
	if c.gen != gen || c.done == nil {
		c.mu.Unlock()
		return
	}
	switch c.state {
	case StateDestroyed, StateDisconnected, StateReconnecting:
		c.mu.Unlock()
		return
	}
	ws := c.ws
	c.ws = nil
	c.gen++
	c.auth = false
	c.subscribed = false
	reconnect := c.cfg.AutoReconnect
	if reconnect {
		c.state = StateReconnecting
	} else {
		c.state = StateDisconnected
	}
	done := c.done
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
	c.logger.Warn("stream connection lost", "error", cause)
	if !reconnect {
		c.reportError(cause)
		return
	}
	c.wg.Add(1)
	go c.reconnectLoop(done)
}

// reconnectLoop re-dials with exponential backoff until success or the
// attempt cap. Exhaustion reports a terminal error and leaves the
// connection disconnected.
func (c *Conn) reconnectLoop(done chan struct{}) {
	defer c.wg.Done()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.ReconnectDelay
	bo.MaxInterval = c.cfg.MaxReconnectDelay

	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		wait := bo.NextBackOff()
		if wait == backoff.Stop || wait > c.cfg.MaxReconnectDelay {
			wait = c.cfg.MaxReconnectDelay
		}
		select {
		case <-done:
			return
		case <-time.After(wait):
		}
		c.mu.Lock()
		if c.state != StateReconnecting || c.done != done {
			c.mu.Unlock()
			return
		}
		c.reconnects++
		c.mu.Unlock()

		c.logger.Info("reconnecting", "attempt", attempt, "max_attempts", c.cfg.MaxReconnectAttempts)
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		err := c.establish(ctx, done)
		cancel()
		if err == nil {
			c.logger.Info("stream recovered", "attempt", attempt)
			return
		}
		c.mu.Lock()
		if c.state != StateDestroyed && c.done == done {
			c.state = StateReconnecting
		}
		c.mu.Unlock()
		c.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
	}

	c.mu.Lock()
	if c.done == done && c.state == StateReconnecting {
		c.state = StateDisconnected
	}
	c.mu.Unlock()
	err := &errs.WebSocketError{
		Reason: fmt.Sprintf("reconnect attempts exhausted after %d tries", c.cfg.MaxReconnectAttempts),
	}
	c.logger.Error("giving up on reconnect", "attempts", c.cfg.MaxReconnectAttempts)
	c.reportError(err)
}

func (c *Conn) reportError(err error) {
	if c.onError != nil {
		c.onError(c.name, err)
	}
}

// Disconnect closes the socket and stops all background work, waiting for
// the loops to exit. The connection may be connected again afterwards.
func (c *Conn) Disconnect() error {
	c.mu.RLock()
	destroyed := c.state == StateDestroyed
	c.mu.RUnlock()
	if destroyed {
		return ErrDestroyed
	}
	c.shutdown(StateDisconnected)
	return nil
}

// Destroy shuts the connection down permanently. Idempotent; any later
// Connect returns ErrDestroyed.
func (c *Conn) Destroy() {
	c.shutdown(StateDestroyed)
}

func (c *Conn) shutdown(final State) {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return
	}
	idle := c.state == StateDisconnected
	ws := c.ws
	c.ws = nil
	c.gen++
	c.auth = false
	c.subscribed = false
	c.state = final
	done := c.done
	c.done = nil
	c.mu.Unlock()

	if idle && done == nil {
		return
	}
	if done != nil {
		close(done)
	}
	if ws != nil {
		deadline := time.Now().Add(c.cfg.WriteTimeout)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		ws.Close()
	}
	c.wg.Wait()
	c.logger.Info("stream disconnected")
}
