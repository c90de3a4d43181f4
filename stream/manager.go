package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/dxtrade-go/errs"
	"github.com/rickgao/dxtrade-go/model"
)

// Manager owns the push connections and fans incoming events out to
// registered handlers. Market-data subscriptions ride the market-data
// connection; order, position, and account subscriptions ride the
// portfolio connection. Each connection reconnects and replays its own
// subscriptions independently.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	conns map[string]*Conn
	order []string

	handlersMu sync.RWMutex
	handlers   map[model.EventType]map[int]Handler
	sinks      map[int]chan model.Event
	nextID     int
}

// NewManager builds the enabled connections. signer authenticates the
// websocket dials; tokens stamps subscription and keepalive frames with
// the session token. *auth.SessionStrategy serves as both.
func NewManager(cfg ManagerConfig, signer HeaderSigner, tokens TokenProvider, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.EnableMarketData && !cfg.EnablePortfolio {
		return nil, ErrNoStreamsEnabled
	}
	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		conns:    make(map[string]*Conn),
		handlers: make(map[model.EventType]map[int]Handler),
		sinks:    make(map[int]chan model.Event),
	}
	if cfg.EnableMarketData {
		if cfg.MarketDataURL == "" {
			return nil, &errs.ConfigError{Message: "market data stream enabled without a URL"}
		}
		m.addConn(ConnMarketData, cfg.MarketDataURL, signer, tokens)
	}
	if cfg.EnablePortfolio {
		if cfg.PortfolioURL == "" {
			return nil, &errs.ConfigError{Message: "portfolio stream enabled without a URL"}
		}
		m.addConn(ConnPortfolio, cfg.PortfolioURL, signer, tokens)
	}
	return m, nil
}

func (m *Manager) addConn(name, wsURL string, signer HeaderSigner, tokens TokenProvider) {
	connCfg := m.cfg.Conn
	connCfg.URL = wsURL
	connCfg.Account = m.cfg.Account
	c := NewConn(name, connCfg, signer, tokens, m.dispatch, m.reportError, m.logger)
	m.conns[name] = c
	m.order = append(m.order, name)
}

// Connection returns a managed connection by name (ConnMarketData or
// ConnPortfolio).
func (m *Manager) Connection(name string) (*Conn, bool) {
	c, ok := m.conns[name]
	return c, ok
}

// Connect establishes every enabled connection in parallel. All must
// succeed; individual failures also reach the OnError callback with the
// connection name.
func (m *Manager) Connect(ctx context.Context) error {
	var g errgroup.Group
	for _, name := range m.order {
		c := m.conns[name]
		g.Go(func() error {
			if err := c.Connect(ctx); err != nil {
				m.logger.Error("stream connect failed", "conn", c.Name(), "error", err)
				m.reportError(c.Name(), err)
				return fmt.Errorf("connect %s: %w", c.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	m.logger.Info("streams connected", "count", len(m.order))
	return nil
}

// Disconnect closes every connection; they may be connected again.
func (m *Manager) Disconnect() {
	for _, name := range m.order {
		if err := m.conns[name].Disconnect(); err != nil && !errors.Is(err, ErrDestroyed) {
			m.logger.Warn("disconnect failed", "conn", name, "error", err)
		}
	}
}

// Close destroys every connection and drops all handlers. Terminal.
func (m *Manager) Close() {
	for _, name := range m.order {
		m.conns[name].Destroy()
	}
	m.handlersMu.Lock()
	m.handlers = make(map[model.EventType]map[int]Handler)
	m.handlersMu.Unlock()
	m.logger.Info("stream manager closed")
}

// Ready reports whether every enabled connection is connected and has its
// subscriptions in place.
func (m *Manager) Ready() bool {
	for _, name := range m.order {
		st := m.conns[name].Status()
		if !st.Connected || !st.Subscribed {
			return false
		}
	}
	return true
}

// Status snapshots all connections.
func (m *Manager) Status() Status {
	s := Status{
		Connections: make(map[string]ConnectionStatus, len(m.order)),
		PingStats:   make(map[string]PingStats, len(m.order)),
	}
	for _, name := range m.order {
		c := m.conns[name]
		s.Connections[name] = c.Status()
		s.PingStats[name] = c.PingStats()
	}
	s.Ready = m.Ready()
	return s
}

// Subscribe routes a subscription to the connection carrying that event
// type and returns the subscription id.
func (m *Manager) Subscribe(ctx context.Context, eventType model.EventType, filter SubscriptionFilter) (string, error) {
	if !eventType.Valid() {
		return "", &errs.ValidationError{Message: fmt.Sprintf("unknown event type %q", eventType)}
	}
	name := ConnPortfolio
	if eventType == model.EventTypePrice {
		name = ConnMarketData
	}
	c, ok := m.conns[name]
	if !ok {
		return "", &errs.ConfigError{Message: name + " stream not enabled"}
	}
	return c.Subscribe(ctx, eventType, filter)
}

// SubscribeMarketData subscribes to quotes for the given symbols.
func (m *Manager) SubscribeMarketData(ctx context.Context, symbols []string) (string, error) {
	return m.Subscribe(ctx, model.EventTypePrice, SubscriptionFilter{Symbols: symbols})
}

// SubscribePortfolio subscribes to order, position, and account updates
// for the configured account.
func (m *Manager) SubscribePortfolio(ctx context.Context) (string, error) {
	return m.Subscribe(ctx, model.EventTypeAccount, SubscriptionFilter{AccountID: m.cfg.Account})
}

// Unsubscribe removes a subscription wherever it is registered.
func (m *Manager) Unsubscribe(id string) error {
	for _, name := range m.order {
		err := m.conns[name].Unsubscribe(id)
		if errors.Is(err, ErrUnknownSubscription) {
			continue
		}
		return err
	}
	return ErrUnknownSubscription
}

// On registers a handler for one event type and returns a registration id
// for Off. Multiple handlers per type are supported.
func (m *Manager) On(eventType model.EventType, h Handler) int {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.nextID++
	id := m.nextID
	hs := m.handlers[eventType]
	if hs == nil {
		hs = make(map[int]Handler)
		m.handlers[eventType] = hs
	}
	hs[id] = h
	return id
}

// Off removes one handler registration.
func (m *Manager) Off(eventType model.EventType, id int) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	delete(m.handlers[eventType], id)
}

// dispatch fans one event out to the handlers for its type and to every
// open event channel. A panicking handler is recovered and logged without
// affecting the others.
func (m *Manager) dispatch(ev model.Event) {
	m.handlersMu.RLock()
	hs := make([]Handler, 0, len(m.handlers[ev.Type]))
	for _, h := range m.handlers[ev.Type] {
		hs = append(hs, h)
	}
	for _, ch := range m.sinks {
		select {
		case ch <- ev:
		default:
			m.logger.Warn("event channel full, dropping event", "event_type", ev.Type)
		}
	}
	m.handlersMu.RUnlock()

	for _, h := range hs {
		if r := panics.Try(func() { h(ev) }); r != nil {
			m.logger.Error("event handler panicked",
				"event_type", ev.Type, "conn", ev.Connection, "panic", r.Value)
		}
	}
}

func (m *Manager) reportError(conn string, err error) {
	if m.cfg.OnError != nil {
		m.cfg.OnError(conn, err)
	}
}
