package stream

import (
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/rickgao/dxtrade-go/model"
)

// Message types on the push protocol. Platform-originated types are
// PascalCase, generic control types lowercase.
const (
	msgTypeAuth                 = "auth"
	msgTypeAuthResponse         = "AuthenticationResponse"
	msgTypePing                 = "Ping"
	msgTypePingRequest          = "PingRequest"
	msgTypeHeartbeat            = "heartbeat"
	msgTypeSubscriptionAck      = "subscription_ack"
	msgTypeSubscriptionResponse = "SubscriptionResponse"
	msgTypeUnsubscribe          = "unsubscribe"
	msgTypeError                = "error"
	msgTypeErrorResponse        = "ErrorResponse"

	msgTypeMarketData        = "MarketData"
	msgTypeAccountPortfolios = "AccountPortfolios"
	msgTypePositionUpdate    = "PositionUpdate"
	msgTypeOrderUpdate       = "OrderUpdate"

	msgTypeMarketDataSubscription = "MarketDataSubscriptionRequest"
	msgTypePortfolioSubscription  = "AccountPortfoliosSubscriptionRequest"
)

// envelope probes the type discriminator before full parsing.
type envelope struct {
	Type string `json:"type"`
}

// authRequest opens the optional post-dial handshake.
type authRequest struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// authResponse answers both the handshake and in-band
// AuthenticationResponse frames.
type authResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// pingResponse answers a server PingRequest. Session ties the reply to the
// authenticated session; timestamp is the reply time, millisecond
// precision UTC.
type pingResponse struct {
	Type      string `json:"type"`
	Session   string `json:"session"`
	Timestamp string `json:"timestamp"`
}

const pingTimestampLayout = "2006-01-02T15:04:05.000Z"

// eventFormat selects one event family inside a subscription payload.
type eventFormat struct {
	Type   string `json:"type"`
	Format string `json:"format"`
}

type marketDataPayload struct {
	Account    string        `json:"account"`
	Symbols    []string      `json:"symbols"`
	EventTypes []eventFormat `json:"eventTypes"`
}

type portfolioPayload struct {
	Account    string        `json:"account"`
	EventTypes []eventFormat `json:"eventTypes"`
}

// subscriptionRequest is the outer frame for both subscription families.
// RequestID is the registry's subscription id, so a replay after reconnect
// is byte-identical to the original request.
type subscriptionRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Session   string `json:"session"`
	Payload   any    `json:"payload"`
}

func marketDataSubscription(requestID, session, account string, symbols []string) subscriptionRequest {
	return subscriptionRequest{
		Type:      msgTypeMarketDataSubscription,
		RequestID: requestID,
		Session:   session,
		Payload: marketDataPayload{
			Account:    account,
			Symbols:    symbols,
			EventTypes: []eventFormat{{Type: "Quote", Format: "COMPACT"}},
		},
	}
}

func portfolioSubscription(requestID, session, account string) subscriptionRequest {
	return subscriptionRequest{
		Type:      msgTypePortfolioSubscription,
		RequestID: requestID,
		Session:   session,
		Payload: portfolioPayload{
			Account: account,
			EventTypes: []eventFormat{
				{Type: "Position", Format: "COMPACT"},
				{Type: "Order", Format: "COMPACT"},
			},
		},
	}
}

type unsubscribeRequest struct {
	Type           string `json:"type"`
	SubscriptionID string `json:"subscription_id"`
}

// subscriptionResponse confirms or rejects a subscription request.
type subscriptionResponse struct {
	RequestID string `json:"requestId"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
}

type subscriptionAck struct {
	SubscriptionID string `json:"subscription_id"`
}

// serverError covers both error frame shapes the platform emits.
type serverError struct {
	Code      string `json:"code"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (e serverError) code() string {
	if e.Code != "" {
		return e.Code
	}
	return e.ErrorCode
}

// -----------------------------------------------------------------------------
// Inbound event payloads
// -----------------------------------------------------------------------------

type quoteWire struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Spread    decimal.Decimal `json:"spread"`
	Timestamp string          `json:"timestamp"`
}

func (w quoteWire) toModel() model.Quote {
	spread := w.Spread
	if spread.IsZero() && !w.Ask.IsZero() {
		spread = w.Ask.Sub(w.Bid)
	}
	return model.Quote{
		Symbol:    w.Symbol,
		Bid:       w.Bid,
		Ask:       w.Ask,
		Spread:    spread,
		Timestamp: parseEventTime(w.Timestamp),
	}
}

type orderWire struct {
	OrderID          string          `json:"orderId"`
	ClientOrderID    string          `json:"clientOrderId"`
	AccountID        string          `json:"accountId"`
	Symbol           string          `json:"symbol"`
	Side             string          `json:"side"`
	Type             string          `json:"type"`
	Status           string          `json:"status"`
	Volume           decimal.Decimal `json:"volume"`
	FilledVolume     decimal.Decimal `json:"filledVolume"`
	RemainingVolume  decimal.Decimal `json:"remainingVolume"`
	Price            decimal.Decimal `json:"price"`
	StopPrice        decimal.Decimal `json:"stopPrice"`
	AverageFillPrice decimal.Decimal `json:"averageFillPrice"`
	TimeInForce      string          `json:"timeInForce"`
	Commission       decimal.Decimal `json:"commission"`
	Swap             decimal.Decimal `json:"swap"`
	Comment          string          `json:"comment"`
	CreatedAt        string          `json:"createdAt"`
	UpdatedAt        string          `json:"updatedAt"`
}

func (w orderWire) toModel() model.Order {
	return model.Order{
		OrderID:          w.OrderID,
		ClientOrderID:    w.ClientOrderID,
		AccountID:        w.AccountID,
		Symbol:           w.Symbol,
		Side:             model.OrderSide(w.Side),
		Type:             model.OrderType(w.Type),
		Status:           model.OrderStatus(w.Status),
		Volume:           w.Volume,
		FilledVolume:     w.FilledVolume,
		RemainingVolume:  w.RemainingVolume,
		Price:            w.Price,
		StopPrice:        w.StopPrice,
		AverageFillPrice: w.AverageFillPrice,
		TimeInForce:      model.TimeInForce(w.TimeInForce),
		Commission:       w.Commission,
		Swap:             w.Swap,
		Comment:          w.Comment,
		CreatedAt:        parseEventTime(w.CreatedAt),
		UpdatedAt:        parseEventTime(w.UpdatedAt),
	}
}

type positionWire struct {
	PositionID    string          `json:"positionId"`
	AccountID     string          `json:"accountId"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Volume        decimal.Decimal `json:"volume"`
	OpenPrice     decimal.Decimal `json:"openPrice"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	RealizedPnL   decimal.Decimal `json:"realizedPnl"`
	Commission    decimal.Decimal `json:"commission"`
	Swap          decimal.Decimal `json:"swap"`
	MarginUsed    decimal.Decimal `json:"marginUsed"`
	CreatedAt     string          `json:"createdAt"`
	UpdatedAt     string          `json:"updatedAt"`
}

func (w positionWire) toModel() model.Position {
	return model.Position{
		PositionID:    w.PositionID,
		AccountID:     w.AccountID,
		Symbol:        w.Symbol,
		Side:          model.PositionSide(w.Side),
		Volume:        w.Volume,
		OpenPrice:     w.OpenPrice,
		CurrentPrice:  w.CurrentPrice,
		UnrealizedPnL: w.UnrealizedPnL,
		RealizedPnL:   w.RealizedPnL,
		Commission:    w.Commission,
		Swap:          w.Swap,
		MarginUsed:    w.MarginUsed,
		CreatedAt:     parseEventTime(w.CreatedAt),
		UpdatedAt:     parseEventTime(w.UpdatedAt),
	}
}

type portfolioWire struct {
	AccountID string          `json:"accountId"`
	Account   string          `json:"account"`
	Balance   decimal.Decimal `json:"balance"`
	Equity    decimal.Decimal `json:"equity"`
	Margin    decimal.Decimal `json:"margin"`
	Positions []positionWire  `json:"positions"`
	Orders    []orderWire     `json:"orders"`
	Timestamp string          `json:"timestamp"`
}

func (w portfolioWire) toModel() model.PortfolioSnapshot {
	account := w.AccountID
	if account == "" {
		account = w.Account
	}
	snap := model.PortfolioSnapshot{
		AccountID: account,
		Balance:   w.Balance,
		Equity:    w.Equity,
		Margin:    w.Margin,
		Timestamp: parseEventTime(w.Timestamp),
	}
	for _, p := range w.Positions {
		snap.Positions = append(snap.Positions, p.toModel())
	}
	for _, o := range w.Orders {
		snap.Orders = append(snap.Orders, o.toModel())
	}
	return snap
}

// parseEventTime parses the timestamp formats seen on the push feed:
// RFC 3339, the same without a zone (treated as UTC), and epoch seconds
// with an optional fraction. Unparseable input yields the zero time.
func parseEventTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC()
	}
	if d, err := decimal.NewFromString(s); err == nil {
		sec := d.IntPart()
		frac := d.Sub(decimal.NewFromInt(sec))
		nanos := frac.Mul(decimal.NewFromInt(int64(time.Second))).IntPart()
		return time.Unix(sec, nanos).UTC()
	}
	return time.Time{}
}

// isBareStringPing reports whether a frame is the degenerate ping variant:
// the words "PingRequest" or "ping_request" sent either as a raw text
// frame or as a JSON string.
func isBareStringPing(data []byte) bool {
	s := strings.TrimSpace(string(data))
	var decoded string
	if err := json.Unmarshal([]byte(s), &decoded); err == nil {
		s = decoded
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pingrequest", "ping_request":
		return true
	}
	return false
}
