package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Enums
// -----------------------------------------------------------------------------

// EventType identifies the kind of streamed event.
type EventType string

const (
	EventTypePrice    EventType = "price"
	EventTypeOrder    EventType = "order"
	EventTypePosition EventType = "position"
	EventTypeAccount  EventType = "account"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventTypePrice, EventTypeOrder, EventTypePosition, EventTypeAccount:
		return true
	}
	return false
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// PositionSide is the direction of an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// OrderType is the execution type of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// TimeInForce controls how long an order stays working.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
	TimeInForceDay TimeInForce = "DAY"
)

// -----------------------------------------------------------------------------
// REST models
// -----------------------------------------------------------------------------

// Account describes a trading account and its margin state.
type Account struct {
	AccountID   string
	Name        string
	Type        string
	Currency    string
	Balance     decimal.Decimal
	Equity      decimal.Decimal
	Margin      decimal.Decimal
	FreeMargin  decimal.Decimal
	MarginLevel decimal.Decimal
	Leverage    decimal.Decimal
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AccountMetrics is the aggregated summary for one account.
type AccountMetrics struct {
	AccountID       string
	TotalEquity     decimal.Decimal
	TotalBalance    decimal.Decimal
	TotalMargin     decimal.Decimal
	TotalFreeMargin decimal.Decimal
	TotalProfit     decimal.Decimal
	MarginLevel     decimal.Decimal
	Currency        string
	Leverage        decimal.Decimal
	OpenPositions   int
	PendingOrders   int
	LastUpdate      time.Time
}

// Instrument describes a tradeable symbol.
type Instrument struct {
	Symbol          string
	Name            string
	Type            string
	BaseCurrency    string
	QuoteCurrency   string
	PipSize         decimal.Decimal
	MinSize         decimal.Decimal
	MaxSize         decimal.Decimal
	StepSize        decimal.Decimal
	PricePrecision  int
	VolumePrecision int
	MarginRate      decimal.Decimal
	Tradeable       bool
}

// Order is an order as reported by the platform.
type Order struct {
	OrderID          string
	ClientOrderID    string
	AccountID        string
	Symbol           string
	Side             OrderSide
	Type             OrderType
	Status           OrderStatus
	Volume           decimal.Decimal
	FilledVolume     decimal.Decimal
	RemainingVolume  decimal.Decimal
	Price            decimal.Decimal
	StopPrice        decimal.Decimal
	AverageFillPrice decimal.Decimal
	TimeInForce      TimeInForce
	Commission       decimal.Decimal
	Swap             decimal.Decimal
	Comment          string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderRequest is the client-side payload for placing an order.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Volume        decimal.Decimal
	Price         decimal.Decimal // limit price, zero for market orders
	StopPrice     decimal.Decimal
	TimeInForce   TimeInForce
	ClientOrderID string
	Comment       string
}

// Position is an open position as reported by the platform.
type Position struct {
	PositionID    string
	AccountID     string
	Symbol        string
	Side          PositionSide
	Volume        decimal.Decimal
	OpenPrice     decimal.Decimal
	CurrentPrice  decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	Commission    decimal.Decimal
	Swap          decimal.Decimal
	MarginUsed    decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// -----------------------------------------------------------------------------
// Streamed events
// -----------------------------------------------------------------------------

// Quote is a live bid/ask update for one symbol.
type Quote struct {
	Symbol    string
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Spread    decimal.Decimal
	Timestamp time.Time
}

// PortfolioSnapshot is a full account-portfolio update.
type PortfolioSnapshot struct {
	AccountID string
	Balance   decimal.Decimal
	Equity    decimal.Decimal
	Margin    decimal.Decimal
	Positions []Position
	Orders    []Order
	Timestamp time.Time
}

// Event is the envelope delivered to stream handlers. Exactly one of the
// payload pointers is set, matching Type.
type Event struct {
	Type       EventType
	Connection string // stream name the event arrived on
	ReceivedAt time.Time

	Quote     *Quote
	Order     *Order
	Position  *Position
	Portfolio *PortfolioSnapshot
}
