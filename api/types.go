package api

import (
	"github.com/shopspring/decimal"

	"github.com/rickgao/dxtrade-go/model"
)

// APIAccount represents an account from GET /accounts.
type APIAccount struct {
	AccountID   string          `json:"accountId"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Currency    string          `json:"currency"`
	Balance     decimal.Decimal `json:"balance"`
	Equity      decimal.Decimal `json:"equity"`
	Margin      decimal.Decimal `json:"margin"`
	FreeMargin  decimal.Decimal `json:"freeMargin"`
	MarginLevel decimal.Decimal `json:"marginLevel"`
	Leverage    decimal.Decimal `json:"leverage"`
	Status      string          `json:"status"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
}

// APIAccountMetrics represents GET /accounts/{id}/summary.
// lastUpdate is epoch seconds, unlike the ISO timestamps elsewhere.
type APIAccountMetrics struct {
	AccountID       string          `json:"accountId"`
	TotalEquity     decimal.Decimal `json:"totalEquity"`
	TotalBalance    decimal.Decimal `json:"totalBalance"`
	TotalMargin     decimal.Decimal `json:"totalMargin"`
	TotalFreeMargin decimal.Decimal `json:"totalFreeMargin"`
	TotalProfit     decimal.Decimal `json:"totalProfit"`
	MarginLevel     decimal.Decimal `json:"marginLevel"`
	Currency        string          `json:"currency"`
	Leverage        decimal.Decimal `json:"leverage"`
	OpenPositions   int             `json:"openPositions"`
	PendingOrders   int             `json:"pendingOrders"`
	LastUpdate      float64         `json:"lastUpdate"`
}

// APIInstrument represents an instrument from GET /instruments.
type APIInstrument struct {
	Symbol          string          `json:"symbol"`
	Name            string          `json:"name"`
	Type            string          `json:"type"`
	BaseCurrency    string          `json:"baseCurrency"`
	QuoteCurrency   string          `json:"quoteCurrency"`
	PipSize         decimal.Decimal `json:"pipSize"`
	MinSize         decimal.Decimal `json:"minSize"`
	MaxSize         decimal.Decimal `json:"maxSize"`
	StepSize        decimal.Decimal `json:"stepSize"`
	PricePrecision  int             `json:"pricePrecision"`
	VolumePrecision int             `json:"volumePrecision"`
	MarginRate      decimal.Decimal `json:"marginRate"`
	Tradeable       bool            `json:"tradeable"`
}

// APIOrder represents an order from the orders endpoints.
type APIOrder struct {
	OrderID          string          `json:"orderId"`
	ClientOrderID    string          `json:"clientOrderId,omitempty"`
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
	Comment          string          `json:"comment,omitempty"`
	CreatedAt        string          `json:"createdAt"`
	UpdatedAt        string          `json:"updatedAt"`
}

// APIPosition represents a position from the positions endpoints.
type APIPosition struct {
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

// Pagination describes the page window of a list response.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// OrdersResponse is the data payload of GET /orders.
type OrdersResponse struct {
	Orders     []APIOrder  `json:"orders"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// PositionsResponse is the data payload of GET /positions.
type PositionsResponse struct {
	Positions  []APIPosition `json:"positions"`
	Pagination *Pagination   `json:"pagination,omitempty"`
}

// orderRequestBody is the POST /orders payload. Optional prices are
// pointers so zero values are omitted rather than sent as 0.
type orderRequestBody struct {
	AccountID     string            `json:"accountId"`
	Symbol        string            `json:"symbol"`
	Side          model.OrderSide   `json:"side"`
	Type          model.OrderType   `json:"type"`
	Volume        decimal.Decimal   `json:"volume"`
	TimeInForce   model.TimeInForce `json:"timeInForce"`
	Price         *decimal.Decimal  `json:"price,omitempty"`
	StopPrice     *decimal.Decimal  `json:"stopPrice,omitempty"`
	ClientOrderID string            `json:"clientOrderId,omitempty"`
	Comment       string            `json:"comment,omitempty"`
}

// ListOrdersOptions filters GET /orders.
type ListOrdersOptions struct {
	AccountID string
	Symbol    string
	Status    model.OrderStatus
	Side      model.OrderSide
	Page      int
	Limit     int
}

// ListPositionsOptions filters GET /positions.
type ListPositionsOptions struct {
	AccountID string
	Symbol    string
	Page      int
	Limit     int
}

// ListInstrumentsOptions filters GET /instruments.
type ListInstrumentsOptions struct {
	Type  string
	Page  int
	Limit int
}
