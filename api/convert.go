package api

import (
	"math"
	"time"

	"github.com/rickgao/dxtrade-go/model"
)

// ParseTimestamp parses an ISO 8601 timestamp. Returns the zero time for
// empty or invalid input.
func ParseTimestamp(iso string) time.Time {
	if iso == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05", iso)
		if err != nil {
			return time.Time{}
		}
	}

	return t
}

// epochToTime converts fractional epoch seconds to a UTC time.
func epochToTime(secs float64) time.Time {
	if secs == 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

// ToModel converts an APIAccount to model.Account.
func (a *APIAccount) ToModel() model.Account {
	return model.Account{
		AccountID:   a.AccountID,
		Name:        a.Name,
		Type:        a.Type,
		Currency:    a.Currency,
		Balance:     a.Balance,
		Equity:      a.Equity,
		Margin:      a.Margin,
		FreeMargin:  a.FreeMargin,
		MarginLevel: a.MarginLevel,
		Leverage:    a.Leverage,
		Status:      a.Status,
		CreatedAt:   ParseTimestamp(a.CreatedAt),
		UpdatedAt:   ParseTimestamp(a.UpdatedAt),
	}
}

// ToModel converts an APIAccountMetrics to model.AccountMetrics.
func (m *APIAccountMetrics) ToModel() model.AccountMetrics {
	return model.AccountMetrics{
		AccountID:       m.AccountID,
		TotalEquity:     m.TotalEquity,
		TotalBalance:    m.TotalBalance,
		TotalMargin:     m.TotalMargin,
		TotalFreeMargin: m.TotalFreeMargin,
		TotalProfit:     m.TotalProfit,
		MarginLevel:     m.MarginLevel,
		Currency:        m.Currency,
		Leverage:        m.Leverage,
		OpenPositions:   m.OpenPositions,
		PendingOrders:   m.PendingOrders,
		LastUpdate:      epochToTime(m.LastUpdate),
	}
}

// ToModel converts an APIInstrument to model.Instrument.
func (i *APIInstrument) ToModel() model.Instrument {
	return model.Instrument{
		Symbol:          i.Symbol,
		Name:            i.Name,
		Type:            i.Type,
		BaseCurrency:    i.BaseCurrency,
		QuoteCurrency:   i.QuoteCurrency,
		PipSize:         i.PipSize,
		MinSize:         i.MinSize,
		MaxSize:         i.MaxSize,
		StepSize:        i.StepSize,
		PricePrecision:  i.PricePrecision,
		VolumePrecision: i.VolumePrecision,
		MarginRate:      i.MarginRate,
		Tradeable:       i.Tradeable,
	}
}

// ToModel converts an APIOrder to model.Order.
func (o *APIOrder) ToModel() model.Order {
	return model.Order{
		OrderID:          o.OrderID,
		ClientOrderID:    o.ClientOrderID,
		AccountID:        o.AccountID,
		Symbol:           o.Symbol,
		Side:             model.OrderSide(o.Side),
		Type:             model.OrderType(o.Type),
		Status:           model.OrderStatus(o.Status),
		Volume:           o.Volume,
		FilledVolume:     o.FilledVolume,
		RemainingVolume:  o.RemainingVolume,
		Price:            o.Price,
		StopPrice:        o.StopPrice,
		AverageFillPrice: o.AverageFillPrice,
		TimeInForce:      model.TimeInForce(o.TimeInForce),
		Commission:       o.Commission,
		Swap:             o.Swap,
		Comment:          o.Comment,
		CreatedAt:        ParseTimestamp(o.CreatedAt),
		UpdatedAt:        ParseTimestamp(o.UpdatedAt),
	}
}

// ToModel converts an APIPosition to model.Position.
func (p *APIPosition) ToModel() model.Position {
	return model.Position{
		PositionID:    p.PositionID,
		AccountID:     p.AccountID,
		Symbol:        p.Symbol,
		Side:          model.PositionSide(p.Side),
		Volume:        p.Volume,
		OpenPrice:     p.OpenPrice,
		CurrentPrice:  p.CurrentPrice,
		UnrealizedPnL: p.UnrealizedPnL,
		RealizedPnL:   p.RealizedPnL,
		Commission:    p.Commission,
		Swap:          p.Swap,
		MarginUsed:    p.MarginUsed,
		CreatedAt:     ParseTimestamp(p.CreatedAt),
		UpdatedAt:     ParseTimestamp(p.UpdatedAt),
	}
}

// orderBody builds the POST /orders payload from a model.OrderRequest.
func orderBody(accountID string, req model.OrderRequest) orderRequestBody {
	body := orderRequestBody{
		AccountID:     accountID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Volume:        req.Volume,
		TimeInForce:   req.TimeInForce,
		ClientOrderID: req.ClientOrderID,
		Comment:       req.Comment,
	}
	if body.TimeInForce == "" {
		body.TimeInForce = model.TimeInForceGTC
	}
	if !req.Price.IsZero() {
		price := req.Price
		body.Price = &price
	}
	if !req.StopPrice.IsZero() {
		stop := req.StopPrice
		body.StopPrice = &stop
	}
	return body
}
