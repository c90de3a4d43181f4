package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rickgao/dxtrade-go/errs"
	"github.com/rickgao/dxtrade-go/model"
)

// ListOrders fetches orders matching the given filters.
func (c *Client) ListOrders(ctx context.Context, opts ListOrdersOptions) ([]model.Order, error) {
	query := url.Values{}
	if opts.AccountID != "" {
		query.Set("accountId", opts.AccountID)
	}
	if opts.Symbol != "" {
		query.Set("symbol", opts.Symbol)
	}
	if opts.Status != "" {
		query.Set("status", string(opts.Status))
	}
	if opts.Side != "" {
		query.Set("side", string(opts.Side))
	}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	var resp OrdersResponse
	if err := c.get(ctx, "/orders", query, &resp); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]model.Order, 0, len(resp.Orders))
	for i := range resp.Orders {
		orders = append(orders, resp.Orders[i].ToModel())
	}
	return orders, nil
}

// GetOrder fetches a single order by ID.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	var raw APIOrder
	if err := c.get(ctx, "/orders/"+orderID, nil, &raw); err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	order := raw.ToModel()
	return &order, nil
}

// PlaceOrder submits a new order for the account. idempotencyKey may be
// empty, in which case one is derived from the request fingerprint.
func (c *Client) PlaceOrder(ctx context.Context, accountID string, req model.OrderRequest, idempotencyKey string) (*model.Order, error) {
	if accountID == "" {
		return nil, &errs.ValidationError{Message: "accountID is required"}
	}
	if req.Symbol == "" {
		return nil, &errs.ValidationError{Message: "order symbol is required"}
	}
	if !req.Volume.IsPositive() {
		return nil, &errs.ValidationError{Message: "order volume must be positive"}
	}

	var raw APIOrder
	if err := c.post(ctx, "/orders", orderBody(accountID, req), idempotencyKey, &raw); err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	order := raw.ToModel()
	return &order, nil
}

// CancelOrder cancels a working order and returns its final state.
func (c *Client) CancelOrder(ctx context.Context, orderID, idempotencyKey string) (*model.Order, error) {
	var raw APIOrder
	if err := c.del(ctx, "/orders/"+orderID, idempotencyKey, &raw); err != nil {
		return nil, fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	order := raw.ToModel()
	return &order, nil
}
