package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rickgao/dxtrade-go/model"
)

// ListPositions fetches open positions matching the given filters.
func (c *Client) ListPositions(ctx context.Context, opts ListPositionsOptions) ([]model.Position, error) {
	query := url.Values{}
	if opts.AccountID != "" {
		query.Set("accountId", opts.AccountID)
	}
	if opts.Symbol != "" {
		query.Set("symbol", opts.Symbol)
	}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	var resp PositionsResponse
	if err := c.get(ctx, "/positions", query, &resp); err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	positions := make([]model.Position, 0, len(resp.Positions))
	for i := range resp.Positions {
		positions = append(positions, resp.Positions[i].ToModel())
	}
	return positions, nil
}

// GetPosition fetches a single position by ID.
func (c *Client) GetPosition(ctx context.Context, positionID string) (*model.Position, error) {
	var raw APIPosition
	if err := c.get(ctx, "/positions/"+positionID, nil, &raw); err != nil {
		return nil, fmt.Errorf("get position %s: %w", positionID, err)
	}
	position := raw.ToModel()
	return &position, nil
}
