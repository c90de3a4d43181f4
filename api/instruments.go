package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rickgao/dxtrade-go/model"
)

// ListInstruments fetches tradeable instruments.
func (c *Client) ListInstruments(ctx context.Context, opts ListInstrumentsOptions) ([]model.Instrument, error) {
	query := url.Values{}
	if opts.Type != "" {
		query.Set("type", opts.Type)
	}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	var raw []APIInstrument
	if err := c.get(ctx, "/instruments", query, &raw); err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}

	instruments := make([]model.Instrument, 0, len(raw))
	for i := range raw {
		instruments = append(instruments, raw[i].ToModel())
	}
	return instruments, nil
}

// GetInstrument fetches a single instrument by symbol.
func (c *Client) GetInstrument(ctx context.Context, symbol string) (*model.Instrument, error) {
	var raw APIInstrument
	if err := c.get(ctx, "/instruments/"+symbol, nil, &raw); err != nil {
		return nil, fmt.Errorf("get instrument %s: %w", symbol, err)
	}
	instrument := raw.ToModel()
	return &instrument, nil
}

// SearchInstruments searches instruments by symbol or name.
func (c *Client) SearchInstruments(ctx context.Context, search string) ([]model.Instrument, error) {
	query := url.Values{}
	query.Set("query", search)

	var raw []APIInstrument
	if err := c.get(ctx, "/instruments/search", query, &raw); err != nil {
		return nil, fmt.Errorf("search instruments: %w", err)
	}

	instruments := make([]model.Instrument, 0, len(raw))
	for i := range raw {
		instruments = append(instruments, raw[i].ToModel())
	}
	return instruments, nil
}
