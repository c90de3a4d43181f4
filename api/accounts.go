package api

import (
	"context"
	"fmt"

	"github.com/rickgao/dxtrade-go/model"
)

// ListAccounts fetches all accounts visible to the authenticated user.
func (c *Client) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var raw []APIAccount
	if err := c.get(ctx, "/accounts", nil, &raw); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	accounts := make([]model.Account, 0, len(raw))
	for i := range raw {
		accounts = append(accounts, raw[i].ToModel())
	}
	return accounts, nil
}

// GetAccount fetches a single account by ID.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	var raw APIAccount
	if err := c.get(ctx, "/accounts/"+accountID, nil, &raw); err != nil {
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}
	account := raw.ToModel()
	return &account, nil
}

// GetAccountMetrics fetches the aggregated summary for an account.
func (c *Client) GetAccountMetrics(ctx context.Context, accountID string) (*model.AccountMetrics, error) {
	var raw APIAccountMetrics
	if err := c.get(ctx, "/accounts/"+accountID+"/summary", nil, &raw); err != nil {
		return nil, fmt.Errorf("get account metrics %s: %w", accountID, err)
	}
	metrics := raw.ToModel()
	return &metrics, nil
}
