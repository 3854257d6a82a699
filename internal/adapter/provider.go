// Package adapter connects the engine to the remote account data source.
package adapter

import (
	"context"
	"fmt"

	"github.com/account-sync/internal/types"
)

// AccountDataSource is the single remote dependency of the sync engine: a
// backend able to return the trade history and statistics snapshot for an
// account. Implementations must honor context cancellation and deadlines.
type AccountDataSource interface {
	FetchAccountData(ctx context.Context, accountID string) (*AccountPayload, error)
}

// AccountPayload is the validated data portion of a successful response
type AccountPayload struct {
	History    []types.TradeRecord `json:"history"`
	Statistics Statistics          `json:"statistics"`
	Account    AccountInfo         `json:"account"`
}

// Statistics carries backend-computed aggregate figures. The engine treats
// them as informational; authoritative aggregates are recomputed locally.
type Statistics struct {
	TotalTrades int     `json:"totalTrades"`
	NetProfit   float64 `json:"netProfit"`
	WinRate     float64 `json:"winRate"`
}

// AccountInfo carries the account-level balance figures
type AccountInfo struct {
	ID       string  `json:"id"`
	Balance  float64 `json:"balance"`
	Equity   float64 `json:"equity"`
	Currency string  `json:"currency"`
}

// updateResponse is the wire envelope of the update-account-data call: a
// tagged union of a success shape carrying data and a failure shape
// carrying a message.
type updateResponse struct {
	Success bool            `json:"success"`
	Data    *AccountPayload `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// validatePayload enforces the boundary schema so malformed fields are
// quarantined here instead of propagating into aggregates. A nil payload on
// a success envelope and an account id mismatch are both rejected.
func validatePayload(accountID string, payload *AccountPayload) error {
	if payload == nil {
		return fmt.Errorf("success response carried no data")
	}
	if payload.Account.ID != "" && payload.Account.ID != accountID {
		return fmt.Errorf("payload account %s does not match requested account %s",
			payload.Account.ID, accountID)
	}
	return nil
}

// BalanceInfo converts the wire account figures to the snapshot's balance type
func (p *AccountPayload) BalanceInfo() types.BalanceInfo {
	return types.BalanceInfo{
		Balance:  p.Account.Balance,
		Equity:   p.Account.Equity,
		Currency: p.Account.Currency,
	}
}
