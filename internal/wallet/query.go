package wallet

import (
	"context"
	"time"

	"github.com/pochi-wallet/pochi/internal/ledger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// QueryService serves read-only wallet projections. It never writes and is
// safe under arbitrary concurrency.
type QueryService struct {
	balances     ledger.BalanceStore
	transactions ledger.TransactionStore
}

// NewQueryService builds the read-side wallet service.
func NewQueryService(balances ledger.BalanceStore, transactions ledger.TransactionStore) *QueryService {
	return &QueryService{balances: balances, transactions: transactions}
}

// GetBalance returns the user's current balance. A wallet that was never
// topped up reads as zero.
func (q *QueryService) GetBalance(ctx context.Context, userID string) (Balance, error) {
	amount, _, err := q.balances.Get(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{UserID: userID, Amount: amount, AsOf: time.Now().UTC()}, nil
}

// GetRecentTransactions lists the user's transactions newest first, resuming
// from the opaque cursor when provided.
func (q *QueryService) GetRecentTransactions(ctx context.Context, userID string, limit int, cursor string) ([]ledger.Transaction, string, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return q.transactions.ListRecent(ctx, userID, limit, cursor)
}
