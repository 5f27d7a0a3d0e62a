package wallet

import (
	"time"

	"github.com/pochi-wallet/pochi/internal/ledger"
)

// TopUpRequest captures user-provided data to credit a wallet.
type TopUpRequest struct {
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

// TransactionResponse is the wire shape of a ledger record.
type TransactionResponse struct {
	TransactionID  string    `json:"transaction_id"`
	UserID         string    `json:"user_id"`
	Kind           string    `json:"kind"`
	Amount         int64     `json:"amount"`
	CreatedAt      time.Time `json:"created_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// BalanceResponse is the wire shape of a balance read.
type BalanceResponse struct {
	UserID  string    `json:"user_id"`
	Balance int64     `json:"balance"`
	AsOf    time.Time `json:"as_of"`
}

// TransactionListResponse is a page of a user's transaction history.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

func toTransactionResponse(tx ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID:  tx.ID,
		UserID:         tx.UserID,
		Kind:           tx.Kind,
		Amount:         tx.Amount,
		CreatedAt:      tx.CreatedAt,
		IdempotencyKey: tx.IdempotencyKey,
	}
}
