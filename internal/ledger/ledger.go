package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidAmount occurs when a caller submits a zero or negative top-up amount.
	ErrInvalidAmount = errors.New("amount must be a positive integer")

	// ErrConflict indicates an optimistic-concurrency version mismatch on a
	// conditional balance write. Callers re-read and retry.
	ErrConflict = errors.New("balance version conflict")

	// ErrContentionExceeded indicates the bounded conditional-write retry budget
	// was exhausted. The request may be retried safely with the same idempotency key.
	ErrContentionExceeded = errors.New("write contention retry budget exhausted")

	// ErrDuplicateKey indicates a transaction with the same (userID, idempotencyKey)
	// pair already exists and therefore the operation should be treated as idempotent.
	ErrDuplicateKey = errors.New("duplicate idempotency key")

	// ErrStoreUnavailable indicates a transient infrastructure failure in a
	// backing store. Safe to retry with the same idempotency key.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
)

const (
	// KindTopUp labels a balance-increasing funding transaction.
	KindTopUp = "topup"
)

// Transaction is an immutable ledger record. Once appended it is never
// mutated or removed; the transaction log is the source of truth and the
// wallet balance is a derived aggregate kept consistent by the wallet service.
type Transaction struct {
	ID             string
	UserID         string
	Kind           string
	Amount         int64
	CreatedAt      time.Time
	IdempotencyKey string
}

// BalanceStore holds one mutable balance row per user, guarded by an opaque
// monotonically increasing version for optimistic concurrency.
type BalanceStore interface {
	// Get returns the current balance and version. A wallet that has never
	// been written reads as (0, 0, nil); absence is not an error.
	Get(ctx context.Context, userID string) (balance int64, version int64, err error)

	// ConditionalIncrement applies delta only if the stored version still
	// equals expectedVersion, creating the row when expectedVersion is zero.
	// A stale version fails with ErrConflict.
	ConditionalIncrement(ctx context.Context, userID string, delta, expectedVersion int64) (newBalance int64, newVersion int64, err error)
}

// TransactionStore is the append-only transaction log.
type TransactionStore interface {
	// Append persists the record, failing with ErrDuplicateKey when a record
	// with the same (UserID, IdempotencyKey) pair already exists. That failure
	// is the dedup mechanism for retried requests, not a caller-visible error.
	Append(ctx context.Context, tx Transaction) error

	// FindByIdempotencyKey returns the record for (userID, key) or ErrNotFound.
	FindByIdempotencyKey(ctx context.Context, userID, key string) (Transaction, error)

	// ListRecent returns up to limit records newest first, resuming after the
	// position encoded in cursor. The returned cursor is empty when the listing
	// is exhausted.
	ListRecent(ctx context.Context, userID string, limit int, cursor string) ([]Transaction, string, error)
}
