package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// schemaStatements holds the DDL for the wallet ledger tables. Applied one
// statement at a time since pgx's extended protocol rejects batched DDL;
// every statement is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
        user_id TEXT PRIMARY KEY,
        balance BIGINT NOT NULL DEFAULT 0,
        version BIGINT NOT NULL DEFAULT 0
    )`,
	`CREATE TABLE IF NOT EXISTS wallet_transactions (
        tx_id UUID PRIMARY KEY,
        user_id TEXT NOT NULL,
        kind TEXT NOT NULL,
        amount BIGINT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL,
        idempotency_key TEXT NOT NULL,
        UNIQUE (user_id, idempotency_key)
    )`,
	`CREATE INDEX IF NOT EXISTS wallet_transactions_recent
        ON wallet_transactions (user_id, created_at DESC, tx_id DESC)`,
}

// EnsureSchema creates the ledger tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure ledger schema: %w", err)
		}
	}
	return nil
}

// PostgresBalances stores one versioned balance row per user in PostgreSQL.
type PostgresBalances struct {
	db *pgxpool.Pool
}

// NewPostgresBalances constructs a Postgres-backed balance store.
func NewPostgresBalances(db *pgxpool.Pool) *PostgresBalances {
	return &PostgresBalances{db: db}
}

// Get returns the stored balance and version; a missing row reads as (0, 0).
func (s *PostgresBalances) Get(ctx context.Context, userID string) (int64, int64, error) {
	const query = `SELECT balance, version FROM wallets WHERE user_id = $1`
	var balance, version int64
	if err := s.db.QueryRow(ctx, query, userID).Scan(&balance, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, nil
		}
		return 0, 0, storeErr("read balance", err)
	}
	return balance, version, nil
}

// ConditionalIncrement applies delta when the stored version still matches
// expectedVersion. expectedVersion zero covers the lazily-created wallet:
// the row is inserted if absent, and a concurrent insert surfaces as ErrConflict.
func (s *PostgresBalances) ConditionalIncrement(ctx context.Context, userID string, delta, expectedVersion int64) (int64, int64, error) {
	if expectedVersion == 0 {
		const insert = `INSERT INTO wallets (user_id, balance, version) VALUES ($1, $2, 1)
            ON CONFLICT (user_id) DO NOTHING
            RETURNING balance, version`
		var balance, version int64
		err := s.db.QueryRow(ctx, insert, userID, delta).Scan(&balance, &version)
		if err == nil {
			return balance, version, nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			// row already exists, so version 0 is stale
			return 0, 0, ErrConflict
		}
		return 0, 0, storeErr("create wallet", err)
	}

	const update = `UPDATE wallets SET balance = balance + $2, version = version + 1
        WHERE user_id = $1 AND version = $3
        RETURNING balance, version`
	var balance, version int64
	err := s.db.QueryRow(ctx, update, userID, delta, expectedVersion).Scan(&balance, &version)
	if err == nil {
		return balance, version, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, ErrConflict
	}
	return 0, 0, storeErr("increment balance", err)
}

// PostgresTransactions persists the append-only transaction log in PostgreSQL.
type PostgresTransactions struct {
	db *pgxpool.Pool
}

// NewPostgresTransactions constructs a Postgres-backed transaction store.
func NewPostgresTransactions(db *pgxpool.Pool) *PostgresTransactions {
	return &PostgresTransactions{db: db}
}

// Append inserts the record, mapping the (user_id, idempotency_key) unique
// constraint onto ErrDuplicateKey.
func (s *PostgresTransactions) Append(ctx context.Context, tx Transaction) error {
	txID, err := uuid.Parse(tx.ID)
	if err != nil {
		return fmt.Errorf("parse transaction id: %w", err)
	}
	const insert = `INSERT INTO wallet_transactions (tx_id, user_id, kind, amount, created_at, idempotency_key)
        VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = s.db.Exec(ctx, insert, txID, tx.UserID, tx.Kind, tx.Amount, tx.CreatedAt.UTC(), tx.IdempotencyKey)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateKey
		}
		return storeErr("append transaction", err)
	}
	return nil
}

// FindByIdempotencyKey fetches the record persisted for (userID, key).
func (s *PostgresTransactions) FindByIdempotencyKey(ctx context.Context, userID, key string) (Transaction, error) {
	const query = `SELECT tx_id, user_id, kind, amount, created_at, idempotency_key
        FROM wallet_transactions WHERE user_id = $1 AND idempotency_key = $2`
	tx, err := scanTransaction(s.db.QueryRow(ctx, query, userID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, storeErr("find transaction", err)
	}
	return tx, nil
}

// ListRecent pages through a user's transactions newest first using keyset
// pagination on (created_at, tx_id).
func (s *PostgresTransactions) ListRecent(ctx context.Context, userID string, limit int, cursor string) ([]Transaction, string, error) {
	if limit <= 0 {
		return nil, "", nil
	}

	var rows pgx.Rows
	var err error
	if cursor == "" {
		const query = `SELECT tx_id, user_id, kind, amount, created_at, idempotency_key
            FROM wallet_transactions WHERE user_id = $1
            ORDER BY created_at DESC, tx_id DESC LIMIT $2`
		rows, err = s.db.Query(ctx, query, userID, limit)
	} else {
		afterTime, afterID, derr := decodeCursor(cursor)
		if derr != nil {
			return nil, "", derr
		}
		const query = `SELECT tx_id, user_id, kind, amount, created_at, idempotency_key
            FROM wallet_transactions WHERE user_id = $1 AND (created_at, tx_id) < ($2, $3)
            ORDER BY created_at DESC, tx_id DESC LIMIT $4`
		rows, err = s.db.Query(ctx, query, userID, afterTime, afterID, limit)
	}
	if err != nil {
		return nil, "", storeErr("list transactions", err)
	}
	defer rows.Close()

	items := make([]Transaction, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, "", storeErr("scan transaction", err)
		}
		items = append(items, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, "", storeErr("list transactions", err)
	}

	next := ""
	if len(items) == limit {
		next = encodeCursor(items[len(items)-1])
	}
	return items, next, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var tx Transaction
	var txID uuid.UUID
	var createdAt time.Time
	if err := row.Scan(&txID, &tx.UserID, &tx.Kind, &tx.Amount, &createdAt, &tx.IdempotencyKey); err != nil {
		return Transaction{}, err
	}
	tx.ID = txID.String()
	tx.CreatedAt = createdAt.UTC()
	return tx, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
