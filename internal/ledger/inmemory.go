package ledger

import (
	"context"
	"sort"
	"sync"
)

type balanceRow struct {
	balance int64
	version int64
}

type inMemoryBalances struct {
	mu   sync.RWMutex
	rows map[string]balanceRow
}

// NewInMemoryBalances creates a concurrency-safe in-memory balance store
// useful for unit tests and local development without Postgres.
func NewInMemoryBalances() BalanceStore {
	return &inMemoryBalances{rows: make(map[string]balanceRow)}
}

func (s *inMemoryBalances) Get(_ context.Context, userID string) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.rows[userID]
	return row.balance, row.version, nil
}

func (s *inMemoryBalances) ConditionalIncrement(_ context.Context, userID string, delta, expectedVersion int64) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.rows[userID]
	if row.version != expectedVersion {
		return 0, 0, ErrConflict
	}

	row.balance += delta
	row.version++
	s.rows[userID] = row
	return row.balance, row.version, nil
}

type inMemoryTransactions struct {
	mu     sync.RWMutex
	byUser map[string][]Transaction
	byKey  map[string]Transaction
}

// NewInMemoryTransactions creates a concurrency-safe in-memory transaction log.
func NewInMemoryTransactions() TransactionStore {
	return &inMemoryTransactions{
		byUser: make(map[string][]Transaction),
		byKey:  make(map[string]Transaction),
	}
}

func dedupKey(userID, key string) string {
	return userID + ":" + key
}

func (s *inMemoryTransactions) Append(_ context.Context, tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := dedupKey(tx.UserID, tx.IdempotencyKey)
	if _, exists := s.byKey[k]; exists {
		return ErrDuplicateKey
	}

	s.byKey[k] = tx
	s.byUser[tx.UserID] = append(s.byUser[tx.UserID], tx)
	return nil
}

func (s *inMemoryTransactions) FindByIdempotencyKey(_ context.Context, userID, key string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byKey[dedupKey(userID, key)]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return tx, nil
}

func (s *inMemoryTransactions) ListRecent(_ context.Context, userID string, limit int, cursor string) ([]Transaction, string, error) {
	if limit <= 0 {
		return nil, "", nil
	}

	var afterTime int64
	var afterID string
	if cursor != "" {
		t, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		afterTime = t.UnixNano()
		afterID = id
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// sort a copy on (createdAt, id) descending so cursor boundaries cut the
	// same way the Postgres ORDER BY does, including timestamp ties
	all := make([]Transaction, len(s.byUser[userID]))
	copy(all, s.byUser[userID])
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	items := make([]Transaction, 0, limit)
	for _, tx := range all {
		if cursor != "" {
			nanos := tx.CreatedAt.UnixNano()
			if nanos > afterTime || (nanos == afterTime && tx.ID >= afterID) {
				continue
			}
		}
		items = append(items, tx)
		if len(items) == limit {
			break
		}
	}

	next := ""
	if len(items) == limit {
		next = encodeCursor(items[len(items)-1])
	}
	return items, next, nil
}
