package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestInMemoryBalances_GetMissingWallet(t *testing.T) {
	s := NewInMemoryBalances()
	ctx := context.Background()

	balance, version, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if balance != 0 || version != 0 {
		t.Fatalf("expected zero balance and version, got %d/%d", balance, version)
	}
}

func TestInMemoryBalances_ConditionalIncrement(t *testing.T) {
	s := NewInMemoryBalances()
	ctx := context.Background()

	balance, version, err := s.ConditionalIncrement(ctx, "u1", 500, 0)
	if err != nil {
		t.Fatalf("first increment: %v", err)
	}
	if balance != 500 || version != 1 {
		t.Fatalf("expected 500/1, got %d/%d", balance, version)
	}

	balance, version, err = s.ConditionalIncrement(ctx, "u1", 200, 1)
	if err != nil {
		t.Fatalf("second increment: %v", err)
	}
	if balance != 700 || version != 2 {
		t.Fatalf("expected 700/2, got %d/%d", balance, version)
	}
}

func TestInMemoryBalances_StaleVersionConflicts(t *testing.T) {
	s := NewInMemoryBalances()
	ctx := context.Background()

	if _, _, err := s.ConditionalIncrement(ctx, "u1", 500, 0); err != nil {
		t.Fatalf("seed increment: %v", err)
	}

	if _, _, err := s.ConditionalIncrement(ctx, "u1", 100, 0); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for stale version, got %v", err)
	}

	balance, _, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if balance != 500 {
		t.Fatalf("conflicting write must not apply, balance=%d", balance)
	}
}

func TestInMemoryTransactions_AppendRejectsDuplicateKey(t *testing.T) {
	s := NewInMemoryTransactions()
	ctx := context.Background()

	tx := Transaction{
		ID:             uuid.NewString(),
		UserID:         "u1",
		Kind:           KindTopUp,
		Amount:         500,
		CreatedAt:      time.Now().UTC(),
		IdempotencyKey: "k1",
	}
	if err := s.Append(ctx, tx); err != nil {
		t.Fatalf("append: %v", err)
	}

	dup := tx
	dup.ID = uuid.NewString()
	if err := s.Append(ctx, dup); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}

	// same key under a different user is a distinct logical request
	other := tx
	other.ID = uuid.NewString()
	other.UserID = "u2"
	if err := s.Append(ctx, other); err != nil {
		t.Fatalf("append for other user: %v", err)
	}
}

func TestInMemoryTransactions_FindByIdempotencyKey(t *testing.T) {
	s := NewInMemoryTransactions()
	ctx := context.Background()

	if _, err := s.FindByIdempotencyKey(ctx, "u1", "k1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	tx := Transaction{ID: uuid.NewString(), UserID: "u1", Kind: KindTopUp, Amount: 500, CreatedAt: time.Now().UTC(), IdempotencyKey: "k1"}
	if err := s.Append(ctx, tx); err != nil {
		t.Fatalf("append: %v", err)
	}

	found, err := s.FindByIdempotencyKey(ctx, "u1", "k1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID != tx.ID {
		t.Fatalf("expected tx %s, got %s", tx.ID, found.ID)
	}
}

func TestInMemoryTransactions_ListRecentNewestFirst(t *testing.T) {
	s := NewInMemoryTransactions()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tx := Transaction{
			ID:             uuid.NewString(),
			UserID:         "u1",
			Kind:           KindTopUp,
			Amount:         int64(100 * (i + 1)),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
			IdempotencyKey: fmt.Sprintf("k-%d", i),
		}
		if err := s.Append(ctx, tx); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	items, _, err := s.ListRecent(ctx, "u1", 10, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].CreatedAt.After(items[i-1].CreatedAt) {
			t.Fatalf("items not ordered newest first at index %d", i)
		}
	}
	if items[0].Amount != 500 {
		t.Fatalf("expected newest amount 500, got %d", items[0].Amount)
	}
}

func TestInMemoryTransactions_CursorRestartsListing(t *testing.T) {
	s := NewInMemoryTransactions()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tx := Transaction{
			ID:             uuid.NewString(),
			UserID:         "u1",
			Kind:           KindTopUp,
			Amount:         int64(i + 1),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
			IdempotencyKey: fmt.Sprintf("k-%d", i),
		}
		if err := s.Append(ctx, tx); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	seen := make(map[string]bool)
	cursor := ""
	pages := 0
	for {
		items, next, err := s.ListRecent(ctx, "u1", 2, cursor)
		if err != nil {
			t.Fatalf("list page %d: %v", pages, err)
		}
		for _, tx := range items {
			if seen[tx.ID] {
				t.Fatalf("transaction %s returned twice", tx.ID)
			}
			seen[tx.ID] = true
		}
		pages++
		if next == "" || len(items) == 0 {
			break
		}
		cursor = next
	}

	if len(seen) != 5 {
		t.Fatalf("expected 5 distinct transactions across pages, got %d", len(seen))
	}
}

func TestInMemoryTransactions_CursorStableOnEqualTimestamps(t *testing.T) {
	s := NewInMemoryTransactions()
	ctx := context.Background()

	// several records sharing one timestamp: paging must still visit each
	// exactly once, breaking ties the way the persistent store orders them
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		tx := Transaction{
			ID:             fmt.Sprintf("tx-%d", i),
			UserID:         "u1",
			Kind:           KindTopUp,
			Amount:         int64(i + 1),
			CreatedAt:      at,
			IdempotencyKey: fmt.Sprintf("k-%d", i),
		}
		if err := s.Append(ctx, tx); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	seen := make(map[string]bool)
	cursor := ""
	for {
		items, next, err := s.ListRecent(ctx, "u1", 2, cursor)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, tx := range items {
			if seen[tx.ID] {
				t.Fatalf("transaction %s returned twice", tx.ID)
			}
			seen[tx.ID] = true
		}
		if next == "" || len(items) == 0 {
			break
		}
		cursor = next
	}

	if len(seen) != 6 {
		t.Fatalf("expected all 6 transactions exactly once, got %d", len(seen))
	}
}

func TestListRecentRejectsMalformedCursor(t *testing.T) {
	s := NewInMemoryTransactions()
	if _, _, err := s.ListRecent(context.Background(), "u1", 10, "not-a-cursor"); err == nil {
		t.Fatal("expected error for malformed cursor")
	}
}
