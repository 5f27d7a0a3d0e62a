package ledger

// SeedBalance is a test helper that force-sets a user's balance when using the
// in-memory balance store.
func SeedBalance(s BalanceStore, userID string, balance int64) {
	if mem, ok := s.(*inMemoryBalances); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		row := mem.rows[userID]
		row.balance = balance
		row.version++
		mem.rows[userID] = row
	}
}
