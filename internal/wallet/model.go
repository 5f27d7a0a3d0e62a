package wallet

import "time"

// Balance is a point-in-time view of a user's available funds.
type Balance struct {
	UserID string
	Amount int64
	AsOf   time.Time
}
