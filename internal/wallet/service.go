package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/pochi-wallet/pochi/internal/ledger"
	"github.com/pochi-wallet/pochi/internal/notification"
)

const (
	maxWriteAttempts = 5
	backoffBase      = 10 * time.Millisecond
)

// Service is the single writer of wallet state. A top-up is one logical
// operation spanning the balance store and the transaction log: the log is
// authoritative, the balance is the derived aggregate, and the unique
// idempotency key at the storage layer decides whether a logical request
// already happened.
type Service struct {
	balances     ledger.BalanceStore
	transactions ledger.TransactionStore
	notifier     notification.Notifier
	logger       *slog.Logger

	// now and sleep are swappable for tests
	now   func() time.Time
	sleep func(context.Context, time.Duration)
}

// NewService builds the wallet ledger service.
func NewService(balances ledger.BalanceStore, transactions ledger.TransactionStore, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{
		balances:     balances,
		transactions: transactions,
		notifier:     notifier,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		sleep:        sleepCtx,
	}
}

// TopUpInput captures the data required to credit a wallet.
type TopUpInput struct {
	UserID         string
	Amount         int64
	IdempotencyKey string
}

// TopUp credits the user's wallet exactly once per idempotency key.
//
// Retried or concurrently duplicated requests with the same key resolve to
// the single persisted record, reported with replayed=true; version
// conflicts on the balance row are retried with randomized backoff up to
// maxWriteAttempts before giving up with ErrContentionExceeded.
func (s *Service) TopUp(ctx context.Context, input TopUpInput) (tx ledger.Transaction, replayed bool, err error) {
	if input.UserID == "" {
		return ledger.Transaction{}, false, fmt.Errorf("user id is required")
	}
	if input.Amount <= 0 {
		return ledger.Transaction{}, false, ledger.ErrInvalidAmount
	}
	key := input.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	// replay path: a record for this key means the request already happened
	if existing, err := s.transactions.FindByIdempotencyKey(ctx, input.UserID, key); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return ledger.Transaction{}, false, err
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		_, version, err := s.balances.Get(ctx, input.UserID)
		if err != nil {
			return ledger.Transaction{}, false, err
		}

		// Once the increment lands the operation must reach a determinate
		// outcome even if the caller goes away, so the append and any
		// compensation run detached from caller cancellation.
		opCtx := context.WithoutCancel(ctx)

		newBalance, _, err := s.balances.ConditionalIncrement(opCtx, input.UserID, input.Amount, version)
		if errors.Is(err, ledger.ErrConflict) {
			// the conflicting writer may have been an identical request that
			// has since appended; converge on its record instead of retrying
			if existing, ferr := s.transactions.FindByIdempotencyKey(ctx, input.UserID, key); ferr == nil {
				return existing, true, nil
			} else if !errors.Is(ferr, ledger.ErrNotFound) {
				return ledger.Transaction{}, false, ferr
			}
			s.sleep(ctx, backoffDelay(attempt))
			continue
		}
		if err != nil {
			return ledger.Transaction{}, false, err
		}

		tx := ledger.Transaction{
			ID:             uuid.NewString(),
			UserID:         input.UserID,
			Kind:           ledger.KindTopUp,
			Amount:         input.Amount,
			CreatedAt:      s.now(),
			IdempotencyKey: key,
		}

		err = s.transactions.Append(opCtx, tx)
		if err == nil {
			s.notifyTopUp(opCtx, tx, newBalance)
			return tx, false, nil
		}

		if errors.Is(err, ledger.ErrDuplicateKey) {
			// A concurrent identical request appended first between the
			// replay check and here. Its increment already counted, so ours
			// must be reversed before returning the winning record.
			s.compensate(opCtx, input.UserID, input.Amount)
			winner, ferr := s.transactions.FindByIdempotencyKey(opCtx, input.UserID, key)
			if ferr != nil {
				return ledger.Transaction{}, false, ferr
			}
			return winner, true, nil
		}

		// The append never made it, so the increment is not backed by a
		// record and has to be reversed.
		s.compensate(opCtx, input.UserID, input.Amount)
		return ledger.Transaction{}, false, err
	}

	return ledger.Transaction{}, false, ledger.ErrContentionExceeded
}

// compensate reverses a balance increment whose transaction record did not
// survive. Exhausting the retry budget here leaves the balance ahead of the
// log; that is logged loudly for reconciliation rather than surfaced, since
// the caller's outcome is already decided.
func (s *Service) compensate(ctx context.Context, userID string, amount int64) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		_, version, err := s.balances.Get(ctx, userID)
		if err == nil {
			_, _, err = s.balances.ConditionalIncrement(ctx, userID, -amount, version)
		}
		if err == nil {
			return
		}
		if !errors.Is(err, ledger.ErrConflict) {
			s.logger.Error("balance compensation failed", "user_id", userID, "amount", amount, "error", err)
			return
		}
		s.sleep(ctx, backoffDelay(attempt))
	}
	s.logger.Error("balance compensation exhausted retries", "user_id", userID, "amount", amount)
}

func (s *Service) notifyTopUp(ctx context.Context, tx ledger.Transaction, balance int64) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindTopUpReceived,
		Destination: tx.UserID,
		Body:        fmt.Sprintf("wallet credited %d, balance %d", tx.Amount, balance),
	})
	if err != nil {
		s.logger.Warn("top-up notification failed", "user_id", tx.UserID, "tx_id", tx.ID, "error", err)
	}
}

// backoffDelay returns a full-jitter delay doubling per attempt.
func backoffDelay(attempt int) time.Duration {
	ceiling := backoffBase << attempt
	return time.Duration(rand.Int63n(int64(ceiling)) + 1)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
