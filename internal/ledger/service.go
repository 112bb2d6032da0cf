package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/driftframe/backend/internal/events"
	"github.com/driftframe/backend/internal/metrics"
	"github.com/driftframe/backend/internal/models"
	"github.com/driftframe/backend/internal/store"
)

var (
	// ErrInsufficientCredits is returned when a debit exceeds the balance.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrLedgerUnavailable is returned when a write keeps losing the
	// compare-and-write race past the retry bound.
	ErrLedgerUnavailable = errors.New("ledger unavailable: write contention")
)

const (
	maxWriteAttempts = 5
	writeBackoff     = 25 * time.Millisecond
)

// Service applies debit, refund, top-up and administrative adjustments to the
// account store. Each operation is a read-modify-write cycle committed via
// compare-and-write and retried with backoff on conflict. Idempotency is the
// caller's concern; each call here is individually atomic per account.
type Service struct {
	store   store.AccountStore
	events  events.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(st store.AccountStore, pub events.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{store: st, events: pub, metrics: m, logger: logger}
}

// GetAccount returns the account, implicitly created with the default
// balance on first read.
func (s *Service) GetAccount(ctx context.Context, userID string) (models.Account, error) {
	acct, _, err := s.store.Get(ctx, userID)
	return acct, err
}

// Debit removes amount credits, appending a negative usage entry. Fails with
// ErrInsufficientCredits when the balance does not cover the amount.
func (s *Service) Debit(ctx context.Context, userID string, amount int, note string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	acct, err := s.apply(ctx, userID, func(a *models.Account) error {
		if a.Balance < amount {
			return ErrInsufficientCredits
		}
		a.Balance -= amount
		a.AppendUsage(models.UsageEntry{At: time.Now().UTC(), Amount: -amount, Note: note})
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.publish(events.SubjectUsage, events.LedgerEvent{
		UserID: userID, Kind: "debit", Amount: -amount, Balance: acct.Balance, Note: note, At: time.Now().UTC(),
	})
	return acct.Balance, nil
}

// Refund restores amount credits with a positive usage entry. A refund cannot
// drive the balance negative, so it only fails on contention or store errors.
func (s *Service) Refund(ctx context.Context, userID string, amount int, note string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("refund amount must be positive, got %d", amount)
	}
	return s.add(ctx, userID, amount, note, "refund")
}

// Credit is the top-up entry point invoked after the payment processor
// confirms a completed payment.
func (s *Service) Credit(ctx context.Context, userID string, amount int, note string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	return s.add(ctx, userID, amount, note, "credit")
}

func (s *Service) add(ctx context.Context, userID string, amount int, note, kind string) (int, error) {
	acct, err := s.apply(ctx, userID, func(a *models.Account) error {
		a.Balance += amount
		a.AppendUsage(models.UsageEntry{At: time.Now().UTC(), Amount: amount, Note: note})
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.publish(events.SubjectUsage, events.LedgerEvent{
		UserID: userID, Kind: kind, Amount: amount, Balance: acct.Balance, Note: note, At: time.Now().UTC(),
	})
	return acct.Balance, nil
}

// AdminAdjust sets the balance to newBalance and appends an adjustment entry.
// Authorization is the caller's responsibility.
func (s *Service) AdminAdjust(ctx context.Context, userID, actorID string, newBalance int, reason string) (before, after int, err error) {
	if strings.TrimSpace(reason) == "" {
		return 0, 0, errors.New("adjustment reason is required")
	}
	if newBalance < 0 {
		return 0, 0, fmt.Errorf("new balance must be non-negative, got %d", newBalance)
	}
	acct, err := s.apply(ctx, userID, func(a *models.Account) error {
		before = a.Balance
		a.Balance = newBalance
		a.AppendAdjustment(models.AdjustmentEntry{
			At:      time.Now().UTC(),
			ActorID: actorID,
			Before:  before,
			After:   newBalance,
			Reason:  reason,
		})
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	s.publish(events.SubjectAdjustments, events.LedgerEvent{
		UserID: userID, Kind: "adjustment", Amount: acct.Balance - before, Balance: acct.Balance,
		ActorID: actorID, Note: reason, At: time.Now().UTC(),
	})
	return before, acct.Balance, nil
}

// apply runs one read-modify-write cycle, retrying with fibonacci backoff
// while the store reports conflicts. Exhausting the bound surfaces
// ErrLedgerUnavailable so callers can distinguish contention from a rejected
// operation.
func (s *Service) apply(ctx context.Context, userID string, mutate func(*models.Account) error) (models.Account, error) {
	var out models.Account
	backoff := retry.WithMaxRetries(maxWriteAttempts, retry.NewFibonacci(writeBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		acct, version, err := s.store.Get(ctx, userID)
		if err != nil {
			return err
		}
		if err := mutate(&acct); err != nil {
			return err
		}
		if err := s.store.Put(ctx, userID, acct, version); err != nil {
			if errors.Is(err, store.ErrConflict) {
				if s.metrics != nil {
					s.metrics.LedgerConflictsTotal.Inc()
				}
				return retry.RetryableError(err)
			}
			return err
		}
		out = acct
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.logger.Error("ledger write exhausted conflict retries", "user_id", userID)
			return models.Account{}, ErrLedgerUnavailable
		}
		return models.Account{}, err
	}
	return out, nil
}

func (s *Service) publish(subject string, ev events.LedgerEvent) {
	if s.events != nil {
		s.events.Publish(subject, ev)
	}
}
