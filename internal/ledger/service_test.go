package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/driftframe/backend/internal/models"
	"github.com/driftframe/backend/internal/store"
)

func newTestService(st store.AccountStore) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(st, nil, nil, logger)
}

// ---------------------------------------------------------------------------
// Debit
// ---------------------------------------------------------------------------

func TestDebit(t *testing.T) {
	svc := newTestService(store.NewMemoryAccountStore())
	ctx := context.Background()

	balance, err := svc.Debit(ctx, "user-1", 100, "video generation")
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if balance != 0 {
		t.Errorf("balance after debit: got %d, want 0", balance)
	}

	acct, _ := svc.GetAccount(ctx, "user-1")
	if len(acct.Usage) != 1 {
		t.Fatalf("usage entries: got %d, want 1", len(acct.Usage))
	}
	if acct.Usage[0].Amount != -100 {
		t.Errorf("usage amount: got %d, want -100", acct.Usage[0].Amount)
	}
	if acct.Usage[0].Note != "video generation" {
		t.Errorf("usage note: got %q", acct.Usage[0].Note)
	}
}

// Scenario: balance 50, price 100. No entry appended, balance untouched.
func TestDebitInsufficient(t *testing.T) {
	st := store.NewMemoryAccountStore()
	svc := newTestService(st)
	ctx := context.Background()

	if _, _, err := svc.AdminAdjust(ctx, "user-1", "admin", 50, "test setup"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err := svc.Debit(ctx, "user-1", 100, "video generation")
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got: %v", err)
	}

	acct, _ := svc.GetAccount(ctx, "user-1")
	if acct.Balance != 50 {
		t.Errorf("balance after rejected debit: got %d, want 50", acct.Balance)
	}
	if len(acct.Usage) != 0 {
		t.Errorf("usage entries after rejected debit: got %d, want 0", len(acct.Usage))
	}
}

func TestDebitRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService(store.NewMemoryAccountStore())
	for _, amount := range []int{0, -5} {
		if _, err := svc.Debit(context.Background(), "user-1", amount, "bad"); err == nil {
			t.Errorf("Debit(%d) should fail", amount)
		}
	}
}

// ---------------------------------------------------------------------------
// Refund and Credit
// ---------------------------------------------------------------------------

func TestRefundRestoresBalance(t *testing.T) {
	svc := newTestService(store.NewMemoryAccountStore())
	ctx := context.Background()

	if _, err := svc.Debit(ctx, "user-1", 100, "video generation"); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	balance, err := svc.Refund(ctx, "user-1", 100, "refund for failed generation")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if balance != models.DefaultBalance {
		t.Errorf("balance after refund: got %d, want %d", balance, models.DefaultBalance)
	}

	acct, _ := svc.GetAccount(ctx, "user-1")
	if len(acct.Usage) != 2 {
		t.Fatalf("usage entries: got %d, want 2", len(acct.Usage))
	}
	net := acct.Usage[0].Amount + acct.Usage[1].Amount
	if net != 0 {
		t.Errorf("debit+refund should net to 0, got %d", net)
	}
}

func TestCreditTopUp(t *testing.T) {
	svc := newTestService(store.NewMemoryAccountStore())
	ctx := context.Background()

	balance, err := svc.Credit(ctx, "user-1", 2000, "top-up: starter")
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if balance != models.DefaultBalance+2000 {
		t.Errorf("balance after top-up: got %d, want %d", balance, models.DefaultBalance+2000)
	}
}

// ---------------------------------------------------------------------------
// AdminAdjust
// ---------------------------------------------------------------------------

// Scenario: 50 -> 500 with reason "manual top-up".
func TestAdminAdjust(t *testing.T) {
	svc := newTestService(store.NewMemoryAccountStore())
	ctx := context.Background()

	if _, _, err := svc.AdminAdjust(ctx, "user-1", "admin@example.com", 50, "test setup"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	before, after, err := svc.AdminAdjust(ctx, "user-1", "admin@example.com", 500, "manual top-up")
	if err != nil {
		t.Fatalf("AdminAdjust: %v", err)
	}
	if before != 50 || after != 500 {
		t.Errorf("before/after: got %d/%d, want 50/500", before, after)
	}

	acct, _ := svc.GetAccount(ctx, "user-1")
	if acct.Balance != 500 {
		t.Errorf("balance: got %d, want 500", acct.Balance)
	}
	last := acct.Adjustments[len(acct.Adjustments)-1]
	if last.Before != 50 || last.After != 500 || last.Reason != "manual top-up" {
		t.Errorf("adjustment entry: got %+v", last)
	}
	if last.ActorID != "admin@example.com" {
		t.Errorf("actor: got %q", last.ActorID)
	}
}

func TestAdminAdjustValidation(t *testing.T) {
	svc := newTestService(store.NewMemoryAccountStore())
	ctx := context.Background()

	if _, _, err := svc.AdminAdjust(ctx, "user-1", "admin", 10, ""); err == nil {
		t.Error("blank reason should be rejected")
	}
	if _, _, err := svc.AdminAdjust(ctx, "user-1", "admin", -1, "negative"); err == nil {
		t.Error("negative balance should be rejected")
	}
	acct, _ := svc.GetAccount(ctx, "user-1")
	if len(acct.Adjustments) != 0 {
		t.Error("rejected adjustments must not append entries")
	}
}

// ---------------------------------------------------------------------------
// History retention
// ---------------------------------------------------------------------------

func TestUsageRetention(t *testing.T) {
	svc := newTestService(store.NewMemoryAccountStore())
	ctx := context.Background()

	for i := 0; i < models.HistoryLimit+10; i++ {
		if _, err := svc.Credit(ctx, "user-1", 1, fmt.Sprintf("entry %d", i)); err != nil {
			t.Fatalf("Credit %d: %v", i, err)
		}
	}

	acct, _ := svc.GetAccount(ctx, "user-1")
	if len(acct.Usage) != models.HistoryLimit {
		t.Fatalf("usage length: got %d, want %d", len(acct.Usage), models.HistoryLimit)
	}
	// Oldest dropped first: the window starts at entry 10.
	if acct.Usage[0].Note != "entry 10" {
		t.Errorf("oldest kept entry: got %q, want \"entry 10\"", acct.Usage[0].Note)
	}
	if acct.Usage[len(acct.Usage)-1].Note != fmt.Sprintf("entry %d", models.HistoryLimit+9) {
		t.Errorf("newest entry: got %q", acct.Usage[len(acct.Usage)-1].Note)
	}
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

// Two concurrent debits against a balance of exactly one price: exactly one
// wins, the other observes InsufficientCredits against the fresh balance.
func TestConcurrentDebitRace(t *testing.T) {
	svc := newTestService(store.NewMemoryAccountStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Debit(ctx, "user-1", models.DefaultBalance, "race")
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientCredits):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Errorf("got %d successes and %d insufficient, want exactly 1 of each", ok, insufficient)
	}

	acct, _ := svc.GetAccount(ctx, "user-1")
	if acct.Balance != 0 {
		t.Errorf("balance after race: got %d, want 0", acct.Balance)
	}
	if len(acct.Usage) != 1 {
		t.Errorf("usage entries after race: got %d, want 1", len(acct.Usage))
	}
}

// Balance never goes negative under a mixed operation stream.
func TestBalanceNeverNegative(t *testing.T) {
	svc := newTestService(store.NewMemoryAccountStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				_, _ = svc.Debit(ctx, "user-1", 30, "debit")
			case 1:
				_, _ = svc.Refund(ctx, "user-1", 10, "refund")
			default:
				_, _, _ = svc.AdminAdjust(ctx, "user-1", "admin", 25, "reset")
			}
		}(i)
	}
	wg.Wait()

	acct, _ := svc.GetAccount(ctx, "user-1")
	if acct.Balance < 0 {
		t.Errorf("balance went negative: %d", acct.Balance)
	}
}

// ---------------------------------------------------------------------------
// Contention
// ---------------------------------------------------------------------------

// conflictStore loses every compare-and-write.
type conflictStore struct {
	store.AccountStore
}

func (s conflictStore) Put(context.Context, string, models.Account, int64) error {
	return store.ErrConflict
}

func TestContentionSurfacesLedgerUnavailable(t *testing.T) {
	svc := newTestService(conflictStore{store.NewMemoryAccountStore()})

	_, err := svc.Debit(context.Background(), "user-1", 10, "contended")
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got: %v", err)
	}
}
