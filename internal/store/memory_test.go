package store

import (
	"context"
	"errors"
	"testing"

	"github.com/driftframe/backend/internal/models"
)

func TestGetImplicitAccount(t *testing.T) {
	s := NewMemoryAccountStore()
	ctx := context.Background()

	acct, version, err := s.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if acct.Balance != models.DefaultBalance {
		t.Errorf("implicit balance: got %d, want %d", acct.Balance, models.DefaultBalance)
	}
	if version != 0 {
		t.Errorf("implicit version: got %d, want 0", version)
	}
	if len(acct.Usage) != 0 || len(acct.Adjustments) != 0 {
		t.Error("implicit account should have empty histories")
	}
}

func TestPutVersioning(t *testing.T) {
	s := NewMemoryAccountStore()
	ctx := context.Background()

	acct, version, _ := s.Get(ctx, "user-1")
	acct.Balance = 42
	if err := s.Put(ctx, "user-1", acct, version); err != nil {
		t.Fatalf("first Put: %v", err)
	}

	// Version advanced: the stale snapshot must conflict.
	if err := s.Put(ctx, "user-1", acct, version); !errors.Is(err, ErrConflict) {
		t.Errorf("stale Put: got %v, want ErrConflict", err)
	}

	acct2, version2, _ := s.Get(ctx, "user-1")
	if acct2.Balance != 42 {
		t.Errorf("balance after commit: got %d, want 42", acct2.Balance)
	}
	if version2 != version+1 {
		t.Errorf("version after commit: got %d, want %d", version2, version+1)
	}

	acct2.Balance = 7
	if err := s.Put(ctx, "user-1", acct2, version2); err != nil {
		t.Fatalf("second Put: %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewMemoryAccountStore()
	ctx := context.Background()

	acct, version, _ := s.Get(ctx, "user-1")
	acct.AppendUsage(models.UsageEntry{Amount: -10, Note: "first"})
	if err := s.Put(ctx, "user-1", acct, version); err != nil {
		t.Fatalf("Put: %v", err)
	}

	read, _, _ := s.Get(ctx, "user-1")
	read.Usage[0].Note = "mutated"
	read.Balance = -999

	fresh, _, _ := s.Get(ctx, "user-1")
	if fresh.Usage[0].Note != "first" {
		t.Error("mutating a read snapshot must not affect the stored account")
	}
	if fresh.Balance == -999 {
		t.Error("mutating a read snapshot must not affect the stored balance")
	}
}
