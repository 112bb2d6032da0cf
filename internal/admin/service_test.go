package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/driftframe/backend/internal/models"
)

type fakeIdentity struct {
	privileged map[string]bool
}

func (f fakeIdentity) IsPrivileged(actorID string) bool { return f.privileged[actorID] }

type recordingLedger struct {
	userID     string
	actorID    string
	newBalance int
	reason     string
	before     int
	err        error
}

func (r *recordingLedger) AdminAdjust(_ context.Context, userID, actorID string, newBalance int, reason string) (int, int, error) {
	r.userID, r.actorID, r.newBalance, r.reason = userID, actorID, newBalance, reason
	if r.err != nil {
		return 0, 0, r.err
	}
	return r.before, newBalance, nil
}

func (r *recordingLedger) GetAccount(context.Context, string) (models.Account, error) {
	return models.Account{UserID: r.userID, Balance: r.before}, r.err
}

func newTestAdmin(led *recordingLedger) *Service {
	return NewService(fakeIdentity{privileged: map[string]bool{"ops@example.com": true}}, led)
}

func TestAdjustRequiresPrivilege(t *testing.T) {
	led := &recordingLedger{}
	svc := newTestAdmin(led)

	_, err := svc.Adjust(context.Background(), "user-1", "user-2", 500, "because")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got: %v", err)
	}
	if led.actorID != "" {
		t.Error("ledger must not be touched for unprivileged actors")
	}
}

func TestAdjustRecordsAudit(t *testing.T) {
	led := &recordingLedger{before: 50}
	svc := newTestAdmin(led)

	entry, err := svc.Adjust(context.Background(), "ops@example.com", "user-1", 500, "manual top-up")
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if entry.ActorID != "ops@example.com" || entry.Before != 50 || entry.After != 500 || entry.Reason != "manual top-up" {
		t.Errorf("entry: got %+v", entry)
	}
	if led.userID != "user-1" || led.newBalance != 500 {
		t.Errorf("ledger call: got user=%q balance=%d", led.userID, led.newBalance)
	}
}

func TestAdjustClampsNegative(t *testing.T) {
	led := &recordingLedger{before: 50}
	svc := newTestAdmin(led)

	entry, err := svc.Adjust(context.Background(), "ops@example.com", "user-1", -10, "reset")
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if led.newBalance != 0 || entry.After != 0 {
		t.Errorf("negative target should clamp to 0, ledger saw %d", led.newBalance)
	}
}

func TestAdjustDefaultsBlankReason(t *testing.T) {
	led := &recordingLedger{}
	svc := newTestAdmin(led)

	entry, err := svc.Adjust(context.Background(), "ops@example.com", "user-1", 100, "   ")
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if led.reason != DefaultReason || entry.Reason != DefaultReason {
		t.Errorf("reason: ledger saw %q, entry %q", led.reason, entry.Reason)
	}
}

func TestInspectRequiresPrivilege(t *testing.T) {
	svc := newTestAdmin(&recordingLedger{})
	if _, err := svc.Inspect(context.Background(), "user-1", "user-2"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got: %v", err)
	}
	if _, err := svc.Inspect(context.Background(), "ops@example.com", "user-2"); err != nil {
		t.Errorf("Inspect as admin: %v", err)
	}
}
