package admin

import (
	"context"
	"errors"
	"strings"

	"github.com/driftframe/backend/internal/models"
)

// ErrUnauthorized is returned when the actor is not on the privileged
// allow-list. No ledger mutation happens.
var ErrUnauthorized = errors.New("actor is not privileged")

// DefaultReason is recorded when an adjustment arrives with a blank reason.
const DefaultReason = "manual adjustment"

// Identity is the membership check supplied by the identity collaborator.
type Identity interface {
	IsPrivileged(actorID string) bool
}

// Ledger is the slice of the credit ledger the override path uses.
type Ledger interface {
	AdminAdjust(ctx context.Context, userID, actorID string, newBalance int, reason string) (before, after int, err error)
	GetAccount(ctx context.Context, userID string) (models.Account, error)
}

// Service is the privileged out-of-band balance override. It bypasses the
// orchestrator and writes straight to the ledger, fully audited.
type Service struct {
	identity Identity
	ledger   Ledger
}

func NewService(identity Identity, ledger Ledger) *Service {
	return &Service{identity: identity, ledger: ledger}
}

// Adjust sets the target balance. Negative inputs are clamped to zero and a
// blank reason falls back to DefaultReason; both are tolerated rather than
// rejected, matching the observed admin tooling behavior.
func (s *Service) Adjust(ctx context.Context, actorID, targetUserID string, newBalance int, reason string) (models.AdjustmentEntry, error) {
	if !s.identity.IsPrivileged(actorID) {
		return models.AdjustmentEntry{}, ErrUnauthorized
	}
	if newBalance < 0 {
		newBalance = 0
	}
	if strings.TrimSpace(reason) == "" {
		reason = DefaultReason
	}
	before, after, err := s.ledger.AdminAdjust(ctx, targetUserID, actorID, newBalance, reason)
	if err != nil {
		return models.AdjustmentEntry{}, err
	}
	return models.AdjustmentEntry{ActorID: actorID, Before: before, After: after, Reason: reason}, nil
}

// Inspect returns the target account for the admin console.
func (s *Service) Inspect(ctx context.Context, actorID, targetUserID string) (models.Account, error) {
	if !s.identity.IsPrivileged(actorID) {
		return models.Account{}, ErrUnauthorized
	}
	return s.ledger.GetAccount(ctx, targetUserID)
}
