package store

import (
	"context"
	"errors"

	"github.com/driftframe/backend/internal/models"
)

// ErrConflict is returned by Put when the stored account changed since the
// version the caller read. The caller is expected to re-read and retry.
var ErrConflict = errors.New("account modified concurrently")

// AccountStore is durable keyed storage for account records with
// optimistic-concurrency writes. Get never fails on a missing account: it
// returns the implicit default account at version 0.
//
// Put commits the given snapshot only if the stored version still matches
// the one returned by Get; otherwise it returns ErrConflict. Two concurrent
// read-modify-write cycles against the same account therefore serialize:
// one commits, the other conflicts and retries against the fresh balance.
type AccountStore interface {
	Get(ctx context.Context, userID string) (models.Account, int64, error)
	Put(ctx context.Context, userID string, acct models.Account, version int64) error
}
