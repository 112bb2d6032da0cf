package store

import (
	"context"
	"sync"

	"github.com/driftframe/backend/internal/models"
)

type versionedAccount struct {
	acct    models.Account
	version int64
}

// MemoryAccountStore keeps accounts in a map. Used in tests and single-node
// development; the compare-and-write semantics match the durable backends.
type MemoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string]versionedAccount
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[string]versionedAccount)}
}

func (s *MemoryAccountStore) Get(_ context.Context, userID string) (models.Account, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	va, ok := s.accounts[userID]
	if !ok {
		return models.NewAccount(userID), 0, nil
	}
	return va.acct.Clone(), va.version, nil
}

func (s *MemoryAccountStore) Put(_ context.Context, userID string, acct models.Account, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := int64(0)
	if va, ok := s.accounts[userID]; ok {
		current = va.version
	}
	if current != version {
		return ErrConflict
	}
	s.accounts[userID] = versionedAccount{acct: acct.Clone(), version: version + 1}
	return nil
}
