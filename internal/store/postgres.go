package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftframe/backend/internal/models"
)

// PostgresAccountStore persists one row per account with a version column.
// Compare-and-write is an UPDATE guarded on the version read by the caller;
// zero rows affected means a concurrent writer got there first.
type PostgresAccountStore struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountStore(pool *pgxpool.Pool) *PostgresAccountStore {
	return &PostgresAccountStore{pool: pool}
}

// Migrate creates the accounts table if it does not exist.
func (s *PostgresAccountStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			user_id     TEXT PRIMARY KEY,
			balance     INTEGER NOT NULL CHECK (balance >= 0),
			adjustments JSONB NOT NULL DEFAULT '[]',
			usage       JSONB NOT NULL DEFAULT '[]',
			version     BIGINT NOT NULL DEFAULT 1,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (s *PostgresAccountStore) Get(ctx context.Context, userID string) (models.Account, int64, error) {
	var (
		acct        models.Account
		version     int64
		adjustments []byte
		usage       []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, balance, adjustments, usage, version
		FROM accounts WHERE user_id = $1
	`, userID).Scan(&acct.UserID, &acct.Balance, &adjustments, &usage, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.NewAccount(userID), 0, nil
	}
	if err != nil {
		return models.Account{}, 0, fmt.Errorf("get account: %w", err)
	}
	if err := json.Unmarshal(adjustments, &acct.Adjustments); err != nil {
		return models.Account{}, 0, fmt.Errorf("decode adjustments: %w", err)
	}
	if err := json.Unmarshal(usage, &acct.Usage); err != nil {
		return models.Account{}, 0, fmt.Errorf("decode usage: %w", err)
	}
	return acct, version, nil
}

func (s *PostgresAccountStore) Put(ctx context.Context, userID string, acct models.Account, version int64) error {
	adjustments, err := json.Marshal(acct.Adjustments)
	if err != nil {
		return fmt.Errorf("encode adjustments: %w", err)
	}
	usage, err := json.Marshal(acct.Usage)
	if err != nil {
		return fmt.Errorf("encode usage: %w", err)
	}

	// Version 0 means the account has never been persisted: insert it, and
	// treat a duplicate-key no-op as a lost race.
	if version == 0 {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO accounts (user_id, balance, adjustments, usage, version)
			VALUES ($1, $2, $3, $4, 1)
			ON CONFLICT (user_id) DO NOTHING
		`, userID, acct.Balance, adjustments, usage)
		if err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET balance = $2, adjustments = $3, usage = $4, version = version + 1, updated_at = now()
		WHERE user_id = $1 AND version = $5
	`, userID, acct.Balance, adjustments, usage, version)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}
