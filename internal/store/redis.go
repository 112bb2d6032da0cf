package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/driftframe/backend/internal/models"
)

// RedisAccountStore keeps each account as a JSON document with an embedded
// version counter. Compare-and-write uses WATCH: if the key changes between
// the read and the transactional SET, redis aborts the exec and we report
// ErrConflict.
type RedisAccountStore struct {
	client *redis.Client
}

func NewRedisAccountStore(client *redis.Client) *RedisAccountStore {
	return &RedisAccountStore{client: client}
}

type redisAccountDoc struct {
	Account models.Account `json:"account"`
	Version int64          `json:"version"`
}

func accountKey(userID string) string {
	return "account:" + userID
}

func (s *RedisAccountStore) Get(ctx context.Context, userID string) (models.Account, int64, error) {
	raw, err := s.client.Get(ctx, accountKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.NewAccount(userID), 0, nil
	}
	if err != nil {
		return models.Account{}, 0, fmt.Errorf("get account: %w", err)
	}
	var doc redisAccountDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.Account{}, 0, fmt.Errorf("decode account: %w", err)
	}
	return doc.Account, doc.Version, nil
}

func (s *RedisAccountStore) Put(ctx context.Context, userID string, acct models.Account, version int64) error {
	key := accountKey(userID)
	next, err := json.Marshal(redisAccountDoc{Account: acct, Version: version + 1})
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		current := int64(0)
		switch {
		case errors.Is(err, redis.Nil):
			// unpersisted account, version stays 0
		case err != nil:
			return fmt.Errorf("read under watch: %w", err)
		default:
			var doc redisAccountDoc
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("decode under watch: %w", err)
			}
			current = doc.Version
		}
		if current != version {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}
