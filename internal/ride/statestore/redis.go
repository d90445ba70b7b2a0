// Package statestore persists the single active-ride slot across process
// restarts. The slot is a recovery hint, never authoritative: every
// implementation absorbs its own failures so a broken store behaves exactly
// like an empty one.
package statestore

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/ridelink/internal/ride/domain"
)

const defaultSlotKey = "ridelink:active_ride"

// RedisStore keeps the slot in a single Redis key.
type RedisStore struct {
	client redis.Cmdable
	key    string
	logger *zap.Logger
}

// NewRedisStore constructs the store. An empty key selects the default slot.
func NewRedisStore(client redis.Cmdable, key string, logger *zap.Logger) *RedisStore {
	if key == "" {
		key = defaultSlotKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, key: key, logger: logger}
}

// Save overwrites the slot.
func (s *RedisStore) Save(ctx context.Context, record domain.RideRecord) {
	payload, err := json.Marshal(record)
	if err != nil {
		s.logger.Warn("encode ride state", zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, s.key, payload, 0).Err(); err != nil {
		s.logger.Warn("save ride state", zap.Error(err))
	}
}

// Load returns the last saved record. Unreachable Redis or a corrupt value is
// a miss, not an error.
func (s *RedisStore) Load(ctx context.Context) (*domain.RideRecord, bool) {
	payload, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("load ride state", zap.Error(err))
		}
		return nil, false
	}
	var record domain.RideRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		s.logger.Warn("decode ride state", zap.Error(err))
		return nil, false
	}
	return &record, true
}

// Clear empties the slot.
func (s *RedisStore) Clear(ctx context.Context) {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		s.logger.Warn("clear ride state", zap.Error(err))
	}
}
