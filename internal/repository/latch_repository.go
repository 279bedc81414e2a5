package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// LatchRepository claims a one-shot key. Claim returns true only for the
// first caller across every replica sharing the store.
type LatchRepository interface {
	Claim(ctx context.Context, key string) (bool, error)
}

type redisLatchRepository struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRedisLatchRepository(rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) LatchRepository {
	return &redisLatchRepository{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func (r *redisLatchRepository) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim latch %s: %w", key, err)
	}
	if !ok {
		r.logger.Debug().Str("key", key).Msg("Latch already claimed")
	}
	return ok, nil
}

func TerminationLatchKey(candidateID, interviewID string) string {
	return fmt.Sprintf("proctoring:terminated:%s:%s", candidateID, interviewID)
}
