package refnum

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "civicdesk:refseq:"
	// Counters outlive their day so late requests near midnight still find them.
	redisKeyTTL    = 48 * time.Hour
)

// RedisSequencer uses INCR for allocation across processes that share Redis
// but not a database transaction. Numbers burned by rolled back creations
// leave gaps; ordering and uniqueness still hold.
type RedisSequencer struct {
	client redis.Cmdable
}

func NewRedisSequencer(client redis.Cmdable) *RedisSequencer {
	return &RedisSequencer{client: client}
}

func (s *RedisSequencer) Next(ctx context.Context, day time.Time) (int64, error) {
	key := redisKeyPrefix + day.Format("20060102")

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, redisKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return incr.Val(), nil
}
