package usage

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	dErrors "filegate/pkg/domain-errors"
)

// RedisStore writes usage entries as Redis hashes, one hash per tenant+day
// key, all commands for a batch pipelined into a single round trip.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) WriteBatch(ctx context.Context, batch map[string]*Entry) error {
	if len(batch) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for key, entry := range batch {
		pipe.HIncrBy(ctx, key, "total", entry.Total)
		for op, n := range entry.Ops {
			pipe.HIncrBy(ctx, key, "op:"+op.String(), n)
		}
		if entry.UserID != "" {
			pipe.HSetNX(ctx, key, "first_user_id", string(entry.UserID))
		}
		if !entry.LastActivity.IsZero() {
			pipe.HSet(ctx, key, "last_activity", strconv.FormatInt(entry.LastActivity.Unix(), 10))
		}
		pipe.Expire(ctx, key, RetentionTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "usage batch write failed")
	}
	return nil
}
