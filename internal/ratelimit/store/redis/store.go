// Package redis implements the shared admission tier on Redis. Counters are
// authoritative across gateway processes; increments are atomic Lua scripts
// so increment-and-read is one round trip.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	dErrors "filegate/pkg/domain-errors"
)

// incrWindow atomically increments a window counter and arms its TTL on
// first touch. The TTL equals the remaining window so the key expires at the
// boundary without a cleanup job.
var incrWindow = redis.NewScript(`
local c = redis.call('INCR', KEYS[1])
if c == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return c
`)

// incrCounter atomically adds to a counter and arms the TTL only when the key
// has none, so repeated consumes never push the expiry out.
var incrCounter = redis.NewScript(`
local c = redis.call('INCRBY', KEYS[1], ARGV[1])
if redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return c
`)

// Store wraps a Redis client with the counter operations the guard needs.
type Store struct {
	client redis.Cmdable
}

// New creates a shared-tier store on an existing Redis connection.
func New(client redis.Cmdable) *Store {
	return &Store{client: client}
}

// IncrWindow increments the counter for key and returns the new value.
// ttl should be the time remaining until the window boundary.
func (s *Store) IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := incrWindow.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "shared tier increment failed")
	}
	return count, nil
}

// Count reads a counter without mutating it. Missing keys read as zero.
func (s *Store) Count(ctx context.Context, key string) (int64, error) {
	count, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "shared tier read failed")
	}
	return count, nil
}

// IncrBy adds n to a counter, arming ttl if the key is fresh, and returns the
// new value. Used for quota consumption after a completed operation.
func (s *Store) IncrBy(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error) {
	count, err := incrCounter.Run(ctx, s.client, []string{key}, n, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "shared tier increment failed")
	}
	return count, nil
}

// SetMarker sets a dedup marker key with a TTL. Returns true when this call
// created the marker, false when it already existed.
func (s *Store) SetMarker(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	created, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "marker write failed")
	}
	return created, nil
}

// Delete removes a counter, e.g. on an admin reset.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "counter delete failed")
	}
	return nil
}
