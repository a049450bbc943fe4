package audit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	dErrors "filegate/pkg/domain-errors"
)

const (
	mainQueueKey   = "audit:events"
	failedQueueKey = "audit:events:failed"

	// DefaultFailedQueueCap bounds the secondary queue so a long store
	// outage cannot grow Redis without limit.
	DefaultFailedQueueCap = 10_000
)

// RedisQueue implements Queue on Redis lists. Producers LPUSH, the consumer
// BRPOPs, so delivery order is FIFO and each event reaches one consumer.
type RedisQueue struct {
	client    redis.Cmdable
	failedCap int64
}

// RedisQueueOption configures a RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithFailedQueueCap overrides the secondary queue depth cap.
func WithFailedQueueCap(depth int64) RedisQueueOption {
	return func(q *RedisQueue) {
		if depth > 0 {
			q.failedCap = depth
		}
	}
}

// NewRedisQueue creates the queue on an existing Redis connection.
func NewRedisQueue(client redis.Cmdable, opts ...RedisQueueOption) *RedisQueue {
	q := &RedisQueue{
		client:    client,
		failedCap: DefaultFailedQueueCap,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisQueue) Push(ctx context.Context, event Event) error {
	payload, err := event.Encode()
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, mainQueueKey, payload).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "audit queue push failed")
	}
	return nil
}

func (q *RedisQueue) PopBlocking(ctx context.Context, timeout time.Duration) (Event, bool, error) {
	res, err := q.client.BRPop(ctx, timeout, mainQueueKey).Result()
	if err == redis.Nil {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, dErrors.Wrap(err, dErrors.CodeUnavailable, "audit queue pop failed")
	}
	// BRPOP returns [key, value].
	event, err := Decode([]byte(res[1]))
	if err != nil {
		return Event{}, false, err
	}
	return event, true, nil
}

func (q *RedisQueue) PushFailed(ctx context.Context, events []Event) (queued, dropped int, err error) {
	if len(events) == 0 {
		return 0, 0, nil
	}

	depth, err := q.FailedDepth(ctx)
	if err != nil {
		return 0, 0, err
	}
	if depth >= q.failedCap {
		return 0, len(events), nil
	}

	payloads := make([]any, 0, len(events))
	for _, event := range events {
		payload, err := event.Encode()
		if err != nil {
			return 0, 0, err
		}
		payloads = append(payloads, payload)
	}

	// One bulk push for the whole batch. The cap check above is advisory;
	// a batch landing while near the cap may overshoot by one batch, which
	// is an accepted bound.
	if err := q.client.LPush(ctx, failedQueueKey, payloads...).Err(); err != nil {
		return 0, 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed queue push failed")
	}
	return len(events), 0, nil
}

func (q *RedisQueue) RetryFailed(ctx context.Context, max int) (moved int, err error) {
	for moved < max {
		// Tail of the failed list is its oldest entry; requeue it at the
		// head of the main list atomically.
		err := q.client.LMove(ctx, failedQueueKey, mainQueueKey, "RIGHT", "LEFT").Err()
		if err == redis.Nil {
			return moved, nil
		}
		if err != nil {
			return moved, dErrors.Wrap(err, dErrors.CodeUnavailable, "dead letter move failed")
		}
		moved++
	}
	return moved, nil
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	depth, err := q.client.LLen(ctx, mainQueueKey).Result()
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "queue depth read failed")
	}
	return depth, nil
}

func (q *RedisQueue) FailedDepth(ctx context.Context) (int64, error) {
	depth, err := q.client.LLen(ctx, failedQueueKey).Result()
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed queue depth read failed")
	}
	return depth, nil
}
