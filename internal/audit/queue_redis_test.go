package audit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "filegate/pkg/domain"
)

func newTestQueue(t *testing.T, opts ...RedisQueueOption) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueue(client, opts...), mr
}

func testEvent(tenant id.TenantID, eventType EventType) Event {
	e := NewEvent(tenant, eventType, SeverityInfo)
	e.ResourceType = "file"
	return e
}

func TestRedisQueue_PushPopFIFO(t *testing.T) {
	queue, _ := newTestQueue(t)
	ctx := context.Background()

	first := testEvent("acct_1", EventFileUploaded)
	second := testEvent("acct_1", EventFileDeleted)
	require.NoError(t, queue.Push(ctx, first))
	require.NoError(t, queue.Push(ctx, second))

	depth, err := queue.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)

	got, ok, err := queue.PopBlocking(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, EventFileUploaded, got.EventType)

	got, ok, err = queue.PopBlocking(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
}

func TestRedisQueue_PopEmptyTimesOut(t *testing.T) {
	queue, _ := newTestQueue(t)

	_, ok, err := queue.PopBlocking(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisQueue_PushFailedBulkUnderCap(t *testing.T) {
	// The failed queue already holds 3 entries, well under the cap; a failed
	// batch of 50 lands whole in one bulk push.
	queue, _ := newTestQueue(t)
	ctx := context.Background()

	seed := []Event{
		testEvent("acct_1", EventFileUploaded),
		testEvent("acct_1", EventFileUploaded),
		testEvent("acct_1", EventFileUploaded),
	}
	_, _, err := queue.PushFailed(ctx, seed)
	require.NoError(t, err)

	batch := make([]Event, 50)
	for i := range batch {
		batch[i] = testEvent("acct_2", EventFileDownloaded)
	}
	queued, dropped, err := queue.PushFailed(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 50, queued)
	assert.Zero(t, dropped)

	depth, err := queue.FailedDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(53), depth)
}

func TestRedisQueue_PushFailedAtCapDrops(t *testing.T) {
	queue, _ := newTestQueue(t, WithFailedQueueCap(2))
	ctx := context.Background()

	_, _, err := queue.PushFailed(ctx, []Event{
		testEvent("acct_1", EventFileUploaded),
		testEvent("acct_1", EventFileUploaded),
	})
	require.NoError(t, err)

	queued, dropped, err := queue.PushFailed(ctx, []Event{
		testEvent("acct_1", EventFileDeleted),
		testEvent("acct_1", EventFileDeleted),
	})
	require.NoError(t, err)
	assert.Zero(t, queued)
	assert.Equal(t, 2, dropped)

	depth, err := queue.FailedDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth, "capped queue must not grow")
}

func TestRedisQueue_RetryFailedMovesOldestFirst(t *testing.T) {
	queue, _ := newTestQueue(t)
	ctx := context.Background()

	first := testEvent("acct_1", EventFileUploaded)
	second := testEvent("acct_1", EventFileDeleted)
	third := testEvent("acct_1", EventFilesListed)
	_, _, err := queue.PushFailed(ctx, []Event{first, second, third})
	require.NoError(t, err)

	moved, err := queue.RetryFailed(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	failedDepth, err := queue.FailedDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failedDepth)

	got, ok, err := queue.PopBlocking(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, got.ID, "oldest failed entry is retried first")
}

func TestRedisQueue_RetryFailedEmpty(t *testing.T) {
	queue, _ := newTestQueue(t)

	moved, err := queue.RetryFailed(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, moved)
}
