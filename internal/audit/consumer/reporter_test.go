package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filegate/internal/audit"
)

func TestReporter_PublishesPerInstanceSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	queue := newFakeQueue()
	for _, event := range makeEvents(4) {
		require.NoError(t, queue.Push(context.Background(), event))
	}
	_, _, err := queue.PushFailed(context.Background(), makeEvents(2))
	require.NoError(t, err)

	c := New(queue, audit.NewInMemoryStore(), DefaultConfig())
	c.stats.Inserted.Add(10)
	c.stats.Dropped.Add(1)

	reporter := NewReporter(client, queue, c, time.Minute)
	require.NoError(t, reporter.RunOnce(context.Background()))

	key := "audit:stats:" + reporter.Instance()
	assert.Equal(t, "4", mr.HGet(key, "queue_depth"))
	assert.Equal(t, "2", mr.HGet(key, "failed_queue_depth"))
	assert.Equal(t, "10", mr.HGet(key, "inserted"))
	assert.Equal(t, "1", mr.HGet(key, "dropped"))
	assert.Equal(t, string(StateIdle), mr.HGet(key, "state"))

	ttl := mr.TTL(key)
	assert.Greater(t, ttl, time.Duration(0), "snapshot key must expire")
}

func TestReporter_DistinctInstancesUseDistinctKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	queue := newFakeQueue()
	c := New(queue, audit.NewInMemoryStore(), DefaultConfig())

	first := NewReporter(client, queue, c, time.Minute)
	second := NewReporter(client, queue, c, time.Minute)

	// Same host and pid in one test process; the key format is what keeps
	// separate worker processes apart.
	assert.Equal(t, first.Instance(), second.Instance())
	assert.Contains(t, first.Instance(), ":")
}
