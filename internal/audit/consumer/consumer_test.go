package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filegate/internal/audit"
	id "filegate/pkg/domain"
)

// fakeQueue is an in-process audit.Queue with a bounded failed list.
type fakeQueue struct {
	mu        sync.Mutex
	main      []audit.Event
	failed    []audit.Event
	failedCap int

	depthOverride int64
	popErr        error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{failedCap: audit.DefaultFailedQueueCap, depthOverride: -1}
}

func (q *fakeQueue) Push(_ context.Context, event audit.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.main = append(q.main, event)
	return nil
}

func (q *fakeQueue) PopBlocking(ctx context.Context, timeout time.Duration) (audit.Event, bool, error) {
	q.mu.Lock()
	if q.popErr != nil {
		defer q.mu.Unlock()
		return audit.Event{}, false, q.popErr
	}
	if len(q.main) > 0 {
		event := q.main[0]
		q.main = q.main[1:]
		q.mu.Unlock()
		return event, true, nil
	}
	q.mu.Unlock()

	// Empty queue: behave like a blocking pop that times out.
	select {
	case <-time.After(timeout):
		return audit.Event{}, false, nil
	case <-ctx.Done():
		return audit.Event{}, false, ctx.Err()
	}
}

func (q *fakeQueue) PushFailed(_ context.Context, events []audit.Event) (int, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.failed) >= q.failedCap {
		return 0, len(events), nil
	}
	q.failed = append(q.failed, events...)
	return len(events), 0, nil
}

func (q *fakeQueue) RetryFailed(_ context.Context, max int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	moved := 0
	for moved < max && len(q.failed) > 0 {
		q.main = append(q.main, q.failed[0])
		q.failed = q.failed[1:]
		moved++
	}
	return moved, nil
}

func (q *fakeQueue) Depth(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.depthOverride >= 0 {
		return q.depthOverride, nil
	}
	return int64(len(q.main)), nil
}

func (q *fakeQueue) FailedDepth(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.failed)), nil
}

func (q *fakeQueue) failedLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.failed)
}

// failingStore rejects every batch.
type failingStore struct{ err error }

func (s *failingStore) InsertBatch(context.Context, []audit.Event) error { return s.err }
func (s *failingStore) ListByTenant(context.Context, id.TenantID, int) ([]audit.Event, error) {
	return nil, nil
}

func makeEvents(n int) []audit.Event {
	events := make([]audit.Event, n)
	for i := range events {
		events[i] = audit.NewEvent("acct_1", audit.EventFileUploaded, audit.SeverityInfo)
	}
	return events
}

func TestFlush_WriteFailureMovesWholeBatchToFailedQueue(t *testing.T) {
	// 50 buffered events, write fails, failed queue holds 3 (under cap):
	// all 50 land on the failed queue in one bulk push and the failure
	// counter grows by 50.
	queue := newFakeQueue()
	_, _, err := queue.PushFailed(context.Background(), makeEvents(3))
	require.NoError(t, err)

	c := New(queue, &failingStore{err: errors.New("insert failed")}, DefaultConfig())
	c.mu.Lock()
	c.buffer = makeEvents(50)
	c.lastFlush = time.Now()
	c.mu.Unlock()

	c.flush(context.Background())

	assert.Equal(t, 53, queue.failedLen())
	assert.Equal(t, int64(50), c.stats.InsertFailures.Load())
	assert.Zero(t, c.stats.Dropped.Load())
	_, failed := c.stats.LastFailure()
	assert.True(t, failed)
}

func TestFlush_FailedQueueAtCapCountsDropped(t *testing.T) {
	queue := newFakeQueue()
	queue.failedCap = 3
	_, _, err := queue.PushFailed(context.Background(), makeEvents(3))
	require.NoError(t, err)

	c := New(queue, &failingStore{err: errors.New("insert failed")}, DefaultConfig())
	c.mu.Lock()
	c.buffer = makeEvents(10)
	c.mu.Unlock()

	c.flush(context.Background())

	assert.Equal(t, 3, queue.failedLen(), "capped queue must not grow")
	assert.Equal(t, int64(10), c.stats.Dropped.Load())
}

func TestFlush_SuccessClearsBufferAndCounts(t *testing.T) {
	queue := newFakeQueue()
	store := audit.NewInMemoryStore()

	c := New(queue, store, DefaultConfig())
	c.mu.Lock()
	c.buffer = makeEvents(7)
	c.mu.Unlock()

	c.flush(context.Background())

	assert.Equal(t, 7, store.Len())
	assert.Equal(t, int64(7), c.stats.Inserted.Load())
	assert.Zero(t, c.BufferLen())
}

func TestFlush_RecomputesBatchSizeFromBacklog(t *testing.T) {
	queue := newFakeQueue()
	queue.depthOverride = 2000
	store := audit.NewInMemoryStore()

	c := New(queue, store, DefaultConfig())
	c.mu.Lock()
	c.buffer = makeEvents(1)
	c.mu.Unlock()

	c.flush(context.Background())

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, 200, c.batchSize, "batch scales with backlog depth")
}

func TestRun_ShutdownFlushesBufferedEvents(t *testing.T) {
	// Termination with 12 buffered events: exactly those 12 are written
	// before Run returns, and nothing else is popped afterwards.
	queue := newFakeQueue()
	for _, event := range makeEvents(12) {
		require.NoError(t, queue.Push(context.Background(), event))
	}
	store := audit.NewInMemoryStore()

	cfg := DefaultConfig()
	cfg.PopTimeout = 20 * time.Millisecond
	cfg.MinBatch = 100 // keep the size trigger out of the way
	cfg.FlushBudget = time.Minute

	c := New(queue, store, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return c.BufferLen() == 12 },
		2*time.Second, 5*time.Millisecond, "consumer should drain the queue into its buffer")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}

	assert.Equal(t, 12, store.Len(), "shutdown must flush exactly the buffered events")
	assert.Equal(t, StateShuttingDown, c.State())
}

func TestRun_FlushBudgetTriggersWithPartialBatch(t *testing.T) {
	queue := newFakeQueue()
	for _, event := range makeEvents(3) {
		require.NoError(t, queue.Push(context.Background(), event))
	}
	store := audit.NewInMemoryStore()

	cfg := DefaultConfig()
	cfg.PopTimeout = 10 * time.Millisecond
	cfg.MinBatch = 100
	cfg.FlushBudget = 50 * time.Millisecond

	c := New(queue, store, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	assert.Eventually(t, func() bool { return store.Len() == 3 },
		2*time.Second, 10*time.Millisecond, "budget expiry should flush a partial batch")
}

func TestPlanBatchSize(t *testing.T) {
	tests := []struct {
		name  string
		depth int64
		want  int
	}{
		{"empty backlog", 0, 10},
		{"shallow backlog", 8, 10},
		{"mid backlog", 1500, 150},
		{"deep backlog clamps to max", 100_000, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, planBatchSize(tt.depth, 10, 500))
		})
	}
}

func TestDeadLetterLoop_RunOnce(t *testing.T) {
	queue := newFakeQueue()
	_, _, err := queue.PushFailed(context.Background(), makeEvents(5))
	require.NoError(t, err)

	stats := &Stats{}
	loop := NewDeadLetterLoop(queue, time.Minute, 3, WithSharedStats(stats))

	moved, err := loop.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, moved, "one sweep is bounded by maxMove")
	assert.Equal(t, 2, queue.failedLen())
	assert.Equal(t, int64(3), stats.Requeued.Load())

	moved, err = loop.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, moved)
	assert.Zero(t, queue.failedLen())
}
