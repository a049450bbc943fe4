// Package consumer drains the durable audit queue and persists events in
// adaptively sized batches. It runs as its own process, fully decoupled from
// the request path; several instances may run concurrently against the same
// queue, with exactly one designated to run the dead-letter retry loop.
package consumer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"filegate/internal/audit"
	"filegate/internal/audit/metrics"
)

// State names the consumer loop's current phase, exposed for introspection.
type State string

const (
	StateIdle         State = "idle"
	StateDraining     State = "draining"
	StateBatching     State = "batching"
	StateFlushing     State = "flushing"
	StateShuttingDown State = "shutting_down"
)

// Config tunes the batching behavior.
type Config struct {
	// PopTimeout bounds each blocking pop so the loop stays responsive to
	// shutdown and the flush budget even when the queue is empty. Keep it
	// at or below one second.
	PopTimeout time.Duration

	// FlushBudget is the longest a buffered event waits before a flush.
	FlushBudget time.Duration

	// MinBatch and MaxBatch bound the adaptive batch size.
	MinBatch int
	MaxBatch int

	// ShutdownFlushTimeout bounds the final synchronous flush.
	ShutdownFlushTimeout time.Duration
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		PopTimeout:           time.Second,
		FlushBudget:          5 * time.Second,
		MinBatch:             10,
		MaxBatch:             500,
		ShutdownFlushTimeout: 10 * time.Second,
	}
}

// Stats is the consumer's cumulative accounting, safe for concurrent reads.
type Stats struct {
	Inserted       atomic.Int64
	InsertFailures atomic.Int64
	Dropped        atomic.Int64
	Requeued       atomic.Int64
	lastFailure    atomic.Int64 // unix nanos, 0 when none
}

// LastFailure reports when the most recent batch insert failed.
func (s *Stats) LastFailure() (time.Time, bool) {
	nanos := s.lastFailure.Load()
	if nanos == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

// Consumer is one worker instance over the shared queue.
type Consumer struct {
	queue   audit.Queue
	store   audit.Store
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	buffer    []audit.Event
	state     State
	batchSize int
	lastFlush time.Time

	stats Stats
}

// Option configures a Consumer.
type Option func(*Consumer)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Consumer) {
		c.metrics = m
	}
}

// New creates a consumer over the queue and durable store.
func New(queue audit.Queue, store audit.Store, cfg Config, opts ...Option) *Consumer {
	if cfg.PopTimeout <= 0 || cfg.PopTimeout > time.Second {
		cfg.PopTimeout = time.Second
	}
	if cfg.FlushBudget <= 0 {
		cfg.FlushBudget = 5 * time.Second
	}
	if cfg.MinBatch <= 0 {
		cfg.MinBatch = 10
	}
	if cfg.MaxBatch < cfg.MinBatch {
		cfg.MaxBatch = cfg.MinBatch
	}
	if cfg.ShutdownFlushTimeout <= 0 {
		cfg.ShutdownFlushTimeout = 10 * time.Second
	}

	c := &Consumer{
		queue:     queue,
		store:     store,
		cfg:       cfg,
		logger:    slog.Default(),
		state:     StateIdle,
		batchSize: cfg.MinBatch,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the loop's current phase.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats exposes the cumulative counters.
func (c *Consumer) Stats() *Stats {
	return &c.stats
}

// BufferLen reports how many events are currently staged for the next flush.
func (c *Consumer) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// Run drives the consumer until ctx is canceled. On cancellation the
// in-flight buffer is flushed synchronously before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	c.setState(StateIdle)
	c.mu.Lock()
	c.lastFlush = time.Now()
	c.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return c.shutdown(ctx.Err())
		default:
		}

		c.setState(StateDraining)
		event, ok, err := c.queue.PopBlocking(ctx, c.cfg.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return c.shutdown(ctx.Err())
			}
			c.logger.Error("audit queue pop failed", "error", err)
			// Back off briefly so a dead queue does not spin the loop.
			select {
			case <-time.After(c.cfg.PopTimeout):
			case <-ctx.Done():
				return c.shutdown(ctx.Err())
			}
			continue
		}

		if ok {
			c.setState(StateBatching)
			c.mu.Lock()
			c.buffer = append(c.buffer, event)
			c.mu.Unlock()
		}

		if c.shouldFlush() {
			c.flush(ctx)
		}
	}
}

// shouldFlush is true when the buffer hit the adaptive size or the oldest
// buffered event has waited past the flush budget.
func (c *Consumer) shouldFlush() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buffer) == 0 {
		return false
	}
	return len(c.buffer) >= c.batchSize || time.Since(c.lastFlush) >= c.cfg.FlushBudget
}

// flush snapshots and clears the buffer, then writes the snapshot as one
// batch. On write failure the snapshot moves to the bounded failed queue in
// a single bulk push; past the cap the events are counted as dropped.
func (c *Consumer) flush(ctx context.Context) {
	c.setState(StateFlushing)

	c.mu.Lock()
	snapshot := c.buffer
	c.buffer = nil
	c.lastFlush = time.Now()
	c.mu.Unlock()

	// Recompute the adaptive batch size only here, not per pop, so backlog
	// depth is queried once per flush.
	depth, err := c.queue.Depth(ctx)
	if err != nil {
		c.logger.Warn("queue depth read failed, keeping batch size", "error", err)
		depth = -1
	} else {
		c.mu.Lock()
		c.batchSize = planBatchSize(depth, c.cfg.MinBatch, c.cfg.MaxBatch)
		c.mu.Unlock()
	}

	if len(snapshot) == 0 {
		c.setState(StateIdle)
		return
	}

	started := time.Now()
	insertErr := c.store.InsertBatch(ctx, snapshot)
	if c.metrics != nil && depth >= 0 {
		c.mu.Lock()
		size := c.batchSize
		c.mu.Unlock()
		c.metrics.ObserveFlush(size, depth, time.Since(started))
	}

	if insertErr == nil {
		c.stats.Inserted.Add(int64(len(snapshot)))
		if c.metrics != nil {
			c.metrics.RecordInserted(len(snapshot))
		}
		c.setState(StateIdle)
		return
	}

	c.stats.InsertFailures.Add(int64(len(snapshot)))
	c.stats.lastFailure.Store(time.Now().UnixNano())
	if c.metrics != nil {
		c.metrics.RecordInsertFailures(len(snapshot))
	}
	c.logger.Error("audit batch insert failed",
		"error", insertErr,
		"batch_size", len(snapshot),
	)

	queued, dropped, pushErr := c.queue.PushFailed(ctx, snapshot)
	if pushErr != nil {
		// The batch is lost; count it all as dropped rather than retrying
		// into an unreachable queue.
		dropped = len(snapshot)
		queued = 0
		c.logger.Error("failed queue push failed, batch dropped",
			"error", pushErr,
			"events_lost", dropped,
		)
	}
	if dropped > 0 {
		c.stats.Dropped.Add(int64(dropped))
		if c.metrics != nil {
			c.metrics.RecordDropped(dropped)
		}
		c.logger.Warn("failed queue at capacity, events dropped",
			"dropped", dropped,
			"requeued", queued,
		)
	}
	c.setState(StateIdle)
}

// shutdown flushes the in-flight buffer synchronously before exit, bounded
// by the configured timeout.
func (c *Consumer) shutdown(cause error) error {
	c.setState(StateShuttingDown)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownFlushTimeout)
	defer cancel()

	c.mu.Lock()
	pending := len(c.buffer)
	c.mu.Unlock()
	if pending > 0 {
		c.logger.Info("flushing buffered audit events before exit", "pending", pending)
		c.flush(ctx)
	}
	c.setState(StateShuttingDown)
	c.logger.Info("audit consumer stopped", "reason", cause)
	return cause
}

func (c *Consumer) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// planBatchSize scales the batch with backlog depth: small backlog flushes
// small for latency, deep backlog flushes large for throughput.
func planBatchSize(depth int64, minBatch, maxBatch int) int {
	if depth <= int64(minBatch) {
		return minBatch
	}
	size := int(depth / 10)
	if size < minBatch {
		return minBatch
	}
	if size > maxBatch {
		return maxBatch
	}
	return size
}
