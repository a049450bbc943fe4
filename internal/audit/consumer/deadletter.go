package consumer

import (
	"context"
	"log/slog"
	"time"

	"filegate/internal/audit"
	"filegate/internal/audit/metrics"
)

// DeadLetterLoop periodically moves failed events back onto the main queue.
// Run exactly one per deployment; concurrent loops would re-deliver the same
// entries twice.
type DeadLetterLoop struct {
	queue    audit.Queue
	interval time.Duration
	maxMove  int
	logger   *slog.Logger
	metrics  *metrics.Metrics
	stats    *Stats
}

// DeadLetterOption configures a DeadLetterLoop.
type DeadLetterOption func(*DeadLetterLoop)

func WithDeadLetterLogger(logger *slog.Logger) DeadLetterOption {
	return func(d *DeadLetterLoop) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithDeadLetterMetrics(m *metrics.Metrics) DeadLetterOption {
	return func(d *DeadLetterLoop) {
		d.metrics = m
	}
}

// WithSharedStats accounts requeues against the consumer's counters so the
// reporter publishes one coherent snapshot per instance.
func WithSharedStats(stats *Stats) DeadLetterOption {
	return func(d *DeadLetterLoop) {
		if stats != nil {
			d.stats = stats
		}
	}
}

// NewDeadLetterLoop creates the retry loop. maxMove bounds how many entries
// one sweep requeues so a deep failed queue cannot flood the main queue.
func NewDeadLetterLoop(queue audit.Queue, interval time.Duration, maxMove int, opts ...DeadLetterOption) *DeadLetterLoop {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if maxMove <= 0 {
		maxMove = 100
	}

	d := &DeadLetterLoop{
		queue:    queue,
		interval: interval,
		maxMove:  maxMove,
		logger:   slog.Default(),
		stats:    &Stats{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run sweeps until ctx is canceled.
func (d *DeadLetterLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			moved, err := d.RunOnce(ctx)
			if err != nil {
				d.logger.Error("dead letter sweep failed", "error", err, "moved", moved)
				continue
			}
			if moved > 0 {
				d.logger.Info("dead letter sweep requeued events", "moved", moved)
			}
		case <-ctx.Done():
			d.logger.Info("dead letter loop stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce performs a single sweep.
func (d *DeadLetterLoop) RunOnce(ctx context.Context) (int, error) {
	moved, err := d.queue.RetryFailed(ctx, d.maxMove)
	if moved > 0 {
		d.stats.Requeued.Add(int64(moved))
		if d.metrics != nil {
			d.metrics.RecordRequeued(moved)
		}
	}
	return moved, err
}
