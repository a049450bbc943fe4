package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"filegate/internal/audit"
	"filegate/internal/audit/metrics"
)

// Thresholds trigger operator alerts when the pipeline falls behind.
type Thresholds struct {
	QueueDepth       int64
	FailedQueueDepth int64
	Dropped          int64
}

// DefaultThresholds returns the alerting defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		QueueDepth:       5_000,
		FailedQueueDepth: 1_000,
		Dropped:          1,
	}
}

// Reporter publishes a per-minute stats snapshot under a per-instance key.
// The key carries hostname and pid so concurrent worker instances never
// overwrite each other's numbers.
type Reporter struct {
	client     redis.Cmdable
	queue      audit.Queue
	consumer   *Consumer
	interval   time.Duration
	thresholds Thresholds
	logger     *slog.Logger
	metrics    *metrics.Metrics
	instance   string
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

func WithReporterLogger(logger *slog.Logger) ReporterOption {
	return func(r *Reporter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithReporterMetrics(m *metrics.Metrics) ReporterOption {
	return func(r *Reporter) {
		r.metrics = m
	}
}

func WithThresholds(t Thresholds) ReporterOption {
	return func(r *Reporter) {
		r.thresholds = t
	}
}

// NewReporter creates the reporter for one consumer instance.
func NewReporter(client redis.Cmdable, queue audit.Queue, c *Consumer, interval time.Duration, opts ...ReporterOption) *Reporter {
	if interval <= 0 {
		interval = time.Minute
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	r := &Reporter{
		client:     client,
		queue:      queue,
		consumer:   c,
		interval:   interval,
		thresholds: DefaultThresholds(),
		logger:     slog.Default(),
		instance:   fmt.Sprintf("%s:%d", hostname, os.Getpid()),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Instance returns the per-worker key suffix.
func (r *Reporter) Instance() string {
	return r.instance
}

// Run publishes snapshots until ctx is canceled.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("stats report failed", "error", err)
			}
		case <-ctx.Done():
			r.logger.Info("stats reporter stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce publishes one snapshot and raises threshold alerts.
func (r *Reporter) RunOnce(ctx context.Context) error {
	depth, err := r.queue.Depth(ctx)
	if err != nil {
		return err
	}
	failedDepth, err := r.queue.FailedDepth(ctx)
	if err != nil {
		return err
	}

	stats := r.consumer.Stats()
	dropped := stats.Dropped.Load()

	key := "audit:stats:" + r.instance
	fields := map[string]any{
		"queue_depth":        depth,
		"failed_queue_depth": failedDepth,
		"buffer_len":         r.consumer.BufferLen(),
		"state":              string(r.consumer.State()),
		"inserted":           stats.Inserted.Load(),
		"insert_failures":    stats.InsertFailures.Load(),
		"dropped":            dropped,
		"requeued":           stats.Requeued.Load(),
		"reported_at":        strconv.FormatInt(time.Now().Unix(), 10),
	}
	if last, ok := stats.LastFailure(); ok {
		fields["last_failure_at"] = strconv.FormatInt(last.Unix(), 10)
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, 3*r.interval)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	if r.metrics != nil {
		r.metrics.QueueDepth.Set(float64(depth))
		r.metrics.FailedQueueDepth.Set(float64(failedDepth))
	}

	if depth > r.thresholds.QueueDepth {
		r.logger.Warn("audit queue depth over threshold",
			"depth", depth,
			"threshold", r.thresholds.QueueDepth,
		)
	}
	if failedDepth > r.thresholds.FailedQueueDepth {
		r.logger.Warn("failed queue depth over threshold",
			"depth", failedDepth,
			"threshold", r.thresholds.FailedQueueDepth,
		)
	}
	if dropped >= r.thresholds.Dropped {
		r.logger.Warn("audit events have been dropped",
			"dropped", dropped,
		)
	}
	return nil
}
