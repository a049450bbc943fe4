package usage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"filegate/internal/ratelimit/models"
	id "filegate/pkg/domain"
	"filegate/pkg/requestcontext"
)

// Health is the aggregator's introspection snapshot.
type Health struct {
	FlushesOK     int64
	FlushesFailed int64
	LastFailure   time.Time
	BufferSize    int
}

// Aggregator buffers usage counters and flushes them on a fixed interval.
// Record never blocks on I/O; the flush loop owns the store round trips.
type Aggregator struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	buffer map[string]*Entry

	flushesOK     atomic.Int64
	flushesFailed atomic.Int64
	lastFailure   atomic.Int64 // unix nanos
}

// Option configures an Aggregator.
type Option func(*Aggregator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithFlushInterval(interval time.Duration) Option {
	return func(a *Aggregator) {
		if interval > 0 {
			a.interval = interval
		}
	}
}

func NewAggregator(store Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:    store,
		interval: time.Second,
		logger:   slog.Default(),
		buffer:   make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record counts one completed operation. Synchronous, in-memory only.
func (a *Aggregator) Record(ctx context.Context, tenant id.TenantID, user id.UserID, op models.Operation) {
	now := requestcontext.Now(ctx)
	key := DayKey(tenant, now)

	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.buffer[key]
	if !ok {
		entry = newEntry()
		a.buffer[key] = entry
	}
	entry.Total++
	entry.Ops[op]++
	if entry.UserID == "" {
		entry.UserID = user
	}
	if now.After(entry.LastActivity) {
		entry.LastActivity = now
	}
}

// Start flushes on the interval until ctx is canceled, then performs one
// final synchronous flush so shutdown loses nothing.
func (a *Aggregator) Start(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			a.flush(flushCtx)
			cancel()
			a.logger.Info("usage aggregator stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// Flush forces one flush cycle. Exposed for shutdown paths and tests.
func (a *Aggregator) Flush(ctx context.Context) {
	a.flush(ctx)
}

// flush swaps the live buffer for an empty one, writes the swapped-out
// counts as one batch, and merges them back on failure so no counts are
// lost. Writers never touch a buffer that is being flushed.
func (a *Aggregator) flush(ctx context.Context) {
	a.mu.Lock()
	if len(a.buffer) == 0 {
		a.mu.Unlock()
		return
	}
	batch := a.buffer
	a.buffer = make(map[string]*Entry)
	a.mu.Unlock()

	if err := a.store.WriteBatch(ctx, batch); err != nil {
		a.flushesFailed.Add(1)
		a.lastFailure.Store(time.Now().UnixNano())
		a.logger.Error("usage flush failed, merging counts back",
			"error", err,
			"keys", len(batch),
		)

		a.mu.Lock()
		for key, swapped := range batch {
			// The swapped entry is the older one; merging the live entry
			// into it keeps first-user precedence right.
			if live, ok := a.buffer[key]; ok {
				swapped.merge(live)
			}
			a.buffer[key] = swapped
		}
		a.mu.Unlock()
		return
	}
	a.flushesOK.Add(1)
}

// Health reports cumulative flush accounting and the live buffer size.
func (a *Aggregator) Health() Health {
	a.mu.Lock()
	size := len(a.buffer)
	a.mu.Unlock()

	h := Health{
		FlushesOK:     a.flushesOK.Load(),
		FlushesFailed: a.flushesFailed.Load(),
		BufferSize:    size,
	}
	if nanos := a.lastFailure.Load(); nanos != 0 {
		h.LastFailure = time.Unix(0, nanos)
	}
	return h
}
