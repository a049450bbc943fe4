package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Publisher is the producer side of the audit pipeline. Emit is a
// non-blocking channel send; a background goroutine owns the queue I/O so
// the request path only ever sees "accepted for recording". When the buffer
// is saturated the event is dropped and counted, never blocked on.
type Publisher struct {
	queue   Pusher
	events  chan Event
	wg      sync.WaitGroup
	logger  *slog.Logger
	dropped atomic.Int64

	pushTimeout time.Duration
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithBufferSize sets the in-process event buffer size.
func WithBufferSize(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan Event, size)
		}
	}
}

// WithPublisherLogger sets a logger for background error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher starts the background pusher. Callers must Close to drain.
func NewPublisher(queue Pusher, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		queue:       queue,
		logger:      slog.Default(),
		pushTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.events == nil {
		p.events = make(chan Event, 1024)
	}

	p.wg.Add(1)
	go p.pump()
	return p
}

// Emit queues an event for asynchronous publication. It never blocks and
// never returns an error to the caller; saturation drops the event.
func (p *Publisher) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case p.events <- event:
	default:
		p.dropped.Add(1)
		p.logger.Warn("audit buffer full, event dropped",
			"event_type", event.EventType,
			"tenant_id", event.TenantID,
		)
	}
}

// Dropped reports how many events were discarded due to buffer saturation.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops accepting events and drains the buffer onto the queue.
func (p *Publisher) Close() {
	close(p.events)
	p.wg.Wait()
}

func (p *Publisher) pump() {
	defer p.wg.Done()
	for event := range p.events {
		ctx, cancel := context.WithTimeout(context.Background(), p.pushTimeout)
		err := p.queue.Push(ctx, event)
		cancel()
		if err != nil {
			p.dropped.Add(1)
			p.logger.Error("audit queue push failed, event dropped",
				"error", err,
				"event_type", event.EventType,
				"tenant_id", event.TenantID,
			)
		}
	}
}
