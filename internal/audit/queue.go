package audit

import (
	"context"
	"time"
)

// Queue is the durable FIFO transport between event producers and the batch
// consumer. Pop delivers each event to exactly one consumer; failed batches
// land on a bounded secondary list.
type Queue interface {
	// Push appends one event to the main queue.
	Push(ctx context.Context, event Event) error

	// PopBlocking waits up to timeout for the next event. The second return
	// is false when the queue stayed empty for the whole timeout.
	PopBlocking(ctx context.Context, timeout time.Duration) (Event, bool, error)

	// PushFailed bulk-appends a failed batch to the secondary queue. Events
	// that would grow the secondary queue past its depth cap are discarded
	// and reported in dropped.
	PushFailed(ctx context.Context, events []Event) (queued, dropped int, err error)

	// RetryFailed moves up to max events from the secondary queue back onto
	// the main queue for another delivery attempt.
	RetryFailed(ctx context.Context, max int) (moved int, err error)

	Depth(ctx context.Context) (int64, error)
	FailedDepth(ctx context.Context) (int64, error)
}

// Pusher is the producer-side slice of Queue.
type Pusher interface {
	Push(ctx context.Context, event Event) error
}
