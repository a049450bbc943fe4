package usage

import "context"

// Store persists one flush batch. Per key the write is incremental: a total
// increment, per-operation increments, a set-if-absent of the first user, a
// last-activity set, and a retention TTL refresh. The whole batch goes in
// one round trip.
type Store interface {
	WriteBatch(ctx context.Context, batch map[string]*Entry) error
}
