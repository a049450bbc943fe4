// Package usage accumulates per-tenant activity counters in memory and
// flushes them to the shared store in batches. Record is a pure in-memory
// mutation on the request path; all I/O happens on the flush timer. A failed
// flush merges its counts back into the live buffer, so at most one flush
// interval of data is at risk, and only on process crash.
package usage

import (
	"fmt"
	"time"

	"filegate/internal/ratelimit/models"
	id "filegate/pkg/domain"
)

// RetentionTTL is how long a day's usage hash is kept in the store.
const RetentionTTL = 7 * 24 * time.Hour

// Entry is the accumulated activity for one tenant+day key.
type Entry struct {
	Total        int64
	Ops          map[models.Operation]int64
	UserID       id.UserID // first user seen for the key, set at most once
	LastActivity time.Time
}

func newEntry() *Entry {
	return &Entry{Ops: make(map[models.Operation]int64)}
}

// merge folds other into e, preserving first-user and latest-activity
// semantics.
func (e *Entry) merge(other *Entry) {
	e.Total += other.Total
	for op, n := range other.Ops {
		e.Ops[op] += n
	}
	if e.UserID == "" {
		e.UserID = other.UserID
	}
	if other.LastActivity.After(e.LastActivity) {
		e.LastActivity = other.LastActivity
	}
}

// DayKey is the storage key for one tenant's activity on one UTC day.
func DayKey(tenant id.TenantID, t time.Time) string {
	return fmt.Sprintf("usage:%s:%s", tenant, t.UTC().Format("20060102"))
}
