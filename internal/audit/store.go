package audit

import (
	"context"

	id "filegate/pkg/domain"
)

// Store persists events durably. InsertBatch is the consumer's only write
// path; a batch either lands whole or fails whole so retry accounting stays
// simple.
type Store interface {
	InsertBatch(ctx context.Context, events []Event) error
	ListByTenant(ctx context.Context, tenant id.TenantID, limit int) ([]Event, error)
}
