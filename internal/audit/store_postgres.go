package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	id "filegate/pkg/domain"
)

// PostgresStore persists events in the append-only audit_events table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed audit store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertColumns = "id, tenant_id, user_id, resource_type, resource_id, event_type, severity, description, metadata, client_ip, user_agent, created_at"

// InsertBatch writes the whole batch in one multi-row INSERT. Duplicate ids
// from a re-delivered batch are ignored so retries stay idempotent.
func (s *PostgresStore) InsertBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO audit_events (" + insertColumns + ") VALUES ")
	args := make([]any, 0, len(events)*12)
	for i, event := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 12
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11, base+12))

		metadata, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for event %s: %w", event.ID, err)
		}
		args = append(args,
			event.ID,
			string(event.TenantID),
			nullable(string(event.UserID)),
			event.ResourceType,
			nullable(event.ResourceID),
			string(event.EventType),
			string(event.Severity),
			nullable(event.Description),
			metadata,
			nullable(event.ClientIP),
			nullable(event.UserAgent),
			event.Timestamp,
		)
	}
	sb.WriteString(" ON CONFLICT (id) DO NOTHING")

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert audit batch of %d: %w", len(events), err)
	}
	return nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenant id.TenantID, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + insertColumns + `
		FROM audit_events
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, string(tenant), limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var userID, resourceID, description, clientIP, agent sql.NullString
		var metadata []byte
		var createdAt time.Time
		if err := rows.Scan(
			&event.ID,
			&event.TenantID,
			&userID,
			&event.ResourceType,
			&resourceID,
			&event.EventType,
			&event.Severity,
			&description,
			&metadata,
			&clientIP,
			&agent,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.UserID = id.UserID(userID.String)
		event.ResourceID = resourceID.String
		event.Description = description.String
		event.ClientIP = clientIP.String
		event.UserAgent = agent.String
		event.Timestamp = createdAt
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for event %s: %w", event.ID, err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
