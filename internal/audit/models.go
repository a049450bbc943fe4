// Package audit captures what happened to tenant resources: who acted, on
// what, from where. Events are created at the call site, serialized onto a
// durable queue, and persisted in batches by an independent consumer; the
// request path never waits on persistence.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	id "filegate/pkg/domain"
	dErrors "filegate/pkg/domain-errors"
)

// EventType identifies what action the event records.
type EventType string

const (
	EventFileUploaded      EventType = "file_uploaded"
	EventFileDownloaded    EventType = "file_downloaded"
	EventFileDeleted       EventType = "file_deleted"
	EventFilesListed       EventType = "files_listed"
	EventAdmissionDenied   EventType = "admission_denied"
	EventSignatureRejected EventType = "signature_rejected"
	EventQuotaReset        EventType = "quota_reset"
)

// Severity categorizes events for alerting and retention policy.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is an immutable audit record. Metadata carries structured context
// that has no dedicated column (rejection codes, byte counts, batch ids).
type Event struct {
	ID           string         `json:"id"`
	TenantID     id.TenantID    `json:"tenant_id"`
	UserID       id.UserID      `json:"user_id,omitempty"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	EventType    EventType      `json:"event_type"`
	Severity     Severity       `json:"severity"`
	Description  string         `json:"description,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ClientIP     string         `json:"client_ip,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// NewEvent builds an event with identity and timestamp filled in.
func NewEvent(tenant id.TenantID, eventType EventType, severity Severity) Event {
	return Event{
		ID:        uuid.NewString(),
		TenantID:  tenant,
		EventType: eventType,
		Severity:  severity,
		Timestamp: time.Now().UTC(),
	}
}

// Validate checks the fields the durable store cannot accept empty.
func (e Event) Validate() error {
	if e.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "event id is required")
	}
	if e.TenantID == "" {
		return dErrors.New(dErrors.CodeValidation, "tenant id is required")
	}
	if e.EventType == "" {
		return dErrors.New(dErrors.CodeValidation, "event type is required")
	}
	if e.Severity == "" {
		return dErrors.New(dErrors.CodeValidation, "severity is required")
	}
	if e.Timestamp.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "timestamp is required")
	}
	return nil
}

// Encode serializes the event for the queue.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode deserializes a queue payload back into an event.
func Decode(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed audit event payload")
	}
	return e, nil
}
