package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "filegate/pkg/domain-errors"
)

func TestNewEvent(t *testing.T) {
	event := NewEvent("acct_1", EventFileUploaded, SeverityInfo)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventFileUploaded, event.EventType)
	assert.False(t, event.Timestamp.IsZero())
	require.NoError(t, event.Validate())
}

func TestEventValidate(t *testing.T) {
	base := func() Event { return NewEvent("acct_1", EventFileDeleted, SeverityWarning) }

	tests := []struct {
		name   string
		mutate func(*Event)
	}{
		{"missing id", func(e *Event) { e.ID = "" }},
		{"missing tenant", func(e *Event) { e.TenantID = "" }},
		{"missing event type", func(e *Event) { e.EventType = "" }},
		{"missing severity", func(e *Event) { e.Severity = "" }},
		{"zero timestamp", func(e *Event) { e.Timestamp = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := base()
			tt.mutate(&event)
			err := event.Validate()
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	event := NewEvent("acct_1", EventAdmissionDenied, SeverityWarning)
	event.Metadata = map[string]any{"code": "RATE_LIMITED", "retry_after": float64(30)}
	event.ClientIP = "203.0.113.7"

	payload, err := event.Encode()
	require.NoError(t, err)

	got, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, event.Metadata, got.Metadata)
	assert.True(t, event.Timestamp.Equal(got.Timestamp))
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
