package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowStart(t *testing.T) {
	at := time.Date(2025, 6, 15, 12, 34, 56, 789, time.UTC)

	t.Run("aligns to minute boundary", func(t *testing.T) {
		start := WindowStart(at, time.Minute)
		assert.Equal(t, time.Date(2025, 6, 15, 12, 34, 0, 0, time.UTC), start)
	})

	t.Run("same window yields same key", func(t *testing.T) {
		a := WindowKey("acct_1", OpUpload, WindowStart(at, time.Minute))
		b := WindowKey("acct_1", OpUpload, WindowStart(at.Add(3*time.Second), time.Minute))
		assert.Equal(t, a, b)
	})

	t.Run("next window yields new key", func(t *testing.T) {
		a := WindowKey("acct_1", OpUpload, WindowStart(at, time.Minute))
		b := WindowKey("acct_1", OpUpload, WindowStart(at.Add(time.Minute), time.Minute))
		assert.NotEqual(t, a, b)
	})
}

func TestKeyPatterns(t *testing.T) {
	at := time.Date(2025, 6, 15, 12, 34, 0, 0, time.UTC)

	assert.Equal(t, "ratelimit:acct_1:upload:1749990840", WindowKey("acct_1", OpUpload, at))
	assert.Equal(t, "quota:acct_1:2025-06", QuotaKey("acct_1", Period(at)))
	assert.Equal(t, "quota:reset:acct_1:2025-06", ResetMarkerKey("acct_1", Period(at)))
}

func TestPeriod(t *testing.T) {
	t.Run("formats year-month", func(t *testing.T) {
		assert.Equal(t, "2025-06", Period(time.Date(2025, 6, 30, 23, 59, 59, 0, time.UTC)))
	})

	t.Run("period end is first of next month", func(t *testing.T) {
		end := PeriodEnd(time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC))
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), end)
	})
}

func TestOperationValidity(t *testing.T) {
	assert.True(t, OpUpload.IsValid())
	assert.True(t, OpList.IsValid())
	assert.False(t, Operation("transcode").IsValid())
}
