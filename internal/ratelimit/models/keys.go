package models

import (
	"fmt"
	"strconv"
	"time"

	id "filegate/pkg/domain"
)

// Shared cache key patterns. Windows are wall-clock aligned so every process
// computes the same key for the same instant without coordination; the window
// start is part of the key, which makes expiry a plain TTL.
const (
	keyPrefixRateLimit   = "ratelimit"
	keyPrefixQuota       = "quota"
	keyPrefixResetMarker = "quota:reset"
)

// WindowStart aligns t down to the current fixed window boundary.
func WindowStart(t time.Time, window time.Duration) time.Time {
	return t.Truncate(window)
}

// WindowKey builds the shared-tier counter key for a tenant+operation window.
// Pattern: ratelimit:{tenant}:{operation}:{windowStartUnix}.
func WindowKey(tenant id.TenantID, op Operation, windowStart time.Time) string {
	return keyPrefixRateLimit + ":" + tenant.String() + ":" + op.String() + ":" +
		strconv.FormatInt(windowStart.Unix(), 10)
}

// Period formats the monthly accounting period for t, e.g. "2025-06".
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// PeriodEnd returns the first instant of the period after t's period.
func PeriodEnd(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// QuotaKey builds the monthly usage counter key for a tenant.
// Pattern: quota:{tenant}:{YYYY-MM}.
func QuotaKey(tenant id.TenantID, period string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefixQuota, tenant, period)
}

// ResetMarkerKey builds the dedup marker key for the monthly reset job.
// Pattern: quota:reset:{tenant}:{YYYY-MM}.
func ResetMarkerKey(tenant id.TenantID, period string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefixResetMarker, tenant, period)
}
