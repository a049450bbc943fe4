// Package config holds rate limit and quota policy for the admission guard.
package config

import (
	"time"

	"filegate/internal/ratelimit/models"
	id "filegate/pkg/domain"
)

// Config captures the guard's enforcement policy. Window boundaries are
// wall-clock aligned fixed windows, not sliding, for cross-process
// predictability.
type Config struct {
	// Window is the rate limit accounting window.
	Window time.Duration
	// Limits maps operation classes to requests per window.
	Limits map[models.Operation]int64
	// DefaultLimit applies to operations without an explicit entry.
	DefaultLimit int64
	// Quotas maps billing plans to monthly operation ceilings. Zero or a
	// missing plan means unmetered.
	Quotas map[id.Plan]int64
	// SharedTimeout bounds a single shared-tier round trip. A hung call
	// resolves to the fail-open path instead of stalling the request.
	SharedTimeout time.Duration
	// FailOpen chooses availability over strict enforcement when the shared
	// tier is unreachable. Deployment-level product choice; default open.
	FailOpen bool
}

// DefaultConfig returns the stock enforcement policy.
func DefaultConfig() *Config {
	return &Config{
		Window: time.Minute,
		Limits: map[models.Operation]int64{
			models.OpUpload:   60,
			models.OpDownload: 300,
			models.OpDelete:   60,
			models.OpList:     120,
		},
		DefaultLimit: 60,
		Quotas: map[id.Plan]int64{
			id.PlanFree:     1_000,
			id.PlanStarter:  50_000,
			id.PlanBusiness: 500_000,
			// Enterprise is unmetered.
		},
		SharedTimeout: 150 * time.Millisecond,
		FailOpen:      true,
	}
}

// LimitFor returns the per-window ceiling for an operation.
func (c *Config) LimitFor(op models.Operation) int64 {
	if limit, ok := c.Limits[op]; ok {
		return limit
	}
	return c.DefaultLimit
}

// QuotaCeiling returns the monthly ceiling for a plan, or 0 when unmetered.
func (c *Config) QuotaCeiling(plan id.Plan) int64 {
	return c.Quotas[plan]
}
