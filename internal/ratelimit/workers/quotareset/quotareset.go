// Package quotareset records the monthly quota rollover for every active
// tenant. The rollover itself is implicit (period-scoped counter keys simply
// expire); this job writes the audit trail for it, exactly once per tenant
// per period, guarded by a dedup marker.
package quotareset

import (
	"context"
	"log/slog"
	"time"

	"filegate/internal/audit"
	"filegate/internal/ratelimit/models"
	id "filegate/pkg/domain"
	"filegate/pkg/requestcontext"
)

// TenantSource lists tenants holding an active plan.
type TenantSource interface {
	ActiveTenants(ctx context.Context) ([]id.TenantID, error)
}

// Markers is the dedup marker store. TrySet returns true only for the call
// that created the marker.
type Markers interface {
	SetMarker(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Auditor accepts the quota_reset audit events this job produces.
type Auditor interface {
	Emit(event audit.Event)
}

// Result summarizes one run.
type Result struct {
	TenantsSeen  int
	ResetsLogged int
	Skipped      int
	Duration     time.Duration
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// Service runs the monthly reset audit job.
type Service struct {
	tenants  TenantSource
	markers  Markers
	auditor  Auditor
	logger   *slog.Logger
	interval time.Duration
}

func New(tenants TenantSource, markers Markers, auditor Auditor, opts ...Option) *Service {
	s := &Service{
		tenants:  tenants,
		markers:  markers,
		auditor:  auditor,
		logger:   slog.Default(),
		interval: 6 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the job on its interval until ctx is canceled. The interval is
// much shorter than a month; the per-period marker makes the extra runs
// no-ops, and frequent runs pick up tenants that appeared mid-period.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			started := time.Now()
			res, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.Error("quota_reset_run_failed",
					"error", err,
					"duration_ms", time.Since(started).Milliseconds(),
				)
				continue
			}
			s.logger.Info("quota_reset_run_completed",
				"tenants_seen", res.TenantsSeen,
				"resets_logged", res.ResetsLogged,
				"skipped", res.Skipped,
				"duration_ms", res.Duration.Milliseconds(),
			)
		case <-ctx.Done():
			s.logger.Info("quota reset worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce processes every active tenant for the current period. Tenants
// whose marker already exists are skipped, so repeating a successful run is
// a no-op.
func (s *Service) RunOnce(ctx context.Context) (*Result, error) {
	started := time.Now()
	now := requestcontext.Now(ctx)
	period := models.Period(now)

	// The marker must outlive its period so a late re-run in the next
	// period cannot double-log the previous one.
	markerTTL := models.PeriodEnd(now).Sub(now) + 10*24*time.Hour

	tenants, err := s.tenants.ActiveTenants(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{TenantsSeen: len(tenants)}
	for _, tenant := range tenants {
		created, err := s.markers.SetMarker(ctx, models.ResetMarkerKey(tenant, period), markerTTL)
		if err != nil {
			return res, err
		}
		if !created {
			res.Skipped++
			continue
		}

		event := audit.NewEvent(tenant, audit.EventQuotaReset, audit.SeverityInfo)
		event.ResourceType = "quota"
		event.ResourceID = period
		event.Description = "monthly quota counter rolled over"
		event.Metadata = map[string]any{"period": period}
		s.auditor.Emit(event)
		res.ResetsLogged++
	}

	res.Duration = time.Since(started)
	return res, nil
}
