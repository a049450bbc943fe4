// Package guard answers "admit or reject" for a tenant+operation pair.
//
// Decisions are tiered: the in-process memory tier short-circuits repeat
// rejections without network I/O, the shared Redis tier is authoritative
// across processes, and an unreachable shared tier resolves through the
// configured fail-open policy rather than an error. Degradation is reported
// via Result.Layer, never as a request failure.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"filegate/internal/ratelimit/config"
	"filegate/internal/ratelimit/metrics"
	"filegate/internal/ratelimit/models"
	"filegate/internal/ratelimit/store/memory"
	id "filegate/pkg/domain"
	dErrors "filegate/pkg/domain-errors"
	"filegate/pkg/requestcontext"
)

// SharedStore is the authoritative cross-process counter tier.
type SharedStore interface {
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Count(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error)
}

// Guard enforces rate limits and monthly quotas for admission decisions.
// Thread-safe for concurrent use by HTTP middleware.
type Guard struct {
	cfg     *config.Config
	local   *memory.Store
	shared  SharedStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Guard instance.
type Option func(*Guard)

// WithLogger sets the structured logger for degradation reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithMetrics sets the metrics recorder for observability.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

// WithTracer overrides the OpenTelemetry tracer (useful in tests).
func WithTracer(t trace.Tracer) Option {
	return func(g *Guard) {
		g.tracer = t
	}
}

// New creates an admission guard over the two counter tiers.
func New(cfg *config.Config, local *memory.Store, shared SharedStore, opts ...Option) (*Guard, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if local == nil {
		return nil, errors.New("local store is required")
	}
	if shared == nil {
		return nil, errors.New("shared store is required")
	}

	g := &Guard{
		cfg:    cfg,
		local:  local,
		shared: shared,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer("filegate/ratelimit")
	}
	return g, nil
}

// Admit decides whether one more request for tenant+operation may proceed in
// the current window. It performs at most one shared-tier round trip and
// never returns an error for infrastructure failures; those resolve through
// the fail-open policy with Layer set to fallback.
func (g *Guard) Admit(ctx context.Context, identity id.TenantIdentity, op models.Operation) (*models.Result, error) {
	started := time.Now()
	ctx, span := g.tracer.Start(ctx, "guard.Admit", trace.WithAttributes(
		attribute.String("tenant.id", identity.TenantID.String()),
		attribute.String("operation", op.String()),
	))
	defer func() {
		span.End()
		if g.metrics != nil {
			g.metrics.ObserveAdmitDuration(time.Since(started))
		}
	}()

	now := requestcontext.Now(ctx)
	limit := g.cfg.LimitFor(op)
	windowStart := models.WindowStart(now, g.cfg.Window)
	windowEnd := windowStart.Add(g.cfg.Window)
	key := models.WindowKey(identity.TenantID, op, windowStart)

	// Memory tier: reject without a shared round trip when this process has
	// already seen the ceiling reached in the live window.
	if cached, ok := g.local.Get(key, now); ok && cached >= limit {
		return g.finish(span, reject(models.LayerMemory, limit, windowEnd, now)), nil
	}

	sharedCtx, cancel := context.WithTimeout(ctx, g.cfg.SharedTimeout)
	defer cancel()

	count, err := g.shared.IncrWindow(sharedCtx, key, windowEnd.Sub(now))
	if err != nil {
		return g.finish(span, g.degraded(ctx, identity.TenantID, op, limit, windowEnd, now, err)), nil
	}

	if count > limit {
		// The shared tier reported the ceiling reached. Cache the observation
		// so the rest of this window is rejected in-process.
		g.local.Set(key, count, windowEnd)
		return g.finish(span, reject(models.LayerShared, limit, windowEnd, now)), nil
	}

	// Admitted. Refresh the memory tier so subsequent requests in this
	// process short-circuit once the ceiling is reached.
	g.local.Set(key, count, windowEnd)
	return g.finish(span, &models.Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   windowEnd,
		Layer:     models.LayerShared,
	}), nil
}

// CheckQuota is the second admission gate: a monthly ceiling per tenant plan.
// Evaluated after rate limiting since it is the more expensive check. Same
// tiering and fail-open policy as Admit.
func (g *Guard) CheckQuota(ctx context.Context, identity id.TenantIdentity) (*models.QuotaResult, error) {
	ceiling := g.cfg.QuotaCeiling(identity.Plan)
	now := requestcontext.Now(ctx)
	period := models.Period(now)
	periodEnd := models.PeriodEnd(now)

	if ceiling <= 0 {
		// Unmetered plan: decided in-process, no round trip.
		return &models.QuotaResult{
			Allowed: true,
			Period:  period,
			ResetAt: periodEnd,
			Layer:   models.LayerMemory,
		}, nil
	}

	key := models.QuotaKey(identity.TenantID, period)

	if cached, ok := g.local.Get(key, now); ok && cached >= ceiling {
		return quotaReject(models.LayerMemory, ceiling, cached, period, periodEnd), nil
	}

	sharedCtx, cancel := context.WithTimeout(ctx, g.cfg.SharedTimeout)
	defer cancel()

	used, err := g.shared.Count(sharedCtx, key)
	if err != nil {
		if g.metrics != nil {
			g.metrics.RecordSharedTierError()
		}
		if !g.cfg.FailOpen {
			return quotaReject(models.LayerFallback, ceiling, 0, period, periodEnd), nil
		}
		if g.metrics != nil {
			g.metrics.RecordFailOpen()
		}
		g.logger.WarnContext(ctx, "quota tier unreachable, failing open",
			"tenant_id", identity.TenantID,
			"error", err,
		)
		return &models.QuotaResult{
			Allowed: true,
			Ceiling: ceiling,
			Period:  period,
			ResetAt: periodEnd,
			Layer:   models.LayerFallback,
		}, nil
	}

	if used >= ceiling {
		g.local.Set(key, used, periodEnd)
		if g.metrics != nil {
			g.metrics.RecordQuotaRejection()
		}
		return quotaReject(models.LayerShared, ceiling, used, period, periodEnd), nil
	}

	return &models.QuotaResult{
		Allowed:   true,
		Ceiling:   ceiling,
		Used:      used,
		Remaining: ceiling - used,
		Period:    period,
		ResetAt:   periodEnd,
		Layer:     models.LayerShared,
	}, nil
}

// ConsumeQuota records one completed operation against the tenant's monthly
// quota. Callers invoke it after the business handler succeeds; failures are
// for the caller to log, never to surface to the API client.
func (g *Guard) ConsumeQuota(ctx context.Context, identity id.TenantIdentity, n int64) error {
	if g.cfg.QuotaCeiling(identity.Plan) <= 0 {
		return nil
	}

	now := requestcontext.Now(ctx)
	period := models.Period(now)
	periodEnd := models.PeriodEnd(now)
	key := models.QuotaKey(identity.TenantID, period)

	sharedCtx, cancel := context.WithTimeout(ctx, g.cfg.SharedTimeout)
	defer cancel()

	count, err := g.shared.IncrBy(sharedCtx, key, n, periodEnd.Sub(now))
	if err != nil {
		if g.metrics != nil {
			g.metrics.RecordSharedTierError()
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "quota consume failed")
	}

	g.local.Set(key, count, periodEnd)
	return nil
}

// degraded resolves a failed shared-tier round trip through policy.
func (g *Guard) degraded(ctx context.Context, tenant id.TenantID, op models.Operation, limit int64, windowEnd, now time.Time, err error) *models.Result {
	if g.metrics != nil {
		g.metrics.RecordSharedTierError()
	}
	g.logger.WarnContext(ctx, "shared tier unreachable",
		"tenant_id", tenant,
		"operation", op,
		"fail_open", g.cfg.FailOpen,
		"error", err,
	)

	if !g.cfg.FailOpen {
		return reject(models.LayerFallback, limit, windowEnd, now)
	}

	if g.metrics != nil {
		g.metrics.RecordFailOpen()
	}
	return &models.Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		ResetAt:   windowEnd,
		Layer:     models.LayerFallback,
	}
}

func (g *Guard) finish(span trace.Span, res *models.Result) *models.Result {
	span.SetAttributes(
		attribute.Bool("admission.allowed", res.Allowed),
		attribute.String("admission.layer", string(res.Layer)),
	)
	if g.metrics != nil {
		g.metrics.RecordAdmission(string(res.Layer), res.Allowed)
	}
	return res
}

func reject(layer models.Layer, limit int64, resetAt, now time.Time) *models.Result {
	return &models.Result{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: retryAfterSeconds(resetAt, now),
		Layer:      layer,
	}
}

func quotaReject(layer models.Layer, ceiling, used int64, period string, resetAt time.Time) *models.QuotaResult {
	return &models.QuotaResult{
		Allowed:   false,
		Ceiling:   ceiling,
		Used:      used,
		Remaining: 0,
		Period:    period,
		ResetAt:   resetAt,
		Layer:     layer,
	}
}

func retryAfterSeconds(resetAt, now time.Time) int {
	secs := int(resetAt.Sub(now).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}
