package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"filegate/internal/audit"
	"filegate/internal/ratelimit/guard"
	"filegate/internal/ratelimit/metrics"
	"filegate/internal/ratelimit/models"
	"filegate/internal/signature"
	"filegate/internal/usage"
	id "filegate/pkg/domain"
	"filegate/pkg/httputil"
	"filegate/pkg/requestcontext"
)

// Request headers carrying the caller's signature material.
const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderSecret    = "X-Client-Secret"
)

// maxSignedBody bounds how much body the signature covers; larger uploads
// sign the first chunk only, matching what signing clients produce.
const maxSignedBody = 1 << 20

// Auditor accepts fire-and-forget audit events from the request path.
type Auditor interface {
	Emit(event audit.Event)
}

// Admission is the gate every tenant-facing request passes: signature, then
// rate limit, then quota, then the business handler, then telemetry. Each
// stage is fail-fast; telemetry is fire-and-forget.
type Admission struct {
	verifier *signature.Verifier
	guard    *guard.Guard
	usage    *usage.Aggregator
	auditor  Auditor
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// AdmissionOption configures the Admission middleware.
type AdmissionOption func(*Admission)

func WithAdmissionLogger(logger *slog.Logger) AdmissionOption {
	return func(a *Admission) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithAdmissionMetrics(m *metrics.Metrics) AdmissionOption {
	return func(a *Admission) {
		a.metrics = m
	}
}

// NewAdmission wires the admission pipeline.
func NewAdmission(verifier *signature.Verifier, g *guard.Guard, agg *usage.Aggregator, auditor Auditor, opts ...AdmissionOption) *Admission {
	a := &Admission{
		verifier: verifier,
		guard:    g,
		usage:    agg,
		auditor:  auditor,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Wrap guards one operation's routes. The operation names which rate limit
// bucket the request consumes.
func (a *Admission) Wrap(op models.Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, ok := IdentityFrom(ctx)
			if !ok {
				httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "unauthorized",
				})
				return
			}

			body, restore, err := peekBody(r)
			if err != nil {
				httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{
					"error": "unreadable_body",
				})
				return
			}
			restore()

			result, verr := a.verifier.Verify(signature.Request{
				Method:    r.Method,
				Path:      r.URL.Path,
				Body:      body,
				Signature: r.Header.Get(HeaderSignature),
				Timestamp: r.Header.Get(HeaderTimestamp),
				Secret:    r.Header.Get(HeaderSecret),
			}, identity.SecretFingerprint)
			if verr != nil {
				a.rejectSignature(w, r, identity, verr)
				return
			}
			if result.LegacyBypass {
				if a.metrics != nil {
					a.metrics.RecordLegacyBypass()
				}
				a.logger.WarnContext(ctx, "legacy tenant without fingerprint, signature not enforced",
					"tenant_id", identity.TenantID,
				)
			}

			admit, err := a.guard.Admit(ctx, identity, op)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			writeRateLimitHeaders(w, admit)
			if !admit.Allowed {
				a.rejectAdmission(w, r, identity, op, admit)
				return
			}

			quota, err := a.guard.CheckQuota(ctx, identity)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			if !quota.Allowed {
				a.rejectQuota(w, r, identity, op, quota)
				return
			}

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			if wrapped.statusCode < http.StatusBadRequest {
				a.recordSuccess(r, identity, op)
			}
		})
	}
}

// recordSuccess runs the fire-and-forget telemetry for an admitted request
// whose handler succeeded. Nothing here can fail the response; it is already
// on the wire.
func (a *Admission) recordSuccess(r *http.Request, identity id.TenantIdentity, op models.Operation) {
	ctx := r.Context()
	a.usage.Record(ctx, identity.TenantID, identity.UserID, op)

	event := a.newEvent(r, identity, eventTypeFor(op), audit.SeverityInfo)
	event.ResourceType = "file"
	event.ResourceID = r.URL.Path
	a.auditor.Emit(event)

	if err := a.guard.ConsumeQuota(ctx, identity, 1); err != nil {
		a.logger.ErrorContext(ctx, "quota consume failed",
			"tenant_id", identity.TenantID,
			"error", err,
		)
	}
}

func (a *Admission) rejectSignature(w http.ResponseWriter, r *http.Request, identity id.TenantIdentity, verr error) {
	code := "INVALID_SIGNATURE"
	message := "signature verification failed"
	if sigErr, ok := verr.(*signature.Error); ok {
		code = sigErr.Code
		message = sigErr.Message
	}

	event := a.newEvent(r, identity, audit.EventSignatureRejected, audit.SeverityWarning)
	event.Description = message
	event.Metadata = map[string]any{"code": code}
	a.auditor.Emit(event)

	httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             code,
		"error_description": message,
	})
}

func (a *Admission) rejectAdmission(w http.ResponseWriter, r *http.Request, identity id.TenantIdentity, op models.Operation, res *models.Result) {
	event := a.newEvent(r, identity, audit.EventAdmissionDenied, audit.SeverityWarning)
	event.Description = "rate limit exceeded"
	event.Metadata = map[string]any{
		"operation":   op.String(),
		"layer":       string(res.Layer),
		"retry_after": res.RetryAfter,
	}
	a.auditor.Emit(event)

	w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate_limited",
		"limit":       res.Limit,
		"retry_after": res.RetryAfter,
		"reset_at":    res.ResetAt.Unix(),
	})
}

func (a *Admission) rejectQuota(w http.ResponseWriter, r *http.Request, identity id.TenantIdentity, op models.Operation, res *models.QuotaResult) {
	event := a.newEvent(r, identity, audit.EventAdmissionDenied, audit.SeverityWarning)
	event.Description = "monthly quota exceeded"
	event.Metadata = map[string]any{
		"operation": op.String(),
		"period":    res.Period,
		"ceiling":   res.Ceiling,
	}
	a.auditor.Emit(event)

	httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":    "quota_exceeded",
		"ceiling":  res.Ceiling,
		"used":     res.Used,
		"period":   res.Period,
		"reset_at": res.ResetAt.Unix(),
	})
}

func (a *Admission) newEvent(r *http.Request, identity id.TenantIdentity, eventType audit.EventType, severity audit.Severity) audit.Event {
	event := audit.NewEvent(identity.TenantID, eventType, severity)
	event.UserID = identity.UserID
	event.Timestamp = requestcontext.Now(r.Context())
	if meta, ok := MetadataFrom(r.Context()); ok {
		event.ClientIP = meta.IP
		event.UserAgent = meta.UserAgent
	}
	return event
}

func eventTypeFor(op models.Operation) audit.EventType {
	switch op {
	case models.OpUpload:
		return audit.EventFileUploaded
	case models.OpDownload:
		return audit.EventFileDownloaded
	case models.OpDelete:
		return audit.EventFileDeleted
	default:
		return audit.EventFilesListed
	}
}

func writeRateLimitHeaders(w http.ResponseWriter, res *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// peekBody reads up to maxSignedBody bytes and hands back a restore func
// that reattaches the full body for the downstream handler.
func peekBody(r *http.Request) ([]byte, func(), error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, func() {}, nil
	}
	peeked, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
	if err != nil {
		return nil, nil, err
	}
	rest := r.Body
	restore := func() {
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(peeked), rest), rest}
	}
	return peeked, restore, nil
}
