package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"filegate/internal/audit"
	"filegate/internal/ratelimit/config"
	"filegate/internal/ratelimit/guard"
	"filegate/internal/ratelimit/models"
	"filegate/internal/ratelimit/store/memory"
	"filegate/internal/signature"
	"filegate/internal/usage"
	id "filegate/pkg/domain"
	"filegate/pkg/requestcontext"
	"filegate/pkg/secrets"
)

// mapStore is an in-process guard.SharedStore for middleware tests.
type mapStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newMapStore() *mapStore { return &mapStore{counters: make(map[string]int64)} }

func (s *mapStore) IncrWindow(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

func (s *mapStore) Count(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key], nil
}

func (s *mapStore) IncrBy(_ context.Context, key string, n int64, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] += n
	return s.counters[key], nil
}

type capturingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *capturingAuditor) Emit(event audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *capturingAuditor) all() []audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Event{}, a.events...)
}

type discardStore struct{}

func (discardStore) WriteBatch(context.Context, map[string]*usage.Entry) error { return nil }

type AdmissionSuite struct {
	suite.Suite

	now       time.Time
	secret    string
	identity  id.TenantIdentity
	shared    *mapStore
	auditor   *capturingAuditor
	agg       *usage.Aggregator
	admission *Admission
	handler   http.Handler
	handled   int
}

func TestAdmissionSuite(t *testing.T) {
	suite.Run(t, new(AdmissionSuite))
}

func (s *AdmissionSuite) SetupTest() {
	s.now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s.secret = "tenant-shared-secret"
	s.identity = id.TenantIdentity{
		TenantID:          "acct_1",
		UserID:            "user_9",
		Plan:              id.PlanStarter,
		SecretFingerprint: secrets.Fingerprint(s.secret),
	}

	s.shared = newMapStore()
	s.auditor = &capturingAuditor{}
	s.agg = usage.NewAggregator(discardStore{})
	s.handled = 0

	verifier := signature.New(signature.WithClock(func() time.Time { return s.now }))
	g, err := guard.New(config.DefaultConfig(), memory.New(), s.shared)
	s.Require().NoError(err)

	s.admission = NewAdmission(verifier, g, s.agg, s.auditor)
	s.handler = s.admission.Wrap(models.OpUpload)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.handled++
		w.WriteHeader(http.StatusCreated)
	}))
}

func (s *AdmissionSuite) signedRequest(body string) *http.Request {
	timestamp := strconv.FormatInt(s.now.UnixMilli(), 10)
	req := httptest.NewRequest(http.MethodPost, "/v1/files", strings.NewReader(body))
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSecret, s.secret)
	req.Header.Set(HeaderSignature, signature.Sign(http.MethodPost, "/v1/files", timestamp, []byte(body), s.secret))

	ctx := requestcontext.WithClock(req.Context(), func() time.Time { return s.now })
	ctx = WithIdentity(ctx, s.identity)
	return req.WithContext(ctx)
}

func (s *AdmissionSuite) TestAdmittedRequestFlowsThrough() {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, s.signedRequest(`{"name":"report.pdf"}`))

	s.Equal(http.StatusCreated, rec.Code)
	s.Equal(1, s.handled)
	s.Equal("60", rec.Header().Get("X-RateLimit-Limit"))
	s.Equal("59", rec.Header().Get("X-RateLimit-Remaining"))

	events := s.auditor.all()
	s.Require().Len(events, 1)
	s.Equal(audit.EventFileUploaded, events[0].EventType)
	s.Equal(id.UserID("user_9"), events[0].UserID)

	s.Equal(1, s.agg.Health().BufferSize, "usage recorded for the day key")
	s.Equal(int64(1), s.shared.counters[models.QuotaKey("acct_1", "2025-06")], "quota consumed once")
}

func (s *AdmissionSuite) TestMissingSignatureRejected() {
	req := s.signedRequest("")
	req.Header.Del(HeaderSignature)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), "MISSING_SIGNATURE")
	s.Zero(s.handled)

	events := s.auditor.all()
	s.Require().Len(events, 1)
	s.Equal(audit.EventSignatureRejected, events[0].EventType)
	s.Equal(audit.SeverityWarning, events[0].Severity)
}

func (s *AdmissionSuite) TestTamperedBodyRejected() {
	req := s.signedRequest(`{"name":"report.pdf"}`)
	req.Body = httptest.NewRequest(http.MethodPost, "/v1/files", strings.NewReader(`{"name":"evil.pdf"}`)).Body

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), "INVALID_SIGNATURE")
}

func (s *AdmissionSuite) TestRateLimitedRequestGets429() {
	key := models.WindowKey("acct_1", models.OpUpload, models.WindowStart(s.now, time.Minute))
	s.shared.counters[key] = 60

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, s.signedRequest(""))

	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Contains(rec.Body.String(), "rate_limited")
	s.NotEmpty(rec.Header().Get("Retry-After"))
	s.Zero(s.handled)

	events := s.auditor.all()
	s.Require().Len(events, 1)
	s.Equal(audit.EventAdmissionDenied, events[0].EventType)
}

func (s *AdmissionSuite) TestQuotaExceededGets429() {
	s.shared.counters[models.QuotaKey("acct_1", "2025-06")] = 50_000

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, s.signedRequest(""))

	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Contains(rec.Body.String(), "quota_exceeded")
	s.Zero(s.handled)
}

func (s *AdmissionSuite) TestHandlerFailureSkipsTelemetry() {
	failing := s.admission.Wrap(models.OpUpload)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	rec := httptest.NewRecorder()
	failing.ServeHTTP(rec, s.signedRequest(""))

	s.Equal(http.StatusBadGateway, rec.Code)
	s.Empty(s.auditor.all(), "failed handlers do not produce success audit events")
	s.Zero(s.agg.Health().BufferSize)
	s.Zero(s.shared.counters[models.QuotaKey("acct_1", "2025-06")])
}

func (s *AdmissionSuite) TestLegacyTenantBypassesSignature() {
	s.identity.SecretFingerprint = ""

	req := httptest.NewRequest(http.MethodGet, "/v1/files", nil)
	ctx := requestcontext.WithClock(req.Context(), func() time.Time { return s.now })
	req = req.WithContext(WithIdentity(ctx, s.identity))

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	s.Equal(http.StatusCreated, rec.Code)
	s.Equal(1, s.handled)
}

func (s *AdmissionSuite) TestNoIdentityRejected() {
	req := httptest.NewRequest(http.MethodGet, "/v1/files", nil)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Zero(s.handled)
}
