package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"filegate/internal/platform/health"
	"filegate/internal/platform/middleware"
	"filegate/internal/ratelimit/models"
)

// RouterConfig carries everything the router wires together.
type RouterConfig struct {
	Logger            *slog.Logger
	Handler           *Handler
	Admin             *AdminHandler
	Admission         *middleware.Admission
	IdentityKey       []byte
	OperatorTokenHash string
	Health            *health.Handler
}

// NewRouter wires the public file routes behind the admission pipeline, plus
// the operational surfaces (health, metrics, admin).
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Metadata)
	r.Use(middleware.Logger(cfg.Logger))

	cfg.Health.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/files", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Identity(cfg.IdentityKey, cfg.Logger))

		r.With(cfg.Admission.Wrap(models.OpUpload)).Post("/", cfg.Handler.HandleUpload)
		r.With(cfg.Admission.Wrap(models.OpList)).Get("/", cfg.Handler.HandleList)
		r.With(cfg.Admission.Wrap(models.OpDownload)).Get("/{fileID}", cfg.Handler.HandleDownload)
		r.With(cfg.Admission.Wrap(models.OpDelete)).Delete("/{fileID}", cfg.Handler.HandleDelete)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.RequireOperatorToken(cfg.OperatorTokenHash, cfg.Logger))

		r.Post("/quota/reset", cfg.Admin.HandleQuotaReset)
	})

	return r
}
