package httptransport

import (
	"net/http"

	"filegate/internal/ratelimit/workers/quotareset"
	"filegate/pkg/httputil"
)

// AdminHandler exposes operator-only actions.
type AdminHandler struct {
	quotaReset *quotareset.Service
}

func NewAdminHandler(quotaReset *quotareset.Service) *AdminHandler {
	return &AdminHandler{quotaReset: quotaReset}
}

// HandleQuotaReset runs the monthly reset job on demand. The per-period
// dedup marker makes repeated invocations safe.
func (h *AdminHandler) HandleQuotaReset(w http.ResponseWriter, r *http.Request) {
	res, err := h.quotaReset.RunOnce(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"tenants_seen":  res.TenantsSeen,
		"resets_logged": res.ResetsLogged,
		"skipped":       res.Skipped,
		"duration_ms":   res.Duration.Milliseconds(),
	})
}
