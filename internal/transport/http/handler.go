// Package httptransport is the gateway's thin HTTP layer. Handlers translate
// validated parameters into FileService calls; admission, identity, and
// telemetry all live in middleware so transport stays logic-free.
package httptransport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"filegate/internal/platform/middleware"
	id "filegate/pkg/domain"
	dErrors "filegate/pkg/domain-errors"
	"filegate/pkg/httputil"
)

// FileInfo describes a stored object.
type FileInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks FileService

// FileService is the storage collaborator behind the gateway. Implementations
// translate these calls into cloud storage SDK operations.
type FileService interface {
	Upload(ctx context.Context, tenant id.TenantID, name, contentType string, content io.Reader) (*FileInfo, error)
	Download(ctx context.Context, tenant id.TenantID, fileID string) (*FileInfo, io.ReadCloser, error)
	Delete(ctx context.Context, tenant id.TenantID, fileID string) error
	List(ctx context.Context, tenant id.TenantID) ([]FileInfo, error)
}

// Handler carries the transport dependencies.
type Handler struct {
	files  FileService
	logger *slog.Logger
}

func NewHandler(files FileService, logger *slog.Logger) *Handler {
	return &Handler{files: files, logger: logger}
}

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing identity"))
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "name query parameter is required"))
		return
	}

	info, err := h.files.Upload(r.Context(), identity.TenantID, name, r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, info)
}

func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing identity"))
		return
	}

	fileID := chi.URLParam(r, "fileID")
	info, content, err := h.files.Download(r.Context(), identity.TenantID, fileID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+info.Name+`"`)
	if _, err := io.Copy(w, content); err != nil {
		h.logger.ErrorContext(r.Context(), "download stream interrupted",
			"file_id", fileID,
			"error", err,
		)
	}
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing identity"))
		return
	}

	if err := h.files.Delete(r.Context(), identity.TenantID, chi.URLParam(r, "fileID")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing identity"))
		return
	}

	files, err := h.files.List(r.Context(), identity.TenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if files == nil {
		files = []FileInfo{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"files": files})
}
