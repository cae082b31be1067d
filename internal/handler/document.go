package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"reviso/internal/domain/services"
	"reviso/internal/httputil"
)

// DocumentHandler serves the document lifecycle: upload, export, revision
// history and rollback.
type DocumentHandler struct {
	docSvc services.DocumentService
	logger *slog.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(docSvc services.DocumentService, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{docSvc: docSvc, logger: logger}
}

// Register mounts the document routes on the mux.
func (h *DocumentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/docs", h.Upload)
	mux.HandleFunc("GET /v1/docs/{id}/export", h.Export)
	mux.HandleFunc("GET /v1/docs/{id}/revisions", h.ListRevisions)
	mux.HandleFunc("POST /v1/docs/{id}/rollback", h.Rollback)
}

// Upload handles POST /v1/docs
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	var req services.UploadRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.UserID = httputil.GetUserID(r)

	result, err := h.docSvc.Upload(r.Context(), &req)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, result)
}

// Export handles GET /v1/docs/{id}/export. An optional rev_id query parameter
// exports a historical revision instead of the active one.
func (h *DocumentHandler) Export(w http.ResponseWriter, r *http.Request) {
	docID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid document ID")
		return
	}

	var revID *uuid.UUID
	if raw := r.URL.Query().Get("rev_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "invalid rev_id")
			return
		}
		revID = &parsed
	}

	result, err := h.docSvc.Export(r.Context(), docID, revID)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}

// ListRevisions handles GET /v1/docs/{id}/revisions
func (h *DocumentHandler) ListRevisions(w http.ResponseWriter, r *http.Request) {
	docID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid document ID")
		return
	}

	limit := queryInt(r, "limit")
	offset := queryInt(r, "offset")

	result, err := h.docSvc.ListRevisions(r.Context(), docID, limit, offset)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}

// Rollback handles POST /v1/docs/{id}/rollback
func (h *DocumentHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	docID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid document ID")
		return
	}

	var req services.RollbackRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.DocID = docID

	result, err := h.docSvc.Rollback(r.Context(), &req)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}

func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
