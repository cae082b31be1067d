package handler

import (
	"log/slog"
	"net/http"

	"reviso/internal/domain/services"
	"reviso/internal/httputil"
)

// EditHandler serves the preview/confirm protocol.
type EditHandler struct {
	previewSvc services.PreviewService
	logger     *slog.Logger
}

// NewEditHandler creates a new edit handler
func NewEditHandler(previewSvc services.PreviewService, logger *slog.Logger) *EditHandler {
	return &EditHandler{previewSvc: previewSvc, logger: logger}
}

// Register mounts the edit routes on the mux.
func (h *EditHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/edits/preview", h.Preview)
	mux.HandleFunc("POST /v1/edits/bulk/preview", h.BulkPreview)
	mux.HandleFunc("POST /v1/edits/confirm", h.Confirm)
}

// Preview handles POST /v1/edits/preview
func (h *EditHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req services.PreviewRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.SessionID = httputil.GetSessionID(r)
	req.UserID = httputil.GetUserID(r)
	req.TraceID = httputil.GetTraceID(r)

	result, err := h.previewSvc.PreviewPlan(r.Context(), &req)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}

// BulkPreview handles POST /v1/edits/bulk/preview
func (h *EditHandler) BulkPreview(w http.ResponseWriter, r *http.Request) {
	var req services.BulkPreviewRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.SessionID = httputil.GetSessionID(r)

	result, err := h.previewSvc.PreviewBulk(r.Context(), &req)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}

// Confirm handles POST /v1/edits/confirm
func (h *EditHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req services.ConfirmRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.SessionID = httputil.GetSessionID(r)
	req.UserID = httputil.GetUserID(r)
	req.TraceID = httputil.GetTraceID(r)

	if req.Action != "apply" && req.Action != "cancel" {
		httputil.RespondError(w, http.StatusBadRequest, `action must be "apply" or "cancel"`)
		return
	}

	result, err := h.previewSvc.Confirm(r.Context(), &req)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}
