package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"reviso/internal/domain"
	"reviso/internal/httputil"
)

// handleError maps domain errors onto RFC 7807 responses. Coded errors carry
// their machine-readable code (and any extra context) in the body so clients
// can branch without parsing messages.
func handleError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var coded *domain.CodedError
	if errors.As(err, &coded) {
		extras := map[string]interface{}{"code": coded.Code}
		for k, v := range coded.Extra {
			extras[k] = v
		}
		httputil.RespondErrorWithExtras(w, coded.StatusCode(), coded.Message, extras)
		return
	}

	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) {
		httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrConflict):
		httputil.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	default:
		logger.Error("unhandled error", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}
