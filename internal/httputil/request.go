package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"

	"reviso/internal/config"
)

// ParseJSON decodes JSON from the request body into the given destination.
// It limits the request body size to prevent abuse and provides clear error messages.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	// Uploads carry whole documents, so the cap matches the upload limit
	// (requires w for proper 413 response).
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxUploadBytes)

	decoder := json.NewDecoder(r.Body)
	// Note: DisallowUnknownFields() is intentionally NOT used so older
	// servers tolerate newer client payloads. Validation is performed
	// downstream via domain-specific validators.

	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}
