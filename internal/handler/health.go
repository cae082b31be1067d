package handler

import (
	"net/http"

	"reviso/internal/httputil"
)

// Health handles GET /health. It is mounted outside the auth middleware's
// enforcement so load balancers can probe it.
func Health(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
