package httputil

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Context key type to avoid collisions
type contextKey string

const (
	userIDKey    contextKey = "userID"
	sessionIDKey contextKey = "sessionID"
	traceIDKey   contextKey = "traceID"
)

// WithIdentity attaches the authenticated user and session to the request.
func WithIdentity(r *http.Request, userID uuid.UUID, sessionID string) *http.Request {
	ctx := context.WithValue(r.Context(), userIDKey, userID)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	return r.WithContext(ctx)
}

// GetUserID retrieves the authenticated user ID, or uuid.Nil if absent.
func GetUserID(r *http.Request) uuid.UUID {
	userID, _ := r.Context().Value(userIDKey).(uuid.UUID)
	return userID
}

// GetSessionID retrieves the session scope, or "" if absent.
func GetSessionID(r *http.Request) string {
	sessionID, _ := r.Context().Value(sessionIDKey).(string)
	return sessionID
}

// WithTraceID attaches a request trace ID for the audit trail.
func WithTraceID(r *http.Request, traceID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), traceIDKey, traceID))
}

// GetTraceID retrieves the trace ID, or "" if absent.
func GetTraceID(r *http.Request) string {
	traceID, _ := r.Context().Value(traceIDKey).(string)
	return traceID
}
