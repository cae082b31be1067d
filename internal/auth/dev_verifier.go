package auth

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"reviso/internal/domain"
)

// DevVerifier accepts unsigned tokens of the form "dev:<user-uuid>" or
// "dev:<user-uuid>:<session-id>". It exists for local development without a
// JWKS issuer and must never be wired in production.
type DevVerifier struct {
	logger *slog.Logger
}

// NewDevVerifier creates the development verifier.
func NewDevVerifier(logger *slog.Logger) TokenVerifier {
	logger.Warn("development token verifier in use; do not run this in production")
	return &DevVerifier{logger: logger}
}

// VerifyToken parses the dev token format.
func (v *DevVerifier) VerifyToken(tokenString string) (*Claims, error) {
	parts := strings.SplitN(tokenString, ":", 3)
	if len(parts) < 2 || parts[0] != "dev" {
		return nil, domain.ErrUnauthorized
	}
	userID, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	sessionID := "user:" + parts[1]
	if len(parts) == 3 && parts[2] != "" {
		sessionID = parts[2]
	}
	return &Claims{
		UserID:    userID,
		SessionID: sessionID,
		Role:      "authenticated",
	}, nil
}

// Close implements TokenVerifier.
func (v *DevVerifier) Close() error { return nil }
