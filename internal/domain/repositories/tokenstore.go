package repositories

import (
	"context"
	"time"
)

// TokenStore is a TTL key-value store for confirm-token payloads, keyed by
// (session, token). Payloads are opaque bytes; hashing at confirm time runs
// over exactly what was stored.
type TokenStore interface {
	// Put stores the payload under (sessionID, tokenID) with the given TTL.
	Put(ctx context.Context, sessionID, tokenID string, payload []byte, ttl time.Duration) error

	// Get returns the stored payload, or domain.ErrNotFound if the key is
	// missing or its TTL has elapsed.
	Get(ctx context.Context, sessionID, tokenID string) ([]byte, error)

	// Delete removes the token. Deleting a missing token is not an error.
	Delete(ctx context.Context, sessionID, tokenID string) error
}
