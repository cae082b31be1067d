package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ConfirmToken is the single-use payload binding a preview to the exact
// document state it was computed against. Plan holds the serialized edit plan
// bytes as written at preview time; PlanHash is recomputed over those bytes
// at confirm time to detect tampering.
type ConfirmToken struct {
	TokenID     string          `json:"token_id"`
	SessionID   string          `json:"session_id"`
	DocID       uuid.UUID       `json:"doc_id"`
	BaseRevID   uuid.UUID       `json:"active_rev_id"`
	BaseVersion int64           `json:"active_version"`
	PreviewHash string          `json:"preview_hash"`
	PlanHash    string          `json:"plan_hash"`
	Plan        json.RawMessage `json:"edit_plan"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}
