package services

import (
	"context"

	"github.com/google/uuid"

	"reviso/internal/domain/models"
)

// EditorService applies validated edit plans under optimistic concurrency.
type EditorService interface {
	// Apply validates every operation against the base revision, then commits
	// a new revision guarded by CAS on the active-revision version. On a CAS
	// miss the whole transaction rolls back and the plan is re-validated
	// against fresh state, up to the configured retry budget.
	Apply(ctx context.Context, req *ApplyRequest) (*models.ApplyResult, error)
}

// ApplyRequest binds a plan to the base state it was proposed against.
type ApplyRequest struct {
	DocID       uuid.UUID
	BaseRevID   uuid.UUID
	BaseVersion int64
	Plan        models.EditPlan
	UserID      uuid.UUID
	CreatedBy   string // revision author tag: "ai", "user", "system"
	TraceID     string
}

// PreviewService runs the preview/confirm protocol: a preview computes the
// diff aggregate and issues a single-use confirm token; confirm re-validates
// everything and hands off to the editor.
type PreviewService interface {
	// PreviewPlan diffs a caller-supplied plan against the active revision.
	PreviewPlan(ctx context.Context, req *PreviewRequest) (*PreviewResult, error)

	// PreviewBulk discovers blocks matching a rule, synthesizes a replace
	// plan with full proposed content, and previews it.
	PreviewBulk(ctx context.Context, req *BulkPreviewRequest) (*PreviewResult, error)

	// Confirm applies or cancels a previously previewed plan. The token is
	// single-use: any validation failure, cancel, or commit attempt consumes it.
	Confirm(ctx context.Context, req *ConfirmRequest) (*ConfirmResult, error)
}

// PreviewRequest previews an explicit edit plan. UserID and TraceID are only
// used when the plan opts out of confirmation and is applied immediately.
type PreviewRequest struct {
	DocID     uuid.UUID       `json:"doc_id"`
	SessionID string          `json:"session_id"`
	Plan      models.EditPlan `json:"edit_plan"`
	UserID    uuid.UUID       `json:"-"`
	TraceID   string          `json:"-"`
}

// BulkPreviewRequest previews a pattern-driven bulk change.
type BulkPreviewRequest struct {
	DocID      uuid.UUID          `json:"doc_id"`
	SessionID  string             `json:"session_id"`
	Rule       models.MatchRule   `json:"rule"`
	Scope      models.ScopeFilter `json:"scope"`
	MaxChanges int                `json:"max_changes,omitempty"` // 0 = policy default
}

// PreviewResult carries the diff aggregate and the confirm handshake values.
// When the plan did not require confirmation, Applied holds the immediate
// commit result and no token is issued.
type PreviewResult struct {
	Preview      models.PreviewDiff  `json:"preview"`
	ConfirmToken string              `json:"confirm_token,omitempty"`
	PreviewHash  string              `json:"preview_hash,omitempty"`
	Applied      *models.ApplyResult `json:"applied,omitempty"`
}

// ConfirmRequest resolves a pending preview.
type ConfirmRequest struct {
	DocID        uuid.UUID `json:"doc_id"`
	SessionID    string    `json:"session_id"`
	ConfirmToken string    `json:"confirm_token"`
	PreviewHash  string    `json:"preview_hash"`
	Action       string    `json:"action"` // "apply" or "cancel"
	UserID       uuid.UUID `json:"-"`
	TraceID      string    `json:"-"`
}

// ConfirmResult reports the outcome of a confirm.
type ConfirmResult struct {
	Status   string              `json:"status"` // "applied" or "cancelled"
	Result   *models.ApplyResult `json:"result,omitempty"`
	ExportMD string              `json:"export_md,omitempty"`
	Message  string              `json:"message,omitempty"`
}
