package services

import (
	"context"

	"github.com/google/uuid"

	"reviso/internal/domain/models"
)

// DocumentService handles document lifecycle operations: ingestion, export,
// history and rollback.
type DocumentService interface {
	// Upload splits raw markdown into blocks and creates the document with
	// its first revision atomically.
	Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error)

	// Export reconstructs a revision's markdown. A nil revID exports the
	// active revision.
	Export(ctx context.Context, docID uuid.UUID, revID *uuid.UUID) (*ExportResult, error)

	// ListRevisions returns the revision chain newest-first with the active
	// revision marked.
	ListRevisions(ctx context.Context, docID uuid.UUID, limit, offset int) (*RevisionList, error)

	// Rollback creates a new revision copying the target revision's blocks
	// verbatim. History is append-only; nothing is rewritten.
	Rollback(ctx context.Context, req *RollbackRequest) (*models.ApplyResult, error)
}

// UploadRequest carries the raw markdown and metadata for a new document.
type UploadRequest struct {
	UserID         uuid.UUID `json:"-"` // from auth context, not request body
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	SourceFilename string    `json:"source_filename,omitempty"`
	SourceFormat   string    `json:"source_format,omitempty"`
}

// UploadResult reports the created document and its first revision.
type UploadResult struct {
	DocID      uuid.UUID `json:"doc_id"`
	RevID      uuid.UUID `json:"rev_id"`
	BlockCount int       `json:"block_count"`
	Title      string    `json:"title"`
}

// ExportResult carries reconstructed markdown plus the revision it came from.
type ExportResult struct {
	DocID   uuid.UUID `json:"doc_id"`
	RevID   uuid.UUID `json:"rev_id"`
	Content string    `json:"content"`
}

// RevisionInfo is one entry in a revision listing.
type RevisionInfo struct {
	RevID         uuid.UUID `json:"rev_id"`
	RevNo         int64     `json:"rev_no"`
	CreatedBy     string    `json:"created_by"`
	ChangeSummary string    `json:"change_summary,omitempty"`
	CreatedAt     string    `json:"created_at"`
	IsActive      bool      `json:"is_active"`
}

// RevisionList is a paginated revision listing.
type RevisionList struct {
	Revisions []RevisionInfo `json:"revisions"`
	Total     int            `json:"total"`
}

// RollbackRequest names the revision to restore.
type RollbackRequest struct {
	DocID       uuid.UUID `json:"-"` // from path
	TargetRevID uuid.UUID `json:"target_rev_id"`
}
