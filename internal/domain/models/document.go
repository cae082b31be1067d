package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is the logical document unit. Content never lives here; it is
// reconstructed from the block versions of a revision. The block/char counts
// are denormalized from the latest committed revision.
type Document struct {
	ID             uuid.UUID `json:"doc_id"`
	UserID         uuid.UUID `json:"user_id"`
	Title          string    `json:"title"`
	SourceFilename string    `json:"source_filename,omitempty"`
	SourceFormat   string    `json:"source_format,omitempty"`
	TotalBlocks    int       `json:"total_blocks"`
	TotalChars     int       `json:"total_chars"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Revision is one immutable snapshot in a document's history.
// RevNo is a per-document sequence starting at 1.
type Revision struct {
	ID            uuid.UUID  `json:"rev_id"`
	DocID         uuid.UUID  `json:"doc_id"`
	RevNo         int64      `json:"rev_no"`
	ParentRevID   *uuid.UUID `json:"parent_rev_id,omitempty"`
	CreatedBy     string     `json:"created_by"`
	ChangeSummary string     `json:"change_summary,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ActiveRevision points a document at its current revision. Version is the
// monotonically increasing counter guarded by compare-and-swap on every commit.
type ActiveRevision struct {
	DocID     uuid.UUID `json:"doc_id"`
	RevID     uuid.UUID `json:"rev_id"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}
