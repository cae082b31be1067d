package models

import (
	"time"

	"github.com/google/uuid"
)

// BlockType classifies a block by its markdown structure.
type BlockType string

const (
	BlockTypeHeading   BlockType = "heading"
	BlockTypeParagraph BlockType = "paragraph"
	BlockTypeList      BlockType = "list"
	BlockTypeTable     BlockType = "table"
	BlockTypeCode      BlockType = "code"
)

// Block is the stable identity of a content unit across revisions.
// Deletion is a tombstone: the row stays, DeletedAt/DeletedInRevID are set,
// and later revisions simply carry no version for it.
type Block struct {
	ID             uuid.UUID  `json:"block_id"`
	DocID          uuid.UUID  `json:"doc_id"`
	FirstRevID     uuid.UUID  `json:"first_rev_id"`
	CreatedAt      time.Time  `json:"created_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	DeletedInRevID *uuid.UUID `json:"deleted_in_rev_id,omitempty"`
}

// BlockVersion is the content of one block within one revision.
// Exactly one of ContentMD / ParentVersionID must be set: either the row
// carries content, or it points at the version it duplicates.
// ParentVersionID is reserved for a future deduplication path and is never
// written today; the storage layer rejects rows violating the invariant.
type BlockVersion struct {
	ID                   uuid.UUID  `json:"block_version_id"`
	BlockID              uuid.UUID  `json:"block_id"`
	RevID                uuid.UUID  `json:"rev_id"`
	OrderIndex           int64      `json:"order_index"`
	BlockType            BlockType  `json:"block_type"`
	HeadingLevel         *int       `json:"heading_level,omitempty"`
	ParentHeadingBlockID *uuid.UUID `json:"parent_heading_block_id,omitempty"`
	ContentMD            string     `json:"content_md"`
	PlainText            string     `json:"plain_text"`
	ContentHash          string     `json:"content_hash"`
	ParentVersionID      *uuid.UUID `json:"parent_version_id,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}
