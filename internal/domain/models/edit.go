package models

import (
	"time"

	"github.com/google/uuid"
)

// OpType is the kind of change an edit operation makes to its target block.
type OpType string

const (
	OpReplace      OpType = "replace"
	OpDelete       OpType = "delete"
	OpInsertAfter  OpType = "insert_after"
	OpInsertBefore OpType = "insert_before"
)

// EvidenceQuote anchors an operation to text the proposer actually saw in the
// target block. It is re-verified against the base revision before any write.
// Start/End are rune offsets into the block's plain text; -1 means unknown.
type EvidenceQuote struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// EditOp is one proposed change inside an edit plan.
// NewContentMD carries the full replacement/insertion markdown; it is empty
// for deletes.
type EditOp struct {
	OpType        OpType        `json:"op_type"`
	TargetBlockID uuid.UUID     `json:"target_block_id"`
	Evidence      EvidenceQuote `json:"evidence"`
	NewContentMD  string        `json:"new_content_md,omitempty"`
	Rationale     string        `json:"rationale,omitempty"`
	Confidence    float64       `json:"confidence,omitempty"`
}

// EditPlan is an ordered set of operations proposed against one base revision.
type EditPlan struct {
	Operations           []EditOp `json:"operations"`
	EstimatedImpact      Impact   `json:"estimated_impact,omitempty"`
	RequiresConfirmation bool     `json:"requires_confirmation,omitempty"`
}

// EditOperation is the persisted audit record of one applied operation.
type EditOperation struct {
	ID            uuid.UUID  `json:"op_id"`
	DocID         uuid.UUID  `json:"doc_id"`
	RevID         uuid.UUID  `json:"rev_id"`
	ParentRevID   *uuid.UUID `json:"parent_rev_id,omitempty"`
	TraceID       string     `json:"trace_id,omitempty"`
	UserID        uuid.UUID  `json:"user_id"`
	OpType        OpType     `json:"op_type"`
	TargetBlockID uuid.UUID  `json:"target_block_id"`
	EvidenceQuote string     `json:"evidence_quote"`
	QuoteStart    *int       `json:"quote_start,omitempty"`
	QuoteEnd      *int       `json:"quote_end,omitempty"`
	BeforeHash    string     `json:"before_hash,omitempty"`
	AfterHash     string     `json:"after_hash,omitempty"`
	Rationale     string     `json:"rationale,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ApplyResult reports a successful commit.
type ApplyResult struct {
	NewRevID   uuid.UUID `json:"new_rev_id"`
	NewRevNo   int64     `json:"new_rev_no"`
	NewVersion int64     `json:"new_version"`
	OpsApplied int       `json:"ops_applied"`
}
