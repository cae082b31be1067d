package models

import "github.com/google/uuid"

// Impact is the coarse size classification of a proposed change set.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// DiffItem is the per-block entry of a preview: truncated before/after plain
// text plus the heading the block sits under.
type DiffItem struct {
	BlockID        uuid.UUID `json:"block_id"`
	OpType         OpType    `json:"op_type"`
	BeforeSnippet  string    `json:"before_snippet"`
	AfterSnippet   string    `json:"after_snippet"`
	HeadingContext string    `json:"heading_context"`
	CharDiff       int       `json:"char_diff"`
}

// PreviewDiff aggregates a plan's proposed changes for user confirmation.
type PreviewDiff struct {
	Diffs             []DiffItem     `json:"diffs"`
	TotalChanges      int            `json:"total_changes"`
	EstimatedImpact   Impact         `json:"estimated_impact"`
	GroupedByHeading  map[string]int `json:"grouped_by_heading"`
	TotalCharsAdded   int            `json:"total_chars_added"`
	TotalCharsRemoved int            `json:"total_chars_removed"`
}

// BlockCandidate is a retrieval hit handed to plan generation: enough context
// to ground an edit without shipping the whole document.
type BlockCandidate struct {
	BlockID        uuid.UUID `json:"block_id"`
	Snippet        string    `json:"snippet"`
	HeadingContext string    `json:"heading_context"`
	OrderIndex     int64     `json:"order_index"`
	Score          float64   `json:"score"`
	BlockType      BlockType `json:"block_type"`
}
