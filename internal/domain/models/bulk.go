package models

// MatchType selects how a bulk rule finds blocks.
type MatchType string

const (
	MatchExactTerm MatchType = "exact_term"
	MatchRegex     MatchType = "regex"
	MatchKeywords  MatchType = "keywords"
)

// MatchRule describes a pattern-driven bulk change. Exact-term and regex
// rules carry a deterministic replacement; keyword rules only scope discovery
// and produce no replacement on their own.
type MatchRule struct {
	Type        MatchType `json:"match_type"`
	Term        string    `json:"term,omitempty"`
	Pattern     string    `json:"pattern,omitempty"`
	Replacement string    `json:"replacement,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
}

// ScopeFilter narrows a bulk rule to blocks under a heading (substring,
// case-insensitive) and/or of one block type. Zero values mean "no filter".
type ScopeFilter struct {
	Heading   string    `json:"heading,omitempty"`
	BlockType BlockType `json:"block_type,omitempty"`
}
