package service

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"reviso/internal/domain"
	"reviso/internal/domain/models"
	"reviso/internal/markdown"
)

// bulkMatch pairs a matched block with its computed replacement.
type bulkMatch struct {
	block     *models.BlockVersion
	newMD     string
	evidence  models.EvidenceQuote
	rationale string
}

// discoverBulkMatches filters blocks by scope and applies the rule. Discovery
// runs on plain text; the replacement is computed on the markdown source.
// No-op replacements stay in the result: the scope cap counts every matched
// block, and changedOnly drops the no-ops afterwards.
func discoverBulkMatches(base []models.BlockVersion, rule models.MatchRule, scope models.ScopeFilter, headings map[uuid.UUID]string) ([]bulkMatch, error) {
	if err := validateRule(rule); err != nil {
		return nil, err
	}

	var re *regexp.Regexp
	if rule.Type == models.MatchRegex {
		var err error
		re, err = regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid pattern %q: %v", domain.ErrValidation, rule.Pattern, err)
		}
	}

	var matches []bulkMatch
	for i := range base {
		block := &base[i]
		if !inScope(block, scope, headings) {
			continue
		}

		m, ok := matchRule(block, rule, re)
		if !ok {
			continue
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// changedOnly drops matches whose replacement leaves the content identical.
func changedOnly(matches []bulkMatch) []bulkMatch {
	changed := make([]bulkMatch, 0, len(matches))
	for _, m := range matches {
		if m.newMD == m.block.ContentMD {
			continue
		}
		changed = append(changed, m)
	}
	return changed
}

func validateRule(rule models.MatchRule) error {
	switch rule.Type {
	case models.MatchExactTerm:
		if rule.Term == "" {
			return fmt.Errorf("%w: exact_term rule requires a term", domain.ErrValidation)
		}
	case models.MatchRegex:
		if rule.Pattern == "" {
			return fmt.Errorf("%w: regex rule requires a pattern", domain.ErrValidation)
		}
	case models.MatchKeywords:
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("%w: keywords rule requires at least one keyword", domain.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown match type %q", domain.ErrValidation, rule.Type)
	}
	return nil
}

func inScope(block *models.BlockVersion, scope models.ScopeFilter, headings map[uuid.UUID]string) bool {
	if scope.BlockType != "" && block.BlockType != scope.BlockType {
		return false
	}
	if scope.Heading != "" {
		ctx := headingContext(block, headings)
		if !strings.Contains(strings.ToLower(ctx), strings.ToLower(scope.Heading)) {
			return false
		}
	}
	return true
}

func matchRule(block *models.BlockVersion, rule models.MatchRule, re *regexp.Regexp) (bulkMatch, bool) {
	switch rule.Type {
	case models.MatchExactTerm:
		if !strings.Contains(block.PlainText, rule.Term) {
			return bulkMatch{}, false
		}
		return bulkMatch{
			block:     block,
			newMD:     strings.ReplaceAll(block.ContentMD, rule.Term, rule.Replacement),
			evidence:  quoteFor(block.PlainText, rule.Term),
			rationale: fmt.Sprintf("bulk replace %q with %q", rule.Term, rule.Replacement),
		}, true

	case models.MatchRegex:
		hit := re.FindString(block.PlainText)
		if hit == "" && !re.MatchString(block.ContentMD) {
			return bulkMatch{}, false
		}
		if hit == "" {
			hit = re.FindString(block.ContentMD)
		}
		return bulkMatch{
			block:     block,
			newMD:     re.ReplaceAllString(block.ContentMD, rule.Replacement),
			evidence:  quoteFor(block.PlainText, hit),
			rationale: fmt.Sprintf("bulk replace pattern %q", rule.Pattern),
		}, true

	case models.MatchKeywords:
		// Keyword rules only discover; with no deterministic replacement the
		// replacement equals the original, so changedOnly drops the match.
		norm := markdown.Normalize(block.PlainText)
		for _, kw := range rule.Keywords {
			if strings.Contains(norm, markdown.Normalize(kw)) {
				return bulkMatch{block: block, newMD: block.ContentMD}, true
			}
		}
		return bulkMatch{}, false
	}
	return bulkMatch{}, false
}

// quoteFor locates hit in plain text and records its rune offsets. Offsets
// stay -1 when the hit only appears in the markdown source.
func quoteFor(plainText, hit string) models.EvidenceQuote {
	ev := models.EvidenceQuote{Text: hit, Start: -1, End: -1}
	if hit == "" {
		ev.Text = plainText
		return ev
	}
	if idx := strings.Index(plainText, hit); idx >= 0 {
		ev.Start = len([]rune(plainText[:idx]))
		ev.End = ev.Start + len([]rune(hit))
	}
	return ev
}

// synthesizePlan turns bulk matches into a replace-only edit plan carrying the
// full proposed markdown per block, so confirm can commit it verbatim.
func synthesizePlan(matches []bulkMatch) models.EditPlan {
	ops := make([]models.EditOp, 0, len(matches))
	for _, m := range matches {
		ops = append(ops, models.EditOp{
			OpType:        models.OpReplace,
			TargetBlockID: m.block.BlockID,
			Evidence:      m.evidence,
			NewContentMD:  m.newMD,
			Rationale:     m.rationale,
			Confidence:    1.0,
		})
	}
	return models.EditPlan{Operations: ops, RequiresConfirmation: true}
}

// scopeTooLarge builds the rejection for a bulk rule matching more blocks
// than the caller's cap allows.
func scopeTooLarge(matched, cap int) error {
	err := domain.Coded(http.StatusBadRequest, domain.CodeScopeTooLarge,
		fmt.Sprintf("rule matches %d blocks, limit is %d; narrow the scope or raise max_changes", matched, cap))
	err.Extra = map[string]interface{}{
		"matched":     matched,
		"max_changes": cap,
	}
	return err
}

// headingContext resolves the heading a block sits under.
func headingContext(block *models.BlockVersion, headings map[uuid.UUID]string) string {
	if block.ParentHeadingBlockID != nil {
		if h, ok := headings[*block.ParentHeadingBlockID]; ok {
			return h
		}
	}
	return "(no heading)"
}

// headingTexts indexes heading blocks by block ID for context lookups.
func headingTexts(base []models.BlockVersion) map[uuid.UUID]string {
	headings := make(map[uuid.UUID]string)
	for i := range base {
		if base[i].BlockType == models.BlockTypeHeading {
			headings[base[i].BlockID] = base[i].PlainText
		}
	}
	return headings
}
