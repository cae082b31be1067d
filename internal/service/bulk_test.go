package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"reviso/internal/domain"
	"reviso/internal/domain/models"
	"reviso/internal/domain/services"
)

const bulkFixture = `# Products

ACME anvils are heavy.

ACME rockets fly fast.

## Pricing

ACME pricing starts at $10 for v1.2 units.

- ACME catalog item
- plain list item

Nothing about the company here.`

func uploadBulkFixture(t *testing.T, env *testEnv) uuid.UUID {
	t.Helper()
	res, err := env.docSvc.Upload(context.Background(), &services.UploadRequest{
		UserID:  uuid.New(),
		Title:   "Catalog",
		Content: bulkFixture,
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	return res.DocID
}

func TestBulkExactTermReplacement(t *testing.T) {
	env := newTestEnv()
	docID := uploadBulkFixture(t, env)

	res, err := env.preview.PreviewBulk(context.Background(), &services.BulkPreviewRequest{
		DocID:     docID,
		SessionID: "sess-1",
		Rule: models.MatchRule{
			Type:        models.MatchExactTerm,
			Term:        "ACME",
			Replacement: "Apex",
		},
	})
	if err != nil {
		t.Fatalf("PreviewBulk failed: %v", err)
	}
	if res.Preview.TotalChanges != 4 {
		t.Errorf("expected 4 matched blocks, got %d", res.Preview.TotalChanges)
	}
	for _, d := range res.Preview.Diffs {
		if d.OpType != models.OpReplace {
			t.Errorf("bulk plans are replace-only, got %s", d.OpType)
		}
		if !strings.Contains(d.AfterSnippet, "Apex") {
			t.Errorf("after snippet should carry the replacement: %q", d.AfterSnippet)
		}
	}

	out, err := env.preview.Confirm(context.Background(), &services.ConfirmRequest{
		DocID:        docID,
		SessionID:    "sess-1",
		ConfirmToken: res.ConfirmToken,
		PreviewHash:  res.PreviewHash,
		Action:       "apply",
		UserID:       uuid.New(),
	})
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if strings.Contains(out.ExportMD, "ACME") {
		t.Errorf("export should not contain the replaced term")
	}
	if !strings.Contains(out.ExportMD, "Apex anvils") {
		t.Errorf("export should contain the replacement")
	}
}

func TestBulkRegexReplacement(t *testing.T) {
	env := newTestEnv()
	docID := uploadBulkFixture(t, env)

	res, err := env.preview.PreviewBulk(context.Background(), &services.BulkPreviewRequest{
		DocID:     docID,
		SessionID: "sess-1",
		Rule: models.MatchRule{
			Type:        models.MatchRegex,
			Pattern:     `v\d+\.\d+`,
			Replacement: "v2.0",
		},
	})
	if err != nil {
		t.Fatalf("PreviewBulk failed: %v", err)
	}
	if res.Preview.TotalChanges != 1 {
		t.Fatalf("expected 1 matched block, got %d", res.Preview.TotalChanges)
	}
	if !strings.Contains(res.Preview.Diffs[0].AfterSnippet, "v2.0") {
		t.Errorf("after snippet should carry the rewritten version: %q", res.Preview.Diffs[0].AfterSnippet)
	}
}

func TestBulkInvalidRegex(t *testing.T) {
	env := newTestEnv()
	docID := uploadBulkFixture(t, env)

	_, err := env.preview.PreviewBulk(context.Background(), &services.BulkPreviewRequest{
		DocID:     docID,
		SessionID: "sess-1",
		Rule: models.MatchRule{
			Type:        models.MatchRegex,
			Pattern:     "(unclosed",
			Replacement: "x",
		},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for a bad pattern, got %v", err)
	}
}

func TestBulkScopeTooLarge(t *testing.T) {
	env := newTestEnv()
	docID := uploadBulkFixture(t, env)

	_, err := env.preview.PreviewBulk(context.Background(), &services.BulkPreviewRequest{
		DocID:      docID,
		SessionID:  "sess-1",
		MaxChanges: 2,
		Rule: models.MatchRule{
			Type:        models.MatchExactTerm,
			Term:        "ACME",
			Replacement: "Apex",
		},
	})
	if domain.CodeOf(err) != domain.CodeScopeTooLarge {
		t.Fatalf("expected scope_too_large, got %v", err)
	}
	var coded *domain.CodedError
	if !errors.As(err, &coded) {
		t.Fatal("expected a coded error")
	}
	if coded.Extra["matched"] != 4 || coded.Extra["max_changes"] != 2 {
		t.Errorf("rejection should report counts: %+v", coded.Extra)
	}
}

func TestBulkCapCountsNoOpMatches(t *testing.T) {
	env := newTestEnv()
	docID := uploadBulkFixture(t, env)

	// An identity replacement changes nothing, but the rule still matches
	// 4 blocks and the cap is enforced on that count.
	_, err := env.preview.PreviewBulk(context.Background(), &services.BulkPreviewRequest{
		DocID:      docID,
		SessionID:  "sess-1",
		MaxChanges: 2,
		Rule: models.MatchRule{
			Type:        models.MatchExactTerm,
			Term:        "ACME",
			Replacement: "ACME",
		},
	})
	if domain.CodeOf(err) != domain.CodeScopeTooLarge {
		t.Fatalf("expected scope_too_large, got %v", err)
	}
	var coded *domain.CodedError
	if !errors.As(err, &coded) {
		t.Fatal("expected a coded error")
	}
	if coded.Extra["matched"] != 4 {
		t.Errorf("cap should count no-op matches: %+v", coded.Extra)
	}
}

func TestBulkHeadingScope(t *testing.T) {
	env := newTestEnv()
	docID := uploadBulkFixture(t, env)

	res, err := env.preview.PreviewBulk(context.Background(), &services.BulkPreviewRequest{
		DocID:     docID,
		SessionID: "sess-1",
		Scope:     models.ScopeFilter{Heading: "pricing"},
		Rule: models.MatchRule{
			Type:        models.MatchExactTerm,
			Term:        "ACME",
			Replacement: "Apex",
		},
	})
	if err != nil {
		t.Fatalf("PreviewBulk failed: %v", err)
	}
	if res.Preview.TotalChanges != 2 {
		t.Errorf("expected 2 matches under the pricing heading, got %d", res.Preview.TotalChanges)
	}
	for _, d := range res.Preview.Diffs {
		if !strings.Contains(strings.ToLower(d.HeadingContext), "pricing") {
			t.Errorf("match outside the scoped heading: %q", d.HeadingContext)
		}
	}
}

func TestBulkBlockTypeScope(t *testing.T) {
	env := newTestEnv()
	docID := uploadBulkFixture(t, env)

	res, err := env.preview.PreviewBulk(context.Background(), &services.BulkPreviewRequest{
		DocID:     docID,
		SessionID: "sess-1",
		Scope:     models.ScopeFilter{BlockType: models.BlockTypeList},
		Rule: models.MatchRule{
			Type:        models.MatchExactTerm,
			Term:        "ACME",
			Replacement: "Apex",
		},
	})
	if err != nil {
		t.Fatalf("PreviewBulk failed: %v", err)
	}
	if res.Preview.TotalChanges != 1 {
		t.Errorf("expected only the list block to match, got %d", res.Preview.TotalChanges)
	}
}

func TestBulkNoMatches(t *testing.T) {
	env := newTestEnv()
	docID := uploadBulkFixture(t, env)

	_, err := env.preview.PreviewBulk(context.Background(), &services.BulkPreviewRequest{
		DocID:     docID,
		SessionID: "sess-1",
		Rule: models.MatchRule{
			Type:        models.MatchExactTerm,
			Term:        "Globex",
			Replacement: "Apex",
		},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for zero matches, got %v", err)
	}
}

func TestBulkKeywordRuleProducesNoChanges(t *testing.T) {
	env := newTestEnv()
	docID := uploadBulkFixture(t, env)

	// Keyword rules discover blocks but carry no replacement, so nothing
	// survives the no-op filter.
	_, err := env.preview.PreviewBulk(context.Background(), &services.BulkPreviewRequest{
		DocID:     docID,
		SessionID: "sess-1",
		Rule: models.MatchRule{
			Type:     models.MatchKeywords,
			Keywords: []string{"anvils"},
		},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestBulkImpactEscalation(t *testing.T) {
	env := newTestEnv()

	var sb strings.Builder
	sb.WriteString("# Repetition\n")
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&sb, "\nParagraph %d mentions ACME explicitly.\n", i)
	}
	res, err := env.docSvc.Upload(context.Background(), &services.UploadRequest{
		UserID:  uuid.New(),
		Title:   "Repetition",
		Content: sb.String(),
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	preview, err := env.preview.PreviewBulk(context.Background(), &services.BulkPreviewRequest{
		DocID:     res.DocID,
		SessionID: "sess-1",
		Rule: models.MatchRule{
			Type:        models.MatchExactTerm,
			Term:        "ACME",
			Replacement: "Apex",
		},
	})
	if err != nil {
		t.Fatalf("PreviewBulk failed: %v", err)
	}
	if preview.Preview.TotalChanges != 12 {
		t.Fatalf("expected 12 matches, got %d", preview.Preview.TotalChanges)
	}
	if preview.Preview.EstimatedImpact != models.ImpactMedium {
		t.Errorf("12 changes should be medium impact, got %s", preview.Preview.EstimatedImpact)
	}
}
