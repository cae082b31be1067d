package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"reviso/internal/domain"
	"reviso/internal/domain/models"
	"reviso/internal/domain/services"
)

func previewReplace(t *testing.T, env *testEnv, docID uuid.UUID, sessionID, newContent string) *services.PreviewResult {
	t.Helper()
	_, blocks := activeBlocks(t, env, docID)
	target := findByContent(t, blocks, "quick brown fox")

	res, err := env.preview.PreviewPlan(context.Background(), &services.PreviewRequest{
		DocID:     docID,
		SessionID: sessionID,
		Plan: models.EditPlan{
			Operations: []models.EditOp{{
				OpType:        models.OpReplace,
				TargetBlockID: target.BlockID,
				Evidence:      models.EvidenceQuote{Text: "quick brown fox", Start: -1, End: -1},
				NewContentMD:  newContent,
			}},
			RequiresConfirmation: true,
		},
	})
	if err != nil {
		t.Fatalf("PreviewPlan failed: %v", err)
	}
	return res
}

// mutateToken rewrites a stored token payload in place, bypassing the
// service, to simulate tampering or drift.
func mutateToken(t *testing.T, env *testEnv, sessionID, tokenID string, fn func(*models.ConfirmToken)) {
	t.Helper()
	raw, err := env.tokens.Get(context.Background(), sessionID, tokenID)
	if err != nil {
		t.Fatalf("token not in store: %v", err)
	}
	var payload models.ConfirmToken
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	fn(&payload)
	updated, err := json.Marshal(&payload)
	if err != nil {
		t.Fatalf("marshal token: %v", err)
	}
	if err := env.tokens.Put(context.Background(), sessionID, tokenID, updated, time.Hour); err != nil {
		t.Fatalf("re-put token: %v", err)
	}
}

func TestPreviewPlanIssuesToken(t *testing.T) {
	env := newTestEnv()
	docID := uploadFixture(t, env)

	res := previewReplace(t, env, docID, "sess-1", "The slow brown fox.")
	if res.ConfirmToken == "" || res.PreviewHash == "" {
		t.Fatalf("preview should issue a token and hash: %+v", res)
	}
	if res.Preview.TotalChanges != 1 {
		t.Errorf("expected 1 change, got %d", res.Preview.TotalChanges)
	}
	if res.Preview.EstimatedImpact != models.ImpactLow {
		t.Errorf("expected low impact, got %s", res.Preview.EstimatedImpact)
	}
	if len(res.Preview.Diffs) != 1 || !strings.Contains(res.Preview.Diffs[0].AfterSnippet, "slow brown fox") {
		t.Errorf("diff should carry the proposed text: %+v", res.Preview.Diffs)
	}
}

func TestPreviewPlanWithoutConfirmationAppliesImmediately(t *testing.T) {
	env := newTestEnv()
	docID := uploadFixture(t, env)
	_, blocks := activeBlocks(t, env, docID)
	target := findByContent(t, blocks, "quick brown fox")

	res, err := env.preview.PreviewPlan(context.Background(), &services.PreviewRequest{
		DocID:     docID,
		SessionID: "sess-1",
		UserID:    uuid.New(),
		Plan: models.EditPlan{Operations: []models.EditOp{{
			OpType:        models.OpReplace,
			TargetBlockID: target.BlockID,
			Evidence:      models.EvidenceQuote{Text: "quick brown fox", Start: -1, End: -1},
			NewContentMD:  "Applied without a handshake.",
		}}},
	})
	if err != nil {
		t.Fatalf("PreviewPlan failed: %v", err)
	}
	if res.Applied == nil || res.Applied.NewVersion != 2 {
		t.Fatalf("plan without confirmation should apply immediately: %+v", res)
	}
	if res.ConfirmToken != "" {
		t.Errorf("no token should be issued on immediate apply")
	}

	out, err := env.docSvc.Export(context.Background(), docID, nil)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.Contains(out.Content, "Applied without a handshake.") {
		t.Errorf("immediate apply should land in the active revision")
	}
}

func TestPreviewPlanUnknownTarget(t *testing.T) {
	env := newTestEnv()
	docID := uploadFixture(t, env)

	_, err := env.preview.PreviewPlan(context.Background(), &services.PreviewRequest{
		DocID:     docID,
		SessionID: "sess-1",
		Plan: models.EditPlan{Operations: []models.EditOp{{
			OpType:        models.OpReplace,
			TargetBlockID: uuid.New(),
			Evidence:      models.EvidenceQuote{Text: "x", Start: -1, End: -1},
			NewContentMD:  "y",
		}}},
	})
	if domain.CodeOf(err) != domain.CodeTargetBlockNotFound {
		t.Errorf("expected target_block_not_found, got %v", err)
	}
}

func TestConfirmApply(t *testing.T) {
	env := newTestEnv()
	docID := uploadFixture(t, env)
	userID := uuid.New()

	res := previewReplace(t, env, docID, "sess-1", "The slow brown fox.")

	out, err := env.preview.Confirm(context.Background(), &services.ConfirmRequest{
		DocID:        docID,
		SessionID:    "sess-1",
		ConfirmToken: res.ConfirmToken,
		PreviewHash:  res.PreviewHash,
		Action:       "apply",
		UserID:       userID,
	})
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if out.Status != "applied" || out.Result == nil {
		t.Fatalf("expected applied status with a result, got %+v", out)
	}
	if out.Result.NewVersion != 2 {
		t.Errorf("expected version 2, got %d", out.Result.NewVersion)
	}
	if !strings.Contains(out.ExportMD, "slow brown fox") {
		t.Errorf("export should contain the applied change")
	}

	// Single use: the same token cannot confirm twice.
	_, err = env.preview.Confirm(context.Background(), &services.ConfirmRequest{
		DocID:        docID,
		SessionID:    "sess-1",
		ConfirmToken: res.ConfirmToken,
		PreviewHash:  res.PreviewHash,
		Action:       "apply",
		UserID:       userID,
	})
	if domain.CodeOf(err) != domain.CodeInvalidToken {
		t.Errorf("expected invalid_token on replay, got %v", err)
	}
}

func TestConfirmCancel(t *testing.T) {
	env := newTestEnv()
	docID := uploadFixture(t, env)
	active, _ := activeBlocks(t, env, docID)

	res := previewReplace(t, env, docID, "sess-1", "Cancelled change.")
	out, err := env.preview.Confirm(context.Background(), &services.ConfirmRequest{
		DocID:        docID,
		SessionID:    "sess-1",
		ConfirmToken: res.ConfirmToken,
		Action:       "cancel",
	})
	if err != nil {
		t.Fatalf("Confirm cancel failed: %v", err)
	}
	if out.Status != "cancelled" {
		t.Errorf("expected cancelled, got %s", out.Status)
	}

	after, _ := activeBlocks(t, env, docID)
	if after.Version != active.Version {
		t.Errorf("cancel must not change the document")
	}

	_, err = env.preview.Confirm(context.Background(), &services.ConfirmRequest{
		DocID:        docID,
		SessionID:    "sess-1",
		ConfirmToken: res.ConfirmToken,
		Action:       "cancel",
	})
	if domain.CodeOf(err) != domain.CodeInvalidToken {
		t.Errorf("cancel should consume the token, got %v", err)
	}
}

func TestConfirmUnknownToken(t *testing.T) {
	env := newTestEnv()
	docID := uploadFixture(t, env)

	_, err := env.preview.Confirm(context.Background(), &services.ConfirmRequest{
		DocID:        docID,
		SessionID:    "sess-1",
		ConfirmToken: "never-issued",
		Action:       "apply",
		PreviewHash:  "x",
	})
	if domain.CodeOf(err) != domain.CodeInvalidToken {
		t.Errorf("expected invalid_token, got %v", err)
	}
}

func TestConfirmWrongDocument(t *testing.T) {
	env := newTestEnv()
	docID := uploadFixture(t, env)

	res := previewReplace(t, env, docID, "sess-1", "x")
	_, err := env.preview.Confirm(context.Background(), &services.ConfirmRequest{
		DocID:        uuid.New(),
		SessionID:    "sess-1",
		ConfirmToken: res.ConfirmToken,
		PreviewHash:  res.PreviewHash,
		Action:       "apply",
	})
	if domain.CodeOf(err) != domain.CodeTokenMismatch {
		t.Errorf("expected token_mismatch, got %v", err)
	}

	// A mismatch must not consume the token.
	if _, err := env.tokens.Get(context.Background(), "sess-1", res.ConfirmToken); err != nil {
		t.Errorf("token should survive a document mismatch: %v", err)
	}
}

func TestConfirmWrongSessionCannotSeeToken(t *testing.T) {
	env := newTestEnv()
	docID := uploadFixture(t, env)

	res := previewReplace(t, env, docID, "sess-1", "x")
	_, err := env.preview.Confirm(context.Background(), &services.ConfirmRequest{
		DocID:        docID,
		SessionID:    "sess-2",
		ConfirmToken: res.ConfirmToken,
		PreviewHash:  res.PreviewHash,
		Action:       "apply",
	})
	if domain.CodeOf(err) != domain.CodeInvalidToken {
		t.Errorf("another session's lookup should miss entirely, got %v", err)
	}
}

func TestConfirmExpiredToken(t *testing.T) {
	env := newTestEnv()
	docID := uploadFixture(t, env)

	res := previewReplace(t, env, docID, "sess-1", "x")
	mutateToken(t, env, "sess-1", res.ConfirmToken, func(p *models.ConfirmToken) {
		p.ExpiresAt = time.Now().Add(-time.Minute)
	})

	_, err := env.preview.Confirm(context.Background(), &services.ConfirmRequest{
		DocID:        docID,
		SessionID:    "sess-1",
		ConfirmToken: res.ConfirmToken,
		PreviewHash:  res.PreviewHash,
		Action:       "apply",
	})
	if domain.CodeOf(err) != domain.CodeTokenExpired {
		t.Errorf("expected token_expired, got %v", err)
	}
	if _, err := env.tokens.Get(context.Background(), "sess-1", res.ConfirmToken); err == nil {
		t.Errorf("expired token should be deleted")
	}
}

func TestConfirmAfterConcurrentEdit(t *testing.T) {
	env := newTestEnv()
	docID := uploadFixture(t, env)

	res := previewReplace(t, env, docID, "sess-1", "First proposal.")

	// Another writer lands before the confirm.
	active, blocks := activeBlocks(t, env, docID)
	target := findByContent(t, blocks, "Second paragraph")
	if _, err := env.editor.Apply(context.Background(), applyRequest(docID, active, models.EditOp{
		OpType:        models.OpReplace,
		TargetBlockID: target.BlockID,
		Evidence:      models.EvidenceQuote{Text: "Second paragraph", Start: -1, End: -1},
		NewContentMD:  "Sneaky concurrent change.",
	})); err != nil {
		t.Fatalf("concurrent apply failed: %v", err)
	}

	_, err := env.preview.Confirm(context.Background(), &services.ConfirmRequest{
		DocID:        docID,
		SessionID:    "sess-1",
		ConfirmToken: res.ConfirmToken,
		PreviewHash:  res.PreviewHash,
		Action:       "apply",
	})
	if domain.CodeOf(err) != domain.CodeDocumentModified {
		t.Errorf("expected document_modified, got %v", err)
	}
	if _, err := env.tokens.Get(context.Background(), "sess-1", res.ConfirmToken); err == nil {
		t.Errorf("stale token should be deleted")
	}
}

func TestConfirmVersionDrift(t *testing.T) {
	env := newTestEnv()
	docID := uploadFixture(t, env)

	res := previewReplace(t, env, docID, "sess-1", "x")
	mutateToken(t, env, "sess-1", res.ConfirmToken, func(p *models.ConfirmToken) {
		p.BaseVersion = 42
	})

	_, err := env.preview.Confirm(context.Background(), &services.ConfirmRequest{
		DocID:        docID,
		SessionID:    "sess-1",
		ConfirmToken: res.ConfirmToken,
		PreviewHash:  res.PreviewHash,
		Action:       "apply",
	})
	if domain.CodeOf(err) != domain.CodeVersionMismatch {
		t.Errorf("expected version_mismatch, got %v", err)
	}
}

func TestConfirmMissingPreviewHash(t *testing.T) {
	env := newTestEnv()
	docID := uploadFixture(t, env)

	res := previewReplace(t, env, docID, "sess-1", "x")
	_, err := env.preview.Confirm(context.Background(), &services.ConfirmRequest{
		DocID:        docID,
		SessionID:    "sess-1",
		ConfirmToken: res.ConfirmToken,
		Action:       "apply",
	})
	if domain.CodeOf(err) != domain.CodeMissingPreviewHash {
		t.Errorf("expected missing_preview_hash, got %v", err)
	}
}

func TestConfirmPreviewHashMismatch(t *testing.T) {
	env := newTestEnv()
	docID := uploadFixture(t, env)

	res := previewReplace(t, env, docID, "sess-1", "x")
	_, err := env.preview.Confirm(context.Background(), &services.ConfirmRequest{
		DocID:        docID,
		SessionID:    "sess-1",
		ConfirmToken: res.ConfirmToken,
		PreviewHash:  "0000000000000000000000000000000000000000000000000000000000000000",
		Action:       "apply",
	})
	if domain.CodeOf(err) != domain.CodePreviewHashMismatch {
		t.Errorf("expected preview_hash_mismatch, got %v", err)
	}
	if _, err := env.tokens.Get(context.Background(), "sess-1", res.ConfirmToken); err == nil {
		t.Errorf("hash mismatch should consume the token")
	}
}

func TestConfirmPlanTamperDetected(t *testing.T) {
	env := newTestEnv()
	docID := uploadFixture(t, env)

	res := previewReplace(t, env, docID, "sess-1", "Honest content.")
	mutateToken(t, env, "sess-1", res.ConfirmToken, func(p *models.ConfirmToken) {
		p.Plan = []byte(strings.Replace(string(p.Plan), "Honest content.", "Forged content.", 1))
	})

	_, err := env.preview.Confirm(context.Background(), &services.ConfirmRequest{
		DocID:        docID,
		SessionID:    "sess-1",
		ConfirmToken: res.ConfirmToken,
		PreviewHash:  res.PreviewHash,
		Action:       "apply",
	})
	if domain.CodeOf(err) != domain.CodePlanHashMismatch {
		t.Errorf("expected plan_hash_mismatch, got %v", err)
	}
}
