package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"reviso/internal/domain"
	"reviso/internal/domain/models"
	"reviso/internal/domain/repositories"
	"reviso/internal/domain/services"
	"reviso/internal/markdown"
	"reviso/internal/policy"
)

// previewService implements the PreviewService interface: the read side of
// the preview/confirm protocol plus the token handshake around Apply.
type previewService struct {
	activeRepo repositories.ActiveRevisionRepository
	blockRepo  repositories.BlockRepository
	tokens     repositories.TokenStore
	editor     services.EditorService
	policy     *policy.Policy
	logger     *slog.Logger
}

// NewPreviewService creates a new preview service
func NewPreviewService(
	activeRepo repositories.ActiveRevisionRepository,
	blockRepo repositories.BlockRepository,
	tokens repositories.TokenStore,
	editor services.EditorService,
	pol *policy.Policy,
	logger *slog.Logger,
) services.PreviewService {
	return &previewService{
		activeRepo: activeRepo,
		blockRepo:  blockRepo,
		tokens:     tokens,
		editor:     editor,
		policy:     pol,
		logger:     logger,
	}
}

// PreviewPlan diffs a caller-supplied plan against the active revision and
// issues a confirm token bound to the state the diff was computed from.
func (s *previewService) PreviewPlan(ctx context.Context, req *services.PreviewRequest) (*services.PreviewResult, error) {
	if len(req.Plan.Operations) == 0 {
		return nil, fmt.Errorf("%w: edit plan has no operations", domain.ErrValidation)
	}
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", domain.ErrValidation)
	}

	active, base, err := s.loadActive(ctx, req.DocID)
	if err != nil {
		return nil, err
	}

	preview, err := s.buildPreview(base, req.Plan)
	if err != nil {
		return nil, err
	}

	// Plans that opt out of confirmation commit immediately; everything else
	// goes through the token handshake.
	if !req.Plan.RequiresConfirmation {
		result, err := s.editor.Apply(ctx, &services.ApplyRequest{
			DocID:       req.DocID,
			BaseRevID:   active.RevID,
			BaseVersion: active.Version,
			Plan:        req.Plan,
			UserID:      req.UserID,
			CreatedBy:   "ai",
			TraceID:     req.TraceID,
		})
		if err != nil {
			return nil, err
		}
		return &services.PreviewResult{Preview: *preview, Applied: result}, nil
	}

	return s.issueToken(ctx, req.DocID, req.SessionID, active, req.Plan, preview)
}

// PreviewBulk discovers blocks matching a rule, synthesizes a replace plan,
// and previews it. The match cap is enforced before any diffing happens.
func (s *previewService) PreviewBulk(ctx context.Context, req *services.BulkPreviewRequest) (*services.PreviewResult, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", domain.ErrValidation)
	}

	active, base, err := s.loadActive(ctx, req.DocID)
	if err != nil {
		return nil, err
	}

	headings := headingTexts(base)
	matched, err := discoverBulkMatches(base, req.Rule, req.Scope, headings)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("%w: rule matched no blocks", domain.ErrValidation)
	}

	// The cap counts every matched block, before no-op replacements are
	// dropped: a too-broad rule is rejected even when parts of it would
	// change nothing.
	limit := req.MaxChanges
	if limit <= 0 || limit > s.policy.Bulk.MaxChanges {
		limit = s.policy.Bulk.MaxChanges
	}
	if len(matched) > limit {
		return nil, scopeTooLarge(len(matched), limit)
	}

	matches := changedOnly(matched)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: rule produced no changes", domain.ErrValidation)
	}

	plan := synthesizePlan(matches)
	preview, err := s.buildPreview(base, plan)
	if err != nil {
		return nil, err
	}

	s.logger.Info("bulk preview generated",
		"doc_id", req.DocID,
		"match_type", req.Rule.Type,
		"matches", len(matches),
		"impact", preview.EstimatedImpact,
	)

	return s.issueToken(ctx, req.DocID, req.SessionID, active, plan, preview)
}

// Confirm applies or cancels a previewed plan. The token is single-use: every
// outcome past the existence check consumes it, except a doc/session mismatch
// which may be someone probing another session's token.
func (s *previewService) Confirm(ctx context.Context, req *services.ConfirmRequest) (*services.ConfirmResult, error) {
	raw, err := s.tokens.Get(ctx, req.SessionID, req.ConfirmToken)
	if err != nil {
		return nil, domain.Coded(http.StatusNotFound, domain.CodeInvalidToken,
			"confirm token not found or already used")
	}

	var payload models.ConfirmToken
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.deleteToken(ctx, req.SessionID, req.ConfirmToken)
		return nil, domain.Coded(http.StatusNotFound, domain.CodeInvalidToken, "confirm token is unreadable")
	}

	if payload.DocID != req.DocID {
		return nil, domain.Coded(http.StatusForbidden, domain.CodeTokenMismatch,
			"confirm token was issued for a different document")
	}
	if payload.SessionID != req.SessionID {
		return nil, domain.Coded(http.StatusForbidden, domain.CodeTokenMismatch,
			"confirm token was issued for a different session")
	}

	if time.Now().After(payload.ExpiresAt) {
		s.deleteToken(ctx, req.SessionID, req.ConfirmToken)
		return nil, domain.Coded(http.StatusGone, domain.CodeTokenExpired,
			"confirm token expired; preview again")
	}

	active, err := s.activeRepo.Get(ctx, req.DocID)
	if err != nil {
		return nil, domain.Coded(http.StatusNotFound, domain.CodeDocNotFound, "document not found")
	}

	if active.RevID != payload.BaseRevID {
		s.deleteToken(ctx, req.SessionID, req.ConfirmToken)
		cerr := domain.Coded(http.StatusConflict, domain.CodeDocumentModified,
			"document changed since the preview; preview again")
		cerr.Extra = map[string]interface{}{
			"current_rev_id": active.RevID,
			"token_rev_id":   payload.BaseRevID,
		}
		return nil, cerr
	}
	if active.Version != payload.BaseVersion {
		s.deleteToken(ctx, req.SessionID, req.ConfirmToken)
		cerr := domain.Coded(http.StatusConflict, domain.CodeVersionMismatch,
			"document version changed since the preview; preview again")
		cerr.Extra = map[string]interface{}{
			"current_version": active.Version,
			"token_version":   payload.BaseVersion,
		}
		return nil, cerr
	}

	if req.Action == "cancel" {
		s.deleteToken(ctx, req.SessionID, req.ConfirmToken)
		return &services.ConfirmResult{Status: "cancelled", Message: "edit plan discarded"}, nil
	}

	if req.PreviewHash == "" {
		s.deleteToken(ctx, req.SessionID, req.ConfirmToken)
		return nil, domain.Coded(http.StatusBadRequest, domain.CodeMissingPreviewHash,
			"preview_hash is required to apply")
	}
	if req.PreviewHash != payload.PreviewHash {
		s.deleteToken(ctx, req.SessionID, req.ConfirmToken)
		return nil, domain.Coded(http.StatusConflict, domain.CodePreviewHashMismatch,
			"preview_hash does not match the previewed diff")
	}
	if hashBytes(payload.Plan) != payload.PlanHash {
		s.deleteToken(ctx, req.SessionID, req.ConfirmToken)
		return nil, domain.Coded(http.StatusConflict, domain.CodePlanHashMismatch,
			"stored edit plan does not match its hash")
	}

	var plan models.EditPlan
	if err := json.Unmarshal(payload.Plan, &plan); err != nil {
		s.deleteToken(ctx, req.SessionID, req.ConfirmToken)
		return nil, domain.Coded(http.StatusConflict, domain.CodePlanHashMismatch,
			"stored edit plan is unreadable")
	}

	// Consume the token before handing off: a failed apply must not leave a
	// replayable token behind.
	s.deleteToken(ctx, req.SessionID, req.ConfirmToken)

	result, err := s.editor.Apply(ctx, &services.ApplyRequest{
		DocID:       req.DocID,
		BaseRevID:   payload.BaseRevID,
		BaseVersion: payload.BaseVersion,
		Plan:        plan,
		UserID:      req.UserID,
		CreatedBy:   "ai",
		TraceID:     req.TraceID,
	})
	if err != nil {
		return nil, err
	}

	exportMD := ""
	if versions, lerr := s.blockRepo.ListByRevision(ctx, result.NewRevID); lerr == nil {
		exportMD = joinBlocks(versions)
	} else {
		s.logger.Warn("could not export new revision after confirm",
			"doc_id", req.DocID, "rev_id", result.NewRevID, "error", lerr)
	}

	return &services.ConfirmResult{
		Status:   "applied",
		Result:   result,
		ExportMD: exportMD,
	}, nil
}

func (s *previewService) loadActive(ctx context.Context, docID uuid.UUID) (*models.ActiveRevision, []models.BlockVersion, error) {
	active, err := s.activeRepo.Get(ctx, docID)
	if err != nil {
		return nil, nil, err
	}
	base, err := s.blockRepo.ListByRevision(ctx, active.RevID)
	if err != nil {
		return nil, nil, err
	}
	return active, base, nil
}

// buildPreview computes the per-block diff aggregate for a plan against the
// base block set.
func (s *previewService) buildPreview(base []models.BlockVersion, plan models.EditPlan) (*models.PreviewDiff, error) {
	baseByBlock := make(map[uuid.UUID]*models.BlockVersion, len(base))
	for i := range base {
		baseByBlock[base[i].BlockID] = &base[i]
	}
	headings := headingTexts(base)

	snippetLen := s.policy.Preview.SnippetLength
	insertLen := s.policy.Preview.InsertSnippetLength

	diffs := make([]models.DiffItem, 0, len(plan.Operations))
	grouped := make(map[string]int)
	charsAdded, charsRemoved := 0, 0

	for _, op := range plan.Operations {
		target, ok := baseByBlock[op.TargetBlockID]
		if !ok {
			return nil, domain.Coded(http.StatusUnprocessableEntity, domain.CodeTargetBlockNotFound,
				fmt.Sprintf("target block %s not found in active revision", op.TargetBlockID))
		}

		ctx := headingContext(target, headings)
		before := truncate(target.PlainText, snippetLen)
		item := models.DiffItem{
			BlockID:        op.TargetBlockID,
			OpType:         op.OpType,
			BeforeSnippet:  before,
			HeadingContext: ctx,
		}

		switch op.OpType {
		case models.OpReplace:
			item.AfterSnippet = truncate(markdown.Strip(op.NewContentMD), snippetLen)
			item.CharDiff = len(op.NewContentMD) - len(target.ContentMD)
		case models.OpDelete:
			item.AfterSnippet = "[deleted]"
			item.CharDiff = -len(target.ContentMD)
		case models.OpInsertAfter, models.OpInsertBefore:
			item.AfterSnippet = before + "\n\n[inserted] " + truncate(markdown.Strip(op.NewContentMD), insertLen)
			item.CharDiff = len(op.NewContentMD)
		default:
			return nil, fmt.Errorf("%w: unknown op type %q", domain.ErrValidation, op.OpType)
		}

		if item.CharDiff > 0 {
			charsAdded += item.CharDiff
		} else {
			charsRemoved += -item.CharDiff
		}
		grouped[ctx]++
		diffs = append(diffs, item)
	}

	return &models.PreviewDiff{
		Diffs:             diffs,
		TotalChanges:      len(diffs),
		EstimatedImpact:   s.policy.EstimateImpact(len(diffs)),
		GroupedByHeading:  grouped,
		TotalCharsAdded:   charsAdded,
		TotalCharsRemoved: charsRemoved,
	}, nil
}

// issueToken stores a single-use confirm token binding the preview to the
// active revision and version it was computed from.
func (s *previewService) issueToken(ctx context.Context, docID uuid.UUID, sessionID string, active *models.ActiveRevision, plan models.EditPlan, preview *models.PreviewDiff) (*services.PreviewResult, error) {
	planBytes, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("marshal edit plan: %w", err)
	}
	previewBytes, err := json.Marshal(preview)
	if err != nil {
		return nil, fmt.Errorf("marshal preview: %w", err)
	}

	now := time.Now().UTC()
	ttl := s.policy.TokenTTL()
	payload := models.ConfirmToken{
		TokenID:     uuid.NewString(),
		SessionID:   sessionID,
		DocID:       docID,
		BaseRevID:   active.RevID,
		BaseVersion: active.Version,
		PreviewHash: hashBytes(previewBytes),
		PlanHash:    hashBytes(planBytes),
		Plan:        planBytes,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	raw, err := json.Marshal(&payload)
	if err != nil {
		return nil, fmt.Errorf("marshal confirm token: %w", err)
	}
	if err := s.tokens.Put(ctx, sessionID, payload.TokenID, raw, ttl); err != nil {
		return nil, err
	}

	return &services.PreviewResult{
		Preview:      *preview,
		ConfirmToken: payload.TokenID,
		PreviewHash:  payload.PreviewHash,
	}, nil
}

func (s *previewService) deleteToken(ctx context.Context, sessionID, tokenID string) {
	if err := s.tokens.Delete(ctx, sessionID, tokenID); err != nil {
		s.logger.Warn("could not delete confirm token", "session_id", sessionID, "error", err)
	}
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
