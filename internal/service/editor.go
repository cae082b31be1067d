package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"reviso/internal/domain"
	"reviso/internal/domain/models"
	"reviso/internal/domain/repositories"
	"reviso/internal/domain/services"
	"reviso/internal/markdown"
	"reviso/internal/policy"
	"reviso/internal/splitter"
)

// editorService implements the EditorService interface: it is the single
// write path for edit plans.
type editorService struct {
	docRepo    repositories.DocumentRepository
	revRepo    repositories.RevisionRepository
	activeRepo repositories.ActiveRevisionRepository
	blockRepo  repositories.BlockRepository
	opRepo     repositories.EditOperationRepository
	txManager  repositories.TransactionManager
	policy     *policy.Policy
	logger     *slog.Logger
}

// NewEditorService creates a new editor service
func NewEditorService(
	docRepo repositories.DocumentRepository,
	revRepo repositories.RevisionRepository,
	activeRepo repositories.ActiveRevisionRepository,
	blockRepo repositories.BlockRepository,
	opRepo repositories.EditOperationRepository,
	txManager repositories.TransactionManager,
	pol *policy.Policy,
	logger *slog.Logger,
) services.EditorService {
	return &editorService{
		docRepo:    docRepo,
		revRepo:    revRepo,
		activeRepo: activeRepo,
		blockRepo:  blockRepo,
		opRepo:     opRepo,
		txManager:  txManager,
		policy:     pol,
		logger:     logger,
	}
}

// Apply validates and commits a plan. The first attempt runs against the
// caller's claimed base; a CAS miss rolls the transaction back, re-reads the
// active pointer, and re-validates the plan against the new base. After the
// retry budget is spent the caller gets concurrent_edit.
func (s *editorService) Apply(ctx context.Context, req *services.ApplyRequest) (*models.ApplyResult, error) {
	if len(req.Plan.Operations) == 0 {
		return nil, fmt.Errorf("%w: edit plan has no operations", domain.ErrValidation)
	}

	baseRevID := req.BaseRevID
	baseVersion := req.BaseVersion
	maxRetries := s.policy.Apply.MaxRetries

	for attempt := 0; ; attempt++ {
		result, err := s.applyOnce(ctx, req, baseRevID, baseVersion)
		if err == nil {
			s.logger.Info("edit plan applied",
				"doc_id", req.DocID,
				"new_rev_id", result.NewRevID,
				"new_version", result.NewVersion,
				"ops", result.OpsApplied,
				"attempt", attempt,
			)
			return result, nil
		}
		if !isStale(err) {
			return nil, s.classify(req.DocID, err)
		}
		if attempt >= maxRetries {
			s.logger.Warn("edit plan exhausted retry budget",
				"doc_id", req.DocID,
				"attempts", attempt+1,
			)
			return nil, domain.Coded(http.StatusConflict, domain.CodeConcurrentEdit,
				"document was modified concurrently")
		}

		active, aerr := s.activeRepo.Get(ctx, req.DocID)
		if aerr != nil {
			return nil, aerr
		}
		baseRevID = active.RevID
		baseVersion = active.Version
		s.logger.Debug("retrying edit plan against fresh base",
			"doc_id", req.DocID,
			"base_rev_id", baseRevID,
			"base_version", baseVersion,
		)
	}
}

func isStale(err error) bool {
	return errors.Is(err, domain.ErrStaleVersion)
}

// classify passes caller mistakes through untouched and folds unexpected
// storage failures into a generic apply_failed so internals do not leak.
func (s *editorService) classify(docID uuid.UUID, err error) error {
	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}
	if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	s.logger.Error("edit plan commit failed", "doc_id", docID, "error", err)
	return domain.Coded(http.StatusInternalServerError, domain.CodeApplyFailed,
		"could not apply edit plan")
}

// applyOnce runs one full validate-transform-commit attempt in a single
// transaction. A CAS miss surfaces as domain.ErrStaleVersion after rollback.
func (s *editorService) applyOnce(ctx context.Context, req *services.ApplyRequest, baseRevID uuid.UUID, baseVersion int64) (*models.ApplyResult, error) {
	var result models.ApplyResult

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		base, err := s.blockRepo.ListByRevision(txCtx, baseRevID)
		if err != nil {
			return err
		}

		// All operations validate before anything is written.
		byTarget, err := validatePlan(base, req.Plan.Operations)
		if err != nil {
			return err
		}

		revNo, err := s.revRepo.NextRevNo(txCtx, req.DocID)
		if err != nil {
			return err
		}

		parentRevID := baseRevID
		rev := &models.Revision{
			ID:            uuid.New(),
			DocID:         req.DocID,
			RevNo:         revNo,
			ParentRevID:   &parentRevID,
			CreatedBy:     req.CreatedBy,
			ChangeSummary: summarize(req.Plan.Operations),
		}
		if err := s.revRepo.Create(txCtx, rev); err != nil {
			return err
		}

		versions, newBlocks, tombstones := transform(base, byTarget, req.DocID, rev.ID)

		if len(newBlocks) > 0 {
			if err := s.blockRepo.CreateBlocks(txCtx, newBlocks); err != nil {
				return err
			}
		}
		if err := s.blockRepo.CreateVersions(txCtx, versions); err != nil {
			return err
		}
		for _, blockID := range tombstones {
			if err := s.blockRepo.Tombstone(txCtx, blockID, rev.ID); err != nil {
				return err
			}
		}

		audit := buildAuditRows(req, rev.ID, parentRevID, base)
		if err := s.opRepo.CreateAll(txCtx, audit); err != nil {
			return err
		}

		totalChars := 0
		for i := range versions {
			totalChars += len(versions[i].ContentMD)
		}
		if err := s.docRepo.UpdateCounts(txCtx, req.DocID, len(versions), totalChars); err != nil {
			return err
		}

		newVersion, err := s.activeRepo.Swap(txCtx, req.DocID, rev.ID, baseVersion)
		if err != nil {
			return err
		}

		result = models.ApplyResult{
			NewRevID:   rev.ID,
			NewRevNo:   revNo,
			NewVersion: newVersion,
			OpsApplied: len(req.Plan.Operations),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// validatePlan checks every operation against the base block set: the target
// must exist, at most one operation may address a block, and the evidence
// quote must be found in the target's plain text. Matching is exact-offset
// first when offsets are supplied, then normalized substring.
func validatePlan(base []models.BlockVersion, ops []models.EditOp) (map[uuid.UUID]*models.EditOp, error) {
	baseByBlock := make(map[uuid.UUID]*models.BlockVersion, len(base))
	for i := range base {
		baseByBlock[base[i].BlockID] = &base[i]
	}

	byTarget := make(map[uuid.UUID]*models.EditOp, len(ops))
	for i := range ops {
		op := &ops[i]

		target, ok := baseByBlock[op.TargetBlockID]
		if !ok {
			return nil, domain.Coded(http.StatusUnprocessableEntity, domain.CodeTargetBlockNotFound,
				fmt.Sprintf("target block %s not found in base revision", op.TargetBlockID))
		}
		if _, dup := byTarget[op.TargetBlockID]; dup {
			return nil, fmt.Errorf("%w: block %s is targeted by more than one operation",
				domain.ErrValidation, op.TargetBlockID)
		}
		if !evidenceMatches(target.PlainText, op.Evidence) {
			return nil, domain.Coded(http.StatusUnprocessableEntity, domain.CodeEvidenceQuoteNotFound,
				fmt.Sprintf("evidence quote not found in target block: %q", op.Evidence.Text))
		}
		if op.OpType != models.OpDelete && op.NewContentMD == "" {
			return nil, fmt.Errorf("%w: %s operation requires new content", domain.ErrValidation, op.OpType)
		}

		byTarget[op.TargetBlockID] = op
	}
	return byTarget, nil
}

// evidenceMatches verifies a quote against a block's plain text. With valid
// offsets the exact slice is compared first; the normalized substring check
// is the fallback, tolerant of whitespace and punctuation drift.
func evidenceMatches(plainText string, ev models.EvidenceQuote) bool {
	if ev.Text == "" {
		return false
	}
	if ev.Start >= 0 && ev.End > ev.Start {
		runes := []rune(plainText)
		if ev.End <= len(runes) && string(runes[ev.Start:ev.End]) == ev.Text {
			return true
		}
	}
	norm := markdown.Normalize(ev.Text)
	return norm != "" && strings.Contains(markdown.Normalize(plainText), norm)
}

// transform walks the base set in order and produces the next revision's
// full version set, any new block identities, and the blocks to tombstone.
// Order indices are reassigned at the standard stride.
func transform(base []models.BlockVersion, byTarget map[uuid.UUID]*models.EditOp, docID, newRevID uuid.UUID) ([]models.BlockVersion, []models.Block, []uuid.UUID) {
	var versions []models.BlockVersion
	var newBlocks []models.Block
	var tombstones []uuid.UUID

	for i := range base {
		block := &base[i]
		op := byTarget[block.BlockID]

		if op == nil {
			versions = append(versions, carryOver(block, newRevID))
			continue
		}

		switch op.OpType {
		case models.OpReplace:
			replaced := carryOver(block, newRevID)
			replaced.ContentMD = op.NewContentMD
			replaced.PlainText = markdown.Strip(op.NewContentMD)
			replaced.ContentHash = markdown.HashContent(op.NewContentMD)
			versions = append(versions, replaced)

		case models.OpDelete:
			tombstones = append(tombstones, block.BlockID)

		case models.OpInsertAfter:
			versions = append(versions, carryOver(block, newRevID))
			inserted, identity := insertedBlock(op, docID, newRevID, block)
			newBlocks = append(newBlocks, identity)
			versions = append(versions, inserted)

		case models.OpInsertBefore:
			inserted, identity := insertedBlock(op, docID, newRevID, block)
			newBlocks = append(newBlocks, identity)
			versions = append(versions, inserted)
			versions = append(versions, carryOver(block, newRevID))
		}
	}

	for i := range versions {
		versions[i].OrderIndex = int64(i) * splitter.OrderStride
	}
	return versions, newBlocks, tombstones
}

// carryOver copies a block version into the new revision unchanged.
func carryOver(block *models.BlockVersion, newRevID uuid.UUID) models.BlockVersion {
	return models.BlockVersion{
		ID:                   uuid.New(),
		BlockID:              block.BlockID,
		RevID:                newRevID,
		BlockType:            block.BlockType,
		HeadingLevel:         block.HeadingLevel,
		ParentHeadingBlockID: block.ParentHeadingBlockID,
		ContentMD:            block.ContentMD,
		PlainText:            block.PlainText,
		ContentHash:          block.ContentHash,
	}
}

// insertedBlock mints a new block identity next to the anchor. The new block
// is a paragraph inheriting the anchor's parent heading.
func insertedBlock(op *models.EditOp, docID, newRevID uuid.UUID, anchor *models.BlockVersion) (models.BlockVersion, models.Block) {
	blockID := uuid.New()
	identity := models.Block{
		ID:         blockID,
		DocID:      docID,
		FirstRevID: newRevID,
	}
	version := models.BlockVersion{
		ID:                   uuid.New(),
		BlockID:              blockID,
		RevID:                newRevID,
		BlockType:            models.BlockTypeParagraph,
		ParentHeadingBlockID: anchor.ParentHeadingBlockID,
		ContentMD:            op.NewContentMD,
		PlainText:            markdown.Strip(op.NewContentMD),
		ContentHash:          markdown.HashContent(op.NewContentMD),
	}
	return version, identity
}

// buildAuditRows produces one edit_operations row per plan operation.
func buildAuditRows(req *services.ApplyRequest, revID, parentRevID uuid.UUID, base []models.BlockVersion) []models.EditOperation {
	hashByBlock := make(map[uuid.UUID]string, len(base))
	for i := range base {
		hashByBlock[base[i].BlockID] = base[i].ContentHash
	}

	rows := make([]models.EditOperation, 0, len(req.Plan.Operations))
	for _, op := range req.Plan.Operations {
		row := models.EditOperation{
			ID:            uuid.New(),
			DocID:         req.DocID,
			RevID:         revID,
			ParentRevID:   &parentRevID,
			TraceID:       req.TraceID,
			UserID:        req.UserID,
			OpType:        op.OpType,
			TargetBlockID: op.TargetBlockID,
			EvidenceQuote: op.Evidence.Text,
			BeforeHash:    hashByBlock[op.TargetBlockID],
			Rationale:     op.Rationale,
			Status:        "applied",
		}
		if op.Evidence.Start >= 0 && op.Evidence.End > op.Evidence.Start {
			start, end := op.Evidence.Start, op.Evidence.End
			row.QuoteStart = &start
			row.QuoteEnd = &end
		}
		if op.OpType != models.OpDelete {
			row.AfterHash = markdown.HashContent(op.NewContentMD)
		}
		rows = append(rows, row)
	}
	return rows
}

// summarize generates a human-readable change summary from op counts.
func summarize(ops []models.EditOp) string {
	counts := map[models.OpType]int{}
	for _, op := range ops {
		counts[op.OpType]++
	}

	var parts []string
	if n := counts[models.OpReplace]; n > 0 {
		parts = append(parts, fmt.Sprintf("replaced %d block(s)", n))
	}
	if n := counts[models.OpDelete]; n > 0 {
		parts = append(parts, fmt.Sprintf("deleted %d block(s)", n))
	}
	if n := counts[models.OpInsertAfter] + counts[models.OpInsertBefore]; n > 0 {
		parts = append(parts, fmt.Sprintf("inserted %d block(s)", n))
	}
	if len(parts) == 0 {
		return "edited content"
	}
	return strings.Join(parts, ", ")
}
