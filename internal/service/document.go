package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"reviso/internal/config"
	"reviso/internal/domain"
	"reviso/internal/domain/models"
	"reviso/internal/domain/repositories"
	"reviso/internal/domain/services"
	"reviso/internal/policy"
	"reviso/internal/splitter"
)

// documentService implements the DocumentService interface
type documentService struct {
	docRepo    repositories.DocumentRepository
	revRepo    repositories.RevisionRepository
	activeRepo repositories.ActiveRevisionRepository
	blockRepo  repositories.BlockRepository
	txManager  repositories.TransactionManager
	splitter   *splitter.Splitter
	policy     *policy.Policy
	logger     *slog.Logger
}

// NewDocumentService creates a new document service
func NewDocumentService(
	docRepo repositories.DocumentRepository,
	revRepo repositories.RevisionRepository,
	activeRepo repositories.ActiveRevisionRepository,
	blockRepo repositories.BlockRepository,
	txManager repositories.TransactionManager,
	pol *policy.Policy,
	logger *slog.Logger,
) services.DocumentService {
	return &documentService{
		docRepo:    docRepo,
		revRepo:    revRepo,
		activeRepo: activeRepo,
		blockRepo:  blockRepo,
		txManager:  txManager,
		splitter:   splitter.New(pol.Splitter.MinBlockSize, pol.Splitter.TargetBlockSize, pol.Splitter.MaxBlockSize),
		policy:     pol,
		logger:     logger,
	}
}

// Upload splits the markdown and creates document, first revision, blocks,
// block versions and the active pointer in one transaction.
func (s *documentService) Upload(ctx context.Context, req *services.UploadRequest) (*services.UploadResult, error) {
	if err := s.validateUpload(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	split := s.splitter.Split(req.Content)

	docID := uuid.New()
	revID := uuid.New()

	totalChars := 0
	for i := range split {
		totalChars += len(split[i].ContentMD)
	}

	sourceFilename := req.SourceFilename
	if sourceFilename == "" {
		sourceFilename = req.Title + ".md"
	}
	sourceFormat := req.SourceFormat
	if sourceFormat == "" {
		sourceFormat = "md"
	}

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		doc := &models.Document{
			ID:             docID,
			UserID:         req.UserID,
			Title:          req.Title,
			SourceFilename: sourceFilename,
			SourceFormat:   sourceFormat,
			TotalBlocks:    len(split),
			TotalChars:     totalChars,
		}
		if err := s.docRepo.Create(txCtx, doc); err != nil {
			return err
		}

		rev := &models.Revision{
			ID:        revID,
			DocID:     docID,
			RevNo:     1,
			CreatedBy: "user",
		}
		if err := s.revRepo.Create(txCtx, rev); err != nil {
			return err
		}

		blocks := make([]models.Block, 0, len(split))
		versions := make([]models.BlockVersion, 0, len(split))
		for i := range split {
			b := &split[i]
			blocks = append(blocks, models.Block{
				ID:         b.BlockID,
				DocID:      docID,
				FirstRevID: revID,
			})
			versions = append(versions, models.BlockVersion{
				ID:                   uuid.New(),
				BlockID:              b.BlockID,
				RevID:                revID,
				OrderIndex:           b.OrderIndex,
				BlockType:            b.BlockType,
				HeadingLevel:         b.HeadingLevel,
				ParentHeadingBlockID: b.ParentHeadingBlockID,
				ContentMD:            b.ContentMD,
				PlainText:            b.PlainText,
				ContentHash:          b.ContentHash,
			})
		}
		if err := s.blockRepo.CreateBlocks(txCtx, blocks); err != nil {
			return err
		}
		if err := s.blockRepo.CreateVersions(txCtx, versions); err != nil {
			return err
		}

		return s.activeRepo.Init(txCtx, docID, revID)
	})
	if err != nil {
		return nil, fmt.Errorf("upload document: %w", err)
	}

	s.logger.Info("document uploaded",
		"doc_id", docID,
		"rev_id", revID,
		"blocks", len(split),
		"chars", totalChars,
	)

	return &services.UploadResult{
		DocID:      docID,
		RevID:      revID,
		BlockCount: len(split),
		Title:      req.Title,
	}, nil
}

func (s *documentService) validateUpload(req *services.UploadRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Title, validation.Required, validation.Length(1, config.MaxTitleLength)),
		validation.Field(&req.Content, validation.Required),
	)
}

// Export reconstructs a revision's markdown by joining its block contents
// with blank lines. A nil revID resolves to the active revision.
func (s *documentService) Export(ctx context.Context, docID uuid.UUID, revID *uuid.UUID) (*services.ExportResult, error) {
	var resolved uuid.UUID
	if revID != nil {
		resolved = *revID
	} else {
		active, err := s.activeRepo.Get(ctx, docID)
		if err != nil {
			return nil, err
		}
		resolved = active.RevID
	}

	versions, err := s.blockRepo.ListByRevision(ctx, resolved)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("revision %s has no blocks: %w", resolved, domain.ErrNotFound)
	}

	return &services.ExportResult{
		DocID:   docID,
		RevID:   resolved,
		Content: joinBlocks(versions),
	}, nil
}

// ListRevisions returns the revision chain newest-first with the active one marked
func (s *documentService) ListRevisions(ctx context.Context, docID uuid.UUID, limit, offset int) (*services.RevisionList, error) {
	if limit <= 0 {
		limit = config.DefaultRevisionPageSize
	}
	if limit > config.MaxRevisionPageSize {
		limit = config.MaxRevisionPageSize
	}
	if offset < 0 {
		offset = 0
	}

	active, err := s.activeRepo.Get(ctx, docID)
	if err != nil {
		return nil, err
	}

	revisions, total, err := s.revRepo.ListByDocument(ctx, docID, limit, offset)
	if err != nil {
		return nil, err
	}

	infos := make([]services.RevisionInfo, 0, len(revisions))
	for _, rev := range revisions {
		infos = append(infos, services.RevisionInfo{
			RevID:         rev.ID,
			RevNo:         rev.RevNo,
			CreatedBy:     rev.CreatedBy,
			ChangeSummary: rev.ChangeSummary,
			CreatedAt:     rev.CreatedAt.Format(time.RFC3339),
			IsActive:      rev.ID == active.RevID,
		})
	}

	return &services.RevisionList{Revisions: infos, Total: total}, nil
}

// Rollback creates a new revision copying the target revision's block
// versions verbatim, committed through the same CAS guard as edits.
func (s *documentService) Rollback(ctx context.Context, req *services.RollbackRequest) (*models.ApplyResult, error) {
	target, err := s.revRepo.GetByID(ctx, req.TargetRevID)
	if err != nil {
		return nil, err
	}
	if target.DocID != req.DocID {
		return nil, fmt.Errorf("revision %s does not belong to document %s: %w",
			req.TargetRevID, req.DocID, domain.ErrNotFound)
	}

	targetVersions, err := s.blockRepo.ListByRevision(ctx, req.TargetRevID)
	if err != nil {
		return nil, err
	}
	if len(targetVersions) == 0 {
		return nil, fmt.Errorf("revision %s has no blocks: %w", req.TargetRevID, domain.ErrNotFound)
	}

	maxRetries := s.policy.Apply.MaxRetries
	for attempt := 0; ; attempt++ {
		result, err := s.rollbackOnce(ctx, req.DocID, target, targetVersions)
		if err == nil {
			s.logger.Info("document rolled back",
				"doc_id", req.DocID,
				"target_rev_id", req.TargetRevID,
				"new_rev_id", result.NewRevID,
				"attempt", attempt,
			)
			return result, nil
		}
		if !isStale(err) || attempt >= maxRetries {
			if isStale(err) {
				return nil, domain.Coded(http.StatusConflict, domain.CodeConcurrentEdit,
					"document was modified concurrently")
			}
			return nil, err
		}
	}
}

func (s *documentService) rollbackOnce(ctx context.Context, docID uuid.UUID, target *models.Revision, targetVersions []models.BlockVersion) (*models.ApplyResult, error) {
	var result models.ApplyResult

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		active, err := s.activeRepo.Get(txCtx, docID)
		if err != nil {
			return err
		}

		revNo, err := s.revRepo.NextRevNo(txCtx, docID)
		if err != nil {
			return err
		}

		targetRevID := target.ID
		rev := &models.Revision{
			ID:            uuid.New(),
			DocID:         docID,
			RevNo:         revNo,
			ParentRevID:   &targetRevID,
			CreatedBy:     "system",
			ChangeSummary: fmt.Sprintf("rolled back to revision %d", target.RevNo),
		}
		if err := s.revRepo.Create(txCtx, rev); err != nil {
			return err
		}

		copies := make([]models.BlockVersion, 0, len(targetVersions))
		totalChars := 0
		for i := range targetVersions {
			v := targetVersions[i]
			v.ID = uuid.New()
			v.RevID = rev.ID
			v.ParentVersionID = nil
			copies = append(copies, v)
			totalChars += len(v.ContentMD)
		}
		if err := s.blockRepo.CreateVersions(txCtx, copies); err != nil {
			return err
		}

		if err := s.docRepo.UpdateCounts(txCtx, docID, len(copies), totalChars); err != nil {
			return err
		}

		newVersion, err := s.activeRepo.Swap(txCtx, docID, rev.ID, active.Version)
		if err != nil {
			return err
		}

		result = models.ApplyResult{
			NewRevID:   rev.ID,
			NewRevNo:   revNo,
			NewVersion: newVersion,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func joinBlocks(versions []models.BlockVersion) string {
	parts := make([]string, 0, len(versions))
	for i := range versions {
		parts = append(parts, versions[i].ContentMD)
	}
	return strings.Join(parts, "\n\n")
}
