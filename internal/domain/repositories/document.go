package repositories

import (
	"context"

	"github.com/google/uuid"

	"reviso/internal/domain/models"
)

// DocumentRepository persists document rows.
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)

	// UpdateCounts refreshes the denormalized block/char totals after a commit.
	UpdateCounts(ctx context.Context, id uuid.UUID, totalBlocks, totalChars int) error
}

// RevisionRepository persists the append-only revision chain.
type RevisionRepository interface {
	Create(ctx context.Context, rev *models.Revision) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Revision, error)

	// NextRevNo returns max(rev_no)+1 for the document, or 1 if none exist.
	NextRevNo(ctx context.Context, docID uuid.UUID) (int64, error)

	// ListByDocument returns revisions newest-first plus the total count.
	ListByDocument(ctx context.Context, docID uuid.UUID, limit, offset int) ([]models.Revision, int, error)
}

// ActiveRevisionRepository manages the mutable pointer from a document to its
// current revision.
type ActiveRevisionRepository interface {
	// Init creates the pointer at version 1 for a freshly uploaded document.
	Init(ctx context.Context, docID, revID uuid.UUID) error

	Get(ctx context.Context, docID uuid.UUID) (*models.ActiveRevision, error)

	// Swap atomically repoints the document to newRevID and increments the
	// version, guarded by expectedVersion. Returns the new version, or
	// domain.ErrStaleVersion when the guard fails.
	Swap(ctx context.Context, docID, newRevID uuid.UUID, expectedVersion int64) (int64, error)
}

// BlockRepository persists block identities and per-revision block versions.
type BlockRepository interface {
	CreateBlocks(ctx context.Context, blocks []models.Block) error

	// CreateVersions inserts the full version set of a revision. It rejects
	// any row that sets neither or both of content and parent version.
	CreateVersions(ctx context.Context, versions []models.BlockVersion) error

	// ListByRevision returns a revision's versions ordered by order_index.
	ListByRevision(ctx context.Context, revID uuid.UUID) ([]models.BlockVersion, error)

	GetVersion(ctx context.Context, blockID, revID uuid.UUID) (*models.BlockVersion, error)

	// Tombstone marks a block deleted as of the given revision.
	Tombstone(ctx context.Context, blockID, revID uuid.UUID) error
}

// EditOperationRepository persists the audit trail of applied operations.
type EditOperationRepository interface {
	CreateAll(ctx context.Context, ops []models.EditOperation) error
}
