package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"reviso/internal/domain"
	"reviso/internal/domain/models"
	"reviso/internal/domain/repositories"
)

// PostgresActiveRevisionRepository implements the ActiveRevisionRepository
// interface. Swap is the single point where concurrent commits are decided.
type PostgresActiveRevisionRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewActiveRevisionRepository creates a new active revision repository
func NewActiveRevisionRepository(config *RepositoryConfig) repositories.ActiveRevisionRepository {
	return &PostgresActiveRevisionRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Init creates the pointer at version 1 for a new document
func (r *PostgresActiveRevisionRepository) Init(ctx context.Context, docID, revID uuid.UUID) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (doc_id, rev_id, version)
		VALUES ($1, $2, 1)
	`, r.tables.ActiveRevisions)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, docID, revID); err != nil {
		if IsPgDuplicateError(err) {
			return fmt.Errorf("active revision for document %s: %w", docID, domain.ErrConflict)
		}
		return fmt.Errorf("init active revision: %w", err)
	}
	return nil
}

// Get retrieves the active revision pointer for a document
func (r *PostgresActiveRevisionRepository) Get(ctx context.Context, docID uuid.UUID) (*models.ActiveRevision, error) {
	query := fmt.Sprintf(`
		SELECT doc_id, rev_id, version, updated_at
		FROM %s
		WHERE doc_id = $1
	`, r.tables.ActiveRevisions)

	var active models.ActiveRevision
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, docID).Scan(
		&active.DocID,
		&active.RevID,
		&active.Version,
		&active.UpdatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("active revision for document %s: %w", docID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get active revision: %w", err)
	}

	return &active, nil
}

// Swap performs the compare-and-swap commit: the pointer moves to newRevID
// and version increments only if version still equals expectedVersion.
// A guard miss returns domain.ErrStaleVersion so the caller can roll back
// the surrounding transaction and retry against fresh state.
func (r *PostgresActiveRevisionRepository) Swap(ctx context.Context, docID, newRevID uuid.UUID, expectedVersion int64) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET rev_id = $1, version = version + 1, updated_at = now()
		WHERE doc_id = $2 AND version = $3
		RETURNING version
	`, r.tables.ActiveRevisions)

	var newVersion int64
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, newRevID, docID, expectedVersion).Scan(&newVersion)

	if err != nil {
		if IsPgNoRowsError(err) {
			return 0, fmt.Errorf("swap active revision for document %s (expected version %d): %w",
				docID, expectedVersion, domain.ErrStaleVersion)
		}
		return 0, fmt.Errorf("swap active revision: %w", err)
	}

	return newVersion, nil
}
