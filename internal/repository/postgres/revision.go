package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"reviso/internal/domain"
	"reviso/internal/domain/models"
	"reviso/internal/domain/repositories"
)

// PostgresRevisionRepository implements the RevisionRepository interface
type PostgresRevisionRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewRevisionRepository creates a new revision repository
func NewRevisionRepository(config *RepositoryConfig) repositories.RevisionRepository {
	return &PostgresRevisionRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts a revision row. Revisions are append-only; there is no
// update path.
func (r *PostgresRevisionRepository) Create(ctx context.Context, rev *models.Revision) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (rev_id, doc_id, rev_no, parent_rev_id, created_by, change_summary)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, r.tables.Revisions)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		rev.ID,
		rev.DocID,
		rev.RevNo,
		rev.ParentRevID,
		rev.CreatedBy,
		nullableText(rev.ChangeSummary),
	).Scan(&rev.CreatedAt)

	if err != nil {
		return fmt.Errorf("create revision: %w", err)
	}
	return nil
}

// GetByID retrieves a revision by ID
func (r *PostgresRevisionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Revision, error) {
	query := fmt.Sprintf(`
		SELECT rev_id, doc_id, rev_no, parent_rev_id, created_by, COALESCE(change_summary, ''), created_at
		FROM %s
		WHERE rev_id = $1
	`, r.tables.Revisions)

	var rev models.Revision
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id).Scan(
		&rev.ID,
		&rev.DocID,
		&rev.RevNo,
		&rev.ParentRevID,
		&rev.CreatedBy,
		&rev.ChangeSummary,
		&rev.CreatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("revision %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get revision: %w", err)
	}

	return &rev, nil
}

// NextRevNo returns max(rev_no)+1 for the document, starting at 1
func (r *PostgresRevisionRepository) NextRevNo(ctx context.Context, docID uuid.UUID) (int64, error) {
	query := fmt.Sprintf(`
		SELECT COALESCE(MAX(rev_no), 0) + 1 FROM %s WHERE doc_id = $1
	`, r.tables.Revisions)

	var next int64
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, docID).Scan(&next); err != nil {
		return 0, fmt.Errorf("next revision number: %w", err)
	}
	return next, nil
}

// ListByDocument returns revisions newest-first plus the total count
func (r *PostgresRevisionRepository) ListByDocument(ctx context.Context, docID uuid.UUID, limit, offset int) ([]models.Revision, int, error) {
	executor := GetExecutor(ctx, r.pool)

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE doc_id = $1`, r.tables.Revisions)
	var total int
	if err := executor.QueryRow(ctx, countQuery, docID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count revisions: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT rev_id, doc_id, rev_no, parent_rev_id, created_by, COALESCE(change_summary, ''), created_at
		FROM %s
		WHERE doc_id = $1
		ORDER BY rev_no DESC
		LIMIT $2 OFFSET $3
	`, r.tables.Revisions)

	rows, err := executor.Query(ctx, query, docID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	var revisions []models.Revision
	for rows.Next() {
		var rev models.Revision
		if err := rows.Scan(
			&rev.ID,
			&rev.DocID,
			&rev.RevNo,
			&rev.ParentRevID,
			&rev.CreatedBy,
			&rev.ChangeSummary,
			&rev.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan revision: %w", err)
		}
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate revisions: %w", err)
	}

	return revisions, total, nil
}

// nullableText maps "" to SQL NULL so optional text columns stay NULL
func nullableText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
