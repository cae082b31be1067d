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

// PostgresBlockRepository implements the BlockRepository interface
type PostgresBlockRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewBlockRepository creates a new block repository
func NewBlockRepository(config *RepositoryConfig) repositories.BlockRepository {
	return &PostgresBlockRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateBlocks inserts block identity rows
func (r *PostgresBlockRepository) CreateBlocks(ctx context.Context, blocks []models.Block) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (block_id, doc_id, first_rev_id)
		VALUES ($1, $2, $3)
	`, r.tables.Blocks)

	executor := GetExecutor(ctx, r.pool)
	for i := range blocks {
		b := &blocks[i]
		if _, err := executor.Exec(ctx, query, b.ID, b.DocID, b.FirstRevID); err != nil {
			return fmt.Errorf("create block %s: %w", b.ID, err)
		}
	}
	return nil
}

// CreateVersions inserts the block versions of a revision. The content-or-
// parent invariant is checked here before any write, in addition to the
// database constraint, so a bad batch fails cleanly with a domain error.
func (r *PostgresBlockRepository) CreateVersions(ctx context.Context, versions []models.BlockVersion) error {
	for i := range versions {
		v := &versions[i]
		hasContent := v.ContentMD != ""
		hasParent := v.ParentVersionID != nil
		if hasContent == hasParent {
			return fmt.Errorf("%w: block version %s must set exactly one of content and parent version",
				domain.ErrValidation, v.ID)
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (block_version_id, block_id, rev_id, order_index, block_type,
		                heading_level, parent_heading_block_id, content_md, plain_text,
		                content_hash, parent_version_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.tables.BlockVersions)

	executor := GetExecutor(ctx, r.pool)
	for i := range versions {
		v := &versions[i]
		_, err := executor.Exec(ctx, query,
			v.ID,
			v.BlockID,
			v.RevID,
			v.OrderIndex,
			v.BlockType,
			v.HeadingLevel,
			v.ParentHeadingBlockID,
			v.ContentMD,
			v.PlainText,
			v.ContentHash,
			v.ParentVersionID,
		)
		if err != nil {
			return fmt.Errorf("create block version %s: %w", v.ID, err)
		}
	}
	return nil
}

// ListByRevision returns a revision's block versions ordered by order_index
func (r *PostgresBlockRepository) ListByRevision(ctx context.Context, revID uuid.UUID) ([]models.BlockVersion, error) {
	query := fmt.Sprintf(`
		SELECT block_version_id, block_id, rev_id, order_index, block_type,
		       heading_level, parent_heading_block_id, COALESCE(content_md, ''),
		       COALESCE(plain_text, ''), content_hash, parent_version_id, created_at
		FROM %s
		WHERE rev_id = $1
		ORDER BY order_index
	`, r.tables.BlockVersions)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, revID)
	if err != nil {
		return nil, fmt.Errorf("list block versions: %w", err)
	}
	defer rows.Close()

	var versions []models.BlockVersion
	for rows.Next() {
		var v models.BlockVersion
		if err := rows.Scan(
			&v.ID,
			&v.BlockID,
			&v.RevID,
			&v.OrderIndex,
			&v.BlockType,
			&v.HeadingLevel,
			&v.ParentHeadingBlockID,
			&v.ContentMD,
			&v.PlainText,
			&v.ContentHash,
			&v.ParentVersionID,
			&v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan block version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate block versions: %w", err)
	}

	return versions, nil
}

// GetVersion retrieves one block's version within a revision
func (r *PostgresBlockRepository) GetVersion(ctx context.Context, blockID, revID uuid.UUID) (*models.BlockVersion, error) {
	query := fmt.Sprintf(`
		SELECT block_version_id, block_id, rev_id, order_index, block_type,
		       heading_level, parent_heading_block_id, COALESCE(content_md, ''),
		       COALESCE(plain_text, ''), content_hash, parent_version_id, created_at
		FROM %s
		WHERE block_id = $1 AND rev_id = $2
	`, r.tables.BlockVersions)

	var v models.BlockVersion
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, blockID, revID).Scan(
		&v.ID,
		&v.BlockID,
		&v.RevID,
		&v.OrderIndex,
		&v.BlockType,
		&v.HeadingLevel,
		&v.ParentHeadingBlockID,
		&v.ContentMD,
		&v.PlainText,
		&v.ContentHash,
		&v.ParentVersionID,
		&v.CreatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("block %s in revision %s: %w", blockID, revID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get block version: %w", err)
	}

	return &v, nil
}

// Tombstone marks a block deleted as of the given revision. Already-deleted
// blocks are left untouched so the original deletion revision is preserved.
func (r *PostgresBlockRepository) Tombstone(ctx context.Context, blockID, revID uuid.UUID) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET deleted_at = now(), deleted_in_rev_id = $2
		WHERE block_id = $1 AND deleted_at IS NULL
	`, r.tables.Blocks)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, blockID, revID); err != nil {
		return fmt.Errorf("tombstone block %s: %w", blockID, err)
	}
	return nil
}
