package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"reviso/internal/domain/models"
	"reviso/internal/domain/repositories"
)

// PostgresEditOperationRepository implements the EditOperationRepository
// interface. Audit rows are write-only from the application's point of view.
type PostgresEditOperationRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewEditOperationRepository creates a new edit operation repository
func NewEditOperationRepository(config *RepositoryConfig) repositories.EditOperationRepository {
	return &PostgresEditOperationRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateAll inserts one audit row per applied operation
func (r *PostgresEditOperationRepository) CreateAll(ctx context.Context, ops []models.EditOperation) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (op_id, doc_id, rev_id, parent_rev_id, trace_id, user_id,
		                op_type, target_block_id, evidence_quote, quote_start, quote_end,
		                before_hash, after_hash, rationale, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, r.tables.EditOperations)

	executor := GetExecutor(ctx, r.pool)
	for i := range ops {
		op := &ops[i]
		_, err := executor.Exec(ctx, query,
			op.ID,
			op.DocID,
			op.RevID,
			op.ParentRevID,
			nullableText(op.TraceID),
			op.UserID,
			op.OpType,
			op.TargetBlockID,
			op.EvidenceQuote,
			op.QuoteStart,
			op.QuoteEnd,
			nullableText(op.BeforeHash),
			nullableText(op.AfterHash),
			nullableText(op.Rationale),
			op.Status,
		)
		if err != nil {
			return fmt.Errorf("create edit operation %s: %w", op.ID, err)
		}
	}
	return nil
}
