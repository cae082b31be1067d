package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reviso/internal/domain/repositories"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Documents       string
	Revisions       string
	ActiveRevisions string
	Blocks          string
	BlockVersions   string
	EditOperations  string
}

// NewTableNames creates table names with the given prefix (dev_/test_/prod_)
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Documents:       fmt.Sprintf("%sdocuments", prefix),
		Revisions:       fmt.Sprintf("%sdocument_revisions", prefix),
		ActiveRevisions: fmt.Sprintf("%sdocument_active_revision", prefix),
		Blocks:          fmt.Sprintf("%sblocks", prefix),
		BlockVersions:   fmt.Sprintf("%sblock_versions", prefix),
		EditOperations:  fmt.Sprintf("%sedit_operations", prefix),
	}
}

// CreateConnectionPool creates a new pgx connection pool.
//
// Table names are interpolated with fmt.Sprintf before the SQL reaches the
// database, so each environment prefix gets its own prepared statements -
// this is safe with statement caching.
//
// Port 6543 (PgBouncer in transaction pooling mode) does not support
// prepared statements; when detected, the pool switches to
// QueryExecModeCacheDescribe, which caches statement descriptions instead.
// An explicit default_query_exec_mode in the connection string wins.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the transaction from the context when one is present,
// otherwise the pool. Repositories participate in transactions automatically.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
