package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the schema for the given table prefix if it does not exist.
// Statements are idempotent; running against an existing schema is a no-op.
func Migrate(ctx context.Context, pool *pgxpool.Pool, t *TableNames) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			doc_id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			title TEXT NOT NULL,
			source_filename TEXT,
			source_format TEXT,
			total_blocks INTEGER NOT NULL DEFAULT 0,
			total_chars INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, t.Documents),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user_created ON %s (user_id, created_at)`,
			t.Documents, t.Documents),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			rev_id UUID PRIMARY KEY,
			doc_id UUID NOT NULL REFERENCES %s (doc_id) ON DELETE CASCADE,
			rev_no BIGINT NOT NULL,
			parent_rev_id UUID REFERENCES %s (rev_id),
			created_by TEXT NOT NULL,
			change_summary TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, t.Revisions, t.Documents, t.Revisions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_doc_no ON %s (doc_id, rev_no)`,
			t.Revisions, t.Revisions),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			doc_id UUID PRIMARY KEY REFERENCES %s (doc_id) ON DELETE CASCADE,
			rev_id UUID NOT NULL REFERENCES %s (rev_id) ON DELETE RESTRICT,
			version BIGINT NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, t.ActiveRevisions, t.Documents, t.Revisions),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			block_id UUID PRIMARY KEY,
			doc_id UUID NOT NULL REFERENCES %s (doc_id) ON DELETE CASCADE,
			first_rev_id UUID NOT NULL REFERENCES %s (rev_id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ,
			deleted_in_rev_id UUID REFERENCES %s (rev_id)
		)`, t.Blocks, t.Documents, t.Revisions, t.Revisions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_doc ON %s (doc_id)`, t.Blocks, t.Blocks),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			block_version_id UUID PRIMARY KEY,
			block_id UUID NOT NULL REFERENCES %s (block_id) ON DELETE CASCADE,
			rev_id UUID NOT NULL REFERENCES %s (rev_id) ON DELETE CASCADE,
			order_index BIGINT NOT NULL,
			block_type TEXT NOT NULL,
			heading_level INTEGER,
			parent_heading_block_id UUID REFERENCES %s (block_id),
			content_md TEXT,
			plain_text TEXT,
			content_hash TEXT NOT NULL,
			parent_version_id UUID REFERENCES %s (block_version_id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT check_content_or_parent CHECK (
				(content_md IS NOT NULL AND parent_version_id IS NULL) OR
				(content_md IS NULL AND parent_version_id IS NOT NULL)
			)
		)`, t.BlockVersions, t.Blocks, t.Revisions, t.Blocks, t.BlockVersions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_rev_order ON %s (rev_id, order_index)`,
			t.BlockVersions, t.BlockVersions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_block ON %s (block_id)`,
			t.BlockVersions, t.BlockVersions),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			op_id UUID PRIMARY KEY,
			doc_id UUID NOT NULL REFERENCES %s (doc_id) ON DELETE CASCADE,
			rev_id UUID NOT NULL REFERENCES %s (rev_id) ON DELETE CASCADE,
			parent_rev_id UUID,
			trace_id TEXT,
			user_id UUID NOT NULL,
			op_type TEXT NOT NULL,
			target_block_id UUID REFERENCES %s (block_id),
			evidence_quote TEXT NOT NULL,
			quote_start INTEGER,
			quote_end INTEGER,
			before_hash TEXT,
			after_hash TEXT,
			rationale TEXT,
			status TEXT NOT NULL DEFAULT 'applied',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, t.EditOperations, t.Documents, t.Revisions, t.Blocks),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_doc_rev ON %s (doc_id, rev_id)`,
			t.EditOperations, t.EditOperations),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_trace ON %s (trace_id)`,
			t.EditOperations, t.EditOperations),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
