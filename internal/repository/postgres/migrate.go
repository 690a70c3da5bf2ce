package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS analyses (
		user_id       TEXT        NOT NULL,
		id            TEXT        NOT NULL,
		name          TEXT        NOT NULL DEFAULT '',
		product_count INTEGER     NOT NULL DEFAULT 0,
		version       BIGINT      NOT NULL DEFAULT 1,
		document      BYTEA,
		object_key    TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, id),
		CHECK (document IS NOT NULL OR object_key IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analyses_user_updated ON analyses (user_id, updated_at DESC)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id           BIGSERIAL   PRIMARY KEY,
		user_id      TEXT        NOT NULL,
		analysis_id  TEXT        NOT NULL,
		product_code TEXT        NOT NULL DEFAULT '',
		action       TEXT        NOT NULL,
		field        TEXT        NOT NULL DEFAULT '',
		old_value    TEXT        NOT NULL DEFAULT '',
		new_value    TEXT        NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_analysis ON audit_log (user_id, analysis_id, id DESC)`,
}

// Migrate creates the tables used by the repositories. It is idempotent.
// Any database/sql driver for Postgres works; the CLI uses pgx.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin migration: %w", err)
	}
	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return tx.Commit()
}
