package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/andresuchdata/stockcast/internal/domain"
	"github.com/andresuchdata/stockcast/internal/repository"
)

type auditRepository struct {
	db *DB
}

func NewAuditRepository(db *DB) *auditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Record(ctx context.Context, entries []domain.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO audit_log (user_id, analysis_id, product_code, action, field, old_value, new_value, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8::timestamptz, NOW()))
		`
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			var createdAt interface{}
			if !e.CreatedAt.IsZero() {
				createdAt = e.CreatedAt
			}
			if _, err := stmt.ExecContext(ctx,
				e.UserID,
				e.AnalysisID,
				e.ProductCode,
				e.Action,
				e.Field,
				e.OldValue,
				e.NewValue,
				createdAt,
			); err != nil {
				return fmt.Errorf("failed to insert audit entry: %w", err)
			}
		}
		return nil
	})
}

// List returns the newest entries first. A non-positive limit returns all.
func (r *auditRepository) List(ctx context.Context, userID, analysisID string, limit int) ([]domain.AuditEntry, error) {
	query := `
		SELECT id, user_id, analysis_id, product_code, action, field, old_value, new_value, created_at
		FROM audit_log
		WHERE user_id = $1 AND analysis_id = $2
		ORDER BY id DESC
		LIMIT NULLIF($3::bigint, 0)
	`
	if limit < 0 {
		limit = 0
	}
	entries := make([]domain.AuditEntry, 0)
	if err := sqlx.SelectContext(ctx, r.db, &entries, query, userID, analysisID, limit); err != nil {
		return nil, domain.WrapStorage("audit list", fmt.Errorf("failed to list audit entries: %w", err))
	}
	return entries, nil
}

var _ repository.AuditRepository = (*auditRepository)(nil)
