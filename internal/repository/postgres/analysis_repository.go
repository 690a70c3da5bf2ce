package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockcast/internal/codec"
	"github.com/andresuchdata/stockcast/internal/domain"
	"github.com/andresuchdata/stockcast/internal/repository"
	"github.com/andresuchdata/stockcast/internal/storage"
)

const uniqueViolation = "23505"

type analysisRow struct {
	domain.AnalysisSummary
	Document  []byte         `db:"document"`
	ObjectKey sql.NullString `db:"object_key"`
}

type analysisRepository struct {
	db    *DB
	blobs storage.ObjectStorage
}

// NewAnalysisRepository stores documents in the row itself, or in blobs
// when it is non-nil, in which case the row keeps the object key.
func NewAnalysisRepository(db *DB, blobs storage.ObjectStorage) *analysisRepository {
	return &analysisRepository{db: db, blobs: blobs}
}

// writeDocument encodes the products and, in blob mode, uploads them under
// a fresh key so concurrent writers never overwrite each other.
func (r *analysisRepository) writeDocument(ctx context.Context, a *domain.Analysis) ([]byte, sql.NullString, error) {
	payload, err := codec.EncodeProducts(a.Products)
	if err != nil {
		return nil, sql.NullString{}, err
	}
	if r.blobs == nil {
		return payload, sql.NullString{}, nil
	}
	key := path.Join(a.UserID, a.ID, uuid.NewString()+".json.gz")
	if err := r.blobs.PutObject(ctx, key, payload, codec.ContentType); err != nil {
		return nil, sql.NullString{}, err
	}
	return nil, sql.NullString{String: key, Valid: true}, nil
}

func (r *analysisRepository) discard(ctx context.Context, key sql.NullString) {
	if r.blobs == nil || !key.Valid {
		return
	}
	if err := r.blobs.DeleteObject(ctx, key.String); err != nil {
		log.Warn().Err(err).Str("key", key.String).Msg("could not delete analysis object")
	}
}

func (r *analysisRepository) Create(ctx context.Context, a *domain.Analysis) (int64, error) {
	document, objectKey, err := r.writeDocument(ctx, a)
	if err != nil {
		return 0, domain.WrapStorage("create", err)
	}

	err = r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO analyses (user_id, id, name, product_count, version, document, object_key, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 1, $5, $6, NOW(), NOW())
			RETURNING created_at, updated_at
		`
		return tx.QueryRowxContext(ctx, query,
			a.UserID, a.ID, a.Name, len(a.Products), document, objectKey,
		).Scan(&a.CreatedAt, &a.UpdatedAt)
	})
	if err != nil {
		r.discard(ctx, objectKey)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, domain.ErrConflict
		}
		return 0, domain.WrapStorage("create", fmt.Errorf("failed to insert analysis: %w", err))
	}
	return 1, nil
}

func (r *analysisRepository) Get(ctx context.Context, userID, analysisID string) (*domain.StoredAnalysis, error) {
	query := `
		SELECT id, user_id, name, product_count, version, created_at, updated_at, document, object_key
		FROM analyses
		WHERE user_id = $1 AND id = $2
	`
	var row analysisRow
	if err := sqlx.GetContext(ctx, r.db, &row, query, userID, analysisID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.WrapStorage("get", fmt.Errorf("failed to get analysis: %w", err))
	}

	payload := row.Document
	if row.ObjectKey.Valid {
		if r.blobs == nil {
			return nil, domain.WrapStorage("get", fmt.Errorf("analysis %s is in object storage but none is configured", analysisID))
		}
		var err error
		if payload, err = r.blobs.GetObject(ctx, row.ObjectKey.String); err != nil {
			return nil, domain.WrapStorage("get", err)
		}
	}

	products, err := codec.DecodeProducts(payload)
	if err != nil {
		return nil, domain.WrapStorage("get", err)
	}
	return &domain.StoredAnalysis{
		Analysis: &domain.Analysis{
			ID:        row.ID,
			UserID:    row.UserID,
			Name:      row.Name,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
			Products:  products,
		},
		Version: row.Version,
	}, nil
}

func (r *analysisRepository) Save(ctx context.Context, a *domain.Analysis, expectedVersion int64) (int64, error) {
	document, objectKey, err := r.writeDocument(ctx, a)
	if err != nil {
		return 0, domain.WrapStorage("save", err)
	}

	var version int64
	var previousKey sql.NullString
	err = r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		// lock the row so the previous object key is the one being replaced
		err := tx.QueryRowxContext(ctx,
			`SELECT version, object_key FROM analyses WHERE user_id = $1 AND id = $2 FOR UPDATE`,
			a.UserID, a.ID,
		).Scan(&version, &previousKey)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock analysis: %w", err)
		}
		if version != expectedVersion {
			return domain.ErrConflict
		}

		query := `
			UPDATE analyses
			SET name = $3, product_count = $4, document = $5, object_key = $6,
				version = version + 1, updated_at = NOW()
			WHERE user_id = $1 AND id = $2 AND version = $7
			RETURNING version, created_at, updated_at
		`
		err = tx.QueryRowxContext(ctx, query,
			a.UserID, a.ID, a.Name, len(a.Products), document, objectKey, expectedVersion,
		).Scan(&version, &a.CreatedAt, &a.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrConflict
		}
		return err
	})
	if err != nil {
		r.discard(ctx, objectKey)
		return 0, domain.WrapStorage("save", err)
	}

	if previousKey.Valid && previousKey != objectKey {
		r.discard(ctx, previousKey)
	}
	return version, nil
}

func (r *analysisRepository) List(ctx context.Context, userID string) ([]domain.AnalysisSummary, error) {
	query := `
		SELECT id, user_id, name, product_count, version, created_at, updated_at
		FROM analyses
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`
	summaries := make([]domain.AnalysisSummary, 0)
	if err := sqlx.SelectContext(ctx, r.db, &summaries, query, userID); err != nil {
		return nil, domain.WrapStorage("list", fmt.Errorf("failed to list analyses: %w", err))
	}
	return summaries, nil
}

var _ repository.AnalysisRepository = (*analysisRepository)(nil)
