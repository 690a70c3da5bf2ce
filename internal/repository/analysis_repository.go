// internal/repository/analysis_repository.go
package repository

import (
	"context"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// AnalysisRepository persists analysis documents, one per user analysis.
//
// Implementations return domain.ErrNotFound for unknown analyses and
// domain.ErrConflict when Save is called with a version that is no longer
// current. Any other failure is a *domain.StorageError.
type AnalysisRepository interface {
	// Create stores a new analysis at version 1.
	Create(ctx context.Context, analysis *domain.Analysis) (int64, error)
	Get(ctx context.Context, userID, analysisID string) (*domain.StoredAnalysis, error)
	// Save replaces the document if its stored version equals
	// expectedVersion and returns the new version.
	Save(ctx context.Context, analysis *domain.Analysis, expectedVersion int64) (int64, error)
	List(ctx context.Context, userID string) ([]domain.AnalysisSummary, error)
}

// AuditRepository records applied overrides.
type AuditRepository interface {
	Record(ctx context.Context, entries []domain.AuditEntry) error
	List(ctx context.Context, userID, analysisID string, limit int) ([]domain.AuditEntry, error)
}
