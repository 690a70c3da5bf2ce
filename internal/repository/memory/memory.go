// Package memory holds in-process repositories used in development mode
// and tests. Documents are stored encoded so callers never share state
// with the store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/andresuchdata/stockcast/internal/codec"
	"github.com/andresuchdata/stockcast/internal/domain"
	"github.com/andresuchdata/stockcast/internal/repository"
)

type record struct {
	summary domain.AnalysisSummary
	payload []byte
}

// AnalysisRepository is a map-backed repository.AnalysisRepository.
type AnalysisRepository struct {
	mu      sync.RWMutex
	records map[string]*record
	now     func() time.Time
}

func NewAnalysisRepository() *AnalysisRepository {
	return &AnalysisRepository{
		records: make(map[string]*record),
		now:     time.Now,
	}
}

func key(userID, analysisID string) string {
	return userID + "/" + analysisID
}

func (r *AnalysisRepository) Create(_ context.Context, a *domain.Analysis) (int64, error) {
	payload, err := codec.EncodeProducts(a.Products)
	if err != nil {
		return 0, domain.WrapStorage("create", err)
	}
	now := r.now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(a.UserID, a.ID)
	if _, exists := r.records[k]; exists {
		return 0, domain.ErrConflict
	}
	r.records[k] = &record{summary: a.Summary(1), payload: payload}
	return 1, nil
}

func (r *AnalysisRepository) Get(_ context.Context, userID, analysisID string) (*domain.StoredAnalysis, error) {
	r.mu.RLock()
	rec, ok := r.records[key(userID, analysisID)]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}

	products, err := codec.DecodeProducts(rec.payload)
	if err != nil {
		return nil, domain.WrapStorage("get", err)
	}
	s := rec.summary
	return &domain.StoredAnalysis{
		Analysis: &domain.Analysis{
			ID:        s.ID,
			UserID:    s.UserID,
			Name:      s.Name,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
			Products:  products,
		},
		Version: s.Version,
	}, nil
}

func (r *AnalysisRepository) Save(_ context.Context, a *domain.Analysis, expectedVersion int64) (int64, error) {
	payload, err := codec.EncodeProducts(a.Products)
	if err != nil {
		return 0, domain.WrapStorage("save", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key(a.UserID, a.ID)]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if rec.summary.Version != expectedVersion {
		return 0, domain.ErrConflict
	}

	a.CreatedAt = rec.summary.CreatedAt
	a.UpdatedAt = r.now().UTC()
	rec.summary = a.Summary(expectedVersion + 1)
	rec.payload = payload
	return rec.summary.Version, nil
}

func (r *AnalysisRepository) List(_ context.Context, userID string) ([]domain.AnalysisSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.AnalysisSummary, 0)
	for _, rec := range r.records {
		if rec.summary.UserID == userID {
			out = append(out, rec.summary)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// AuditRepository is a slice-backed repository.AuditRepository.
type AuditRepository struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	nextID  int64
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Record(_ context.Context, entries []domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.nextID++
		e.ID = r.nextID
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		r.entries = append(r.entries, e)
	}
	return nil
}

// List returns the newest entries first.
func (r *AuditRepository) List(_ context.Context, userID, analysisID string, limit int) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditEntry, 0)
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.UserID != userID || e.AnalysisID != analysisID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

var (
	_ repository.AnalysisRepository = (*AnalysisRepository)(nil)
	_ repository.AuditRepository    = (*AuditRepository)(nil)
)
