package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/stockcast/internal/domain"
)

func newAnalysis(id string) *domain.Analysis {
	return &domain.Analysis{
		ID:       id,
		UserID:   "u1",
		Name:     "weekly",
		Products: []domain.Product{{Code: "A", TotalStock: 10}},
	}
}

func TestAnalysisRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewAnalysisRepository()

	version, err := repo.Create(ctx, newAnalysis("a1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	_, err = repo.Create(ctx, newAnalysis("a1"))
	assert.ErrorIs(t, err, domain.ErrConflict)

	stored, err := repo.Get(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.Equal(t, "A", stored.Analysis.Products[0].Code)

	stored.Analysis.Products[0].TotalStock = 99
	version, err = repo.Save(ctx, stored.Analysis, stored.Version)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	_, err = repo.Save(ctx, stored.Analysis, 1)
	assert.ErrorIs(t, err, domain.ErrConflict)

	again, err := repo.Get(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, 99.0, again.Analysis.Products[0].TotalStock)

	_, err = repo.Get(ctx, "u2", "a1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].ProductCount)
	assert.Equal(t, int64(2), list[0].Version)
}

func TestAnalysisRepositoryDoesNotShareState(t *testing.T) {
	ctx := context.Background()
	repo := NewAnalysisRepository()
	a := newAnalysis("a1")
	_, err := repo.Create(ctx, a)
	require.NoError(t, err)

	a.Products[0].TotalStock = 500
	stored, err := repo.Get(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, stored.Analysis.Products[0].TotalStock)
}

func TestConcurrentSavesOneWins(t *testing.T) {
	ctx := context.Background()
	repo := NewAnalysisRepository()
	_, err := repo.Create(ctx, newAnalysis("a1"))
	require.NoError(t, err)

	var wins, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Save(ctx, newAnalysis("a1"), 1)
			if err == nil {
				atomic.AddInt32(&wins, 1)
			} else if assert.ErrorIs(t, err, domain.ErrConflict) {
				atomic.AddInt32(&conflicts, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(7), conflicts)
}

func TestAuditRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepository()

	require.NoError(t, repo.Record(ctx, []domain.AuditEntry{
		{UserID: "u1", AnalysisID: "a1", Action: "lead_time", NewValue: "30"},
		{UserID: "u1", AnalysisID: "a2", Action: "lead_time"},
		{UserID: "u1", AnalysisID: "a1", Action: "safety_stock", NewValue: "12"},
	}))

	entries, err := repo.List(ctx, "u1", "a1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "safety_stock", entries[0].Action)
	assert.Equal(t, int64(3), entries[0].ID)
	assert.False(t, entries[0].CreatedAt.IsZero())

	entries, err = repo.List(ctx, "u1", "a1", 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
