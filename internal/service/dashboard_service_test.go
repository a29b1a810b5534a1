package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ami-audit-api/internal/models"
	"github.com/noah-isme/ami-audit-api/internal/repository"
	appErrors "github.com/noah-isme/ami-audit-api/pkg/errors"
)

type mockDashboardRepo struct {
	byStatus     []repository.StatusCount
	byDepartment []repository.DepartmentCount
	overdue      []models.AuditSession
	calls        int
}

func (m *mockDashboardRepo) CountByStatus(_ context.Context) ([]repository.StatusCount, error) {
	m.calls++
	return m.byStatus, nil
}

func (m *mockDashboardRepo) CountByDepartment(_ context.Context) ([]repository.DepartmentCount, error) {
	return m.byDepartment, nil
}

func (m *mockDashboardRepo) ListOverdue(_ context.Context, _ time.Time) ([]models.AuditSession, error) {
	return m.overdue, nil
}

type mockDashboardCache struct {
	store   map[string][]byte
	deleted []string
}

func newMockDashboardCache() *mockDashboardCache {
	return &mockDashboardCache{store: make(map[string][]byte)}
}

func (m *mockDashboardCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := m.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockDashboardCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.store[key] = raw
	return nil
}

func (m *mockDashboardCache) DeleteByPattern(_ context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	m.store = make(map[string][]byte)
	return nil
}

func TestDashboardSummaryBuildsAndCaches(t *testing.T) {
	repo := &mockDashboardRepo{
		byStatus: []repository.StatusCount{
			{Status: models.StatusPlanned, Count: 3},
			{Status: models.StatusCompleted, Count: 2},
		},
		byDepartment: []repository.DepartmentCount{
			{Department: "Teknik Informatika", Count: 5},
		},
		overdue: []models.AuditSession{{ID: "sess-1", Status: models.StatusPlanned}},
	}
	cache := newMockDashboardCache()
	svc := NewDashboardService(repo, cache, nil, time.Minute, nil)

	first, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, first.Total)
	assert.Equal(t, 1, first.OverdueCount)
	assert.False(t, first.ServedFromCache)
	assert.Equal(t, 1, repo.calls)

	second, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.True(t, second.ServedFromCache)
	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, 1, repo.calls)
}

func TestDashboardSummaryWithoutCache(t *testing.T) {
	repo := &mockDashboardRepo{
		byStatus: []repository.StatusCount{{Status: models.StatusInProgress, Count: 1}},
	}
	svc := NewDashboardService(repo, nil, nil, 0, nil)

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.False(t, summary.ServedFromCache)

	_, err = svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestDashboardInvalidateDropsCache(t *testing.T) {
	repo := &mockDashboardRepo{
		byStatus: []repository.StatusCount{{Status: models.StatusPlanned, Count: 1}},
	}
	cache := newMockDashboardCache()
	svc := NewDashboardService(repo, cache, nil, time.Minute, nil)

	_, err := svc.Summary(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, cache.store)

	svc.Invalidate(context.Background())
	assert.Contains(t, cache.deleted, "dashboard:*")
	assert.Empty(t, cache.store)

	refreshed, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.False(t, refreshed.ServedFromCache)
	assert.Equal(t, 2, repo.calls)
}
