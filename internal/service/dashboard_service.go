package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ami-audit-api/internal/models"
	"github.com/noah-isme/ami-audit-api/internal/repository"
	appErrors "github.com/noah-isme/ami-audit-api/pkg/errors"
)

const (
	dashboardSummaryKey  = "dashboard:summary"
	dashboardKeyPattern  = "dashboard:*"
	defaultDashboardTTL  = 5 * time.Minute
	overdueListCapMaxLen = 50
)

type dashboardAuditRepository interface {
	CountByStatus(ctx context.Context) ([]repository.StatusCount, error)
	CountByDepartment(ctx context.Context) ([]repository.DepartmentCount, error)
	ListOverdue(ctx context.Context, now time.Time) ([]models.AuditSession, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// DashboardSummary aggregates session counts for the overview screen.
type DashboardSummary struct {
	Total           int                          `json:"total"`
	ByStatus        []repository.StatusCount     `json:"by_status"`
	ByDepartment    []repository.DepartmentCount `json:"by_department"`
	OverdueCount    int                          `json:"overdue_count"`
	OverdueSessions []models.AuditSession        `json:"overdue_sessions"`
	GeneratedAt     time.Time                    `json:"generated_at"`
	ServedFromCache bool                         `json:"served_from_cache"`
}

// DashboardService serves cached aggregate views over audit sessions.
type DashboardService struct {
	repo    dashboardAuditRepository
	cache   dashboardCache
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewDashboardService creates the dashboard aggregator. Cache may be nil
// when Redis is not configured; every request then hits the database.
func NewDashboardService(repo dashboardAuditRepository, cache dashboardCache, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = defaultDashboardTTL
	}
	return &DashboardService{
		repo:    repo,
		cache:   cache,
		metrics: metrics,
		ttl:     ttl,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Summary returns the aggregate dashboard view, served from cache when
// fresh.
func (s *DashboardService) Summary(ctx context.Context) (*DashboardSummary, error) {
	if s.cache != nil {
		var cached DashboardSummary
		err := s.cache.Get(ctx, dashboardSummaryKey, &cached)
		if err == nil {
			s.metrics.RecordCacheOperation(true)
			cached.ServedFromCache = true
			return &cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
	}

	summary, err := s.build(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, dashboardSummaryKey, summary, s.ttl); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return summary, nil
}

func (s *DashboardService) build(ctx context.Context) (*DashboardSummary, error) {
	byStatus, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate sessions by status")
	}
	byDepartment, err := s.repo.CountByDepartment(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate sessions by department")
	}
	now := s.now()
	overdue, err := s.repo.ListOverdue(ctx, now.Truncate(24*time.Hour))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list overdue sessions")
	}

	total := 0
	for _, c := range byStatus {
		total += c.Count
	}
	listed := overdue
	if len(listed) > overdueListCapMaxLen {
		listed = listed[:overdueListCapMaxLen]
	}

	return &DashboardSummary{
		Total:           total,
		ByStatus:        byStatus,
		ByDepartment:    byDepartment,
		OverdueCount:    len(overdue),
		OverdueSessions: listed,
		GeneratedAt:     now,
	}, nil
}

// Invalidate drops all cached dashboard views. Called after any session
// mutation.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, dashboardKeyPattern); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}
