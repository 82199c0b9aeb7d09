package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumenlms/lms-api/internal/authz"
	"github.com/lumenlms/lms-api/internal/models"
	appErrors "github.com/lumenlms/lms-api/pkg/errors"
)

type analyticsEnrollmentRepository interface {
	Stats(ctx context.Context, courseID string) (*models.CourseStats, error)
	Trend(ctx context.Context, courseID string, days int) ([]models.EnrollmentTrendPoint, error)
}

// AnalyticsService computes owner-facing course analytics, cached in Redis
// so dashboard polling does not hammer the aggregates.
type AnalyticsService struct {
	enrollments analyticsEnrollmentRepository
	courses     contentCourseRepository
	cache       courseCache
	logger      *zap.Logger
	ttl         time.Duration
	trendDays   int
}

// NewAnalyticsService constructs an AnalyticsService instance.
func NewAnalyticsService(enrollments analyticsEnrollmentRepository, courses contentCourseRepository, cache courseCache, logger *zap.Logger, ttl time.Duration) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &AnalyticsService{
		enrollments: enrollments,
		courses:     courses,
		cache:       cache,
		logger:      logger,
		ttl:         ttl,
		trendDays:   30,
	}
}

// CourseAnalytics returns enrollment stats and a 30-day trend for a course.
// Course owner or admin.
func (s *AnalyticsService) CourseAnalytics(ctx context.Context, p *authz.Principal, courseID string) (*models.CourseAnalytics, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if d := authz.CanMutate(p, authz.Ownership{InstructorID: course.InstructorID, CourseID: course.ID}); !d.Allowed {
		return nil, d.Err()
	}

	cacheKey := fmt.Sprintf("analytics:course:%s", courseID)
	if s.cache != nil {
		var cached models.CourseAnalytics
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		} else if !appErrors.HasCode(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("analytics cache read failed", zap.Error(err))
		}
	}

	stats, err := s.enrollments.Stats(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute course stats")
	}
	trend, err := s.enrollments.Trend(ctx, courseID, s.trendDays)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute enrollment trend")
	}

	analytics := &models.CourseAnalytics{
		CourseID:        courseID,
		Stats:           *stats,
		EnrollmentTrend: trend,
		GeneratedAt:     time.Now().UTC(),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, analytics, s.ttl); err != nil {
			s.logger.Warn("analytics cache write failed", zap.Error(err))
		}
	}
	return analytics, nil
}
