package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/lumenlms/lms-api/internal/authz"
	"github.com/lumenlms/lms-api/internal/models"
	appErrors "github.com/lumenlms/lms-api/pkg/errors"
)

type timelineRepository interface {
	Upcoming(ctx context.Context, userID string, limit int) ([]models.TimelineEvent, error)
}

// TimelineService serves a user's upcoming events.
type TimelineService struct {
	repo   timelineRepository
	logger *zap.Logger
}

// NewTimelineService constructs a TimelineService instance.
func NewTimelineService(repo timelineRepository, logger *zap.Logger) *TimelineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimelineService{repo: repo, logger: logger}
}

// Upcoming returns the caller's future events, soonest first.
func (s *TimelineService) Upcoming(ctx context.Context, p *authz.Principal, limit int) ([]models.TimelineEvent, error) {
	if d := authz.AnyOf(models.RoleStudent, models.RoleInstructor, models.RoleAdmin).Evaluate(p, ""); !d.Allowed {
		return nil, d.Err()
	}

	events, err := s.repo.Upcoming(ctx, p.ID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timeline events")
	}
	return events, nil
}
