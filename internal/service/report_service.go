package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/lumenlms/lms-api/internal/authz"
	"github.com/lumenlms/lms-api/internal/models"
	"github.com/lumenlms/lms-api/internal/repository"
	appErrors "github.com/lumenlms/lms-api/pkg/errors"
	"github.com/lumenlms/lms-api/pkg/jobs"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// ReportService orchestrates the course progress report lifecycle: create a
// job, render it on a worker, hand the result out behind a signed token.
type ReportService struct {
	repo     reportJobStore
	courses  contentCourseRepository
	queue    jobDispatcher
	exporter *ExportService
	logger   *zap.Logger
	cfg      ReportServiceConfig
}

// ReportServiceConfig governs queue recovery and cleanup.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// NewReportService constructs the report service.
func NewReportService(repo reportJobStore, courses contentCourseRepository, queue jobDispatcher, exporter *ExportService, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ReportService{
		repo:     repo,
		courses:  courses,
		queue:    queue,
		exporter: exporter,
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateJob queues a progress report for a course. Course owner or admin.
func (s *ReportService) CreateJob(ctx context.Context, p *authz.Principal, courseID string, format models.ReportFormat) (*models.ReportJob, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

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

	job := &models.ReportJob{
		CourseID:  courseID,
		Format:    format,
		Status:    models.ReportStatusQueued,
		Progress:  0,
		CreatedBy: p.ID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "report.render"}); err != nil {
		s.markFailed(ctx, job.ID, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	return job, nil
}

// GetStatus exposes job metadata, enforcing ownership for non-admins.
func (s *ReportService) GetStatus(ctx context.Context, p *authz.Principal, id string) (*models.ReportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if d := authz.SelfOrRoles(models.RoleAdmin).Evaluate(p, job.CreatedBy); !d.Allowed {
		return nil, d.Err()
	}
	return job, nil
}

// ResolveDownload validates a token and opens the stored export file. The
// token itself is the credential; no session is required.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	publicID, expiresAt, err := s.exporter.ParseToken(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}

	file, err := s.exporter.Open(publicID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report file not found")
	}

	format := models.ReportFormatCSV
	if filepath.Ext(publicID) == ".pdf" {
		format = models.ReportFormatPDF
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(publicID),
		Format:    format,
		ExpiresAt: expiresAt,
	}, nil
}

// Process is the queue handler that renders one report job.
func (s *ReportService) Process(ctx context.Context, job jobs.Job) error {
	stored, err := s.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if stored.Status == models.ReportStatusFinished {
		return nil
	}

	processing := models.ReportStatusProcessing
	progress := 10
	if err := s.repo.Update(ctx, stored.ID, repository.UpdateReportJobParams{Status: &processing, Progress: &progress}); err != nil {
		s.logger.Warn("failed to mark report processing", zap.String("job_id", stored.ID), zap.Error(err))
	}

	result, err := s.exporter.Generate(ctx, stored)
	if err != nil {
		s.markFailed(ctx, stored.ID, err.Error())
		return err
	}

	finished := models.ReportStatusFinished
	done := 100
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, stored.ID, repository.UpdateReportJobParams{
		Status:     &finished,
		Progress:   &done,
		ResultURL:  &result.URL,
		ResultBlob: &result.PublicID,
		FinishedAt: &now,
	}); err != nil {
		return err
	}
	return nil
}

// RecoverPendingJobs replays queued jobs after a process restart.
func (s *ReportService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued report jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "report.render"}); err != nil {
			s.logger.Warn("failed to requeue pending job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ReportService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.ResultTTL)
	finished, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		s.logger.Warn("report cleanup list failed", zap.Error(err))
		return
	}
	for _, job := range finished {
		if job.ResultBlob == nil {
			continue
		}
		if err := s.exporter.Delete(*job.ResultBlob); err != nil {
			s.logger.Warn("report cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

func (s *ReportService) markFailed(ctx context.Context, jobID, message string) {
	failed := models.ReportStatusFailed
	progress := 100
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, jobID, repository.UpdateReportJobParams{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &message,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to mark report failed", zap.String("job_id", jobID), zap.Error(err))
	}
}
