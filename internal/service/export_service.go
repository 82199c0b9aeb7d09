package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lumenlms/lms-api/internal/models"
	"github.com/lumenlms/lms-api/pkg/export"
	"github.com/lumenlms/lms-api/pkg/storage"
)

type exportEnrollmentRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
}

type exportCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type exportBlobStore interface {
	Upload(data []byte, opts storage.UploadOptions) (*storage.Blob, error)
	Open(publicID string) (*os.File, error)
	Delete(publicID string) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	PublicID  string
	Token     string
	URL       string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// ExportService builds course progress datasets and persists rendered
// report files to the blob store.
type ExportService struct {
	enrollments exportEnrollmentRepository
	courses     exportCourseRepository
	blobs       exportBlobStore
	csv         csvRenderer
	pdf         pdfRenderer
	signer      *storage.SignedURLSigner
	logger      *zap.Logger
	cfg         ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(enrollments exportEnrollmentRepository, courses exportCourseRepository, blobs exportBlobStore, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		enrollments: enrollments,
		courses:     courses,
		blobs:       blobs,
		csv:         csv,
		pdf:         pdf,
		signer:      signer,
		logger:      logger,
		cfg:         cfg,
	}
}

// Generate renders the progress report for a job and stores the file.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}

	course, err := s.courses.FindByID(ctx, job.CourseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	dataset, err := s.buildDataset(ctx, job.CourseID)
	if err != nil {
		return nil, err
	}
	title := fmt.Sprintf("Progress Report - %s", course.Title)

	var payload []byte
	switch job.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		return nil, err
	}

	blob, err := s.blobs.Upload(payload, storage.UploadOptions{
		Folder:   "reports",
		Filename: fmt.Sprintf("progress-%s-%s.%s", job.CourseID, job.ID, job.Format),
	})
	if err != nil {
		return nil, fmt.Errorf("store export: %w", err)
	}

	token, expiresAt, err := s.signer.Generate(blob.PublicID)
	if err != nil {
		return nil, fmt.Errorf("sign export: %w", err)
	}

	return &ExportResult{
		PublicID:  blob.PublicID,
		Token:     token,
		URL:       fmt.Sprintf("%s/reports/download?token=%s", s.cfg.APIPrefix, token),
		Format:    job.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// ParseToken validates a download token and returns the blob public ID.
func (s *ExportService) ParseToken(token string) (string, time.Time, error) {
	return s.signer.Parse(token)
}

// Open opens a stored export file.
func (s *ExportService) Open(publicID string) (*os.File, error) {
	return s.blobs.Open(publicID)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(publicID string) error {
	return s.blobs.Delete(publicID)
}

func (s *ExportService) buildDataset(ctx context.Context, courseID string) (export.Dataset, error) {
	enrollments, err := s.enrollments.ListByCourse(ctx, courseID)
	if err != nil {
		return export.Dataset{}, fmt.Errorf("list enrollments: %w", err)
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Email", "Progress (%)", "Enrolled At"},
	}
	for _, e := range enrollments {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":      e.StudentName,
			"Email":        e.StudentEmail,
			"Progress (%)": strconv.Itoa(e.Progress),
			"Enrolled At":  e.EnrolledAt.Format(time.RFC3339),
		})
	}
	return dataset, nil
}
