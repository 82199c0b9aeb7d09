package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	_ "github.com/lumenlms/lms-api/api/swagger"
	"github.com/lumenlms/lms-api/internal/handler"
	"github.com/lumenlms/lms-api/internal/repository"
	"github.com/lumenlms/lms-api/internal/router"
	"github.com/lumenlms/lms-api/internal/service"
	"github.com/lumenlms/lms-api/pkg/cache"
	"github.com/lumenlms/lms-api/pkg/config"
	"github.com/lumenlms/lms-api/pkg/database"
	"github.com/lumenlms/lms-api/pkg/export"
	"github.com/lumenlms/lms-api/pkg/jobs"
	"github.com/lumenlms/lms-api/pkg/logger"
	"github.com/lumenlms/lms-api/pkg/storage"
)

// @title Lumen LMS API
// @version 1.0.0
// @description Learning management backend: courses, enrollments, assessments and reports
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(db, cfg.Database.MigrationsDir); err != nil {
			logr.Sugar().Fatalw("failed to run migrations", "error", err)
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The API degrades to uncached reads without Redis.
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			redisClient.Close() //nolint:errcheck
		}
	}()

	uploadBlobs, err := storage.NewBlobStore(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}
	reportBlobs, err := storage.NewBlobStore(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init report storage", "error", err)
	}
	uploadSigner := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)
	reportSigner := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	moduleRepo := repository.NewModuleRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	quizRepo := repository.NewQuizRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)
	timelineRepo := repository.NewTimelineRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cleanupQueue := jobs.NewQueue("blob-cleanup", service.BlobCleanupHandler(uploadBlobs), jobs.QueueConfig{
		Workers: 1,
		Logger:  logr,
	})
	cleanupQueue.Start(ctx)
	defer cleanupQueue.Stop()

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, cacheRepo, validate, logr, cfg.Cache.CatalogTTL)
	categorySvc := service.NewCategoryService(categoryRepo, cacheRepo, validate, logr)
	contentSvc := service.NewContentService(moduleRepo, lessonRepo, courseRepo, enrollmentRepo, validate, logr)
	assessmentSvc := service.NewAssessmentService(quizRepo, assignmentRepo, submissionRepo, lessonRepo, enrollmentRepo, timelineRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, cacheRepo, validate, logr)
	analyticsSvc := service.NewAnalyticsService(enrollmentRepo, courseRepo, cacheRepo, logr, cfg.Cache.AnalyticsTTL)
	attachmentSvc := service.NewAttachmentService(attachmentRepo, uploadBlobs, uploadSigner, cleanupQueue, logr, service.AttachmentConfig{
		MaxFileSizeBytes: cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Uploads.AllowedMIMEs,
	})
	timelineSvc := service.NewTimelineService(timelineRepo, logr)

	exportSvc := service.NewExportService(enrollmentRepo, courseRepo, reportBlobs, reportSigner, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, logr, export.NewCSVExporter(), export.NewPDFExporter())

	// The report queue's handler is bound after the service exists.
	var reportSvc *service.ReportService
	reportQueue := jobs.NewQueue("reports", func(ctx context.Context, job jobs.Job) error {
		started := time.Now()
		err := reportSvc.Process(ctx, job)
		metricsSvc.ObserveJob(job.Type, time.Since(started))
		return err
	}, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	reportSvc = service.NewReportService(reportRepo, courseRepo, reportQueue, exportSvc, logr, service.ReportServiceConfig{
		ResultTTL: cfg.Reports.SignedURLTTL,
	})
	if cfg.Reports.Enabled {
		reportQueue.Start(ctx)
		defer reportQueue.Stop()
		reportSvc.RecoverPendingJobs(ctx)
		go reportSvc.StartCleanup(ctx)
	}

	deps := router.Deps{
		Config:  cfg,
		Logger:  logr,
		Metrics: metricsSvc,
		Auth:    authSvc,

		AuthHandler:       handler.NewAuthHandler(authSvc, userSvc),
		UserHandler:       handler.NewUserHandler(userSvc),
		CourseHandler:     handler.NewCourseHandler(courseSvc),
		CategoryHandler:   handler.NewCategoryHandler(categorySvc, courseSvc),
		ContentHandler:    handler.NewContentHandler(contentSvc),
		AssessmentHandler: handler.NewAssessmentHandler(assessmentSvc),
		EnrollmentHandler: handler.NewEnrollmentHandler(enrollmentSvc),
		AnalyticsHandler:  handler.NewAnalyticsHandler(analyticsSvc),
		AttachmentHandler: handler.NewAttachmentHandler(attachmentSvc),
		TimelineHandler:   handler.NewTimelineHandler(timelineSvc),
		ReportHandler:     handler.NewReportHandler(reportSvc),
		HealthHandler:     handler.NewHealthHandler(db, redisClient),

		UserRepo: userRepo,
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router.New(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
