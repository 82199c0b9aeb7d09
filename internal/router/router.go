package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/lumenlms/lms-api/internal/authz"
	"github.com/lumenlms/lms-api/internal/handler"
	"github.com/lumenlms/lms-api/internal/middleware"
	"github.com/lumenlms/lms-api/internal/models"
	"github.com/lumenlms/lms-api/internal/repository"
	"github.com/lumenlms/lms-api/internal/service"
	"github.com/lumenlms/lms-api/pkg/config"
	"github.com/lumenlms/lms-api/pkg/logger"
	corsmiddleware "github.com/lumenlms/lms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/lumenlms/lms-api/pkg/middleware/requestid"
)

// Deps aggregates everything the HTTP surface needs.
type Deps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *service.MetricsService

	Auth *service.AuthService

	AuthHandler       *handler.AuthHandler
	UserHandler       *handler.UserHandler
	CourseHandler     *handler.CourseHandler
	CategoryHandler   *handler.CategoryHandler
	ContentHandler    *handler.ContentHandler
	AssessmentHandler *handler.AssessmentHandler
	EnrollmentHandler *handler.EnrollmentHandler
	AnalyticsHandler  *handler.AnalyticsHandler
	AttachmentHandler *handler.AttachmentHandler
	TimelineHandler   *handler.TimelineHandler
	ReportHandler     *handler.ReportHandler
	HealthHandler     *handler.HealthHandler

	UserRepo *repository.UserRepository
}

// New builds the gin engine with all routes registered.
func New(d Deps) *gin.Engine {
	if d.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.Logger))
	r.Use(corsmiddleware.New(d.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.Metrics))

	r.GET("/health", d.HealthHandler.Health)
	r.GET("/ready", d.HealthHandler.Ready)
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	if d.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authn := middleware.Authenticate(d.Auth, d.UserRepo)
	optional := middleware.OptionalAuth(d.Auth, d.UserRepo)
	adminOnly := middleware.Require(authz.AnyOf(models.RoleAdmin))
	instructorOrAdmin := middleware.Require(authz.AnyOf(models.RoleInstructor, models.RoleAdmin))

	v1 := r.Group(d.Config.APIPrefix)

	auth := v1.Group("/auth")
	{
		auth.POST("/register", d.AuthHandler.Register)
		auth.POST("/login", d.AuthHandler.Login)
		auth.POST("/refresh", d.AuthHandler.Refresh)
		auth.POST("/logout", authn, d.AuthHandler.Logout)
		auth.GET("/me", authn, d.AuthHandler.Me)
		auth.POST("/change-password", authn, d.AuthHandler.ChangePassword)
	}

	users := v1.Group("/users", authn)
	{
		users.GET("", adminOnly, d.UserHandler.List)
		users.GET("/:id", middleware.Require(authz.SelfOrRoles(models.RoleAdmin)), d.UserHandler.Get)
		users.PUT("/:id", middleware.Require(authz.SelfOrRoles(models.RoleAdmin)), d.UserHandler.Update)
		users.DELETE("/:id", adminOnly, middleware.Audit(d.UserRepo, "DEACTIVATE", "user"), d.UserHandler.Deactivate)
		users.POST("/:id/activate", adminOnly, middleware.Audit(d.UserRepo, "REACTIVATE", "user"), d.UserHandler.Reactivate)
	}

	categories := v1.Group("/categories")
	{
		categories.GET("", d.CategoryHandler.List)
		categories.GET("/:id/courses", d.CategoryHandler.Courses)
		categories.POST("", authn, adminOnly, d.CategoryHandler.Create)
		categories.PUT("/:id", authn, adminOnly, d.CategoryHandler.Update)
		categories.DELETE("/:id", authn, adminOnly, middleware.Audit(d.UserRepo, "DELETE", "category"), d.CategoryHandler.Delete)
	}

	courses := v1.Group("/courses")
	{
		courses.GET("", d.CourseHandler.List)
		courses.GET("/all", authn, adminOnly, d.CourseHandler.ListAll)
		courses.GET("/my", authn, instructorOrAdmin, d.CourseHandler.ListMine)
		courses.GET("/:id", optional, d.CourseHandler.Get)
		courses.POST("", authn, instructorOrAdmin, d.CourseHandler.Create)
		courses.PUT("/:id", authn, d.CourseHandler.Update)
		courses.DELETE("/:id", authn, d.CourseHandler.Delete)
		courses.POST("/:id/approve", authn, adminOnly, middleware.Audit(d.UserRepo, "APPROVE", "course"), d.CourseHandler.Approve)

		courses.POST("/:id/modules", authn, d.ContentHandler.CreateModule)
		courses.GET("/:id/modules", authn, d.ContentHandler.ListModules)

		courses.POST("/:id/enroll", authn, d.EnrollmentHandler.Enroll)
		courses.DELETE("/:id/enroll", authn, d.EnrollmentHandler.Unenroll)
		courses.PUT("/:id/progress", authn, d.EnrollmentHandler.UpdateProgress)
		courses.GET("/:id/students", authn, d.EnrollmentHandler.ListCourseStudents)
		courses.GET("/:id/enrollment", authn, d.EnrollmentHandler.Check)

		courses.GET("/:id/analytics", authn, d.AnalyticsHandler.CourseAnalytics)
		courses.POST("/:id/report", authn, d.ReportHandler.Create)
	}

	modules := v1.Group("/modules", authn)
	{
		modules.PUT("/:id", d.ContentHandler.UpdateModule)
		modules.DELETE("/:id", d.ContentHandler.DeleteModule)
		modules.POST("/:id/lessons", d.ContentHandler.CreateLesson)
		modules.GET("/:id/lessons", d.ContentHandler.ListLessons)
	}

	lessons := v1.Group("/lessons", authn)
	{
		lessons.GET("/:id", d.ContentHandler.GetLesson)
		lessons.PUT("/:id", d.ContentHandler.UpdateLesson)
		lessons.DELETE("/:id", d.ContentHandler.DeleteLesson)
		lessons.POST("/:id/quizzes", d.AssessmentHandler.CreateQuiz)
		lessons.GET("/:id/quizzes", d.AssessmentHandler.ListQuizzes)
		lessons.POST("/:id/assignments", d.AssessmentHandler.CreateAssignment)
		lessons.GET("/:id/assignments", d.AssessmentHandler.ListAssignments)
	}

	quizzes := v1.Group("/quizzes", authn)
	{
		quizzes.PUT("/:id", d.AssessmentHandler.UpdateQuiz)
		quizzes.DELETE("/:id", d.AssessmentHandler.DeleteQuiz)
		quizzes.POST("/:id/submit", d.AssessmentHandler.SubmitQuiz)
	}

	assignments := v1.Group("/assignments", authn)
	{
		assignments.GET("/:id", d.AssessmentHandler.GetAssignment)
		assignments.PUT("/:id", d.AssessmentHandler.UpdateAssignment)
		assignments.DELETE("/:id", d.AssessmentHandler.DeleteAssignment)
		assignments.POST("/:id/submissions", d.AssessmentHandler.Submit)
		assignments.GET("/:id/submissions", d.AssessmentHandler.ListSubmissions)
		assignments.GET("/:id/my-submission", d.AssessmentHandler.MySubmission)
	}

	v1.POST("/submissions/:id/grade", authn, d.AssessmentHandler.GradeSubmission)

	v1.GET("/enrollments/my", authn, d.EnrollmentHandler.ListMine)
	v1.GET("/timeline/upcoming", authn, d.TimelineHandler.Upcoming)

	uploads := v1.Group("/uploads", authn)
	{
		uploads.POST("", d.AttachmentHandler.Upload)
		uploads.GET("", d.AttachmentHandler.List)
		uploads.GET("/:id/url", d.AttachmentHandler.Sign)
		uploads.DELETE("/:id", adminOnly, d.AttachmentHandler.Delete)
	}

	// Signed token is the credential on download routes.
	v1.GET("/downloads/:token", d.AttachmentHandler.Download)
	v1.GET("/reports/download", d.ReportHandler.Download)
	v1.GET("/reports/:id", authn, d.ReportHandler.Status)

	return r
}
