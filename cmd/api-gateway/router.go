package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/ami-audit-api/internal/handler"
	"github.com/noah-isme/ami-audit-api/internal/middleware"
	"github.com/noah-isme/ami-audit-api/internal/repository"
	"github.com/noah-isme/ami-audit-api/internal/service"
	"github.com/noah-isme/ami-audit-api/pkg/config"
	"github.com/noah-isme/ami-audit-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/ami-audit-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/ami-audit-api/pkg/middleware/requestid"
	"github.com/noah-isme/ami-audit-api/pkg/storage"
)

type routerDeps struct {
	cfg             *config.Config
	logger          *zap.Logger
	db              *sqlx.DB
	redis           *redis.Client
	metrics         *service.MetricsService
	userRepo        *repository.UserRepository
	authService     *service.AuthService
	userService     *service.UserService
	unitService     *service.UnitService
	questionService *service.QuestionService
	settingsService *service.SettingsService
	auditService    *service.AuditService
	reportService   *service.ReportService
	notifications   *service.NotificationService
	dashboard       *service.DashboardService
	storage         *storage.LocalStorage
	signer          *storage.SignedURLSigner
}

func buildRouter(deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.logger))
	r.Use(corsmiddleware.New(deps.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		checks := gin.H{"database": "ok"}
		status := http.StatusOK
		if err := deps.db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "down"
			status = http.StatusServiceUnavailable
		}
		if deps.redis != nil {
			checks["redis"] = "ok"
			if err := deps.redis.Ping(c.Request.Context()).Err(); err != nil {
				checks["redis"] = "down"
			}
		}
		c.JSON(status, checks)
	})
	r.GET("/metrics", gin.WrapH(deps.metrics.Handler()))

	if deps.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(deps.authService)
	userHandler := handler.NewUserHandler(deps.userService, deps.storage)
	unitHandler := handler.NewUnitHandler(deps.unitService)
	questionHandler := handler.NewQuestionHandler(deps.questionService)
	settingsHandler := handler.NewSettingsHandler(deps.settingsService)
	auditHandler := handler.NewAuditHandler(deps.auditService, deps.notifications, deps.dashboard, deps.metrics, deps.storage, deps.signer)
	reportHandler := handler.NewReportHandler(deps.reportService)
	notificationHandler := handler.NewNotificationHandler(deps.notifications)
	dashboardHandler := handler.NewDashboardHandler(deps.dashboard, deps.metrics)

	api := r.Group(deps.cfg.APIPrefix)

	// Signed file downloads carry their own authorization in the token.
	api.GET("/files/:token", auditHandler.DownloadFile)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	authed := api.Group("")
	authed.Use(middleware.JWT(deps.authService))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.POST("/auth/change-password", authHandler.ChangePassword)
	authed.GET("/auth/me", authHandler.Me)
	authed.POST("/users/me/avatar", userHandler.UploadAvatar)

	adminOnly := middleware.RBAC("SUPERADMIN", "ADMIN")

	users := authed.Group("/users")
	users.GET("", adminOnly, userHandler.List)
	users.GET("/:id", middleware.RBAC("SUPERADMIN", "ADMIN", "SELF"), userHandler.Get)
	users.POST("", adminOnly, userHandler.Create)
	users.PUT("/:id", adminOnly, userHandler.Update)
	users.DELETE("/:id", adminOnly, userHandler.Delete)

	units := authed.Group("/units")
	units.GET("", unitHandler.List)
	units.GET("/:id", unitHandler.Get)
	units.POST("", adminOnly, unitHandler.Create)
	units.PUT("/:id", adminOnly, unitHandler.Update)
	units.DELETE("/:id", adminOnly, unitHandler.Delete)

	questions := authed.Group("/questions")
	questions.GET("", questionHandler.List)
	questions.GET("/:id", questionHandler.Get)
	questions.POST("", adminOnly, questionHandler.Create)
	questions.PUT("/:id", adminOnly, questionHandler.Update)
	questions.DELETE("/:id", adminOnly, questionHandler.Delete)

	audits := authed.Group("/audits")
	audits.GET("", auditHandler.List)
	audits.GET("/overdue", auditHandler.Overdue)
	audits.GET("/:id", auditHandler.Get)
	audits.POST("", middleware.Trail(deps.userRepo, "AUDIT_SCHEDULE", "audit_sessions"), auditHandler.Schedule)
	audits.POST("/start-all", middleware.Trail(deps.userRepo, "AUDIT_START_ALL", "audit_sessions"), auditHandler.StartAll)
	audits.POST("/:id/confirm", middleware.Trail(deps.userRepo, "AUDIT_CONFIRM", "audit_sessions"), auditHandler.ConfirmSchedule)
	audits.POST("/:id/start", middleware.Trail(deps.userRepo, "AUDIT_START", "audit_sessions"), auditHandler.Start)
	audits.POST("/:id/submit-self-assessment", middleware.Trail(deps.userRepo, "AUDIT_SUBMIT_SELF", "audit_sessions"), auditHandler.SubmitSelfAssessment)
	audits.POST("/:id/submit-verification", middleware.Trail(deps.userRepo, "AUDIT_SUBMIT_VERIFICATION", "audit_sessions"), auditHandler.SubmitVerification)
	audits.POST("/:id/approve", middleware.Trail(deps.userRepo, "AUDIT_APPROVE", "audit_sessions"), auditHandler.ApproveCompletion)
	audits.POST("/:id/reschedule", middleware.Trail(deps.userRepo, "AUDIT_RESCHEDULE", "audit_sessions"), auditHandler.Reschedule)
	audits.DELETE("/:id", adminOnly, middleware.Trail(deps.userRepo, "AUDIT_DELETE", "audit_sessions"), auditHandler.Delete)
	audits.GET("/:id/validate-transition", auditHandler.ValidateTransition)
	audits.PATCH("/:id/questions/:questionId/auditee", auditHandler.UpdateAuditeeFields)
	audits.PATCH("/:id/questions/:questionId/auditor", auditHandler.UpdateAuditorFields)
	audits.POST("/:id/questions/:questionId/toggle-compliance", auditHandler.ToggleCompliance)
	audits.POST("/:id/questions/:questionId/evidence", auditHandler.UploadEvidence)
	audits.GET("/:id/evidence-url", auditHandler.SignEvidence)

	audits.GET("/:id/report", reportHandler.Get)
	audits.POST("/:id/report/simulate", reportHandler.Simulate)
	audits.GET("/:id/report/export/csv", reportHandler.ExportCSV)
	audits.GET("/:id/report/export/pdf", reportHandler.ExportPDF)
	audits.POST("/:id/report/enrich", reportHandler.Enrich)

	notifications := authed.Group("/notifications")
	notifications.GET("", notificationHandler.List)
	notifications.GET("/unread-count", notificationHandler.UnreadCount)
	notifications.POST("/:id/read", notificationHandler.MarkRead)
	notifications.POST("/read-all", notificationHandler.MarkAllRead)

	settings := authed.Group("/settings")
	settings.GET("", settingsHandler.Get)
	settings.PUT("", adminOnly, middleware.Trail(deps.userRepo, "SETTINGS_UPDATE", "system_settings"), settingsHandler.Update)

	dashboard := authed.Group("/dashboard")
	dashboard.GET("/summary", dashboardHandler.Summary)
	dashboard.GET("/metrics", adminOnly, dashboardHandler.SystemMetrics)

	return r
}
