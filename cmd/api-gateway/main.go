package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	_ "github.com/noah-isme/ami-audit-api/api/swagger"
	"github.com/noah-isme/ami-audit-api/internal/repository"
	"github.com/noah-isme/ami-audit-api/internal/service"
	"github.com/noah-isme/ami-audit-api/pkg/cache"
	"github.com/noah-isme/ami-audit-api/pkg/config"
	"github.com/noah-isme/ami-audit-api/pkg/database"
	"github.com/noah-isme/ami-audit-api/pkg/jobs"
	"github.com/noah-isme/ami-audit-api/pkg/logger"
	"github.com/noah-isme/ami-audit-api/pkg/storage"
)

// @title AMI Audit API
// @version 0.1.0
// @description Internal quality audit management for higher education
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, dashboard cache disabled", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Evidence.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init evidence storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Evidence.SignedURLSecret, cfg.Evidence.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	unitRepo := repository.NewUnitRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	metricsSvc := service.NewMetricsService()

	var dashboardCache *repository.CacheRepository
	if redisClient != nil {
		dashboardCache = repository.NewCacheRepository(redisClient, logr)
	}

	aiClient := service.NewAIClient(cfg.Generator, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "ami-audit-api",
		Audience:           []string{"ami-audit-clients"},
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	unitSvc := service.NewUnitService(unitRepo, validate, logr)
	questionSvc := service.NewQuestionService(questionRepo, validate, logr)
	settingsSvc := service.NewSettingsService(settingsRepo, validate, logr)

	auditSvc := service.NewAuditService(auditRepo, userRepo, questionRepo, aiClient, cfg.Audit, validate, logr)
	scoringSvc := service.NewScoringService()
	reportSvc := service.NewReportService(auditSvc, scoringSvc, aiClient, logr)

	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, logr)
	notificationSvc.BindMetrics(metricsSvc)
	queue := jobs.NewQueue("notifications", notificationSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	notificationSvc.BindQueue(queue)

	dashboardSvc := service.NewDashboardService(auditRepo, nil, metricsSvc, cfg.Dashboard.CacheTTL, logr)
	if dashboardCache != nil {
		dashboardSvc = service.NewDashboardService(auditRepo, dashboardCache, metricsSvc, cfg.Dashboard.CacheTTL, logr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	queue.Start(ctx)
	defer queue.Stop()

	deps := routerDeps{
		cfg:             cfg,
		logger:          logr,
		db:              db,
		redis:           redisClient,
		metrics:         metricsSvc,
		userRepo:        userRepo,
		authService:     authSvc,
		userService:     userSvc,
		unitService:     unitSvc,
		questionService: questionSvc,
		settingsService: settingsSvc,
		auditService:    auditSvc,
		reportService:   reportSvc,
		notifications:   notificationSvc,
		dashboard:       dashboardSvc,
		storage:         store,
		signer:          signer,
	}
	r := buildRouter(deps)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
