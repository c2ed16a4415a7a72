package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/westhall-edu/admissions-api/api/swagger"
	"github.com/westhall-edu/admissions-api/internal/handler"
	"github.com/westhall-edu/admissions-api/internal/middleware"
	"github.com/westhall-edu/admissions-api/internal/models"
	"github.com/westhall-edu/admissions-api/internal/repository"
	"github.com/westhall-edu/admissions-api/internal/service"
	"github.com/westhall-edu/admissions-api/pkg/cache"
	"github.com/westhall-edu/admissions-api/pkg/config"
	"github.com/westhall-edu/admissions-api/pkg/database"
	"github.com/westhall-edu/admissions-api/pkg/export"
	"github.com/westhall-edu/admissions-api/pkg/logger"
	corsmiddleware "github.com/westhall-edu/admissions-api/pkg/middleware/cors"
	reqidmiddleware "github.com/westhall-edu/admissions-api/pkg/middleware/requestid"
	"github.com/westhall-edu/admissions-api/pkg/storage"
)

// @title Westhall Admissions API
// @version 1.0.0
// @description Application workflow service for school admissions
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	catalog := models.NewStageCatalog()
	metricsSvc := service.NewMetricsService()

	applicationRepo := repository.NewApplicationRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	changeFeed := repository.NewApplicationChangeFeed(redisClient, cfg.Admissions.ChangeFeedChannel, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, true)

	var feeSvc *service.FeeService
	if cfg.Fees.Enabled {
		feeSvc = service.NewFeeService(feeRepo, catalog, cacheSvc, logr, service.FeeServiceConfig{
			Currency:        cfg.Fees.Currency,
			DueInDays:       cfg.Fees.DueInDays,
			SummaryCacheTTL: cfg.Fees.SummaryCacheTTL,
		})
	}

	provisioningSvc := service.NewProvisioningService(studentRepo, logr, "students.westhall.sch.uk")

	notificationSvc := service.NewNotificationService(notificationRepo, changeFeed, nil, logr, service.NotificationServiceConfig{
		Enabled:           cfg.Notifications.Enabled,
		WorkerConcurrency: cfg.Notifications.WorkerConcurrency,
		WorkerRetries:     cfg.Notifications.WorkerRetries,
	})
	notificationSvc.Start(rootCtx)
	defer notificationSvc.Stop()

	admissionParams := service.AdmissionServiceParams{
		Repo:                applicationRepo,
		Catalog:             catalog,
		Provisioning:        provisioningSvc,
		Notifier:            notificationSvc,
		Logger:              logr,
		StudentNumberPrefix: cfg.Admissions.StudentNumberPrefix,
	}
	if feeSvc != nil {
		admissionParams.Fees = feeSvc
	}
	admissionSvc := service.NewAdmissionService(admissionParams)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "admissions-api",
	})

	// Stage transitions observed on the feed drive the funnel metrics,
	// including transitions made by other instances.
	unsubscribe, err := changeFeed.Subscribe(rootCtx, func(event models.ApplicationChangeEvent) {
		metricsSvc.RecordStageChange(string(event.FromStage), string(event.ToStage))
	})
	if err != nil {
		logr.Sugar().Warnw("change feed subscription unavailable", "error", err)
	} else {
		defer unsubscribe()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(authSvc)
	admissionHandler := handler.NewAdmissionHandler(admissionSvc)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleRegistrar)
	admin := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)

	admissions := api.Group("/admissions", middleware.JWT(authSvc))
	admissions.GET("/stages", admissionHandler.Stages)
	admissions.GET("/applications", staff, admissionHandler.List)
	admissions.GET("/applications/:id", staff, admissionHandler.Get)
	admissions.POST("/applications", staff, admissionHandler.Create)
	admissions.PUT("/applications/:id", staff, admissionHandler.Update)
	admissions.POST("/applications/:id/advance", staff, admissionHandler.Advance)
	admissions.PUT("/applications/:id/status", admin, admissionHandler.SetStatus)

	if feeSvc != nil {
		feeHandler := handler.NewFeeHandler(feeSvc)
		fees := api.Group("/fees", middleware.JWT(authSvc), staff)
		fees.GET("/assignments", feeHandler.List)
		fees.POST("/assignments/:id/pay", feeHandler.MarkPaid)
		fees.GET("/summary", feeHandler.Summary)
	}

	if cfg.Notifications.Enabled {
		notificationHandler := handler.NewNotificationHandler(notificationSvc)
		notifications := api.Group("/notifications", middleware.JWT(authSvc), admin)
		notifications.GET("/templates", notificationHandler.ListTemplates)
		notifications.POST("/templates", notificationHandler.CreateTemplate)
		notifications.PUT("/templates/:id", notificationHandler.UpdateTemplate)
		notifications.GET("/logs", notificationHandler.ListLogs)
	}

	if cfg.Dashboard.Enabled {
		dashboardParams := service.DashboardServiceParams{
			Analytics: analyticsRepo,
			Cache:     cacheSvc,
			Catalog:   catalog,
			CacheTTL:  cfg.Dashboard.CacheTTL,
			Logger:    logr,
		}
		if feeSvc != nil {
			dashboardParams.Fees = feeSvc
		}
		dashboardSvc := service.NewDashboardService(dashboardParams)
		dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
		api.GET("/dashboard/admissions", middleware.JWT(authSvc), staff, dashboardHandler.Admissions)
	}

	if cfg.Exports.Enabled {
		localStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc := service.NewExportService(applicationRepo, localStorage, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Exports.SignedURLTTL,
		}, logr, export.NewCSVExporter(), export.NewPDFExporter())
		exportHandler := handler.NewExportHandler(exportSvc)
		exports := api.Group("/exports")
		exports.POST("/applications", middleware.JWT(authSvc), staff, exportHandler.Generate)
		// Download links are pre-signed; the token itself is the credential.
		exports.GET("/download/:token", exportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
