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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/Juls-123/chapel-admin-sub000/api/swagger"
	"github.com/Juls-123/chapel-admin-sub000/internal/handler"
	"github.com/Juls-123/chapel-admin-sub000/internal/middleware"
	"github.com/Juls-123/chapel-admin-sub000/internal/models"
	"github.com/Juls-123/chapel-admin-sub000/internal/repository"
	"github.com/Juls-123/chapel-admin-sub000/internal/service"
	"github.com/Juls-123/chapel-admin-sub000/pkg/cache"
	"github.com/Juls-123/chapel-admin-sub000/pkg/config"
	"github.com/Juls-123/chapel-admin-sub000/pkg/database"
	"github.com/Juls-123/chapel-admin-sub000/pkg/logger"
	"github.com/Juls-123/chapel-admin-sub000/pkg/mailer"
	corsmiddleware "github.com/Juls-123/chapel-admin-sub000/pkg/middleware/cors"
	reqidmiddleware "github.com/Juls-123/chapel-admin-sub000/pkg/middleware/requestid"
	"github.com/Juls-123/chapel-admin-sub000/pkg/storage"
)

// @title Chapel Admin API
// @version 1.0.0
// @description Warning workflow administration for chapel attendance
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	cacheEnabled := cfg.Cache.Enabled
	if cacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
			cacheEnabled = false
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cacheEnabled)

	var artifactRepo *repository.ArtifactRepository
	var absenteeRepo *repository.AbsenteeRepository
	switch cfg.Storage.Backend {
	case "s3":
		s3Store, err := storage.NewS3Storage(rootCtx, storage.S3Options{
			Bucket:       cfg.Storage.Bucket,
			Region:       cfg.Storage.Region,
			Endpoint:     cfg.Storage.Endpoint,
			UsePathStyle: cfg.Storage.UsePathStyle,
		})
		if err != nil {
			logr.Sugar().Fatalw("failed to init s3 storage", "error", err)
		}
		artifactRepo = repository.NewArtifactRepository(s3Store)
		absenteeRepo = repository.NewAbsenteeRepository(s3Store)
	default:
		fsStore, err := storage.NewFileBlobStorage(cfg.Storage.LocalDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init filesystem storage", "error", err)
		}
		artifactRepo = repository.NewArtifactRepository(fsStore)
		absenteeRepo = repository.NewAbsenteeRepository(fsStore)
	}

	workflowRepo := repository.NewWorkflowRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)
	chapelRepo := repository.NewChapelServiceRepository(db)
	studentRepo := repository.NewStudentRepository(db)

	validate := validator.New()

	auditSvc := service.NewAuditService(auditRepo, logr)
	authSvc := service.NewAuthService(userRepo, auditSvc, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
	})

	batchSvc := service.NewBatchService(chapelRepo, cacheSvc, logr)
	collector := service.NewAttendanceCollector(absenteeRepo, cfg.Workflow.Levels, logr)
	builder := service.NewWarningBuilder(studentRepo, logr)
	workflowSvc := service.NewWorkflowService(
		workflowRepo,
		artifactRepo,
		batchSvc,
		collector,
		builder,
		chapelRepo,
		auditSvc,
		cacheSvc,
		metricsSvc,
		validate,
		logr,
		cfg.Workflow.DefaultMinMissCount,
	)

	mail := mailer.NewSMTPMailer(cfg.SMTP)
	sendSvc := service.NewSendService(workflowSvc, artifactRepo, mail, metricsSvc, logr, cfg.Send)
	sendSvc.Start(rootCtx)

	exportFiles, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(workflowSvc, artifactRepo, exportFiles, signer, metricsSvc, logr, cfg.Exports)
	exportSvc.StartCleanup(rootCtx)

	authHandler := handler.NewAuthHandler(authSvc)
	workflowHandler := handler.NewWorkflowHandler(workflowSvc, auditSvc)
	sendHandler := handler.NewSendHandler(sendSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.ResponseMeta())
	r.Use(middleware.AuditMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		session := auth.Group("")
		session.Use(middleware.JWT(authSvc))
		{
			session.POST("/logout", authHandler.Logout)
			session.POST("/change-password", authHandler.ChangePassword)
			session.GET("/me", authHandler.Me)
		}
	}

	workflows := api.Group("/workflows")
	workflows.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))
	{
		workflows.POST("", workflowHandler.Create)
		workflows.GET("", workflowHandler.List)
		workflows.GET("/:id", workflowHandler.Get)
		workflows.DELETE("/:id", workflowHandler.Delete)
		workflows.POST("/:id/generate", workflowHandler.Generate)
		workflows.GET("/:id/warnings", workflowHandler.Warnings)
		workflows.POST("/:id/lock", workflowHandler.Lock)
		workflows.POST("/:id/complete", workflowHandler.Complete)
		workflows.POST("/:id/fail", workflowHandler.Fail)
		workflows.GET("/:id/audit", workflowHandler.AuditTrail)
		workflows.POST("/:id/send", sendHandler.Start)
		workflows.GET("/:id/delivery", sendHandler.Report)
		workflows.POST("/:id/export", exportHandler.Export)
	}

	maintenance := api.Group("/workflows/reconcile")
	maintenance.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleSuperAdmin))
	{
		maintenance.POST("", workflowHandler.Reconcile)
	}

	// The signed token is the credential; no session needed.
	api.GET("/downloads/:token", exportHandler.Download)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown forced", "error", err)
	}
	sendSvc.Stop()
	logr.Sugar().Infow("server stopped")
}
