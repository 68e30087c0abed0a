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

	_ "github.com/vikram-labs/schoolpay-api/api/swagger"
	"github.com/vikram-labs/schoolpay-api/internal/gateway"
	"github.com/vikram-labs/schoolpay-api/internal/handler"
	"github.com/vikram-labs/schoolpay-api/internal/middleware"
	"github.com/vikram-labs/schoolpay-api/internal/repository"
	"github.com/vikram-labs/schoolpay-api/internal/service"
	"github.com/vikram-labs/schoolpay-api/pkg/cache"
	"github.com/vikram-labs/schoolpay-api/pkg/config"
	"github.com/vikram-labs/schoolpay-api/pkg/database"
	"github.com/vikram-labs/schoolpay-api/pkg/logger"
	corsmiddleware "github.com/vikram-labs/schoolpay-api/pkg/middleware/cors"
	reqidmiddleware "github.com/vikram-labs/schoolpay-api/pkg/middleware/requestid"
	"github.com/vikram-labs/schoolpay-api/pkg/notify"
	"github.com/vikram-labs/schoolpay-api/pkg/storage"
)

// @title SchoolPay API
// @version 1.0.0
// @description Multi-tenant school fee ledger and payment reconciliation API
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
	defer db.Close() //nolint:errcheck

	metrics := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("redis unavailable, analytics caching disabled", "error", err)
	} else {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Analytics.CacheTTL, logr, cfg.Analytics.Enabled)
	}

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)
	structureRepo := repository.NewFeeStructureRepository(db)
	statusRepo := repository.NewFeeStatusRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)

	gatewayClient, err := gateway.NewRouter(cfg.Gateway)
	if err != nil {
		logr.Sugar().Fatalw("failed to configure payment gateway", "error", err)
	}

	var sender notify.Sender
	if cfg.Notifications.Provider == "sendgrid" && cfg.Notifications.SendGridKey != "" {
		sender = notify.NewSendGridSender(cfg.Notifications.SendGridKey, cfg.Notifications.FromEmail, cfg.Notifications.FromName)
	} else {
		sender = notify.NewConsoleSender(logr)
	}

	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	validate := validator.New()

	notifications := service.NewNotificationService(sender, schoolRepo, cfg.Notifications, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "schoolpay-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	structureSvc := service.NewFeeStructureService(structureRepo, statusRepo, studentRepo, validate, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, structureRepo, studentRepo, notifications, gatewayClient, metrics, cfg.Fees.ReceiptPrefix, validate, logr)
	gatewaySvc := service.NewGatewayService(gatewayClient, paymentSvc, paymentRepo, statusRepo, studentRepo, structureRepo, metrics, cfg.Gateway.Currency, validate, logr)
	analyticsSvc := service.NewFeeAnalyticsService(analyticsRepo, cacheSvc, cfg.Analytics.CacheTTL, logr)
	reminderSvc := service.NewFeeReminderService(statusRepo, schoolRepo, notifications, metrics, logr)
	exportSvc := service.NewExportService(paymentRepo, statusRepo, studentRepo, schoolRepo, structureRepo, store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifications.Start(ctx)
	defer notifications.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	handlers := handler.Handlers{
		Auth:       handler.NewAuthHandler(authSvc),
		Users:      handler.NewUserHandler(userSvc),
		Students:   handler.NewStudentHandler(studentSvc),
		Structures: handler.NewFeeStructureHandler(structureSvc),
		Payments:   handler.NewPaymentHandler(paymentSvc, exportSvc),
		Gateway:    handler.NewGatewayHandler(gatewaySvc),
		Analytics:  handler.NewFeeAnalyticsHandler(analyticsSvc),
		Reminders:  handler.NewFeeReminderHandler(reminderSvc),
		Exports:    handler.NewExportHandler(exportSvc),
		Metrics:    handler.NewMetricsHandler(metrics, db.PingContext),
	}
	handler.RegisterRoutes(r, handler.RouterConfig{
		APIPrefix:        cfg.APIPrefix,
		AnalyticsEnabled: cfg.Analytics.Enabled,
	}, handlers, authSvc, userRepo)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
