// Package main runs the marketing-asset generation HTTP server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/adforge/backend/config"
	"github.com/adforge/backend/internal/assets"
	"github.com/adforge/backend/internal/auth"
	"github.com/adforge/backend/internal/campaigns"
	"github.com/adforge/backend/internal/creative"
	"github.com/adforge/backend/internal/middleware"
	"github.com/adforge/backend/internal/scraper"
	"github.com/adforge/backend/pkg/database"
	"github.com/adforge/backend/pkg/queue"
	"github.com/adforge/backend/pkg/redis"
	"github.com/adforge/backend/pkg/response"
	"github.com/adforge/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Cfg := storage.S3Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		AssetsBucket:    cfg.AWS.AssetsBucket,
	}
	s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	genClient, err := creative.NewClient(ctx, cfg.GenAI, logger)
	if err != nil {
		logger.Fatal("genai", zap.Error(err))
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	resolver := scraper.NewResolver(30 * time.Second)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Campaigns
	campaignRepo := campaigns.NewRepository(pool)
	orchestrator := campaigns.NewOrchestrator(
		genClient, s3Client, resolver, campaignRepo, jobQueue,
		cfg.Generation.Platforms, cfg.Generation.Concurrency, cfg.Generation.MaxVariations,
		logger,
	)
	campaignHandler := campaigns.NewHandler(orchestrator, campaignRepo, jobQueue, logger)

	// Assets
	assetRepo := assets.NewRepository(pool)
	exporter := assets.NewExporter(s3Client, logger)
	assetHandler := assets.NewHandler(assetRepo, campaignRepo, genClient, s3Client, exporter, jobQueue, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Campaigns
		api.POST("/campaigns", campaignHandler.Generate)
		api.GET("/campaigns", campaignHandler.List)
		api.GET("/campaigns/:id", campaignHandler.Get)
		api.DELETE("/campaigns/:id", campaignHandler.Delete)

		// Assets
		api.POST("/assets/regenerate", assetHandler.Regenerate)
		api.POST("/assets/ab-test/select", assetHandler.SelectWinner)
		api.GET("/assets/export/:id", assetHandler.Export)
		api.GET("/assets/library", assetHandler.Library)
		api.POST("/assets/tags", assetHandler.UpdateTags)
		api.POST("/assets/collection", assetHandler.UpdateCollection)
		api.GET("/assets/images/:id/download", assetHandler.Download)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
