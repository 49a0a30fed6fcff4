package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/aisensei-api/internal/config"
	"github.com/noah-isme/aisensei-api/internal/database"
	"github.com/noah-isme/aisensei-api/internal/handler"
	"github.com/noah-isme/aisensei-api/internal/middleware"
	"github.com/noah-isme/aisensei-api/internal/observability"
	"github.com/noah-isme/aisensei-api/internal/repository"
	"github.com/noah-isme/aisensei-api/internal/router"
	"github.com/noah-isme/aisensei-api/internal/service"
	"github.com/noah-isme/aisensei-api/pkg/classroom"
	"github.com/noah-isme/aisensei-api/pkg/llm"
	"github.com/noah-isme/aisensei-api/pkg/ocr"
	"github.com/noah-isme/aisensei-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	observability.RegisterMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.BatchConcurrency + 10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	store, err := storage.New(ctx, storage.Config{
		Driver:              cfg.Storage.Driver,
		LocalRoot:           cfg.Storage.LocalRoot,
		S3Region:            cfg.Storage.S3Region,
		S3Bucket:            cfg.Storage.S3Bucket,
		MinIOEndpoint:       cfg.Storage.MinIOEndpoint,
		MinIOAccessKey:      cfg.Storage.MinIOAccessKey,
		MinIOSecretKey:      cfg.Storage.MinIOSecretKey,
		MinIOBucket:         cfg.Storage.MinIOBucket,
		MinIOUseSSL:         cfg.Storage.MinIOUseSSL,
		CloudinaryCloudName: cfg.Storage.CloudinaryCloudName,
		CloudinaryAPIKey:    cfg.Storage.CloudinaryAPIKey,
		CloudinaryAPISecret: cfg.Storage.CloudinaryAPISecret,
		CloudinaryFolder:    cfg.Storage.CloudinaryFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create storage: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	gatewayClient := llm.NewClient(llm.ClientConfig{
		BaseURL:        cfg.GatewayURL,
		Timeout:        cfg.GatewayTimeout,
		ModelsCacheTTL: 5 * time.Minute,
	})
	ocrClient := ocr.NewClient(ocr.Config{BaseURL: cfg.OCRServiceURL, Timeout: cfg.OCRTimeout})
	driveClient := classroom.NewDriveClient(classroom.DriveConfig{BaseURL: cfg.DriveBaseURL, Timeout: cfg.GatewayTimeout})

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	fileRepo := repository.NewSubmissionFileRepository(db)

	hub := service.NewGradingEventHub(redisClient, natsConn, logger)
	progressService := service.NewGradingProgressService(assignmentRepo, submissionRepo, redisClient, cfg.ProgressCacheTTL, logger)
	gradingService := service.NewGradingService(submissionRepo, buildRoutes(cfg, gatewayClient, logger), hub, progressService, service.GradingConfig{
		DefaultModel:   cfg.DefaultModel,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		AttemptTimeout: cfg.GatewayTimeout,
	}, logger)
	batchService := service.NewBatchGradingService(assignmentRepo, submissionRepo, fileRepo, gradingService, cfg.BatchConcurrency, logger)
	modelsService := service.NewGradingModelsService(gatewayClient, logger)
	ocrService := service.NewOCRService(fileRepo, store, ocrClient, natsConn, service.OCRConfig{
		MaxRetries: cfg.OCRMaxRetries,
		RetryDelay: cfg.OCRRetryDelay,
	}, logger)
	fileService := service.NewSubmissionFileService(submissionRepo, fileRepo, store, ocrService, cfg.UploadMaxSizeMB, logger)
	attachmentService := service.NewAttachmentService(submissionRepo, fileRepo, driveClient, store, ocrService, logger)

	hub.Start(ctx)
	ocrService.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSOrigins})
	router.Register(app, cfg, router.Dependencies{
		GradingHandler:       handler.NewGradingHandler(gradingService, batchService, progressService, modelsService, validate, logger),
		SubmissionHandler:    handler.NewSubmissionHandler(fileService, attachmentService, logger),
		GradingStreamHandler: handler.NewGradingStreamHandler(hub, progressService, logger),
		Gateway:              gatewayClient,
		JWTMiddleware:        middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdown(app, ocrService, logger)
}

// buildRoutes lists the grading routes in fallback order. The gateway comes
// first; a direct Gemini route is appended when a key is configured.
func buildRoutes(cfg config.Config, gateway *llm.Client, logger zerolog.Logger) []service.GradingRoute {
	routes := []service.GradingRoute{{Name: "gateway", Generator: gateway}}

	if cfg.FallbackGeminiAPIKey == "" {
		return routes
	}

	provider, err := llm.NewGeminiProvider(llm.GeminiConfig{
		APIKey:  cfg.FallbackGeminiAPIKey,
		BaseURL: cfg.FallbackGeminiBaseURL,
		Timeout: cfg.FallbackTimeout,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("direct gemini fallback disabled")
		return routes
	}

	model := llm.ModelInfo{ID: cfg.FallbackGeminiModel, ProviderModel: cfg.FallbackGeminiModel, Provider: provider.Name()}
	return append(routes, service.GradingRoute{
		Name:      "gemini-direct",
		Generator: llm.NewDirectGenerator(provider, model, logger),
		Model:     cfg.FallbackGeminiModel,
		Label:     cfg.FallbackGeminiModel + "-direct",
	})
}

func shutdown(app *fiber.App, ocrService service.OCRService, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	done := make(chan struct{})
	go func() {
		ocrService.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn().Msg("ocr jobs still running at shutdown")
	}

	logger.Info().Msg("server stopped")
}
