package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	_ "github.com/noah-isme/faculty-records-api/api/swagger"
	"github.com/noah-isme/faculty-records-api/internal/handler"
	"github.com/noah-isme/faculty-records-api/internal/repository"
	"github.com/noah-isme/faculty-records-api/internal/router"
	"github.com/noah-isme/faculty-records-api/internal/service"
	"github.com/noah-isme/faculty-records-api/pkg/cache"
	"github.com/noah-isme/faculty-records-api/pkg/config"
	"github.com/noah-isme/faculty-records-api/pkg/database"
	"github.com/noah-isme/faculty-records-api/pkg/jobs"
	"github.com/noah-isme/faculty-records-api/pkg/logger"
	"github.com/noah-isme/faculty-records-api/pkg/storage"
)

// @title Faculty Records API
// @version 1.0.0
// @description Submission, review and reporting of faculty research records
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.NewMigrator(db, logr).Up(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	var redisClient *redis.Client
	if cfg.Summary.CacheEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, summary cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
		}
	}

	blobs, mongoClient, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	if mongoClient != nil {
		defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	users := repository.NewUserRepository(db)
	records := repository.NewRecordRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Summary.CacheTTL, logr, redisClient != nil)

	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
	})
	summarySvc := service.NewSummaryService(records, users, cacheSvc, metrics, cfg.Summary.CacheTTL, logr)
	recordSvc := service.NewRecordService(records, users, blobs,
		storage.NewSignedURLSigner(cfg.Attachments.SignedURLSecret, cfg.Attachments.SignedURLTTL),
		service.RecordServiceConfig{MaxAttachmentBytes: cfg.Attachments.MaxFileSizeBytes},
		logr,
		service.WithRecordAudit(users),
		service.WithRecordMetrics(metrics),
		service.WithSummaryInvalidator(summarySvc),
	)
	employeeSvc := service.NewEmployeeService(users, users, validate, users, summarySvc, logr)
	exportSvc := service.NewExportService(recordSvc, summarySvc, logr)

	exportHandler := handler.NewExportHandler(exportSvc, nil)
	if cfg.Exports.JobsEnabled {
		jobSvc, queue, err := startExportJobs(ctx, cfg, db, exportSvc, users, metrics, logr)
		if err != nil {
			return err
		}
		defer queue.Stop()
		exportHandler = handler.NewExportHandler(exportSvc, jobSvc)
	}

	engine := router.New(router.Options{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Logger:         logr,
		Metrics:        metrics,
		Tokens:         authSvc,
		Audit:          users,
		Auth:           handler.NewAuthHandler(authSvc),
		Records:        handler.NewRecordHandler(recordSvc, cfg.APIPrefix, cfg.Attachments.MaxFileSizeBytes),
		Summary:        handler.NewSummaryHandler(summarySvc),
		Exports:        exportHandler,
		Employees:      handler.NewEmployeeHandler(employeeSvc),
		System: handler.NewMetricsHandler(metrics, map[string]handler.ReadinessCheck{
			"database": db.PingContext,
			"cache": func(ctx context.Context) error {
				if redisClient == nil {
					return nil
				}
				return redisClient.Ping(ctx).Err()
			},
		}),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logr.Info("server stopped gracefully")
	return nil
}

func openBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, *mongo.Client, error) {
	if cfg.Attachments.Backend == config.BlobBackendGridFS {
		client, mdb, err := database.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewGridFSStore(mdb), client, nil
	}
	local, err := storage.NewLocalStorage(cfg.Attachments.StorageDir)
	if err != nil {
		return nil, nil, fmt.Errorf("init blob storage: %w", err)
	}
	return local.Blobs(), nil, nil
}

func startExportJobs(ctx context.Context, cfg *config.Config, db *sqlx.DB, generator *service.ExportService, users *repository.UserRepository, metrics *service.MetricsService, logr *zap.Logger) (*service.ExportJobService, *jobs.Queue, error) {
	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, nil, fmt.Errorf("init export storage: %w", err)
	}
	repo := repository.NewExportJobRepository(db)
	worker := service.NewExportWorker(repo, generator, files, metrics, logr)

	var jobSvc *service.ExportJobService
	queue := jobs.NewQueue("exports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
		OnExhausted: func(ctx context.Context, job jobs.Job, cause error) {
			jobSvc.MarkExhausted(ctx, job, cause)
		},
	})
	jobSvc = service.NewExportJobService(repo, queue, files,
		storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		users, metrics, logr,
		service.ExportJobConfig{
			APIPrefix:       cfg.APIPrefix,
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
		})

	queue.Start(ctx)
	jobSvc.RecoverPendingJobs(ctx)
	jobSvc.StartCleanup(ctx)
	return jobSvc, queue, nil
}
