package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openctemio/sipguard/internal/config"
	"github.com/openctemio/sipguard/internal/infra/http"
	"github.com/openctemio/sipguard/internal/infra/http/handler"
	"github.com/openctemio/sipguard/internal/infra/jobs"
	"github.com/openctemio/sipguard/internal/infra/postgres"
	"github.com/openctemio/sipguard/internal/infra/redis"
	"github.com/openctemio/sipguard/internal/infra/telemetry"
	"github.com/openctemio/sipguard/internal/metrics"
	"github.com/openctemio/sipguard/pkg/logger"
)

// Version is set by build flags.
var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ==========================================================================
	// Configuration & Logger
	// ==========================================================================
	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := initLogger(cfg)
	log.Info("starting worker", "app", cfg.App.Name, "env", cfg.App.Env, "version", Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	}, log)
	if err != nil {
		log.Error("failed to set up tracing", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error("failed to flush traces", "error", err)
		}
	}()

	// ==========================================================================
	// Infrastructure
	// ==========================================================================
	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)
	log.Info("database connected")

	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer closeWithLog(redisClient, "redis", log)
	stopPoolStats := redis.StartPoolStatsCollector(ctx, redisClient, 15*time.Second)
	defer stopPoolStats()
	log.Info("redis connected")

	// ==========================================================================
	// Services
	// ==========================================================================
	services, err := NewServices(&ServiceDeps{
		Config: cfg,
		Log:    log,
		DB:     db,
		Redis:  redisClient,
	})
	if err != nil {
		log.Error("failed to initialize services", "error", err)
		return 1
	}
	log.Info("checks registered", "checks", services.Checks.Available())

	// ==========================================================================
	// Worker
	// ==========================================================================
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisAddr:       cfg.Redis.Addr(),
		RedisPassword:   cfg.Redis.Password,
		RedisDB:         cfg.Redis.DB,
		Concurrency:     cfg.Worker.Concurrency,
		Queue:           cfg.Worker.Queue,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, services.Checks, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		return 1
	}

	// ==========================================================================
	// HTTP Server
	// ==========================================================================
	health := handler.NewHealthHandler(
		handler.WithDependency("database", db),
		handler.WithDependency("redis", redisClient),
	)
	server := http.NewServer(&cfg.Server, health, log, cfg.IsProduction())
	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	log.Info("worker started", "queue", cfg.Worker.Queue, "http_addr", cfg.Server.Addr())
	if err := worker.Run(ctx); err != nil {
		log.Error("worker error", "error", err)
		return 1
	}

	// ==========================================================================
	// Graceful Shutdown
	// ==========================================================================
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return 1
	}

	log.Info("worker stopped")
	return 0
}

// =============================================================================
// Helper Functions
// =============================================================================

func initLogger(cfg *config.Config) *logger.Logger {
	sampling := logger.DefaultSamplingConfig()
	sampling.Enabled = cfg.Log.SamplingEnabled
	if cfg.Log.SamplingThreshold > 0 {
		sampling.Threshold = uint64(cfg.Log.SamplingThreshold)
	}
	sampling.Rate = cfg.Log.SamplingRate
	sampling.ErrorRate = cfg.Log.ErrorSamplingRate
	sampling.OnDropped = func(_ context.Context, r slog.Record) {
		metrics.LogsDroppedTotal.WithLabelValues(r.Level.String()).Inc()
	}

	log := logger.New(logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   os.Stdout,
		Sampling: sampling,
	})
	log.SetDefault()
	return log
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
