package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/openctemio/sipguard/pkg/logger"
)

// WorkerConfig holds the configuration for the job worker.
type WorkerConfig struct {
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	Concurrency     int
	Queue           string
	ShutdownTimeout time.Duration
}

// WorkerOption is a functional option for configuring the Worker.
type WorkerOption func(*asynq.Config)

// WithErrorHandler sets the handler called when a check task fails.
func WithErrorHandler(h asynq.ErrorHandler) WorkerOption {
	return func(c *asynq.Config) {
		c.ErrorHandler = h
	}
}

// Worker processes check tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *logger.Logger
}

// NewWorker creates a new check worker.
func NewWorker(cfg WorkerConfig, runner CheckRunner, log *logger.Logger, opts ...WorkerOption) (*Worker, error) {
	if cfg.Queue == "" {
		return nil, fmt.Errorf("queue is required")
	}

	log = log.With("component", "worker")
	asynqCfg := asynq.Config{
		Concurrency:     cfg.Concurrency,
		Queues:          map[string]int{cfg.Queue: 1},
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          newAsynqLogger(log),
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			log.Error("check task failed", "type", task.Type(), "error", err)
		}),
	}
	for _, opt := range opts {
		opt(&asynqCfg)
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynqCfg,
	)

	mux := asynq.NewServeMux()
	NewCheckTaskHandler(runner, log).RegisterHandlers(mux)
	log.Info("check task handlers registered", "queue", cfg.Queue)

	return &Worker{
		server: server,
		mux:    mux,
		logger: log,
	}, nil
}

// Start starts the worker.
func (w *Worker) Start() error {
	w.logger.Info("starting check worker")
	return w.server.Start(w.mux)
}

// Stop stops the worker gracefully.
func (w *Worker) Stop() {
	w.logger.Info("stopping check worker")
	w.server.Shutdown()
}

// Run runs the worker until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Start(w.mux)
	}()

	select {
	case <-ctx.Done():
		w.Stop()
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
		<-ctx.Done()
		w.Stop()
		return nil
	}
}

// asynqLogger routes asynq's internal logging through the application logger.
type asynqLogger struct {
	log *logger.Logger
}

func newAsynqLogger(log *logger.Logger) *asynqLogger {
	return &asynqLogger{log: log.With("source", "asynq")}
}

func (l *asynqLogger) Debug(args ...any) { l.log.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.log.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.log.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.log.Error(fmt.Sprint(args...)) }

// Fatal logs at error level; asynq exits the process itself afterwards.
func (l *asynqLogger) Fatal(args ...any) { l.log.Error(fmt.Sprint(args...)) }

var _ asynq.Logger = (*asynqLogger)(nil)
