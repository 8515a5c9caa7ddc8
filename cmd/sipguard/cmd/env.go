package cmd

import (
	"fmt"
	"os"

	"github.com/openctemio/sipguard/internal/config"
	"github.com/openctemio/sipguard/internal/infra/jobs"
	"github.com/openctemio/sipguard/internal/infra/postgres"
	"github.com/openctemio/sipguard/internal/infra/redis"
	"github.com/openctemio/sipguard/pkg/logger"
)

// env holds the connections opened for one command.
type env struct {
	cfg     *config.Config
	log     *logger.Logger
	closers []func() error
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if flagVerbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Level: level, Format: "text", Output: os.Stderr})
	return &env{cfg: cfg, log: log}, nil
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.log.Warn("failed to close connection", "error", err)
		}
	}
}

func (e *env) db() (*postgres.DB, error) {
	db, err := postgres.New(&e.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	e.closers = append(e.closers, db.Close)
	return db, nil
}

func (e *env) redis() (*redis.Client, error) {
	client, err := redis.New(&e.cfg.Redis, e.log)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	e.closers = append(e.closers, client.Close)
	return client, nil
}

func (e *env) jobs() (*jobs.Client, error) {
	client, err := jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     e.cfg.Redis.Addr(),
		RedisPassword: e.cfg.Redis.Password,
		RedisDB:       e.cfg.Redis.DB,
		Queue:         e.cfg.Worker.Queue,
		TaskTimeout:   e.cfg.Worker.TaskTimeout,
		Retention:     e.cfg.Worker.ResultRetention,
	}, e.log)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, client.Close)
	return client, nil
}
