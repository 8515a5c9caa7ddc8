package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/openctemio/sipguard/internal/app/checks"
	"github.com/openctemio/sipguard/pkg/logger"
)

// ErrResultPending is returned while a check task has not finished.
var ErrResultPending = errors.New("check result not available yet")

// Client manages enqueueing check tasks using Asynq.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	opts      TaskOptions
	logger    *logger.Logger
}

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Queue       string
	TaskTimeout time.Duration
	Retention   time.Duration
}

// NewClient creates a new job client for enqueueing tasks.
func NewClient(cfg ClientConfig, log *logger.Logger) (*Client, error) {
	if cfg.Queue == "" {
		return nil, errors.New("queue is required")
	}
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	return &Client{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		opts: TaskOptions{
			Queue:     cfg.Queue,
			Timeout:   cfg.TaskTimeout,
			Retention: cfg.Retention,
		},
		logger: log.With("component", "job_client"),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}

// Enqueue enqueues a check and returns the queued task.
func (c *Client) Enqueue(ctx context.Context, in checks.Input) (*asynq.TaskInfo, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	payload, err := NewCheckPayload(in)
	if err != nil {
		return nil, err
	}
	task, err := NewCheckTask(payload, c.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue check",
			"check", payload.Check,
			"workflow_id", payload.WorkflowID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("check queued",
		"task_id", info.ID,
		"check", payload.Check,
		"workflow_id", payload.WorkflowID,
		"queue", info.Queue,
	)
	return info, nil
}

// EnqueueCheck enqueues a check.
func (c *Client) EnqueueCheck(ctx context.Context, in checks.Input) error {
	_, err := c.Enqueue(ctx, in)
	return err
}

// Result returns the outcome written by a finished check task. It returns
// ErrResultPending while the task is queued or running.
func (c *Client) Result(taskID string) (*checks.Output, error) {
	info, err := c.inspector.GetTaskInfo(c.opts.Queue, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", taskID, err)
	}
	return decodeResult(info)
}

func decodeResult(info *asynq.TaskInfo) (*checks.Output, error) {
	switch info.State {
	case asynq.TaskStateCompleted:
		var out checks.Output
		if err := json.Unmarshal(info.Result, &out); err != nil {
			return nil, fmt.Errorf("failed to decode result of task %s: %w", info.ID, err)
		}
		return &out, nil
	case asynq.TaskStateArchived:
		return nil, fmt.Errorf("check task %s failed: %s", info.ID, info.LastErr)
	default:
		return nil, fmt.Errorf("%w: task %s is %s", ErrResultPending, info.ID, info.State)
	}
}

var _ checks.Enqueuer = (*Client)(nil)
