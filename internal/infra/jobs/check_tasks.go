// Package jobs carries ingest check requests between the workflow orchestrator
// and the check workers using Asynq.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/openctemio/sipguard/internal/app/checks"
	"github.com/openctemio/sipguard/pkg/domain/shared"
	"github.com/openctemio/sipguard/pkg/logger"
	"github.com/openctemio/sipguard/pkg/validator"
)

// =============================================================================
// Task Types
// =============================================================================

const (
	// TypeIngestCheck is the task type for running one ingest check.
	TypeIngestCheck = "ingest:check"
)

// =============================================================================
// Task Payloads
// =============================================================================

// CheckPayload contains data for running an ingest check.
type CheckPayload struct {
	Check      string          `json:"check" validate:"required,oneof=antivirus format_identification fixity missing_nodes"`
	WorkflowID string          `json:"workflow_id" validate:"required,workflow_id"`
	SIPID      string          `json:"sip_id" validate:"required,max=255"`
	SIPPath    string          `json:"sip_path" validate:"required,abs_path"`
	Config     json.RawMessage `json:"config,omitempty"`
	Nodes      []NodePayload   `json:"nodes,omitempty" validate:"max=10000,dive"`
}

// NodePayload is a missing node reported by package validation.
type NodePayload struct {
	Location string `json:"location" validate:"required"`
	Source   string `json:"source" validate:"required,validation_stage"`
}

// TaskOptions controls how check tasks are queued.
type TaskOptions struct {
	Queue     string
	Timeout   time.Duration
	Retention time.Duration
}

// =============================================================================
// Task Creators
// =============================================================================

// NewCheckTask creates a task for running a check. Checks are never retried:
// a rerun happens only after an operator solves the incident.
func NewCheckTask(payload CheckPayload, opts TaskOptions) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal check payload: %w", err)
	}

	taskOpts := []asynq.Option{asynq.MaxRetry(0)}
	if opts.Queue != "" {
		taskOpts = append(taskOpts, asynq.Queue(opts.Queue))
	}
	if opts.Timeout > 0 {
		taskOpts = append(taskOpts, asynq.Timeout(opts.Timeout))
	}
	if opts.Retention > 0 {
		taskOpts = append(taskOpts, asynq.Retention(opts.Retention))
	}

	return asynq.NewTask(TypeIngestCheck, data, taskOpts...), nil
}

// =============================================================================
// Task Handler Interface
// =============================================================================

// CheckRunner runs ingest checks. This is implemented by checks.Service.
type CheckRunner interface {
	Run(ctx context.Context, in checks.Input) (*checks.Output, error)
}

// =============================================================================
// Task Handler
// =============================================================================

// CheckTaskHandler handles ingest check tasks.
type CheckTaskHandler struct {
	runner    CheckRunner
	validator *validator.Validator
	log       *logger.Logger
}

// NewCheckTaskHandler creates a new check task handler.
func NewCheckTaskHandler(runner CheckRunner, log *logger.Logger) *CheckTaskHandler {
	return &CheckTaskHandler{
		runner:    runner,
		validator: validator.New(),
		log:       log.With("component", "check_task_handler"),
	}
}

// HandleCheck runs the requested check and writes its outcome as the task result.
// Requests that can never succeed skip the retry queue.
func (h *CheckTaskHandler) HandleCheck(ctx context.Context, t *asynq.Task) error {
	var payload CheckPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.Error("failed to unmarshal check payload", "error", err)
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	if err := h.validator.Validate(payload); err != nil {
		h.log.Error("invalid check payload", "error", err, "workflow_id", payload.WorkflowID)
		return fmt.Errorf("invalid payload: %w: %w", err, asynq.SkipRetry)
	}

	in, err := payload.toInput()
	if err != nil {
		return fmt.Errorf("invalid payload: %w: %w", err, asynq.SkipRetry)
	}

	h.log.Info("processing check task", "check", payload.Check, "workflow_id", payload.WorkflowID)

	out, err := h.runner.Run(ctx, in)
	if err != nil {
		if shared.IsValidation(err) || shared.IsNotFound(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if rw := t.ResultWriter(); rw != nil {
		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("marshal check output: %w", err)
		}
		if _, err := rw.Write(data); err != nil {
			h.log.Warn("failed to write check result", "error", err, "task_id", rw.TaskID())
		}
	}

	h.log.Info("check task completed",
		"check", payload.Check,
		"workflow_id", payload.WorkflowID,
		"outcome", out.Outcome,
	)
	return nil
}

// RegisterHandlers registers check task handlers with the asynq server mux.
func (h *CheckTaskHandler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeIngestCheck, h.HandleCheck)
}
