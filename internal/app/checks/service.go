// Package checks runs ingest checks on behalf of the workflow orchestrator and
// keeps the incidents they raise until an operator decides.
package checks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openctemio/sipguard/internal/infra/process"
	"github.com/openctemio/sipguard/internal/metrics"
	"github.com/openctemio/sipguard/pkg/domain/incident"
	"github.com/openctemio/sipguard/pkg/domain/issue"
	"github.com/openctemio/sipguard/pkg/domain/shared"
	"github.com/openctemio/sipguard/pkg/logger"
)

var tracer = otel.Tracer("github.com/openctemio/sipguard/internal/app/checks")

// Service dispatches check requests to the registered checks and turns their
// signals into outcomes.
type Service struct {
	scanners  map[Kind]Scanner
	nodes     NodeHandler
	incidents incident.Repository
	logger    *logger.Logger
}

// NewService creates a new check service.
func NewService(incidents incident.Repository, log *logger.Logger) *Service {
	return &Service{
		scanners:  make(map[Kind]Scanner),
		incidents: incidents,
		logger:    log.With("service", "checks"),
	}
}

// RegisterScanner makes a package scanner available under kind.
func (s *Service) RegisterScanner(kind Kind, sc Scanner) {
	s.scanners[kind] = sc
}

// SetNodeHandler sets the handler for the missing nodes check.
func (s *Service) SetNodeHandler(h NodeHandler) {
	s.nodes = h
}

// Available returns the configured check kinds.
func (s *Service) Available() []Kind {
	kinds := make([]Kind, 0, len(s.scanners)+1)
	for k := range s.scanners {
		kinds = append(kinds, k)
	}
	if s.nodes != nil {
		kinds = append(kinds, KindMissingNodes)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Run executes one check. Policy signals are not errors: an incident is
// stored and reported as OutcomeIncident, a cancellation as
// OutcomeProcessFailure. Tool failures and infrastructure errors are returned.
func (s *Service) Run(ctx context.Context, in Input) (*Output, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	check := string(in.Check)
	ctx, span := tracer.Start(ctx, "check."+check, trace.WithAttributes(
		attribute.String("check", check),
		attribute.String("workflow.id", in.Workflow.ExternalID),
		attribute.String("sip.id", in.Workflow.SIPID),
	))
	defer span.End()

	log := s.logger.ForWorkflow(in.Workflow.ExternalID, in.Workflow.SIPID).With("check", check)
	log.Info("check started", "path", in.SIPPath)

	metrics.ChecksInProgress.WithLabelValues(check).Inc()
	start := time.Now()
	runErr := s.dispatch(ctx, in)
	elapsed := time.Since(start)
	metrics.ChecksInProgress.WithLabelValues(check).Dec()
	metrics.CheckDuration.WithLabelValues(check).Observe(elapsed.Seconds())

	out, err := s.settle(ctx, log, in, runErr)
	metrics.ChecksTotal.WithLabelValues(check, metricOutcome(out, err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("check failed", "error", err, "duration", elapsed)
		return nil, err
	}

	out.Duration = elapsed
	span.SetAttributes(attribute.String("check.outcome", string(out.Outcome)))
	log.Info("check finished", "outcome", out.Outcome, "duration", elapsed)
	return out, nil
}

func (s *Service) dispatch(ctx context.Context, in Input) error {
	wf := in.Workflow
	if in.Check == KindMissingNodes {
		if s.nodes == nil {
			return fmt.Errorf("%w: check %s is not configured", shared.ErrValidation, in.Check)
		}
		return s.nodes.Handle(ctx, &wf, in.Nodes)
	}
	sc, ok := s.scanners[in.Check]
	if !ok {
		return fmt.Errorf("%w: check %s is not configured", shared.ErrValidation, in.Check)
	}
	return sc.Scan(ctx, in.SIPPath, &wf)
}

func (s *Service) settle(ctx context.Context, log *logger.Logger, in Input, runErr error) (*Output, error) {
	out := &Output{Check: in.Check, WorkflowID: in.Workflow.ExternalID}
	if runErr == nil {
		out.Outcome = OutcomeCompleted
		return out, nil
	}

	if sig, ok := issue.AsIncident(runErr); ok {
		inc, err := s.openIncident(ctx, in, sig)
		if err != nil {
			return nil, err
		}
		out.Outcome = OutcomeIncident
		out.IncidentID = inc.ID.String()
		out.IssueIDs = inc.IssueIDs
		out.Message = inc.Message
		log.Warn("workflow suspended on incident", "incident_id", out.IncidentID, "issues", len(out.IssueIDs))
		return out, nil
	}

	if pf, ok := issue.AsProcessFailure(runErr); ok {
		out.Outcome = OutcomeProcessFailure
		out.Message = pf.Message
		log.Warn("workflow cancelled by policy", "message", pf.Message)
		return out, nil
	}

	return nil, runErr
}

// openIncident stores the incident, replacing a pending one of the same workflow.
func (s *Service) openIncident(ctx context.Context, in Input, sig *issue.IncidentError) (*incident.Incident, error) {
	inc, err := incident.New(string(in.Check), in.Workflow, in.SIPPath, sig.IssueIDs(), sig.Error())
	if err != nil {
		return nil, err
	}
	inc.Nodes = in.Nodes

	_, getErr := s.incidents.Get(ctx, in.Workflow.ExternalID)
	replacing := getErr == nil
	if getErr != nil && !errors.Is(getErr, incident.ErrIncidentNotFound) {
		return nil, fmt.Errorf("failed to read pending incident: %w", getErr)
	}

	if err := s.incidents.Save(ctx, inc); err != nil {
		return nil, fmt.Errorf("failed to save incident: %w", err)
	}
	if !replacing {
		metrics.IncidentsOpen.Inc()
	}
	metrics.IncidentsTotal.WithLabelValues("opened").Inc()
	return inc, nil
}

func metricOutcome(out *Output, err error) string {
	switch {
	case err != nil && process.IsToolError(err):
		return metrics.OutcomeToolError
	case err != nil:
		return metrics.OutcomeError
	case out.Outcome == OutcomeIncident:
		return metrics.OutcomeIncident
	case out.Outcome == OutcomeProcessFailure:
		return metrics.OutcomeProcessFailure
	default:
		return metrics.OutcomeOK
	}
}
