package checks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/openctemio/sipguard/pkg/domain/incident"
	"github.com/openctemio/sipguard/pkg/domain/ingest"
	"github.com/openctemio/sipguard/pkg/domain/issue"
	"github.com/openctemio/sipguard/pkg/domain/tool"
)

// MockIncidentRepository is a mock implementation of incident.Repository.
type MockIncidentRepository struct {
	mock.Mock
}

func (m *MockIncidentRepository) Save(ctx context.Context, inc *incident.Incident) error {
	return m.Called(ctx, inc).Error(0)
}

func (m *MockIncidentRepository) Get(ctx context.Context, wfID string) (*incident.Incident, error) {
	args := m.Called(ctx, wfID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*incident.Incident), args.Error(1)
}

func (m *MockIncidentRepository) Delete(ctx context.Context, wfID string) error {
	return m.Called(ctx, wfID).Error(0)
}

func (m *MockIncidentRepository) List(ctx context.Context) ([]*incident.Incident, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*incident.Incident), args.Error(1)
}

// MockEnqueuer is a mock implementation of Enqueuer.
type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) EnqueueCheck(ctx context.Context, in Input) error {
	return m.Called(ctx, in).Error(0)
}

// stubScanner returns a fixed error and remembers what it scanned.
type stubScanner struct {
	err     error
	scanned string
	wf      *ingest.Workflow
}

func (s *stubScanner) Name() string { return "stub" }

func (s *stubScanner) Scan(_ context.Context, sipPath string, wf *ingest.Workflow) error {
	s.scanned = sipPath
	s.wf = wf
	return s.err
}

type stubNodeHandler struct {
	err       error
	anomalies []ingest.NodeAnomaly
}

func (h *stubNodeHandler) Handle(_ context.Context, _ *ingest.Workflow, anomalies []ingest.NodeAnomaly) error {
	h.anomalies = anomalies
	return h.err
}

func newIssue(wfID string) *issue.Issue {
	is, err := issue.New(issue.Params{
		WorkflowExternalID: wfID,
		Tool:               tool.Ref{Name: "ClamAV", Version: "ClamAV 1.0.1", Function: tool.FunctionVirusCheck},
		CheckCode:          issue.CodeVirusFound,
		Description:        "infected file: a.txt of SIP: sip-1",
		ConfigNote:         "missing config at /antivirus/infectedSipAction",
	})
	if err != nil {
		panic(err)
	}
	return is
}
