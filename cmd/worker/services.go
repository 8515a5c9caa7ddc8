package main

import (
	"fmt"

	"github.com/openctemio/sipguard/internal/app/antivirus"
	"github.com/openctemio/sipguard/internal/app/checks"
	"github.com/openctemio/sipguard/internal/app/fixity"
	"github.com/openctemio/sipguard/internal/app/formatid"
	"github.com/openctemio/sipguard/internal/app/ledger"
	"github.com/openctemio/sipguard/internal/app/validation"
	"github.com/openctemio/sipguard/internal/config"
	"github.com/openctemio/sipguard/internal/infra/postgres"
	"github.com/openctemio/sipguard/internal/infra/process"
	"github.com/openctemio/sipguard/internal/infra/redis"
	"github.com/openctemio/sipguard/pkg/logger"
)

// ServiceDeps contains the infrastructure the checks are built on.
type ServiceDeps struct {
	Config *config.Config
	Log    *logger.Logger
	DB     *postgres.DB
	Redis  *redis.Client
}

// Services holds the wired check services.
type Services struct {
	Ledger *ledger.Service
	Checks *checks.Service
}

// NewServices builds the ledger, the tool adapters and the check runner.
func NewServices(deps *ServiceDeps) (*Services, error) {
	cfg, log := deps.Config, deps.Log

	identifications, err := redis.NewIdentificationStore(deps.Redis, cfg.Cache.IdentificationTTL)
	if err != nil {
		return nil, fmt.Errorf("identification store: %w", err)
	}
	incidents, err := redis.NewIncidentStore(deps.Redis, cfg.Cache.IncidentTTL)
	if err != nil {
		return nil, fmt.Errorf("incident store: %w", err)
	}
	formats, err := redis.NewCachedFormatRepository(deps.Redis, postgres.NewFormatRepository(deps.DB), cfg.Cache.FormatTTL)
	if err != nil {
		return nil, fmt.Errorf("format registry: %w", err)
	}

	issues := ledger.NewService(postgres.NewIssueRepository(deps.DB), log)
	runner := process.NewRunner(process.Config{
		SigtermTimeout: cfg.Process.SigtermTimeout,
		SigkillTimeout: cfg.Process.SigkillTimeout,
	}, log)
	lookup := formatid.NewResultLookup(identifications, formats, log)

	clam, err := antivirus.NewClamAV(antivirus.Config{
		Command:        cfg.Tools.ClamScanCmd,
		QuarantineRoot: cfg.Paths.Quarantine,
	}, runner, issues, lookup, log)
	if err != nil {
		return nil, fmt.Errorf("antivirus: %w", err)
	}
	droid, err := formatid.NewDroid(cfg.Tools.DroidCmd, runner, identifications, log)
	if err != nil {
		return nil, fmt.Errorf("format identification: %w", err)
	}

	svc := checks.NewService(incidents, log)
	svc.RegisterScanner(checks.KindAntivirus, clam)
	svc.RegisterScanner(checks.KindFormatIdentification, droid)
	svc.RegisterScanner(checks.KindFixity, fixity.NewVerifier(issues, lookup, 0, log))
	svc.SetNodeHandler(validation.NewMissingNodesHandler(issues, log))

	return &Services{Ledger: issues, Checks: svc}, nil
}
