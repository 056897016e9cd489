// Package analysis orchestrates simulation runs for the API, CLI and
// worker: quota metering, result caching, the Monte Carlo engine, KPI
// reporting, appetite assessment and event publication.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/lossim/internal/appetite"
	"github.com/opensource-finance/lossim/internal/bus"
	"github.com/opensource-finance/lossim/internal/domain"
	"github.com/opensource-finance/lossim/internal/kpi"
	"github.com/opensource-finance/lossim/internal/logging"
	"github.com/opensource-finance/lossim/internal/montecarlo"
	"github.com/opensource-finance/lossim/internal/quota"
	"github.com/opensource-finance/lossim/internal/scenario"
	"github.com/opensource-finance/lossim/internal/sensitivity"
	"github.com/opensource-finance/lossim/internal/sweep"
	"github.com/opensource-finance/lossim/internal/telemetry"
)

// EngineVersion is stamped on reports and folded into cache fingerprints,
// so a model change never serves stale results.
const EngineVersion = "1.0.0"

var tracer = otel.Tracer("lossim-analysis")

// Deps are the collaborators of a Service. Every field except Config is
// optional: a nil cache disables memoization, a nil bus disables events,
// a nil appetite engine skips assessment.
type Deps struct {
	Config    *domain.Config
	Cache     domain.Cache
	Bus       domain.EventBus
	Appetite  *appetite.Engine
	Processor *appetite.Processor
	Quota     *quota.Limiter
	Metrics   *telemetry.Metrics
}

// Service runs analyses on behalf of a tenant.
type Service struct {
	sim       domain.SimulationConfig
	baseline  domain.ParameterSet
	seed      int64
	cache     domain.Cache
	bus       domain.EventBus
	appetite  *appetite.Engine
	processor *appetite.Processor
	quota     *quota.Limiter
	metrics   *telemetry.Metrics
	sweeper   *sweep.Runner
	logger    *slog.Logger
}

// NewService wires a service from its dependencies.
func NewService(d Deps) *Service {
	cfg := d.Config
	if cfg == nil {
		cfg = domain.DefaultConfig()
	}

	s := &Service{
		sim:       cfg.Simulation,
		baseline:  scenario.Baseline(cfg.Baseline),
		seed:      cfg.Baseline.Seed,
		cache:     d.Cache,
		bus:       d.Bus,
		appetite:  d.Appetite,
		processor: d.Processor,
		quota:     d.Quota,
		metrics:   d.Metrics,
		sweeper:   sweep.NewRunner(cfg.Simulation.Workers),
		logger:    logging.New("analysis"),
	}
	if s.processor == nil {
		s.processor = appetite.NewProcessor(cfg.Simulation.AppetiteThreshold)
	}
	return s
}

// Baseline returns the configured baseline parameters.
func (s *Service) Baseline() domain.ParameterSet {
	return s.baseline
}

// Defaults returns the seed and path count applied to requests that omit
// them.
func (s *Service) Defaults() (seed int64, paths int) {
	return s.seed, s.sim.DefaultPaths
}

// SimulateRequest asks for one Monte Carlo run. Nil fields fall back to the
// configured baseline, default seed and default path count.
type SimulateRequest struct {
	Params        *domain.ParameterSet `json:"params,omitempty"`
	Seed          *int64               `json:"seed,omitempty"`
	Paths         int                  `json:"paths,omitempty"`
	IncludeLosses bool                 `json:"includeLosses,omitempty"`
	NoCache       bool                 `json:"noCache,omitempty"`
}

// Simulate runs a single simulation, assesses it against the loaded
// appetite policies and publishes lossim.run.completed.
func (s *Service) Simulate(ctx context.Context, tenantID string, req SimulateRequest) (report *domain.RunReport, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "analysis.Simulate", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
	))
	defer func() { s.finish(span, telemetry.KindSimulate, start, err) }()

	params, seed, paths, err := s.resolve(req.Params, req.Seed, req.Paths, s.sim.DefaultPaths)
	if err != nil {
		return nil, err
	}

	report, err = s.run(ctx, tenantID, params, seed, paths, req.IncludeLosses, req.NoCache)
	if err != nil {
		return nil, err
	}
	report.Metadata.TotalMs = time.Since(start).Milliseconds()
	report.Metadata.TraceID = span.SpanContext().TraceID().String()
	span.SetAttributes(attribute.Bool("run.cached", report.Cached))
	return report, nil
}

// run is the shared single-run pipeline. Cache hits are not charged
// against the path quota. The cache holds the deterministic part of a
// report only: the assessment is recomputed against the policies loaded
// now, so a policy reload takes effect on the next request.
func (s *Service) run(ctx context.Context, tenantID string, params domain.ParameterSet, seed int64, paths int, withLosses, noCache bool) (*domain.RunReport, error) {
	useCache := s.cache != nil && s.sim.ResultTTL > 0 && !withLosses && !noCache

	fingerprint := Fingerprint(params, seed, paths)
	if useCache {
		cached, err := s.cache.GetReport(ctx, tenantID, fingerprint)
		if err != nil {
			s.logger.Warn("cache lookup failed", "tenant_id", tenantID, "error", err)
		}
		if cached != nil {
			s.countCache("hit")
			cached.TenantID = tenantID
			cached.Cached = true
			cached.Assessment, err = s.assess(ctx, tenantID, cached)
			if err != nil {
				return nil, err
			}
			return cached, nil
		}
		s.countCache("miss")
	}

	if _, err := s.quota.Charge(ctx, tenantID, int64(paths)); err != nil {
		return nil, err
	}

	started := time.Now()
	res, err := montecarlo.Simulate(params, seed, paths)
	if err != nil {
		return nil, err
	}
	kpis, err := kpi.Calculate(res, params.MonthlyLossBudget)
	if err != nil {
		return nil, err
	}
	simulateMs := time.Since(started).Milliseconds()
	if s.metrics != nil {
		s.metrics.PathsSimulated.Add(float64(paths))
	}

	report := &domain.RunReport{
		RunID:      uuid.New().String(),
		TenantID:   tenantID,
		Params:     params,
		Seed:       seed,
		Paths:      paths,
		KPIs:       kpis,
		NFraudMean: res.NFraudMean,
		Metadata: domain.RunMetadata{
			SimulateMs:    simulateMs,
			EngineVersion: EngineVersion,
			CompletedAt:   time.Now().UTC(),
		},
	}
	if withLosses {
		report.Losses = res.Losses
	}

	report.Assessment, err = s.assess(ctx, tenantID, report)
	if err != nil {
		return nil, err
	}

	if useCache {
		stored := *report
		stored.Assessment = nil
		if err := s.cache.SetReport(ctx, tenantID, fingerprint, &stored, s.sim.ResultTTL); err != nil {
			s.logger.Warn("failed to cache run report", "tenant_id", tenantID, "run_id", report.RunID, "error", err)
		}
	}

	s.publishRun(ctx, tenantID, report)

	s.logger.Debug("run completed",
		"tenant_id", tenantID,
		"run_id", report.RunID,
		"paths", paths,
		"expected_loss", kpis.ExpectedLoss,
		"duration_ms", simulateMs,
	)
	return report, nil
}

func (s *Service) assess(ctx context.Context, tenantID string, report *domain.RunReport) (*domain.Assessment, error) {
	if s.appetite == nil || s.appetite.PoliciesCount() == 0 {
		return nil, nil
	}

	results, err := s.appetite.EvaluateAll(ctx, &appetite.Input{
		TenantID:   tenantID,
		RunID:      report.RunID,
		Params:     report.Params,
		KPIs:       report.KPIs,
		NFraudMean: report.NFraudMean,
	})
	if err != nil {
		return nil, fmt.Errorf("appetite evaluation: %w", err)
	}

	a := s.processor.Assess(ctx, &appetite.AssessInput{
		TenantID: tenantID,
		RunID:    report.RunID,
		Results:  results,
	})
	if a.Breached() && s.metrics != nil {
		s.metrics.AppetiteBreaches.Inc()
	}
	return a, nil
}

func (s *Service) publishRun(ctx context.Context, tenantID string, report *domain.RunReport) {
	if s.bus == nil {
		return
	}

	event := *report
	event.Losses = nil
	if err := bus.PublishJSON(ctx, s.bus, tenantID, domain.TopicRunCompleted, &event); err != nil {
		s.logger.Error("failed to publish run", "tenant_id", tenantID, "run_id", report.RunID, "error", err)
	}

	if report.Assessment.Breached() {
		breach := &domain.BreachEvent{
			RunID:      report.RunID,
			TenantID:   tenantID,
			Params:     report.Params,
			KPIs:       report.KPIs,
			Assessment: report.Assessment,
		}
		if err := bus.PublishJSON(ctx, s.bus, tenantID, domain.TopicAppetiteBreach, breach); err != nil {
			s.logger.Error("failed to publish breach", "tenant_id", tenantID, "run_id", report.RunID, "error", err)
		}
	}
}

// TornadoRequest asks for a one-at-a-time sensitivity analysis.
type TornadoRequest struct {
	Params  *domain.ParameterSet `json:"params,omitempty"`
	Seed    *int64               `json:"seed,omitempty"`
	Paths   int                  `json:"paths,omitempty"`
	Perturb float64              `json:"perturb,omitempty"`
	Drivers []string             `json:"drivers,omitempty"`
}

// Tornado perturbs each driver down and up and ranks the impact on mean
// loss. The whole batch of 2k+1 runs is charged to the quota up front.
func (s *Service) Tornado(ctx context.Context, tenantID string, req TornadoRequest) (result domain.TornadoResult, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "analysis.Tornado", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
	))
	defer func() { s.finish(span, telemetry.KindTornado, start, err) }()

	params, seed, paths, err := s.resolve(req.Params, req.Seed, req.Paths, s.sim.TornadoPaths)
	if err != nil {
		return domain.TornadoResult{}, err
	}
	perturb := req.Perturb
	if perturb == 0 {
		perturb = s.sim.Perturb
	}

	analyzer := &sensitivity.Analyzer{Drivers: req.Drivers, Workers: s.sim.Workers}
	drivers := len(req.Drivers)
	if drivers == 0 {
		drivers = len(sensitivity.DefaultDrivers)
	}
	total := paths * (2*drivers + 1)

	if _, err := s.quota.Charge(ctx, tenantID, int64(total)); err != nil {
		return domain.TornadoResult{}, err
	}

	result, err = analyzer.Tornado(ctx, params, seed, paths, perturb)
	if err != nil {
		return domain.TornadoResult{}, err
	}
	if s.metrics != nil {
		s.metrics.PathsSimulated.Add(float64(total))
	}

	s.logger.Debug("tornado completed",
		"tenant_id", tenantID,
		"drivers", drivers,
		"baseline_mean", result.BaselineMean,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// StressRequest compares a baseline against adverse factors. A nil Factors
// applies scenario.DefaultStress.
type StressRequest struct {
	Params  *domain.ParameterSet  `json:"params,omitempty"`
	Seed    *int64                `json:"seed,omitempty"`
	Paths   int                   `json:"paths,omitempty"`
	Factors *domain.StressFactors `json:"factors,omitempty"`
}

// Stress runs the baseline and the stressed parameters under the same seed
// and reports the KPI deltas (stressed minus baseline).
func (s *Service) Stress(ctx context.Context, tenantID string, req StressRequest) (out *domain.StressComparison, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "analysis.Stress", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
	))
	defer func() { s.finish(span, telemetry.KindStress, start, err) }()

	params, seed, paths, err := s.resolve(req.Params, req.Seed, req.Paths, s.sim.DefaultPaths)
	if err != nil {
		return nil, err
	}
	factors := scenario.DefaultStress()
	if req.Factors != nil {
		factors = *req.Factors
	}

	stressed := scenario.StressParams(params, factors)
	if err := stressed.Validate(); err != nil {
		return nil, fmt.Errorf("stressed parameters: %w", err)
	}

	base, err := s.run(ctx, tenantID, params, seed, paths, false, false)
	if err != nil {
		return nil, err
	}
	adverse, err := s.run(ctx, tenantID, stressed, seed, paths, false, false)
	if err != nil {
		return nil, err
	}

	delta := make(map[string]float64, 4)
	for name, v := range adverse.KPIs.Map() {
		delta[name] = v - base.KPIs.Map()[name]
	}

	return &domain.StressComparison{
		Baseline: base,
		Stressed: adverse,
		Factors:  factors,
		Delta:    delta,
	}, nil
}

// SweepRequest asks for a stratified sweep over driver ranges.
type SweepRequest struct {
	Params  *domain.ParameterSet      `json:"params,omitempty"`
	Ranges  map[string]scenario.Range `json:"ranges"`
	Samples int                       `json:"samples"`
	Seed    *int64                    `json:"seed,omitempty"`
	Paths   int                       `json:"paths,omitempty"`
}

// Sweep samples the ranges with stratified sampling and simulates every
// sample under one seed.
func (s *Service) Sweep(ctx context.Context, tenantID string, req SweepRequest) (report *domain.SweepReport, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "analysis.Sweep", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.Int("sweep.samples", req.Samples),
	))
	defer func() { s.finish(span, telemetry.KindSweep, start, err) }()

	params, seed, paths, err := s.resolve(req.Params, req.Seed, req.Paths, s.sim.DefaultPaths)
	if err != nil {
		return nil, err
	}
	if err := s.checkSweep(req); err != nil {
		return nil, err
	}

	total := int64(paths) * int64(req.Samples)
	if _, err := s.quota.Charge(ctx, tenantID, total); err != nil {
		return nil, err
	}

	samples, err := scenario.StratifiedSamples(req.Ranges, req.Samples, seed)
	if err != nil {
		return nil, err
	}

	points, err := s.sweeper.Run(ctx, params, samples, seed, paths)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.PathsSimulated.Add(float64(total))
	}

	return &domain.SweepReport{
		SweepID:  uuid.New().String(),
		TenantID: tenantID,
		Seed:     seed,
		Paths:    paths,
		Points:   points,
		TotalMs:  time.Since(start).Milliseconds(),
	}, nil
}

// ValidateSweep rejects a sweep request without sampling or charging it.
func (s *Service) ValidateSweep(req SweepRequest) error {
	if _, _, _, err := s.resolve(req.Params, req.Seed, req.Paths, s.sim.DefaultPaths); err != nil {
		return err
	}
	return s.checkSweep(req)
}

func (s *Service) checkSweep(req SweepRequest) error {
	if s.sim.MaxSamples > 0 && req.Samples > s.sim.MaxSamples {
		return domain.InvalidField("samples", float64(req.Samples),
			fmt.Sprintf("exceeds limit of %d", s.sim.MaxSamples))
	}
	return scenario.ValidateRanges(req.Ranges, req.Samples)
}

// resolve fills request defaults and enforces the configured path ceiling.
func (s *Service) resolve(p *domain.ParameterSet, seed *int64, paths, defaultPaths int) (domain.ParameterSet, int64, int, error) {
	params := s.baseline
	if p != nil {
		params = *p
	}
	sd := s.seed
	if seed != nil {
		sd = *seed
	}
	if paths == 0 {
		paths = defaultPaths
	}
	if paths <= 0 {
		return params, sd, paths, domain.InvalidField("paths", float64(paths), "must be positive")
	}
	if s.sim.MaxPaths > 0 && paths > s.sim.MaxPaths {
		return params, sd, paths, domain.InvalidField("paths", float64(paths), fmt.Sprintf("exceeds limit of %d", s.sim.MaxPaths))
	}
	if err := params.Validate(); err != nil {
		return params, sd, paths, err
	}
	return params, sd, paths, nil
}

func (s *Service) finish(span trace.Span, kind string, started time.Time, err error) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if s.metrics != nil {
			s.metrics.RunErrors.WithLabelValues(kind).Inc()
		}
		if !errors.Is(err, domain.ErrInvalidParameter) && !errors.Is(err, quota.ErrQuotaExceeded) {
			s.logger.Error("analysis failed", "kind", kind, "error", err)
		}
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveRun(kind, started)
	}
}

func (s *Service) countCache(result string) {
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}
