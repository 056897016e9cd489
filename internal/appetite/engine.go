// Package appetite evaluates CEL risk-appetite policies against the KPIs
// of a simulation run and aggregates them into an assessment.
package appetite

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/lossim/internal/domain"
)

// Engine holds compiled appetite policies.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	compiled   map[string]*CompiledPolicy
	maxWorkers int
}

// CompiledPolicy holds a pre-compiled CEL program.
type CompiledPolicy struct {
	Policy  *domain.AppetitePolicy
	Program cel.Program
}

// Input is what a policy sees: the run's parameters and KPIs.
type Input struct {
	TenantID   string
	RunID      string
	Params     domain.ParameterSet
	KPIs       domain.KPISummary
	NFraudMean float64
}

// NewEngine creates a policy engine evaluating at most maxWorkers policies
// concurrently.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("kpi", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("params", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable(domain.MetricExpectedLoss, cel.DoubleType),
		cel.Variable(domain.MetricVaR95, cel.DoubleType),
		cel.Variable(domain.MetricCVaR95, cel.DoubleType),
		cel.Variable(domain.MetricBreachProb, cel.DoubleType),
		cel.Variable("n_fraud_mean", cel.DoubleType),
		cel.Variable("budget", cel.DoubleType),
		cel.Variable(domain.DriverNTransactions, cel.IntType),
		cel.Variable(domain.DriverAvgTicket, cel.DoubleType),
		cel.Variable(domain.DriverBaseFraudRate, cel.DoubleType),
		cel.Variable(domain.DriverDetectionRate, cel.DoubleType),
		cel.Variable(domain.DriverFalsePositiveRate, cel.DoubleType),
		cel.Variable(domain.DriverSevMu, cel.DoubleType),
		cel.Variable(domain.DriverSevSigma, cel.DoubleType),
		cel.Variable(domain.DriverMonthlyLossBudget, cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		compiled:   make(map[string]*CompiledPolicy),
		maxWorkers: maxWorkers,
	}, nil
}

// ValidatePolicy compiles a policy without loading it.
func (e *Engine) ValidatePolicy(p *domain.AppetitePolicy) error {
	if p == nil {
		return fmt.Errorf("policy is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compile(p)
	return err
}

// LoadPolicy compiles and loads a policy, replacing any with the same ID.
func (e *Engine) LoadPolicy(p *domain.AppetitePolicy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(p)
	if err != nil {
		return err
	}
	e.compiled[p.ID] = compiled
	return nil
}

// LoadPolicies loads every enabled policy.
func (e *Engine) LoadPolicies(policies []*domain.AppetitePolicy) error {
	for _, p := range policies {
		if !p.Enabled {
			continue
		}
		if err := e.LoadPolicy(p); err != nil {
			return err
		}
	}
	return nil
}

// ReloadPolicies atomically replaces the loaded set. On a compile error
// the previous set stays in place.
func (e *Engine) ReloadPolicies(policies []*domain.AppetitePolicy) error {
	next := make(map[string]*CompiledPolicy)

	e.mu.RLock()
	for _, p := range policies {
		if !p.Enabled {
			continue
		}
		compiled, err := e.compile(p)
		if err != nil {
			e.mu.RUnlock()
			return err
		}
		next[p.ID] = compiled
	}
	e.mu.RUnlock()

	e.mu.Lock()
	e.compiled = next
	e.mu.Unlock()
	return nil
}

// PoliciesCount returns the number of loaded policies.
func (e *Engine) PoliciesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Policies returns the loaded policies ordered by ID.
func (e *Engine) Policies() []*domain.AppetitePolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.AppetitePolicy, 0, len(e.compiled))
	for _, c := range e.compiled {
		out = append(out, c.Policy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EvaluateAll runs every loaded policy in parallel. Results are ordered by
// policy ID.
func (e *Engine) EvaluateAll(ctx context.Context, in *Input) ([]domain.PolicyResult, error) {
	e.mu.RLock()
	policies := make([]*CompiledPolicy, 0, len(e.compiled))
	for _, c := range e.compiled {
		policies = append(policies, c)
	}
	e.mu.RUnlock()

	if len(policies) == 0 {
		return nil, nil
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Policy.ID < policies[j].Policy.ID })

	activation := newActivation(in)

	results := make([]domain.PolicyResult, len(policies))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, c := range policies {
		wg.Add(1)
		go func(idx int, c *CompiledPolicy) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = e.evaluate(c, activation)
		}(i, c)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func newActivation(in *Input) map[string]any {
	p := in.Params
	k := in.KPIs
	return map[string]any{
		"kpi":                          k.Map(),
		"params":                       p.Map(),
		domain.MetricExpectedLoss:      k.ExpectedLoss,
		domain.MetricVaR95:             k.VaR95,
		domain.MetricCVaR95:            k.CVaR95,
		domain.MetricBreachProb:        k.BreachProb,
		"n_fraud_mean":                 in.NFraudMean,
		"budget":                       p.MonthlyLossBudget,
		domain.DriverNTransactions:     p.NTransactions,
		domain.DriverAvgTicket:         p.AvgTicket,
		domain.DriverBaseFraudRate:     p.BaseFraudRate,
		domain.DriverDetectionRate:     p.DetectionRate,
		domain.DriverFalsePositiveRate: p.FalsePositiveRate,
		domain.DriverSevMu:             p.SevMu,
		domain.DriverSevSigma:          p.SevSigma,
		domain.DriverMonthlyLossBudget: p.MonthlyLossBudget,
	}
}

func (e *Engine) evaluate(c *CompiledPolicy, activation map[string]any) domain.PolicyResult {
	start := time.Now()

	result := domain.PolicyResult{
		PolicyID: c.Policy.ID,
		Weight:   c.Policy.Weight,
	}

	out, _, err := c.Program.Eval(activation)
	if err != nil {
		result.Outcome = domain.OutcomeError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	result.Score = toScore(out)
	result.Outcome, result.Reason = matchBand(result.Score, c.Policy)
	result.ProcessMs = time.Since(start).Milliseconds()
	return result
}

func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand returns the first band with lower <= score < upper. A nil
// lower bound is negative infinity and a nil upper bound is positive
// infinity. A policy without bands breaches at score >= 1.
func matchBand(score float64, p *domain.AppetitePolicy) (string, string) {
	if len(p.Bands) == 0 {
		if score >= 1 {
			return domain.OutcomeBreach, p.Name
		}
		return domain.OutcomeWithin, ""
	}

	for _, band := range p.Bands {
		if band.LowerLimit != nil && score < *band.LowerLimit {
			continue
		}
		if band.UpperLimit != nil && score >= *band.UpperLimit {
			continue
		}
		return band.Outcome, band.Reason
	}
	return domain.OutcomeWithin, "no matching band"
}

// Close unloads every policy.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledPolicy)
	return nil
}

func (e *Engine) compile(p *domain.AppetitePolicy) (*CompiledPolicy, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("policy id is required")
	}

	ast, issues := e.env.Compile(p.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", p.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("policy %s: expression must return bool, int, or double, got %s", p.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for policy %s: %w", p.ID, err)
	}

	return &CompiledPolicy{Policy: p, Program: program}, nil
}
