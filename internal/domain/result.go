package domain

import (
	"math"
	"time"
)

// SimulationResult is the output of one Monte Carlo run.
// Losses has one entry per simulated path, in path order.
type SimulationResult struct {
	Losses     []float64 `json:"losses"`
	MeanLoss   float64   `json:"mean_loss"`
	VaR95      float64   `json:"var_95"`
	CVaR95     float64   `json:"cvar_95"`
	NFraudMean float64   `json:"n_fraud_mean"`
}

// Paths returns the number of simulated paths.
func (r *SimulationResult) Paths() int {
	return len(r.Losses)
}

// KPI metric names as exposed to reporting collaborators.
const (
	MetricExpectedLoss = "expected_loss"
	MetricVaR95        = "var_95"
	MetricCVaR95       = "cvar_95"
	MetricBreachProb   = "breach_prob"
)

// KPISummary is the reporting view of a simulation result.
type KPISummary struct {
	ExpectedLoss float64 `json:"expected_loss"`
	VaR95        float64 `json:"var_95"`
	CVaR95       float64 `json:"cvar_95"`
	BreachProb   float64 `json:"breach_prob"`
}

// Map returns the summary keyed by metric name.
func (k KPISummary) Map() map[string]float64 {
	return map[string]float64{
		MetricExpectedLoss: k.ExpectedLoss,
		MetricVaR95:        k.VaR95,
		MetricCVaR95:       k.CVaR95,
		MetricBreachProb:   k.BreachProb,
	}
}

// SensitivityBar is one row of a tornado chart: the change in mean loss
// when a single driver is moved down and up.
type SensitivityBar struct {
	Driver    string  `json:"driver"`
	LowDelta  float64 `json:"low_delta"`
	HighDelta float64 `json:"high_delta"`
}

// Magnitude is the ranking key: the larger absolute delta.
func (b SensitivityBar) Magnitude() float64 {
	return math.Max(math.Abs(b.LowDelta), math.Abs(b.HighDelta))
}

// TornadoResult holds the baseline mean and bars sorted largest impact first.
type TornadoResult struct {
	BaselineMean float64          `json:"baseline_mean"`
	Bars         []SensitivityBar `json:"bars"`
}

// RunReport is what the service hands to API and CLI callers for a single
// simulation request.
type RunReport struct {
	RunID      string       `json:"runId"`
	TenantID   string       `json:"tenantId,omitempty"`
	Params     ParameterSet `json:"params"`
	Seed       int64        `json:"seed"`
	Paths      int          `json:"paths"`
	KPIs       KPISummary   `json:"kpis"`
	NFraudMean float64      `json:"nFraudMean"`

	// Raw per-path losses, only when explicitly requested.
	Losses []float64 `json:"losses,omitempty"`

	Assessment *Assessment `json:"assessment,omitempty"`
	Cached     bool        `json:"cached"`
	Metadata   RunMetadata `json:"metadata"`
}

// RunMetadata contains processing information.
type RunMetadata struct {
	TraceID       string    `json:"traceId,omitempty"`
	SimulateMs    int64     `json:"simulateMs"`
	TotalMs       int64     `json:"totalMs"`
	EngineVersion string    `json:"engineVersion"`
	CompletedAt   time.Time `json:"completedAt"`
}

// StressComparison pairs a baseline and a stressed run under the same seed.
type StressComparison struct {
	Baseline *RunReport         `json:"baseline"`
	Stressed *RunReport         `json:"stressed"`
	Factors  StressFactors      `json:"factors"`
	Delta    map[string]float64 `json:"delta"`
}

// StressFactors are the adverse multipliers applied by the stress builder.
type StressFactors struct {
	FraudUplift   float64 `json:"fraud_uplift" yaml:"fraud_uplift"`
	DetectionDrop float64 `json:"detection_drop" yaml:"detection_drop"`
	SigmaUplift   float64 `json:"sigma_uplift" yaml:"sigma_uplift"`
}

// SweepPoint is one sampled parameter set and its KPIs.
type SweepPoint struct {
	Index      int                `json:"index"`
	Sample     map[string]float64 `json:"sample"`
	Params     ParameterSet       `json:"params"`
	KPIs       KPISummary         `json:"kpis"`
	NFraudMean float64            `json:"nFraudMean"`
}

// SweepReport is the result of a stratified parameter sweep.
type SweepReport struct {
	SweepID  string       `json:"sweepId"`
	TenantID string       `json:"tenantId,omitempty"`
	Seed     int64        `json:"seed"`
	Paths    int          `json:"paths"`
	Points   []SweepPoint `json:"points"`
	TotalMs  int64        `json:"totalMs"`
}
