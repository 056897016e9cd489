// Package scenario derives parameter sets from configuration: the baseline,
// adverse stress variants, and stratified samples for sweep studies.
package scenario

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/opensource-finance/lossim/internal/domain"
)

// sampleStream is the PCG stream for sweep sampling, distinct from the engine's.
const sampleStream = 0x5eed5a3c1e

// Range is a closed sampling interval for one driver.
type Range struct {
	Low  float64 `json:"low" yaml:"low"`
	High float64 `json:"high" yaml:"high"`
}

// Baseline copies the model inputs out of configuration.
func Baseline(cfg domain.SimConfig) domain.ParameterSet {
	return domain.ParameterSet{
		NTransactions:     cfg.NTransactions,
		AvgTicket:         cfg.AvgTicket,
		BaseFraudRate:     cfg.BaseFraudRate,
		DetectionRate:     cfg.DetectionRate,
		FalsePositiveRate: cfg.FalsePositiveRate,
		SevMu:             cfg.SevMu,
		SevSigma:          cfg.SevSigma,
		MonthlyLossBudget: cfg.MonthlyLossBudget,
	}
}

// DefaultStress is the standard adverse scenario: 50% more fraud, detection
// down 10%, severity spread up 10%.
func DefaultStress() domain.StressFactors {
	return domain.StressFactors{
		FraudUplift:   1.5,
		DetectionDrop: 0.9,
		SigmaUplift:   1.1,
	}
}

// Stress applies f to the baseline built from cfg. Nothing is clamped: a
// large uplift can push a rate above 1, which Validate will reject.
func Stress(cfg domain.SimConfig, f domain.StressFactors) domain.ParameterSet {
	return StressParams(Baseline(cfg), f)
}

// StressParams applies f to an existing parameter set.
func StressParams(p domain.ParameterSet, f domain.StressFactors) domain.ParameterSet {
	p.BaseFraudRate *= f.FraudUplift
	p.DetectionRate *= f.DetectionDrop
	p.SevSigma *= f.SigmaUplift
	return p
}

// StratifiedSamples draws n records over ranges. Each dimension is split
// into n equal strata whose midpoints are shuffled independently and then
// mapped linearly into [Low, High]. Dimensions are processed in sorted name
// order, so the output depends only on ranges, n and seed.
func StratifiedSamples(ranges map[string]Range, n int, seed int64) ([]map[string]float64, error) {
	if err := ValidateRanges(ranges, n); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(ranges))
	for name := range ranges {
		names = append(names, name)
	}
	slices.Sort(names)

	rng := rand.New(rand.NewPCG(uint64(seed), sampleStream))

	samples := make([]map[string]float64, n)
	for i := range samples {
		samples[i] = make(map[string]float64, len(names))
	}

	u := make([]float64, n)
	for _, name := range names {
		for i := range u {
			u[i] = (float64(i) + 0.5) / float64(n)
		}
		rng.Shuffle(n, func(i, j int) { u[i], u[j] = u[j], u[i] })

		r := ranges[name]
		for i, v := range u {
			samples[i][name] = r.Low + v*(r.High-r.Low)
		}
	}
	return samples, nil
}

// ValidateRanges checks a StratifiedSamples request without drawing it.
func ValidateRanges(ranges map[string]Range, n int) error {
	if n <= 0 {
		return domain.InvalidField("n", float64(n), "must be positive")
	}
	for name, r := range ranges {
		if !finite(r.Low) || !finite(r.High) {
			return domain.InvalidField(name, r.Low, "range bounds must be finite")
		}
		if r.Low > r.High {
			return domain.InvalidField(name, r.Low, "range low exceeds high")
		}
	}
	return nil
}

// Apply overlays sample onto base and validates the result.
func Apply(base domain.ParameterSet, sample map[string]float64) (domain.ParameterSet, error) {
	p := base
	for name, v := range sample {
		var err error
		if p, err = p.WithDriver(name, v); err != nil {
			return base, err
		}
	}
	if err := p.Validate(); err != nil {
		return base, err
	}
	return p, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
