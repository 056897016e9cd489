// Package montecarlo samples monthly fraud losses for a transaction portfolio.
//
// Each path draws a fraud-incident count, keeps the undetected share, and
// sums one lognormal severity per undetected incident. The incident count is
// Poisson(n_transactions * base_fraud_rate), a deliberate approximation of
// Binomial(n_transactions, base_fraud_rate) that holds for large volumes and
// small fraud rates. The undetected count is floor(count * (1 - detection_rate)),
// a truncation rather than a binomial split; it slightly overstates the
// effective detection rate at low counts.
package montecarlo

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/opensource-finance/lossim/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MaxSeverityDraws caps the pooled severity sample. A run needing more is
// rejected rather than exhausting memory.
const MaxSeverityDraws = 1 << 28

// ErrPoolTooLarge is returned when a run would exceed MaxSeverityDraws.
var ErrPoolTooLarge = fmt.Errorf("%w: severity pool exceeds %d draws", domain.ErrSimulation, MaxSeverityDraws)

// pcgStream fixes the second PCG word so a run depends on the seed alone.
const pcgStream = 0x9e3779b97f4a7c15

// Simulate runs nPaths independent monthly loss paths for p.
// The same (p, seed, nPaths) always yields a bit-identical result: the
// generator is created here from seed and shared with nothing else.
func Simulate(p domain.ParameterSet, seed int64, nPaths int) (*domain.SimulationResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if nPaths <= 0 {
		return nil, domain.InvalidField("n_paths", float64(nPaths), "must be positive")
	}

	src := rand.NewPCG(uint64(seed), pcgStream)

	counts := drawFraudCounts(src, p, nPaths)
	undetected, total, err := undetectedCounts(counts, p.DetectionRate)
	if err != nil {
		return nil, err
	}

	losses := make([]float64, nPaths)
	if total > 0 {
		pool := drawSeverities(src, p, int(total))
		segmentSums(losses, pool, undetected)
	}

	return summarize(losses, counts), nil
}

// drawFraudCounts samples one Poisson incident count per path.
func drawFraudCounts(src rand.Source, p domain.ParameterSet, nPaths int) []float64 {
	counts := make([]float64, nPaths)
	lambda := float64(p.NTransactions) * p.BaseFraudRate
	if lambda <= 0 {
		return counts
	}

	poisson := distuv.Poisson{Lambda: lambda, Src: src}
	for i := range counts {
		counts[i] = poisson.Rand()
	}
	return counts
}

// undetectedCounts truncates each path's count by the undetected fraction
// and returns the per-path counts with their total. The running total is
// checked in float64 before conversion so huge counts cannot wrap int64.
func undetectedCounts(counts []float64, detectionRate float64) ([]int64, int64, error) {
	u := clamp(1-detectionRate, 0, 1)

	undetected := make([]int64, len(counts))
	var total int64
	for i, c := range counts {
		v := math.Floor(c * u)
		if v > float64(MaxSeverityDraws-total) {
			return nil, 0, ErrPoolTooLarge
		}
		n := int64(v)
		undetected[i] = n
		total += n
	}
	return undetected, total, nil
}

// drawSeverities samples the pooled lognormal severities in one pass.
func drawSeverities(src rand.Source, p domain.ParameterSet, n int) []float64 {
	sev := distuv.LogNormal{Mu: p.SevMu, Sigma: p.SevSigma, Src: src}
	pool := make([]float64, n)
	for i := range pool {
		pool[i] = sev.Rand()
	}
	return pool
}

// segmentSums partitions pool across paths in path order and writes each
// segment total into losses. Path i owns the next counts[i] draws.
// The reduction runs on a prefix sum so every segment is O(1).
func segmentSums(losses, pool []float64, counts []int64) {
	floats.CumSum(pool, pool)

	var end int64
	prev := 0.0
	for i, n := range counts {
		if n == 0 {
			continue
		}
		end += n
		cum := pool[end-1]
		losses[i] = cum - prev
		prev = cum
	}
}

func summarize(losses, counts []float64) *domain.SimulationResult {
	var95 := Quantile(losses, 0.95)
	return &domain.SimulationResult{
		Losses:     losses,
		MeanLoss:   stat.Mean(losses, nil),
		VaR95:      var95,
		CVaR95:     TailMean(losses, var95),
		NFraudMean: stat.Mean(counts, nil),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
