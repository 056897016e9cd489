// Package sweep runs a batch of sampled parameter sets through the engine
// and KPI calculator.
package sweep

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/lossim/internal/domain"
	"github.com/opensource-finance/lossim/internal/kpi"
	"github.com/opensource-finance/lossim/internal/montecarlo"
	"github.com/opensource-finance/lossim/internal/scenario"
)

// Runner executes sweeps on a bounded worker pool.
type Runner struct {
	workers int
}

// NewRunner creates a runner. workers <= 0 means GOMAXPROCS.
func NewRunner(workers int) *Runner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Runner{workers: workers}
}

// Run overlays every sample onto base and simulates it with the same seed
// and path count. Points are returned in sample order. Each point's breach
// probability is measured against that point's own budget.
func (r *Runner) Run(ctx context.Context, base domain.ParameterSet, samples []map[string]float64, seed int64, paths int) ([]domain.SweepPoint, error) {
	if len(samples) == 0 {
		return nil, domain.InvalidField("samples", 0, "at least one sample is required")
	}

	params := make([]domain.ParameterSet, len(samples))
	for i, s := range samples {
		p, err := scenario.Apply(base, s)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		params[i] = p
	}

	points := make([]domain.SweepPoint, len(samples))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, p := range params {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := montecarlo.Simulate(p, seed, paths)
			if err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			k, err := kpi.Calculate(res, p.MonthlyLossBudget)
			if err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			points[i] = domain.SweepPoint{
				Index:      i,
				Sample:     samples[i],
				Params:     p,
				KPIs:       k,
				NFraudMean: res.NFraudMean,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}
