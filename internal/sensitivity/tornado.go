// Package sensitivity ranks model drivers by their one-at-a-time impact on
// mean loss.
package sensitivity

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/lossim/internal/domain"
	"github.com/opensource-finance/lossim/internal/montecarlo"
)

// DefaultDrivers are the inputs perturbed when an Analyzer has none set.
var DefaultDrivers = []string{
	domain.DriverBaseFraudRate,
	domain.DriverDetectionRate,
	domain.DriverSevSigma,
}

// Analyzer runs tornado analyses. The zero value perturbs DefaultDrivers
// using GOMAXPROCS workers.
type Analyzer struct {
	Drivers []string
	Workers int
}

// NewAnalyzer creates an analyzer bounded to workers concurrent engine runs.
func NewAnalyzer(workers int) *Analyzer {
	return &Analyzer{Workers: workers}
}

// Tornado runs the baseline plus a low and a high run for every driver, all
// under the same seed and path count, and returns bars sorted by descending
// magnitude. Only detection_rate is clamped to [0,1] after perturbation.
// Other drivers are not: a variant that leaves its valid range, such as a
// base_fraud_rate pushed above 1, fails the whole tornado with
// ErrInvalidParameter before any run starts.
func (a *Analyzer) Tornado(ctx context.Context, params domain.ParameterSet, seed int64, nPaths int, perturb float64) (domain.TornadoResult, error) {
	if !(perturb > 0 && perturb < 1) {
		return domain.TornadoResult{}, domain.InvalidField("perturb", perturb, "must be in (0,1)")
	}
	if err := params.Validate(); err != nil {
		return domain.TornadoResult{}, err
	}

	drivers := a.Drivers
	if len(drivers) == 0 {
		drivers = DefaultDrivers
	}

	// Build every variant up front so a bad driver name fails before any run.
	variants := make([]domain.ParameterSet, 0, 2*len(drivers)+1)
	variants = append(variants, params)
	for _, d := range drivers {
		base, err := params.Driver(d)
		if err != nil {
			return domain.TornadoResult{}, err
		}
		for _, factor := range []float64{1 - perturb, 1 + perturb} {
			v := base * factor
			if d == domain.DriverDetectionRate {
				v = min(max(v, 0), 1)
			}
			p, err := params.WithDriver(d, v)
			if err != nil {
				return domain.TornadoResult{}, err
			}
			if err := p.Validate(); err != nil {
				return domain.TornadoResult{}, fmt.Errorf("%s variant: %w", d, err)
			}
			variants = append(variants, p)
		}
	}

	means := make([]float64, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers())
	for i, p := range variants {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := montecarlo.Simulate(p, seed, nPaths)
			if err != nil {
				return fmt.Errorf("tornado run %d: %w", i, err)
			}
			means[i] = res.MeanLoss
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.TornadoResult{}, err
	}

	baseline := means[0]
	bars := make([]domain.SensitivityBar, len(drivers))
	for i, d := range drivers {
		bars[i] = domain.SensitivityBar{
			Driver:    d,
			LowDelta:  means[1+2*i] - baseline,
			HighDelta: means[2+2*i] - baseline,
		}
	}
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Magnitude() > bars[j].Magnitude()
	})

	return domain.TornadoResult{BaselineMean: baseline, Bars: bars}, nil
}

func (a *Analyzer) workers() int {
	if a.Workers > 0 {
		return a.Workers
	}
	return runtime.GOMAXPROCS(0)
}
