// Package kpi reduces a simulation result to the reporting KPI set.
package kpi

import (
	"fmt"
	"math"

	"github.com/opensource-finance/lossim/internal/domain"
)

// Calculate returns expected loss, VaR, CVaR and the probability that a
// path's loss strictly exceeds budget. The first three are passed through
// from the result unchanged.
func Calculate(res *domain.SimulationResult, budget float64) (domain.KPISummary, error) {
	if res == nil || len(res.Losses) == 0 {
		return domain.KPISummary{}, fmt.Errorf("%w: empty simulation result", domain.ErrSimulation)
	}
	if math.IsNaN(budget) {
		return domain.KPISummary{}, domain.InvalidField(domain.DriverMonthlyLossBudget, budget, "must be a number")
	}

	return domain.KPISummary{
		ExpectedLoss: res.MeanLoss,
		VaR95:        res.VaR95,
		CVaR95:       res.CVaR95,
		BreachProb:   BreachProbability(res.Losses, budget),
	}, nil
}

// BreachProbability is the fraction of losses strictly above budget.
func BreachProbability(losses []float64, budget float64) float64 {
	if len(losses) == 0 {
		return 0
	}
	var breaches int
	for _, l := range losses {
		if l > budget {
			breaches++
		}
	}
	return float64(breaches) / float64(len(losses))
}
