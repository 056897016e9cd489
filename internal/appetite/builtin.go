package appetite

import "github.com/opensource-finance/lossim/internal/domain"

func limit(v float64) *float64 { return &v }

// DefaultPolicies returns the starter appetite set seeded into an empty
// repository: expected loss against budget, tail loss against budget, and
// breach frequency.
func DefaultPolicies() []*domain.AppetitePolicy {
	return []*domain.AppetitePolicy{
		{
			ID:          "expected-loss-budget",
			Name:        "Expected loss vs budget",
			Description: "Share of the monthly budget consumed by expected loss",
			Version:     "1.0.0",
			Expression:  "expected_loss / budget",
			Bands: []domain.PolicyBand{
				{UpperLimit: limit(0.8), Outcome: domain.OutcomeWithin, Reason: "expected loss within budget"},
				{LowerLimit: limit(0.8), UpperLimit: limit(1), Outcome: domain.OutcomeWatch, Reason: "expected loss above 80% of budget"},
				{LowerLimit: limit(1), Outcome: domain.OutcomeBreach, Reason: "expected loss exceeds budget"},
			},
			Weight:  1.0,
			Enabled: true,
		},
		{
			ID:          "tail-loss-budget",
			Name:        "95% VaR exceeds budget",
			Description: "The 1-in-20 month loses more than the budget",
			Version:     "1.0.0",
			Expression:  "var_95 > budget",
			Weight:      1.0,
			Enabled:     true,
		},
		{
			ID:          "breach-frequency",
			Name:        "Budget breach frequency",
			Description: "Fraction of simulated months over budget",
			Version:     "1.0.0",
			Expression:  "breach_prob",
			Bands: []domain.PolicyBand{
				{UpperLimit: limit(0.05), Outcome: domain.OutcomeWithin, Reason: "breach probability under 5%"},
				{LowerLimit: limit(0.05), UpperLimit: limit(0.2), Outcome: domain.OutcomeWatch, Reason: "breach probability above 5%"},
				{LowerLimit: limit(0.2), Outcome: domain.OutcomeBreach, Reason: "breach probability above 20%"},
			},
			Weight:  2.0,
			Enabled: true,
		},
	}
}
