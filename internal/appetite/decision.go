package appetite

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/lossim/internal/domain"
)

// Processor aggregates policy results into an assessment.
type Processor struct {
	// Weighted score at or above which the run is in BREACH.
	BreachThreshold float64

	// Weight configuration for policy aggregation
	UseWeightedScoring bool
}

// NewProcessor creates a processor with the given breach threshold.
// threshold <= 0 falls back to 0.7.
func NewProcessor(threshold float64) *Processor {
	if threshold <= 0 {
		threshold = 0.7
	}
	return &Processor{
		BreachThreshold:    threshold,
		UseWeightedScoring: true,
	}
}

// AssessInput contains the policy results for one run.
type AssessInput struct {
	TenantID string
	RunID    string
	Results  []domain.PolicyResult
}

// Assess produces the appetite verdict. Any .breach outcome or a weighted
// score at or above the threshold is BREACH; otherwise any .watch is WATCH.
func (p *Processor) Assess(ctx context.Context, in *AssessInput) *domain.Assessment {
	start := time.Now()

	a := &domain.Assessment{
		ID:        uuid.New().String(),
		TenantID:  in.TenantID,
		RunID:     in.RunID,
		Timestamp: time.Now().UTC(),
		Results:   in.Results,
	}

	agg := p.aggregate(in.Results)
	a.Score = agg.Score

	switch {
	case agg.Breached || (len(in.Results) > 0 && agg.Score >= p.BreachThreshold):
		a.Status = domain.StatusBreach
	case agg.Watch:
		a.Status = domain.StatusWatch
	default:
		a.Status = domain.StatusWithin
	}

	a.Reasons = Reasons(in.Results)
	a.Metadata = domain.AssessmentMetadata{
		PoliciesEvaluated: len(in.Results),
		PoliciesTriggered: agg.Triggered,
		DecisionMs:        time.Since(start).Milliseconds(),
	}
	return a
}

// aggregateResult holds the aggregated scoring results.
type aggregateResult struct {
	Score       float64
	TotalWeight float64
	Triggered   int
	Breached    bool
	Watch       bool
}

// aggregate computes the weighted mean score. Errored policies count as
// triggered but contribute no score.
func (p *Processor) aggregate(results []domain.PolicyResult) aggregateResult {
	var agg aggregateResult

	for _, r := range results {
		switch r.Outcome {
		case domain.OutcomeBreach:
			agg.Breached = true
			agg.Triggered++
		case domain.OutcomeWatch:
			agg.Watch = true
			agg.Triggered++
		case domain.OutcomeError:
			agg.Triggered++
			continue
		}

		weight := 1.0
		if p.UseWeightedScoring && r.Weight > 0 {
			weight = r.Weight
		}
		agg.Score += r.Score * weight
		agg.TotalWeight += weight
	}

	if agg.TotalWeight > 0 {
		agg.Score /= agg.TotalWeight
	}
	return agg
}

// Reasons extracts the reasons of every triggered policy.
func Reasons(results []domain.PolicyResult) []string {
	var reasons []string
	for _, r := range results {
		switch r.Outcome {
		case domain.OutcomeBreach, domain.OutcomeWatch, domain.OutcomeError:
			if r.Reason != "" {
				reasons = append(reasons, r.Reason)
			}
		}
	}
	return reasons
}
