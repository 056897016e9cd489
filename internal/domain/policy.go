package domain

// AppetitePolicy defines a risk-appetite check evaluated against the KPIs
// of a simulation run.
type AppetitePolicy struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression to evaluate
	Expression string `json:"expression"`

	// Outcome bands for score-to-outcome mapping
	Bands []PolicyBand `json:"bands"`

	// Policy weight in the aggregate appetite score
	Weight float64 `json:"weight"`

	// Whether policy is active
	Enabled bool `json:"enabled"`
}

// PolicyBand maps a score range to an outcome.
type PolicyBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Outcome    string   `json:"outcome"` // e.g., ".within", ".watch", ".breach"
	Reason     string   `json:"reason"`
}

// PolicyResult is the output of a policy evaluation.
type PolicyResult struct {
	PolicyID  string  `json:"policyId"`
	Outcome   string  `json:"outcome"` // ".within", ".watch", ".breach", ".err"
	Score     float64 `json:"score"`   // The computed value
	Reason    string  `json:"reason"`
	Weight    float64 `json:"weight"`
	ProcessMs int64   `json:"processMs"`
}

// Predefined policy outcomes
const (
	OutcomeWithin = ".within"
	OutcomeWatch  = ".watch"
	OutcomeBreach = ".breach"
	OutcomeError  = ".err"
)
