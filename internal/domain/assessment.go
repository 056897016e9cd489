package domain

import (
	"time"
)

// Assessment is the aggregated appetite verdict for one simulation run.
type Assessment struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	RunID     string    `json:"runId"`
	Status    string    `json:"status"` // WITHIN, WATCH or BREACH
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`

	Results []PolicyResult `json:"results"`
	Reasons []string       `json:"reasons,omitempty"`

	Metadata AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata contains processing information.
type AssessmentMetadata struct {
	PoliciesEvaluated int   `json:"policiesEvaluated"`
	PoliciesTriggered int   `json:"policiesTriggered"`
	DecisionMs        int64 `json:"decisionMs"`
}

// Appetite status constants
const (
	StatusWithin = "WITHIN"
	StatusWatch  = "WATCH"
	StatusBreach = "BREACH"
)

// Breached reports whether the run exceeded risk appetite.
func (a *Assessment) Breached() bool {
	return a != nil && a.Status == StatusBreach
}
