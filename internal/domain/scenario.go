package domain

import "time"

// Scenario is a named, saved parameter set. It is configuration, not a
// record of past runs: simulating it always recomputes from Params and Seed.
type Scenario struct {
	ID          string       `json:"id" yaml:"-"`
	TenantID    string       `json:"tenantId,omitempty" yaml:"-"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description" yaml:"description"`
	Params      ParameterSet `json:"params" yaml:"params"`
	Seed        int64        `json:"seed" yaml:"seed"`
	Paths       int          `json:"paths" yaml:"paths"`

	// Audit timestamps
	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

// Validate checks the embedded parameters and run settings.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if s.Paths <= 0 {
		return invalid("paths", float64(s.Paths), "must be positive")
	}
	return s.Params.Validate()
}
