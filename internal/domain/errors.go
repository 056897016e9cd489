package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter marks input that was rejected before any
	// randomness was drawn.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrSimulation marks a failure while computing an otherwise valid run.
	ErrSimulation = errors.New("simulation failed")
)

// ValidationError describes a single rejected input field.
type ValidationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%g: %s", e.Field, e.Value, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidParameter.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidParameter
}

func invalid(field string, value float64, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// InvalidField builds a ValidationError for inputs that live outside
// ParameterSet, such as trial counts or perturbation sizes.
func InvalidField(field string, value float64, reason string) error {
	return invalid(field, value, reason)
}
