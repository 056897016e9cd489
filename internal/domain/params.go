// Package domain defines the core types and interfaces for Lossim.
package domain

import (
	"fmt"
	"math"
)

// Driver names accepted by ParameterSet.Driver and ParameterSet.WithDriver.
// They match the JSON field names so sweep ranges and tornado bars can be
// keyed by the same strings a caller uses in requests.
const (
	DriverNTransactions     = "n_transactions"
	DriverAvgTicket         = "avg_ticket"
	DriverBaseFraudRate     = "base_fraud_rate"
	DriverDetectionRate     = "detection_rate"
	DriverFalsePositiveRate = "false_positive_rate"
	DriverSevMu             = "sev_mu"
	DriverSevSigma          = "sev_sigma"
	DriverMonthlyLossBudget = "monthly_loss_budget"
)

// ParameterSet holds the eight risk-model inputs for one simulation.
// It is a plain value: copies are independent and nothing mutates it after
// construction.
type ParameterSet struct {
	// Monthly transaction volume.
	NTransactions int64 `json:"n_transactions" yaml:"n_transactions"`

	// Average ticket size. Not consumed by the loss model.
	AvgTicket float64 `json:"avg_ticket" yaml:"avg_ticket"`

	// Fraction of transactions that are truly fraudulent.
	BaseFraudRate float64 `json:"base_fraud_rate" yaml:"base_fraud_rate"`

	// Fraction of fraud identified and stopped by controls.
	DetectionRate float64 `json:"detection_rate" yaml:"detection_rate"`

	// Reserved; not consumed by the loss model.
	FalsePositiveRate float64 `json:"false_positive_rate" yaml:"false_positive_rate"`

	// Lognormal severity location and scale, in log space.
	SevMu    float64 `json:"sev_mu" yaml:"sev_mu"`
	SevSigma float64 `json:"sev_sigma" yaml:"sev_sigma"`

	// Threshold for breach testing.
	MonthlyLossBudget float64 `json:"monthly_loss_budget" yaml:"monthly_loss_budget"`
}

// Validate checks every field invariant and returns a *ValidationError
// for the first violation found.
func (p ParameterSet) Validate() error {
	if p.NTransactions < 0 {
		return invalid(DriverNTransactions, float64(p.NTransactions), "must be >= 0")
	}
	if err := checkPositive(DriverAvgTicket, p.AvgTicket); err != nil {
		return err
	}
	if err := checkRate(DriverBaseFraudRate, p.BaseFraudRate); err != nil {
		return err
	}
	if err := checkRate(DriverDetectionRate, p.DetectionRate); err != nil {
		return err
	}
	if err := checkRate(DriverFalsePositiveRate, p.FalsePositiveRate); err != nil {
		return err
	}
	if math.IsNaN(p.SevMu) || math.IsInf(p.SevMu, 0) {
		return invalid(DriverSevMu, p.SevMu, "must be finite")
	}
	if err := checkPositive(DriverSevSigma, p.SevSigma); err != nil {
		return err
	}
	return checkPositive(DriverMonthlyLossBudget, p.MonthlyLossBudget)
}

// Driver returns the numeric value of a named field.
func (p ParameterSet) Driver(name string) (float64, error) {
	switch name {
	case DriverNTransactions:
		return float64(p.NTransactions), nil
	case DriverAvgTicket:
		return p.AvgTicket, nil
	case DriverBaseFraudRate:
		return p.BaseFraudRate, nil
	case DriverDetectionRate:
		return p.DetectionRate, nil
	case DriverFalsePositiveRate:
		return p.FalsePositiveRate, nil
	case DriverSevMu:
		return p.SevMu, nil
	case DriverSevSigma:
		return p.SevSigma, nil
	case DriverMonthlyLossBudget:
		return p.MonthlyLossBudget, nil
	default:
		return 0, fmt.Errorf("%w: unknown driver %q", ErrInvalidParameter, name)
	}
}

// WithDriver returns a copy of p with the named field replaced.
// n_transactions is truncated toward zero. The copy is not validated.
func (p ParameterSet) WithDriver(name string, value float64) (ParameterSet, error) {
	switch name {
	case DriverNTransactions:
		p.NTransactions = int64(value)
	case DriverAvgTicket:
		p.AvgTicket = value
	case DriverBaseFraudRate:
		p.BaseFraudRate = value
	case DriverDetectionRate:
		p.DetectionRate = value
	case DriverFalsePositiveRate:
		p.FalsePositiveRate = value
	case DriverSevMu:
		p.SevMu = value
	case DriverSevSigma:
		p.SevSigma = value
	case DriverMonthlyLossBudget:
		p.MonthlyLossBudget = value
	default:
		return p, fmt.Errorf("%w: unknown driver %q", ErrInvalidParameter, name)
	}
	return p, nil
}

// Map returns the parameters keyed by their driver names, for reporting.
func (p ParameterSet) Map() map[string]float64 {
	return map[string]float64{
		DriverNTransactions:     float64(p.NTransactions),
		DriverAvgTicket:         p.AvgTicket,
		DriverBaseFraudRate:     p.BaseFraudRate,
		DriverDetectionRate:     p.DetectionRate,
		DriverFalsePositiveRate: p.FalsePositiveRate,
		DriverSevMu:             p.SevMu,
		DriverSevSigma:          p.SevSigma,
		DriverMonthlyLossBudget: p.MonthlyLossBudget,
	}
}

func checkRate(field string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return invalid(field, v, "must be within [0,1]")
	}
	return nil
}

func checkPositive(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return invalid(field, v, "must be positive and finite")
	}
	return nil
}
