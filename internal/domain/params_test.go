package domain

import (
	"errors"
	"math"
	"testing"
)

func validParams() ParameterSet {
	return ParameterSet{
		NTransactions:     1_000_000,
		AvgTicket:         85,
		BaseFraudRate:     0.004,
		DetectionRate:     0.72,
		FalsePositiveRate: 0.01,
		SevMu:             4.2,
		SevSigma:          0.9,
		MonthlyLossBudget: 350_000,
	}
}

func TestParameterSetValidate(t *testing.T) {
	if err := validParams().Validate(); err != nil {
		t.Fatalf("expected valid params, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*ParameterSet)
		field  string
	}{
		{"NegativeVolume", func(p *ParameterSet) { p.NTransactions = -1 }, DriverNTransactions},
		{"ZeroTicket", func(p *ParameterSet) { p.AvgTicket = 0 }, DriverAvgTicket},
		{"FraudRateAboveOne", func(p *ParameterSet) { p.BaseFraudRate = 1.5 }, DriverBaseFraudRate},
		{"NegativeDetection", func(p *ParameterSet) { p.DetectionRate = -0.1 }, DriverDetectionRate},
		{"NaNFalsePositive", func(p *ParameterSet) { p.FalsePositiveRate = math.NaN() }, DriverFalsePositiveRate},
		{"InfiniteMu", func(p *ParameterSet) { p.SevMu = math.Inf(1) }, DriverSevMu},
		{"ZeroSigma", func(p *ParameterSet) { p.SevSigma = 0 }, DriverSevSigma},
		{"NegativeBudget", func(p *ParameterSet) { p.MonthlyLossBudget = -10 }, DriverMonthlyLossBudget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)

			err := p.Validate()
			if !errors.Is(err, ErrInvalidParameter) {
				t.Fatalf("expected ErrInvalidParameter, got %v", err)
			}
			if errors.Is(err, ErrSimulation) {
				t.Error("validation error must not match ErrSimulation")
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, verr.Field)
			}
		})
	}

	t.Run("BoundaryRatesAllowed", func(t *testing.T) {
		p := validParams()
		p.NTransactions = 0
		p.BaseFraudRate = 0
		p.DetectionRate = 1
		if err := p.Validate(); err != nil {
			t.Errorf("expected boundary values to be valid, got %v", err)
		}
	})
}

func TestParameterSetDrivers(t *testing.T) {
	p := validParams()

	for name, want := range p.Map() {
		got, err := p.Driver(name)
		if err != nil {
			t.Fatalf("Driver(%s) failed: %v", name, err)
		}
		if got != want {
			t.Errorf("Driver(%s) = %v, want %v", name, got, want)
		}
	}

	t.Run("WithDriverCopies", func(t *testing.T) {
		q, err := p.WithDriver(DriverDetectionRate, 0.5)
		if err != nil {
			t.Fatalf("WithDriver failed: %v", err)
		}
		if q.DetectionRate != 0.5 {
			t.Errorf("expected 0.5, got %v", q.DetectionRate)
		}
		if p.DetectionRate != 0.72 {
			t.Errorf("original mutated: %v", p.DetectionRate)
		}
	})

	t.Run("UnknownDriver", func(t *testing.T) {
		if _, err := p.Driver("velocity"); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("expected ErrInvalidParameter, got %v", err)
		}
		if _, err := p.WithDriver("velocity", 1); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("expected ErrInvalidParameter, got %v", err)
		}
	})
}

func TestSensitivityBarMagnitude(t *testing.T) {
	bar := SensitivityBar{Driver: DriverSevSigma, LowDelta: -300, HighDelta: 120}
	if bar.Magnitude() != 300 {
		t.Errorf("expected magnitude 300, got %v", bar.Magnitude())
	}
}
