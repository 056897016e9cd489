package sensitivity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/opensource-finance/lossim/internal/domain"
)

func referenceParams() domain.ParameterSet {
	return domain.ParameterSet{
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

func TestTornadoReferenceScenario(t *testing.T) {
	a := &Analyzer{}

	res, err := a.Tornado(context.Background(), referenceParams(), 42, 5_000, 0.2)
	if err != nil {
		t.Fatalf("Tornado failed: %v", err)
	}

	if len(res.Bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(res.Bars))
	}
	if res.BaselineMean <= 0 {
		t.Errorf("expected positive baseline mean, got %v", res.BaselineMean)
	}

	for i := 1; i < len(res.Bars); i++ {
		if res.Bars[i].Magnitude() > res.Bars[i-1].Magnitude() {
			t.Errorf("bars not sorted: %s (%.0f) after %s (%.0f)",
				res.Bars[i].Driver, res.Bars[i].Magnitude(),
				res.Bars[i-1].Driver, res.Bars[i-1].Magnitude())
		}
	}

	for _, b := range res.Bars {
		switch b.Driver {
		case domain.DriverDetectionRate:
			// lower detection means more undetected fraud
			if b.LowDelta <= 0 {
				t.Errorf("detection low delta should be positive, got %v", b.LowDelta)
			}
			if b.HighDelta >= 0 {
				t.Errorf("detection high delta should be negative, got %v", b.HighDelta)
			}
		case domain.DriverBaseFraudRate:
			if b.LowDelta >= 0 || b.HighDelta <= 0 {
				t.Errorf("fraud rate deltas have wrong sign: %+v", b)
			}
		case domain.DriverSevSigma:
			if b.HighDelta <= 0 {
				t.Errorf("sigma high delta should be positive, got %v", b.HighDelta)
			}
		default:
			t.Errorf("unexpected driver %q", b.Driver)
		}
	}
}

func TestTornadoDeterministic(t *testing.T) {
	a := NewAnalyzer(2)
	p := referenceParams()

	first, err := a.Tornado(context.Background(), p, 7, 2_000, 0.2)
	if err != nil {
		t.Fatalf("Tornado failed: %v", err)
	}
	second, err := a.Tornado(context.Background(), p, 7, 2_000, 0.2)
	if err != nil {
		t.Fatalf("Tornado failed: %v", err)
	}

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("tornado not reproducible:\n%s", diff)
	}
}

func TestTornadoClampsDetection(t *testing.T) {
	p := referenceParams()
	p.DetectionRate = 0.95

	a := &Analyzer{Drivers: []string{domain.DriverDetectionRate}}
	res, err := a.Tornado(context.Background(), p, 42, 2_000, 0.2)
	if err != nil {
		t.Fatalf("Tornado failed: %v", err)
	}

	// 0.95 * 1.2 clamps to full detection, which removes all loss.
	bar := res.Bars[0]
	if bar.HighDelta != -res.BaselineMean {
		t.Errorf("expected high delta %v, got %v", -res.BaselineMean, bar.HighDelta)
	}
}

func TestTornadoRejectsInvalidInput(t *testing.T) {
	a := &Analyzer{}
	ctx := context.Background()

	for _, perturb := range []float64{0, 1, -0.1, 1.5} {
		_, err := a.Tornado(ctx, referenceParams(), 42, 100, perturb)
		if !errors.Is(err, domain.ErrInvalidParameter) {
			t.Errorf("perturb=%v: expected ErrInvalidParameter, got %v", perturb, err)
		}
	}

	t.Run("UnknownDriver", func(t *testing.T) {
		a := &Analyzer{Drivers: []string{"velocity"}}
		_, err := a.Tornado(ctx, referenceParams(), 42, 100, 0.2)
		if !errors.Is(err, domain.ErrInvalidParameter) {
			t.Errorf("expected ErrInvalidParameter, got %v", err)
		}
	})

	t.Run("NonPositivePaths", func(t *testing.T) {
		_, err := a.Tornado(ctx, referenceParams(), 42, 0, 0.2)
		if !errors.Is(err, domain.ErrInvalidParameter) {
			t.Errorf("expected ErrInvalidParameter, got %v", err)
		}
	})

	t.Run("VariantOutOfRange", func(t *testing.T) {
		p := referenceParams()
		p.BaseFraudRate = 0.9

		_, err := a.Tornado(ctx, p, 42, 100, 0.2)
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected *ValidationError, got %v", err)
		}
		if verr.Field != domain.DriverBaseFraudRate {
			t.Errorf("expected field %q, got %q", domain.DriverBaseFraudRate, verr.Field)
		}
		if !errors.Is(err, domain.ErrInvalidParameter) {
			t.Errorf("expected ErrInvalidParameter, got %v", err)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := a.Tornado(cctx, referenceParams(), 42, 100, 0.2)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
