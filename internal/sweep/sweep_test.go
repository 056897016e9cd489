package sweep

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/opensource-finance/lossim/internal/domain"
	"github.com/opensource-finance/lossim/internal/scenario"
)

func TestRun(t *testing.T) {
	base := scenario.Baseline(domain.DefaultSimConfig())
	samples, err := scenario.StratifiedSamples(map[string]scenario.Range{
		domain.DriverDetectionRate: {Low: 0.5, High: 0.95},
	}, 6, 42)
	if err != nil {
		t.Fatalf("StratifiedSamples failed: %v", err)
	}

	r := NewRunner(2)
	points, err := r.Run(context.Background(), base, samples, 42, 2_000)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(points) != len(samples) {
		t.Fatalf("expected %d points, got %d", len(samples), len(points))
	}
	for i, pt := range points {
		if pt.Index != i {
			t.Errorf("point %d has index %d", i, pt.Index)
		}
		if pt.Params.DetectionRate != samples[i][domain.DriverDetectionRate] {
			t.Errorf("point %d detection %v does not match sample %v",
				i, pt.Params.DetectionRate, samples[i][domain.DriverDetectionRate])
		}
		if pt.KPIs.ExpectedLoss <= 0 {
			t.Errorf("point %d expected positive loss, got %v", i, pt.KPIs.ExpectedLoss)
		}
	}

	// Same seed across points, so loss must fall as detection rises.
	for i := range points {
		for j := range points {
			if points[i].Params.DetectionRate < points[j].Params.DetectionRate &&
				points[i].KPIs.ExpectedLoss <= points[j].KPIs.ExpectedLoss {
				t.Errorf("detection %.3f loss %.0f not above detection %.3f loss %.0f",
					points[i].Params.DetectionRate, points[i].KPIs.ExpectedLoss,
					points[j].Params.DetectionRate, points[j].KPIs.ExpectedLoss)
			}
		}
	}

	t.Run("Deterministic", func(t *testing.T) {
		again, err := NewRunner(4).Run(context.Background(), base, samples, 42, 2_000)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if diff := cmp.Diff(points, again); diff != "" {
			t.Errorf("worker count changed results:\n%s", diff)
		}
	})
}

func TestRunRejectsInvalid(t *testing.T) {
	base := scenario.Baseline(domain.DefaultSimConfig())
	r := NewRunner(0)
	ctx := context.Background()

	if _, err := r.Run(ctx, base, nil, 42, 100); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for empty samples, got %v", err)
	}

	bad := []map[string]float64{{domain.DriverBaseFraudRate: 2}}
	if _, err := r.Run(ctx, base, bad, 42, 100); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for invalid sample, got %v", err)
	}

	ok := []map[string]float64{{domain.DriverSevSigma: 1}}
	if _, err := r.Run(ctx, base, ok, 42, 0); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for zero paths, got %v", err)
	}
}
