package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/opensource-finance/lossim/internal/domain"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "lossim-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testScenario(id, name string) *domain.Scenario {
	return &domain.Scenario{
		ID:          id,
		Name:        name,
		Description: "card portfolio",
		Params: domain.ParameterSet{
			NTransactions:     1_000_000,
			AvgTicket:         85,
			BaseFraudRate:     0.004,
			DetectionRate:     0.72,
			FalsePositiveRate: 0.01,
			SevMu:             4.2,
			SevSigma:          0.9,
			MonthlyLossBudget: 350_000,
		},
		Seed:  42,
		Paths: 20_000,
	}
}

var ignoreAudit = cmpopts.IgnoreFields(domain.Scenario{}, "CreatedAt", "UpdatedAt")

func TestSQLiteScenarios(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGet", func(t *testing.T) {
		s := testScenario("sc-001", "baseline")
		if err := repo.SaveScenario(ctx, tenantID, s); err != nil {
			t.Fatalf("SaveScenario failed: %v", err)
		}

		got, err := repo.GetScenario(ctx, tenantID, "sc-001")
		if err != nil {
			t.Fatalf("GetScenario failed: %v", err)
		}
		if diff := cmp.Diff(s, got, ignoreAudit); diff != "" {
			t.Errorf("scenario mismatch (-want +got):\n%s", diff)
		}
		if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
			t.Error("expected audit timestamps")
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		s := testScenario("sc-001", "baseline")
		s.Params.DetectionRate = 0.85
		s.Paths = 5_000
		if err := repo.SaveScenario(ctx, tenantID, s); err != nil {
			t.Fatalf("SaveScenario failed: %v", err)
		}

		got, err := repo.GetScenario(ctx, tenantID, "sc-001")
		if err != nil {
			t.Fatalf("GetScenario failed: %v", err)
		}
		if got.Params.DetectionRate != 0.85 || got.Paths != 5_000 {
			t.Errorf("upsert not applied: %+v", got)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		if _, err := repo.GetScenario(ctx, "tenant-002", "sc-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound across tenants, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		if err := repo.SaveScenario(ctx, tenantID, testScenario("sc-002", "alpha")); err != nil {
			t.Fatalf("SaveScenario failed: %v", err)
		}

		list, err := repo.ListScenarios(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListScenarios failed: %v", err)
		}
		var names []string
		for _, s := range list {
			names = append(names, s.Name)
		}
		if diff := cmp.Diff([]string{"alpha", "baseline"}, names); diff != "" {
			t.Errorf("list order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.DeleteScenario(ctx, tenantID, "sc-002"); err != nil {
			t.Fatalf("DeleteScenario failed: %v", err)
		}
		if err := repo.DeleteScenario(ctx, tenantID, "sc-002"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
		if _, err := repo.GetScenario(ctx, tenantID, "sc-002"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		if err := repo.SaveScenario(ctx, "", testScenario("x", "x")); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput without tenant, got %v", err)
		}
		if err := repo.SaveScenario(ctx, tenantID, testScenario("", "x")); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput without id, got %v", err)
		}
	})
}

func TestSQLitePolicies(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	lower, upper := 0.05, 0.2
	policy := &domain.AppetitePolicy{
		ID:          "breach-frequency",
		Name:        "Budget breach frequency",
		Description: "Fraction of simulated months over budget",
		Expression:  "breach_prob",
		Bands: []domain.PolicyBand{
			{UpperLimit: &lower, Outcome: domain.OutcomeWithin, Reason: "low"},
			{LowerLimit: &lower, UpperLimit: &upper, Outcome: domain.OutcomeWatch, Reason: "elevated"},
			{LowerLimit: &upper, Outcome: domain.OutcomeBreach, Reason: "high"},
		},
		Weight:  2,
		Enabled: true,
	}

	if err := repo.SavePolicy(ctx, tenantID, policy); err != nil {
		t.Fatalf("SavePolicy failed: %v", err)
	}
	if policy.Version != "1.0.0" {
		t.Errorf("expected default version, got %q", policy.Version)
	}

	got, err := repo.GetPolicy(ctx, tenantID, "breach-frequency")
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if diff := cmp.Diff(policy, got); diff != "" {
		t.Errorf("policy mismatch (-want +got):\n%s", diff)
	}

	disabled := &domain.AppetitePolicy{ID: "a-disabled", Name: "off", Expression: "true", Weight: 1}
	if err := repo.SavePolicy(ctx, tenantID, disabled); err != nil {
		t.Fatalf("SavePolicy failed: %v", err)
	}

	list, err := repo.ListPolicies(ctx, tenantID)
	if err != nil {
		t.Fatalf("ListPolicies failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "a-disabled" || list[0].Enabled {
		t.Errorf("unexpected policy list: %+v", list)
	}

	if _, err := repo.GetPolicy(ctx, tenantID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := repo.SavePolicy(ctx, tenantID, &domain.AppetitePolicy{ID: "no-expr"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	if got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("unexpected postgres rebind: %s", got)
	}
	lite := &SQLRepository{driver: "sqlite"}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite query should be unchanged, got %s", got)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "mysql"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestPostgresDSNDefaults(t *testing.T) {
	got := postgresDSN(domain.RepositoryConfig{PostgresUser: "lossim", PostgresPassword: "pw"})
	want := "host=localhost port=5432 user=lossim password=pw dbname=lossim sslmode=disable"
	if got != want {
		t.Errorf("postgresDSN() = %q, want %q", got, want)
	}
}
