package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/lossim/internal/cache"
)

func TestLimiter(t *testing.T) {
	lru := cache.NewLRUCache(100)
	defer lru.Close()

	l := NewLimiter(lru, 50_000, time.Hour)
	ctx := context.Background()

	t.Run("WithinQuota", func(t *testing.T) {
		used, err := l.Charge(ctx, "tenant-001", 20_000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if used != 20_000 {
			t.Errorf("expected 20000 used, got %d", used)
		}

		remaining, err := l.Remaining(ctx, "tenant-001")
		if err != nil {
			t.Fatalf("Remaining failed: %v", err)
		}
		if remaining != 30_000 {
			t.Errorf("expected 30000 remaining, got %d", remaining)
		}
	})

	t.Run("Exceeded", func(t *testing.T) {
		if _, err := l.Charge(ctx, "tenant-001", 20_000); err != nil {
			t.Fatalf("unexpected error at 40000: %v", err)
		}
		used, err := l.Charge(ctx, "tenant-001", 20_000)
		if !errors.Is(err, ErrQuotaExceeded) {
			t.Fatalf("expected ErrQuotaExceeded, got %v", err)
		}
		if used != 40_000 {
			t.Errorf("rejected charge should be refunded, got %d used", used)
		}

		remaining, _ := l.Remaining(ctx, "tenant-001")
		if remaining != 10_000 {
			t.Errorf("expected 10000 remaining, got %d", remaining)
		}
		if _, err := l.Charge(ctx, "tenant-001", 10_000); err != nil {
			t.Errorf("charge within the remaining quota failed: %v", err)
		}
		if _, err := l.Charge(ctx, "tenant-001", 1); !errors.Is(err, ErrQuotaExceeded) {
			t.Errorf("expected exhausted quota, got %v", err)
		}
	})

	t.Run("OversizedRequestDoesNotLockOut", func(t *testing.T) {
		small := NewLimiter(lru, 100_000, time.Hour)
		if _, err := small.Charge(ctx, "tenant-003", 150_000); !errors.Is(err, ErrQuotaExceeded) {
			t.Fatalf("expected ErrQuotaExceeded, got %v", err)
		}
		used, err := small.Charge(ctx, "tenant-003", 1_000)
		if err != nil {
			t.Fatalf("small charge after a rejected one failed: %v", err)
		}
		if used != 1_000 {
			t.Errorf("expected 1000 used, got %d", used)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		if _, err := l.Charge(ctx, "tenant-002", 50_000); err != nil {
			t.Errorf("other tenant should have a fresh quota: %v", err)
		}
	})

	t.Run("RequiresTenant", func(t *testing.T) {
		if _, err := l.Charge(ctx, "", 1); err == nil {
			t.Error("expected error without tenant")
		}
	})
}

func TestLimiterDisabled(t *testing.T) {
	lru := cache.NewLRUCache(10)
	defer lru.Close()

	tests := []struct {
		name string
		l    *Limiter
	}{
		{"ZeroLimit", NewLimiter(lru, 0, time.Minute)},
		{"NilCache", NewLimiter(nil, 10, time.Minute)},
		{"NilLimiter", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.l.Enabled() {
				t.Fatal("expected limiter to be disabled")
			}
			if _, err := tt.l.Charge(context.Background(), "tenant-001", 1_000_000_000); err != nil {
				t.Errorf("disabled limiter should never fail, got %v", err)
			}
		})
	}
}
