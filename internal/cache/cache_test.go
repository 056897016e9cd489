package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/opensource-finance/lossim/internal/domain"
)

// fakeClock lets TTL tests advance time without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLRU(size int) (*LRUCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache(size)
	c.now = clock.now
	return c, clock
}

func sampleReport() *domain.RunReport {
	return &domain.RunReport{
		RunID:    "run-001",
		TenantID: "tenant-001",
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
		Seed:       42,
		Paths:      20_000,
		KPIs:       domain.KPISummary{ExpectedLoss: 112_000, VaR95: 140_000, CVaR95: 155_000},
		NFraudMean: 4000,
		Metadata: domain.RunMetadata{
			EngineVersion: "lossim-1.0",
			CompletedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestLRUCache(t *testing.T) {
	cache, clock := newTestLRU(100)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, tenantID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, tenantID, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, tenantID, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "expiring", []byte("temp"), 10*time.Second)

		if val, _ := cache.Get(ctx, tenantID, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}

		clock.advance(11 * time.Second)

		if val, _ := cache.Get(ctx, tenantID, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small, _ := newTestLRU(3)

		_ = small.Set(ctx, tenantID, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, tenantID, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, tenantID, "c", []byte("3"), time.Minute)

		// touch 'a' so 'b' is the oldest
		_, _ = small.Get(ctx, tenantID, "a")
		_ = small.Set(ctx, tenantID, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, tenantID, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := small.Get(ctx, tenantID, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "tenant-001", "shared-key", []byte("tenant1-value"), time.Minute)
		_ = cache.Set(ctx, "tenant-002", "shared-key", []byte("tenant2-value"), time.Minute)

		val1, _ := cache.Get(ctx, "tenant-001", "shared-key")
		val2, _ := cache.Get(ctx, "tenant-002", "shared-key")

		if string(val1) != "tenant1-value" || string(val2) != "tenant2-value" {
			t.Errorf("tenant values leaked: %q %q", val1, val2)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := cache.Set(ctx, "", "key", []byte("value"), time.Minute); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := cache.Get(ctx, "", "key"); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := cache.IncrementCounter(ctx, "", "paths", 1, time.Minute); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		window := time.Minute

		count, err := cache.IncrementCounter(ctx, tenantID, "paths", 20_000, window)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if count != 20_000 {
			t.Errorf("expected 20000, got %d", count)
		}

		count, _ = cache.IncrementCounter(ctx, tenantID, "paths", 5_000, window)
		if count != 25_000 {
			t.Errorf("expected 25000, got %d", count)
		}

		clock.advance(window + time.Second)

		count, _ = cache.IncrementCounter(ctx, tenantID, "paths", 1, window)
		if count != 1 {
			t.Errorf("expected 1 after window reset, got %d", count)
		}
	})

	t.Run("Report", func(t *testing.T) {
		want := sampleReport()

		if err := cache.SetReport(ctx, tenantID, "fp-1", want, time.Minute); err != nil {
			t.Fatalf("SetReport failed: %v", err)
		}

		got, err := cache.GetReport(ctx, tenantID, "fp-1")
		if err != nil {
			t.Fatalf("GetReport failed: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("report mismatch (-want +got):\n%s", diff)
		}

		miss, err := cache.GetReport(ctx, tenantID, "fp-unknown")
		if err != nil || miss != nil {
			t.Errorf("expected nil, nil on miss, got %v, %v", miss, err)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		stats, _ := newTestLRU(50)
		_ = stats.Set(ctx, tenantID, "k1", []byte("v1"), time.Minute)
		_ = stats.Set(ctx, tenantID, "k2", []byte("v2"), time.Minute)

		size, capacity := stats.Stats()
		if size != 2 || capacity != 50 {
			t.Errorf("expected 2/50, got %d/%d", size, capacity)
		}
	})

	t.Run("Close", func(t *testing.T) {
		c, _ := newTestLRU(10)
		_ = c.Set(ctx, tenantID, "k", []byte("v"), time.Minute)

		if err := c.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		if val, _ := c.Get(ctx, tenantID, "k"); val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

// TestRedisCache runs against a live server when LOSSIM_TEST_REDIS is set.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("LOSSIM_TEST_REDIS")
	if addr == "" {
		t.Skip("LOSSIM_TEST_REDIS not set")
	}

	ctx := context.Background()
	tp, err := NewTwoPhaseCache(domain.CacheConfig{RedisAddr: addr, LocalMaxSize: 10, LocalTTL: time.Second})
	if err != nil {
		t.Fatalf("NewTwoPhaseCache failed: %v", err)
	}
	defer tp.Close()

	tenantID := "tenant-" + time.Now().Format("150405.000000")

	want := sampleReport()
	if err := tp.SetReport(ctx, tenantID, "fp", want, time.Minute); err != nil {
		t.Fatalf("SetReport failed: %v", err)
	}
	// drop L1 so the read goes to Redis
	_ = tp.local.Close()

	got, err := tp.GetReport(ctx, tenantID, "fp")
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	n, err := tp.IncrementCounter(ctx, tenantID, "paths", 300, time.Minute)
	if err != nil || n != 300 {
		t.Fatalf("IncrementCounter = %d, %v", n, err)
	}
	n, _ = tp.IncrementCounter(ctx, tenantID, "paths", 200, time.Minute)
	if n != 500 {
		t.Errorf("expected 500, got %d", n)
	}
}
