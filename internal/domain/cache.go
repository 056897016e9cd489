package domain

import (
	"context"
	"time"
)

// Cache memoizes run reports, holds async sweep job state and keeps the
// windowed counters behind path quotas. Keys are namespaced per tenant.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, tenantID string, key string) error

	// GetReport retrieves a memoized run report by fingerprint.
	GetReport(ctx context.Context, tenantID string, fingerprint string) (*RunReport, error)

	// SetReport memoizes a run report under its fingerprint.
	SetReport(ctx context.Context, tenantID string, fingerprint string, report *RunReport, ttl time.Duration) error

	// IncrementCounter atomically adds delta to a counter and returns the new value.
	// The counter window starts on first increment. Used for path quotas.
	IncrementCounter(ctx context.Context, tenantID string, key string, delta int64, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	// "memory" or "redis"
	Type string `json:"type" yaml:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `json:"localMaxSize" yaml:"local_max_size"`
	LocalTTL     time.Duration `json:"localTtl" yaml:"local_ttl"`

	// Redis settings (Pro tier)
	RedisAddr     string `json:"redisAddr" yaml:"redis_addr"`
	RedisPassword string `json:"-" yaml:"redis_password"`
	RedisDB       int    `json:"redisDb" yaml:"redis_db"`

	// Two-phase settings
	EnableTwoPhase bool `json:"enableTwoPhase" yaml:"enable_two_phase"` // If true, check local first, then Redis
}
