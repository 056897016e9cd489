// Package quota meters simulated paths per tenant over a rolling window.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/lossim/internal/domain"
)

// ErrQuotaExceeded is returned when a run would take the tenant over its
// path allowance for the current window.
var ErrQuotaExceeded = errors.New("path quota exceeded")

const counterKey = "paths"

// Limiter charges simulated paths against a per-tenant counter held in the
// cache, so a Redis-backed cache shares the quota across replicas.
type Limiter struct {
	cache  domain.Cache
	limit  int64
	window time.Duration
}

// NewLimiter returns a limiter allowing limit paths per window.
// A limit <= 0 disables metering.
func NewLimiter(cache domain.Cache, limit int64, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{cache: cache, limit: limit, window: window}
}

// Enabled reports whether the limiter meters anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.cache != nil && l.limit > 0
}

// Charge adds paths to the tenant's counter. A charge that would overshoot
// the limit is refunded and rejected, so it does not lock the tenant out
// of the remaining window.
func (l *Limiter) Charge(ctx context.Context, tenantID string, paths int64) (int64, error) {
	if !l.Enabled() {
		return 0, nil
	}
	if tenantID == "" {
		return 0, fmt.Errorf("tenantID is required")
	}
	if paths <= 0 {
		return 0, nil
	}

	used, err := l.cache.IncrementCounter(ctx, tenantID, counterKey, paths, l.window)
	if err != nil {
		return 0, fmt.Errorf("failed to charge quota: %w", err)
	}
	if used > l.limit {
		if _, rerr := l.cache.IncrementCounter(ctx, tenantID, counterKey, -paths, l.window); rerr != nil {
			return used, fmt.Errorf("failed to refund quota: %w", rerr)
		}
		return used - paths, fmt.Errorf("%w: %d paths requested with %d of %d used in the last %s",
			ErrQuotaExceeded, paths, used-paths, l.limit, l.window)
	}
	return used, nil
}

// Remaining returns the paths left in the tenant's window without charging.
func (l *Limiter) Remaining(ctx context.Context, tenantID string) (int64, error) {
	if !l.Enabled() {
		return -1, nil
	}
	used, err := l.cache.IncrementCounter(ctx, tenantID, counterKey, 0, l.window)
	if err != nil {
		return 0, err
	}
	if used >= l.limit {
		return 0, nil
	}
	return l.limit - used, nil
}
