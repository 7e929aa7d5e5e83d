// Package ratelimit implements the passive per-OAuth-app quota oracle
// (spec.md §4.A). The oracle issues no HTTP calls of its own — it only
// observes headers forwarded by the transport-layer counter and blocks
// callers that ask for capacity when the app is out of quota.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/reddit-fleet/scraper-control/internal/models"
)

// DefaultThreshold matches spec.md §6's global rate_limit_threshold.
const DefaultThreshold = 50

// resetGuard is added to reset_at before releasing a blocked waiter, per
// spec.md §4.A ("block until reset_at + 5s guard").
const resetGuard = 5 * time.Second

// Oracle holds the live snapshot for a single OAuth application. Exactly
// one Oracle exists per app; it is owned exclusively by the worker using
// that app (spec.md §5).
type Oracle struct {
	mu        sync.Mutex
	remaining float64
	used      float64
	resetAt   time.Time
	threshold int
	// haveSnapshot is false until the first response headers arrive; before
	// that, AwaitCapacity never blocks (there is nothing to throttle yet).
	haveSnapshot bool
}

// NewOracle constructs an Oracle with the given remaining-quota threshold.
func NewOracle(threshold int) *Oracle {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Oracle{threshold: threshold}
}

// Observe updates the snapshot from Reddit's X-Ratelimit-* response
// headers. It performs no I/O and never blocks.
func (o *Oracle) Observe(headers map[string][]string) {
	remaining, okR := headerFloat(headers, "X-Ratelimit-Remaining")
	used, okU := headerFloat(headers, "X-Ratelimit-Used")
	resetSecs, okReset := headerFloat(headers, "X-Ratelimit-Reset")
	if !okR && !okU && !okReset {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if okR {
		o.remaining = remaining
	}
	if okU {
		o.used = used
	}
	if okReset {
		o.resetAt = time.Now().Add(time.Duration(resetSecs) * time.Second)
	}
	o.haveSnapshot = true
}

// Snapshot returns the current view of quota state.
func (o *Oracle) Snapshot() models.RateLimitSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return models.RateLimitSnapshot{Remaining: o.remaining, Used: o.used, ResetAt: o.resetAt}
}

// AwaitCapacity returns immediately if no snapshot has been observed yet or
// remaining >= threshold. Otherwise it blocks until reset_at plus the 5s
// guard has passed, re-checks, and returns once remaining is back at the
// threshold or the latest reset time plus guard is already past (a fresh
// snapshot is not required). Cancellable by ctx, per spec.md §5's
// suspension-point requirement.
func (o *Oracle) AwaitCapacity(ctx context.Context) error {
	for {
		o.mu.Lock()
		remaining := o.remaining
		resetAt := o.resetAt
		have := o.haveSnapshot
		threshold := o.threshold
		o.mu.Unlock()

		if !have || remaining >= float64(threshold) {
			return nil
		}

		wait := time.Until(resetAt.Add(resetGuard))
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Loop and re-check: a fresher Observe() may have landed while
			// we slept, or the window may simply have rolled over.
		}
	}
}

func headerFloat(headers map[string][]string, key string) (float64, bool) {
	values, ok := headers[key]
	if !ok || len(values) == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(values[0], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
