package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitCapacity_NoSnapshotNeverBlocks(t *testing.T) {
	o := NewOracle(50)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := o.AwaitCapacity(ctx)
	assert.NoError(t, err)
}

func TestAwaitCapacity_AboveThresholdNeverBlocks(t *testing.T) {
	o := NewOracle(50)
	o.Observe(map[string][]string{
		"X-Ratelimit-Remaining": {"80"},
		"X-Ratelimit-Used":      {"20"},
		"X-Ratelimit-Reset":     {"30"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := o.AwaitCapacity(ctx)
	assert.NoError(t, err)
}

func TestAwaitCapacity_BelowThresholdBlocksUntilResetGuard(t *testing.T) {
	o := NewOracle(50)
	o.Observe(map[string][]string{
		"X-Ratelimit-Remaining": {"5"},
		"X-Ratelimit-Used":      {"95"},
		"X-Ratelimit-Reset":     {"0"}, // resets "now", guard adds 5s
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := o.AwaitCapacity(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwaitCapacity_CancellableImmediately(t *testing.T) {
	o := NewOracle(50)
	o.Observe(map[string][]string{
		"X-Ratelimit-Remaining": {"1"},
		"X-Ratelimit-Reset":     {"3600"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.AwaitCapacity(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnapshot_ReflectsLatestObserve(t *testing.T) {
	o := NewOracle(50)
	o.Observe(map[string][]string{
		"X-Ratelimit-Remaining": {"42"},
		"X-Ratelimit-Used":      {"8"},
	})

	snap := o.Snapshot()
	require.Equal(t, 42.0, snap.Remaining)
	assert.Equal(t, 8.0, snap.Used)
}

func TestObserve_IgnoresUnrelatedHeaders(t *testing.T) {
	o := NewOracle(50)
	o.Observe(map[string][]string{"Content-Type": {"application/json"}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, o.AwaitCapacity(ctx))
}
