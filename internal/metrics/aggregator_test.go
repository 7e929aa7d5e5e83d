package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/reddit-fleet/scraper-control/internal/models"
)

func TestApplyCycle_FirstCycle(t *testing.T) {
	m := ApplyCycle(models.Metrics{}, 30, 12, time.Minute)

	assert.Equal(t, int64(1), m.Cycles)
	assert.Equal(t, 60.0, m.AvgCycleDuration)
	assert.InDelta(t, 30*60.0, m.PostsPerHour, 1e-9)
	assert.InDelta(t, 12*60.0, m.CommentsPerHour, 1e-9)
	assert.WithinDuration(t, time.Now(), m.LastCycleAt, time.Second)
}

func TestApplyCycle_RollingAverage(t *testing.T) {
	m := ApplyCycle(models.Metrics{}, 10, 0, 10*time.Second)
	m = ApplyCycle(m, 10, 0, 30*time.Second)

	assert.Equal(t, int64(2), m.Cycles)
	assert.InDelta(t, 20.0, m.AvgCycleDuration, 1e-9)
}

func TestApplyCycle_ZeroDurationSkipsRatePerHour(t *testing.T) {
	m := ApplyCycle(models.Metrics{}, 5, 5, 0)

	assert.Equal(t, int64(1), m.Cycles)
	assert.Equal(t, 0.0, m.PostsPerHour)
	assert.Equal(t, 0.0, m.CommentsPerHour)
}
