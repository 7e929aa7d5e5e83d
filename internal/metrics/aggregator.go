// Package metrics computes the per-scraper rolling stats spec.md §4.L
// names, from per-cycle counters into posts/hr, comments/hr, and average
// cycle duration.
package metrics

import (
	"time"

	"github.com/reddit-fleet/scraper-control/internal/models"
)

// ApplyCycle folds one cycle's counters into the scraper's rolling
// metrics block. Every store backend's RecordCycle calls this so the
// rolling-average formula lives in exactly one place.
func ApplyCycle(m models.Metrics, postsDelta, commentsDelta int, duration time.Duration) models.Metrics {
	m.Cycles++
	m.LastCycleAt = time.Now()

	if hours := duration.Hours(); hours > 0 {
		m.PostsPerHour = float64(postsDelta) / hours
		m.CommentsPerHour = float64(commentsDelta) / hours
	}

	n := float64(m.Cycles)
	m.AvgCycleDuration = ((m.AvgCycleDuration * (n - 1)) + duration.Seconds()) / n
	return m
}
