package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reddit-fleet/scraper-control/internal/models"
	"github.com/reddit-fleet/scraper-control/internal/ratelimit"
)

// UsageStore is the slice of the document-store abstraction the Usage
// Recorder needs. store.Store satisfies this structurally.
type UsageStore interface {
	RecordUsage(ctx context.Context, row models.UsageRow) error
	QueryUsage(ctx context.Context, since time.Time) ([]models.UsageRow, error)
}

// Recorder buffers per-(subreddit, scraper_type) request counts in memory
// and flushes one aggregated row per interval, matching spec.md §4.C.
type Recorder struct {
	store         UsageStore
	oracle        *ratelimit.Oracle
	flushInterval time.Duration
	costPer1000   float64

	mu           sync.Mutex
	cycleStarted time.Time
}

// NewRecorder builds a Recorder. costPer1000 defaults to $0.24 if zero.
func NewRecorder(store UsageStore, oracle *ratelimit.Oracle, flushInterval time.Duration, costPer1000 float64) *Recorder {
	if flushInterval <= 0 {
		flushInterval = 60 * time.Second
	}
	if costPer1000 == 0 {
		costPer1000 = 0.24
	}
	return &Recorder{store: store, oracle: oracle, flushInterval: flushInterval, costPer1000: costPer1000, cycleStarted: time.Now()}
}

// Flush drains the transport's cycle counter into one usage row. It is safe
// to call this on a fixed timer (the flush_interval, default 60s) or at the
// end of a worker rotation cycle; either way it computes cost as
// requests × cost_per_1000 / 1000, matching spec.md invariant 7.
func (r *Recorder) Flush(ctx context.Context, ct *CountingTransport, cycleDuration time.Duration) (models.UsageRow, error) {
	requests := ct.ResetCycle()

	r.mu.Lock()
	started := r.cycleStarted
	r.cycleStarted = time.Now()
	r.mu.Unlock()

	row := models.UsageRow{
		Subreddit:            ct.Labels().Subreddit,
		ScraperType:          ct.Labels().ScraperType,
		Timestamp:            started,
		ActualHTTPRequests:   requests,
		EstimatedCostUSD:     float64(requests) * r.costPer1000 / 1000.0,
		CycleDurationSeconds: cycleDuration.Seconds(),
	}
	if r.oracle != nil {
		row.RateLimitSnapshot = r.oracle.Snapshot()
	}

	if requests == 0 {
		return row, nil
	}
	if err := r.store.RecordUsage(ctx, row); err != nil {
		return row, fmt.Errorf("usage recorder: flush failed: %w", err)
	}
	return row, nil
}

// Run flushes ct's counts periodically until ctx is cancelled; each worker
// process runs it in the background for its own transport.
func (r *Recorder) Run(ctx context.Context, ct *CountingTransport) {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			_, _ = r.Flush(ctx, ct, now.Sub(last))
			last = now
		}
	}
}

// CostAggregation is the shape backing GET /api/usage/cost (spec.md §6).
type CostAggregation struct {
	Today              float64            `json:"today_usd"`
	LastHour           float64            `json:"last_hour_usd"`
	SevenDayAverageUSD float64            `json:"seven_day_average_usd"`
	MonthlyProjection  float64            `json:"monthly_projection_usd"`
	PerSubreddit       map[string]float64 `json:"per_subreddit_usd"`
}

// Aggregate computes the four cost reductions spec.md §6/§4.C name, as pure
// reductions over stored usage rows. now is passed in explicitly so the
// computation stays deterministic and testable.
func Aggregate(rows []models.UsageRow, now time.Time) CostAggregation {
	agg := CostAggregation{PerSubreddit: map[string]float64{}}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	lastHour := now.Add(-1 * time.Hour)
	sevenDaysAgo := now.Add(-7 * 24 * time.Hour)

	var sevenDayTotal float64
	for _, row := range rows {
		agg.PerSubreddit[row.Subreddit] += row.EstimatedCostUSD

		if !row.Timestamp.Before(startOfDay) {
			agg.Today += row.EstimatedCostUSD
		}
		if !row.Timestamp.Before(lastHour) {
			agg.LastHour += row.EstimatedCostUSD
		}
		if !row.Timestamp.Before(sevenDaysAgo) {
			sevenDayTotal += row.EstimatedCostUSD
		}
	}

	agg.SevenDayAverageUSD = sevenDayTotal / 7.0
	agg.MonthlyProjection = agg.SevenDayAverageUSD * 30.0
	return agg
}
