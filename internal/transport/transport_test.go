package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddit-fleet/scraper-control/internal/models"
	"github.com/reddit-fleet/scraper-control/internal/ratelimit"
)

// stubTransport rewrites RedditHost-destined requests to hit a local
// httptest server, so CountingTransport's host check exercises the exact
// code path used against the real API without touching the network.
type stubTransport struct {
	target string
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = "http"
	req.URL.Host = s.target
	return http.DefaultTransport.RoundTrip(req)
}

func TestCountingTransport_CountsOnlyRedditHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Remaining", "77")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	oracle := ratelimit.NewOracle(50)
	ct := NewCountingTransport(&stubTransport{target: srv.Listener.Addr().String()}, oracle, Labels{Subreddit: "golang", ScraperType: models.ScraperTypePosts}, nil)

	req, err := http.NewRequest("GET", "https://"+RedditHost+"/r/golang/new", nil)
	require.NoError(t, err)
	_, err = ct.RoundTrip(req)
	require.NoError(t, err)

	other, err := http.NewRequest("GET", "https://example.com/whatever", nil)
	require.NoError(t, err)
	_, _ = ct.RoundTrip(other)

	assert.Equal(t, int64(1), ct.TotalCount())
	assert.Equal(t, 77.0, oracle.Snapshot().Remaining)
}

func TestCountingTransport_ResetCycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ct := NewCountingTransport(&stubTransport{target: srv.Listener.Addr().String()}, nil, Labels{}, nil)
	req, _ := http.NewRequest("GET", "https://"+RedditHost+"/x", nil)

	for i := 0; i < 3; i++ {
		_, _ = ct.RoundTrip(req)
	}
	assert.Equal(t, int64(3), ct.CycleCount())

	reset := ct.ResetCycle()
	assert.Equal(t, int64(3), reset)
	assert.Equal(t, int64(0), ct.CycleCount())
	assert.Equal(t, int64(3), ct.TotalCount())
}

type fakeUsageStore struct {
	rows []models.UsageRow
}

func (f *fakeUsageStore) RecordUsage(ctx context.Context, row models.UsageRow) error {
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeUsageStore) QueryUsage(ctx context.Context, since time.Time) ([]models.UsageRow, error) {
	return f.rows, nil
}

func TestRecorder_Flush_ComputesCost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fs := &fakeUsageStore{}
	oracle := ratelimit.NewOracle(50)
	ct := NewCountingTransport(&stubTransport{target: srv.Listener.Addr().String()}, oracle, Labels{Subreddit: "golang", ScraperType: models.ScraperTypePosts}, nil)
	req, _ := http.NewRequest("GET", "https://"+RedditHost+"/x", nil)
	for i := 0; i < 1000; i++ {
		_, _ = ct.RoundTrip(req)
	}

	rec := NewRecorder(fs, oracle, time.Minute, 0.24)
	row, err := rec.Flush(context.Background(), ct, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, int64(1000), row.ActualHTTPRequests)
	assert.InDelta(t, 0.24, row.EstimatedCostUSD, 1e-9)
	require.Len(t, fs.rows, 1)
}

func TestRecorder_Flush_SkipsZeroRequestRows(t *testing.T) {
	fs := &fakeUsageStore{}
	ct := NewCountingTransport(http.DefaultTransport, nil, Labels{}, nil)
	rec := NewRecorder(fs, nil, time.Minute, 0.24)

	_, err := rec.Flush(context.Background(), ct, time.Second)
	require.NoError(t, err)
	assert.Empty(t, fs.rows)
}

func TestAggregate_CostBuckets(t *testing.T) {
	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	rows := []models.UsageRow{
		{Subreddit: "golang", Timestamp: now.Add(-10 * time.Minute), EstimatedCostUSD: 0.1},
		{Subreddit: "golang", Timestamp: now.Add(-2 * time.Hour), EstimatedCostUSD: 0.2},
		{Subreddit: "rust", Timestamp: now.Add(-3 * 24 * time.Hour), EstimatedCostUSD: 0.5},
		{Subreddit: "rust", Timestamp: now.Add(-10 * 24 * time.Hour), EstimatedCostUSD: 999}, // outside 7d window
	}

	agg := Aggregate(rows, now)

	assert.InDelta(t, 0.3, agg.Today, 1e-9)
	assert.InDelta(t, 0.1, agg.LastHour, 1e-9)
	assert.InDelta(t, 0.8/7.0, agg.SevenDayAverageUSD, 1e-9)
	assert.InDelta(t, (0.8/7.0)*30.0, agg.MonthlyProjection, 1e-9)
	assert.InDelta(t, 0.3, agg.PerSubreddit["golang"], 1e-9)
	assert.InDelta(t, 999.5, agg.PerSubreddit["rust"], 1e-9)
}
