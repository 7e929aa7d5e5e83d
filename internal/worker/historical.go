package worker

import (
	"context"
	"fmt"

	"github.com/reddit-fleet/scraper-control/internal/models"
	"github.com/reddit-fleet/scraper-control/internal/store"
)

// topTimeFilter implements the Historical-Fetch Strategy (spec.md §4.J):
// a subreddit's first cycle pulls a month of "top" posts in one shot;
// every subsequent cycle falls back to the day-scoped default. Only the
// "top" sort ever consults this; "new"/"rising" are unaffected.
func topTimeFilter(ctx context.Context, st store.Store, subreddit string, cfg models.ScraperConfig) (string, error) {
	count, err := st.PostsCount(ctx, subreddit)
	if err != nil {
		return "", fmt.Errorf("historical: posts_count(%s): %w", subreddit, err)
	}
	if count == 0 {
		return orDefault(cfg.InitialTopTimeFilter, "month"), nil
	}
	return orDefault(cfg.TopTimeFilter, "day"), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
