// Package ledger is the thin append-only error-recording API spec.md
// §4.K names, sitting between workers and the store adapter.
package ledger

import (
	"context"
	"time"

	"github.com/reddit-fleet/scraper-control/internal/models"
	"github.com/reddit-fleet/scraper-control/internal/store"
)

// Ledger records and queries per-post scrape failures.
type Ledger struct {
	store store.Store
}

// New builds a Ledger backed by st.
func New(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// Record writes one error row. retryCount is the number of attempts made
// before this failure was considered final.
func (l *Ledger) Record(ctx context.Context, subreddit, postID string, kind models.ErrorType, cause error, retryCount int) error {
	row := models.ErrorRow{
		Subreddit:    subreddit,
		PostID:       postID,
		ErrorType:    kind,
		ErrorMessage: cause.Error(),
		RetryCount:   retryCount,
		Timestamp:    time.Now(),
	}
	return l.store.RecordError(ctx, row)
}

// Unresolved returns error rows with resolved = false, optionally scoped
// to one subreddit (empty string means all subreddits).
func (l *Ledger) Unresolved(ctx context.Context, subreddit string) ([]models.ErrorRow, error) {
	return l.store.UnresolvedErrors(ctx, subreddit)
}
