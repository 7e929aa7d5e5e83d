package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/reddit-fleet/scraper-control/internal/models"
	"github.com/reddit-fleet/scraper-control/internal/reddit"
	"github.com/reddit-fleet/scraper-control/internal/store"
)

const metadataRefreshInterval = 24 * time.Hour

// PostsWorker is the run_one(s) implementation of spec.md §4.E, exposed as
// a rotation.Action.
type PostsWorker struct {
	store  store.Store
	client *reddit.Client
	config models.ScraperConfig
}

// NewPostsWorker builds the Posts Worker action.
func NewPostsWorker(st store.Store, client *reddit.Client, cfg models.ScraperConfig) *PostsWorker {
	return &PostsWorker{store: st, client: client, config: cfg}
}

// Action adapts RunOne to the worker.Action signature the rotation
// skeleton expects.
func (w *PostsWorker) Action() Action {
	return w.RunOne
}

// RunOne fetches posts across every configured sort order for one
// subreddit, deduplicates the union by post_id (first writer wins within
// the cycle), upserts with tracking-field preservation, and refreshes
// subreddit metadata on its own 24h cadence.
func (w *PostsWorker) RunOne(ctx context.Context, subreddit string) (postsDelta, commentsDelta int, err error) {
	timeFilter, err := topTimeFilter(ctx, w.store, subreddit, w.config)
	if err != nil {
		return 0, 0, err
	}

	sorts := w.config.SortingMethods
	if len(sorts) == 0 {
		sorts = []models.SortMethod{models.SortNew, models.SortTop, models.SortRising}
	}

	seen := map[string]bool{}
	var union []models.Post

	for _, sort := range sorts {
		limit := w.config.SortLimits[sort]
		if limit <= 0 {
			limit = 100
		}
		tf := ""
		if sort == models.SortTop {
			tf = timeFilter
		}
		posts, err := w.client.FetchListing(ctx, subreddit, sort, tf, limit)
		if err != nil {
			return 0, 0, fmt.Errorf("posts worker: fetch %s/%s: %w", subreddit, sort, err)
		}
		for _, p := range posts {
			if seen[p.PostID] {
				continue
			}
			seen[p.PostID] = true
			union = append(union, p)
		}
	}

	if len(union) > 0 {
		if err := w.store.UpsertPosts(ctx, union); err != nil {
			return 0, 0, fmt.Errorf("posts worker: upsert posts %s: %w", subreddit, err)
		}
	}

	if err := w.maybeRefreshMetadata(ctx, subreddit); err != nil {
		return len(union), 0, fmt.Errorf("posts worker: refresh metadata %s: %w", subreddit, err)
	}

	return len(union), 0, nil
}

func (w *PostsWorker) maybeRefreshMetadata(ctx context.Context, subreddit string) error {
	existing, err := w.store.GetSubredditMetadata(ctx, subreddit)
	if err != nil && err != store.ErrNotFound {
		return err
	}
	if existing != nil && time.Since(existing.LastUpdated) < metadataRefreshInterval {
		return nil
	}

	meta, err := w.client.FetchSubredditMetadata(ctx, subreddit)
	if err != nil {
		if err == reddit.ErrNotFound {
			return nil
		}
		htmlMeta, htmlErr := w.client.FetchSubredditMetadataHTML(ctx, subreddit)
		if htmlErr != nil {
			return err
		}
		meta = htmlMeta
	}
	return w.store.UpsertSubredditMetadata(ctx, meta)
}
