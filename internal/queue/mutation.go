// Package queue implements the Queue Mutation API spec.md §4.I names: the
// three ways a scraper's subreddit list changes while it is running. All
// three are thin wrappers over store.Store.UpdateSubreddits, which already
// owns the diff/pending-scrape bookkeeping across every backend; this
// package only enforces the primary-subreddit and size-cap invariants that
// are cross-cutting rather than backend-specific.
package queue

import (
	"context"
	"fmt"

	"github.com/reddit-fleet/scraper-control/internal/store"
)

// Add appends subreddits not already present to a scraper's list.
func Add(ctx context.Context, st store.Store, id string, subreddits []string) (added, removed []string, err error) {
	rec, err := st.LoadScraper(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("queue: add: %w", err)
	}
	next := unionInOrder(rec.Subreddits, subreddits)
	if len(next) > store.MaxSubreddits {
		return nil, nil, store.ErrTooManySubreddits
	}
	return st.UpdateSubreddits(ctx, id, next)
}

// Remove drops subreddits from a scraper's list. Removing the primary
// subreddit (element zero, the id-bearing entry) is rejected outright.
func Remove(ctx context.Context, st store.Store, id string, subreddits []string) (added, removed []string, err error) {
	rec, err := st.LoadScraper(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("queue: remove: %w", err)
	}
	primary := rec.Primary()
	for _, s := range subreddits {
		if s == primary {
			return nil, nil, store.ErrPrimaryRemoval
		}
	}
	next := subtractInOrder(rec.Subreddits, subreddits)
	return st.UpdateSubreddits(ctx, id, next)
}

// Replace overwrites the full subreddit list, still refusing to drop the
// current primary and still enforcing the size cap.
func Replace(ctx context.Context, st store.Store, id string, subreddits []string) (added, removed []string, err error) {
	rec, err := st.LoadScraper(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("queue: replace: %w", err)
	}
	if len(subreddits) > store.MaxSubreddits {
		return nil, nil, store.ErrTooManySubreddits
	}
	primary := rec.Primary()
	found := false
	for _, s := range subreddits {
		if s == primary {
			found = true
			break
		}
	}
	if !found {
		return nil, nil, store.ErrPrimaryRemoval
	}
	return st.UpdateSubreddits(ctx, id, subreddits)
}

func unionInOrder(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	out := append([]string{}, existing...)
	for _, s := range existing {
		seen[s] = true
	}
	for _, s := range add {
		if !seen[s] {
			out = append(out, s)
			seen[s] = true
		}
	}
	return out
}

func subtractInOrder(existing, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, s := range remove {
		drop[s] = true
	}
	out := existing[:0:0]
	for _, s := range existing {
		if !drop[s] {
			out = append(out, s)
		}
	}
	return out
}
