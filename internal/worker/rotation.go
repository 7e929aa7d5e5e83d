// Package worker implements the rotation skeleton shared by the Posts and
// Comments worker variants (spec.md §4.E, §4.F, §9 "single rotation
// skeleton with a pluggable per-subreddit action function").
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/reddit-fleet/scraper-control/internal/models"
	"github.com/reddit-fleet/scraper-control/internal/ratelimit"
	"github.com/reddit-fleet/scraper-control/internal/store"
)

// Action performs the work for one subreddit within a rotation step. It
// returns the number of new/updated posts and new comments it produced,
// for the Metrics Aggregator, and an error which the rotation logs and
// continues past rather than aborting the cycle.
type Action func(ctx context.Context, subreddit string) (postsDelta, commentsDelta int, err error)

// Rotation is the shared scheduler skeleton. One Rotation runs in one
// worker process against one scraper record.
type Rotation struct {
	store         store.Store
	oracle        *ratelimit.Oracle
	scraperID     string
	action        Action
	rotationDelay time.Duration
	interval      time.Duration
}

// NewRotation builds a Rotation. rotationDelay and interval default to 2s
// and 300s respectively if zero, matching models.DefaultScraperConfig.
func NewRotation(st store.Store, oracle *ratelimit.Oracle, scraperID string, action Action, rotationDelay, interval time.Duration) *Rotation {
	if rotationDelay <= 0 {
		rotationDelay = 2 * time.Second
	}
	if interval <= 0 {
		interval = 300 * time.Second
	}
	return &Rotation{store: st, oracle: oracle, scraperID: scraperID, action: action, rotationDelay: rotationDelay, interval: interval}
}

// Run loops until ctx is cancelled or the scraper record's status is
// stopped, re-checking cancellation at every suspension point (spec.md
// §5's "every suspension must be cancellable").
func (r *Rotation) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := r.store.LoadScraper(ctx, r.scraperID)
		if err != nil {
			return fmt.Errorf("worker: load scraper %s: %w", r.scraperID, err)
		}
		if rec.Status == models.StatusStopped {
			return nil
		}
		if len(rec.Subreddits) == 0 {
			log.Printf("worker[%s]: empty queue, sleeping 60s", r.scraperID)
			if err := sleepCancellable(ctx, 60*time.Second); err != nil {
				return err
			}
			continue
		}

		cycleStart := time.Now()
		postsDelta, commentsDelta, err := r.runCycle(ctx, rec.Subreddits)
		if err != nil {
			return err
		}
		duration := time.Since(cycleStart)

		if err := r.store.RecordCycle(ctx, r.scraperID, postsDelta, commentsDelta, duration); err != nil {
			log.Printf("worker[%s]: record cycle failed: %v", r.scraperID, err)
		}

		remaining := r.interval - duration
		if remaining < 0 {
			remaining = 0
		}
		if err := sleepCancellable(ctx, remaining); err != nil {
			return err
		}
	}
}

// runCycle processes every subreddit in the initial list exactly once,
// but re-loads the scraper record before each step so pending-scrape
// additions and list mutations committed mid-cycle are observed on the
// very next step (spec.md §4.E's ASAP requirement, S2). Deltas are folded
// into the cycle total regardless of whether the action also returned an
// error, since a trailing failure (e.g. a metadata refresh) doesn't undo
// writes the action already made; MarkScraped is still skipped on error so
// the subreddit is retried next cycle.
func (r *Rotation) runCycle(ctx context.Context, initial []string) (int, int, error) {
	remaining := make([]string, len(initial))
	copy(remaining, initial)
	processed := map[string]bool{}

	var postsDelta, commentsDelta int

	for len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			return postsDelta, commentsDelta, err
		}

		rec, err := r.store.LoadScraper(ctx, r.scraperID)
		if err != nil {
			return postsDelta, commentsDelta, fmt.Errorf("worker: reload scraper %s: %w", r.scraperID, err)
		}
		if rec.Status == models.StatusStopped {
			return postsDelta, commentsDelta, nil
		}
		remaining = reconcileRemaining(remaining, processed, rec.Subreddits)
		if len(remaining) == 0 {
			break
		}

		next, rest := pickNext(remaining, rec.PendingScrape)
		remaining = rest
		processed[next] = true

		if err := r.oracle.AwaitCapacity(ctx); err != nil {
			return postsDelta, commentsDelta, err
		}

		pd, cd, err := r.action(ctx, next)
		postsDelta += pd
		commentsDelta += cd
		if err != nil {
			log.Printf("worker[%s]: run_one(%s) failed: %v", r.scraperID, next, err)
		} else if err := r.store.MarkScraped(ctx, r.scraperID, next); err != nil {
			log.Printf("worker[%s]: mark_scraped(%s) failed: %v", r.scraperID, next, err)
		}

		if err := sleepCancellable(ctx, r.rotationDelay); err != nil {
			return postsDelta, commentsDelta, err
		}
	}
	return postsDelta, commentsDelta, nil
}

// reconcileRemaining drops subreddits no longer in the live list and adds
// ones newly present that haven't been processed yet this cycle, so a
// mid-cycle add is picked up without waiting for the next full pass.
func reconcileRemaining(remaining []string, processed map[string]bool, live []string) []string {
	liveSet := make(map[string]bool, len(live))
	for _, s := range live {
		liveSet[s] = true
	}

	out := remaining[:0:0]
	seen := map[string]bool{}
	for _, s := range remaining {
		if liveSet[s] {
			out = append(out, s)
			seen[s] = true
		}
	}
	for _, s := range live {
		if !seen[s] && !processed[s] {
			out = append(out, s)
			seen[s] = true
		}
	}
	return out
}

// pickNext returns the next subreddit to process (pending-scrape members
// take priority, in remaining's order) and the remaining slice with it
// removed.
func pickNext(remaining []string, pending []string) (string, []string) {
	pendingSet := make(map[string]bool, len(pending))
	for _, s := range pending {
		pendingSet[s] = true
	}
	idx := 0
	for i, s := range remaining {
		if pendingSet[s] {
			idx = i
			break
		}
	}
	next := remaining[idx]
	rest := make([]string, 0, len(remaining)-1)
	rest = append(rest, remaining[:idx]...)
	rest = append(rest, remaining[idx+1:]...)
	return next, rest
}

func sleepCancellable(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
