package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/reddit-fleet/scraper-control/internal/ledger"
	"github.com/reddit-fleet/scraper-control/internal/models"
	"github.com/reddit-fleet/scraper-control/internal/reddit"
	"github.com/reddit-fleet/scraper-control/internal/store"
)

const postPoliteness = 2 * time.Second

// CommentsWorker is the run_one(s) implementation of spec.md §4.F.
type CommentsWorker struct {
	store  store.Store
	client *reddit.Client
	config models.ScraperConfig
	ledger *ledger.Ledger
}

// NewCommentsWorker builds the Comments Worker action.
func NewCommentsWorker(st store.Store, client *reddit.Client, cfg models.ScraperConfig) *CommentsWorker {
	return &CommentsWorker{store: st, client: client, config: cfg, ledger: ledger.New(st)}
}

func (w *CommentsWorker) Action() Action {
	return w.RunOne
}

// RunOne selects up to comment_batch due posts for subreddit, fetches and
// verifies their comment trees, and marks each post scraped only once
// verification succeeds.
func (w *CommentsWorker) RunOne(ctx context.Context, subreddit string) (postsDelta, commentsDelta int, err error) {
	batch := w.config.CommentBatch
	if batch <= 0 {
		batch = 12
	}

	posts, err := w.store.GetPostsForCommentUpdate(ctx, subreddit, batch, time.Now())
	if err != nil {
		return 0, 0, fmt.Errorf("comments worker: select posts %s: %w", subreddit, err)
	}

	for i, post := range posts {
		if err := ctx.Err(); err != nil {
			return postsDelta, commentsDelta, err
		}

		inserted, scraped, procErr := w.processPost(ctx, post)
		if procErr != nil {
			log.Printf("comments worker: post %s failed: %v", post.PostID, procErr)
		}
		commentsDelta += inserted
		if scraped {
			postsDelta++
		}

		if i < len(posts)-1 {
			if err := sleepCancellable(ctx, postPoliteness); err != nil {
				return postsDelta, commentsDelta, err
			}
		}
	}
	return postsDelta, commentsDelta, nil
}

// processPost implements the fetch/dedup/retry/verify-then-mark pipeline
// for a single post.
func (w *CommentsWorker) processPost(ctx context.Context, post models.Post) (inserted int, scraped bool, err error) {
	existingIDs, err := w.store.ExistingCommentIDs(ctx, post.PostID)
	if err != nil {
		return 0, false, fmt.Errorf("existing_comment_ids: %w", err)
	}

	tree, attempts, fetchErr := w.fetchWithRetry(ctx, post.PostID)
	if fetchErr != nil {
		if errors.Is(fetchErr, reddit.ErrNotFound) {
			// spec.md §9 Open Question decision 2: 404 on a post is
			// vacuously scraped, not an error.
			now := time.Now()
			if err := w.store.MarkCommentsScraped(ctx, []string{post.PostID}, !post.InitialCommentsScraped, now); err != nil {
				return 0, false, fmt.Errorf("mark vacuously scraped: %w", err)
			}
			return 0, true, nil
		}
		kind := models.ErrCommentScrapeFailed
		if errors.Is(fetchErr, reddit.ErrForbidden) || errors.Is(fetchErr, reddit.ErrAuthFailed) {
			kind = models.ErrAuthFailed
		}
		w.recordError(ctx, post, kind, fetchErr, attempts)
		return 0, false, fetchErr
	}

	var fresh []models.Comment
	for _, c := range tree {
		if existingIDs[c.CommentID] {
			continue
		}
		fresh = append(fresh, c)
	}

	if len(fresh) > 0 {
		n, err := w.store.UpsertComments(ctx, fresh)
		if err != nil {
			return 0, false, fmt.Errorf("upsert comments: %w", err)
		}
		inserted = n
	}

	count, err := w.store.VerifyCommentsPresent(ctx, post.PostID)
	if err != nil {
		return inserted, false, fmt.Errorf("verify_comments_present: %w", err)
	}

	treeWasEmpty := len(tree) == 0
	if count == 0 && !treeWasEmpty {
		w.recordError(ctx, post, models.ErrVerificationFailed, fmt.Errorf("expected comments, verify returned 0"), attempts)
		return inserted, false, nil
	}

	now := time.Now()
	if err := w.store.MarkCommentsScraped(ctx, []string{post.PostID}, !post.InitialCommentsScraped, now); err != nil {
		return inserted, false, fmt.Errorf("mark comments scraped: %w", err)
	}
	return inserted, true, nil
}

// fetchWithRetry wraps the comment-tree fetch in the backoff policy spec.md
// §4.F names: 3 retries, delays 2s/4s/8s. 403/404/auth failures abandon
// immediately without consuming the retry budget's delay. The returned
// attempts count is the number of fetches actually made, for accurate
// retry_count reporting to the Error Ledger.
func (w *CommentsWorker) fetchWithRetry(ctx context.Context, postID string) ([]models.Comment, int, error) {
	policy := w.config.Retry
	if policy.MaxRetries <= 0 {
		policy = models.DefaultRetryPolicy()
	}
	delay := policy.BaseDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		attempts++
		tree, err := w.client.FetchCommentTree(ctx, postID, w.config.MaxCommentDepth, w.config.MoreCommentsLimit)
		if err == nil {
			return tree, attempts, nil
		}
		lastErr = err

		if errors.Is(err, reddit.ErrNotFound) {
			return nil, attempts, err // non-retriable, propagate for vacuous-scrape handling
		}
		if isNonRetriable(err) {
			return nil, attempts, err
		}
		if attempt == policy.MaxRetries {
			break
		}
		if err := sleepCancellable(ctx, delay); err != nil {
			return nil, attempts, err
		}
		delay = time.Duration(float64(delay) * policy.BackoffFactor)
	}
	return nil, attempts, fmt.Errorf("comments worker: exhausted retries for %s: %w", postID, lastErr)
}

func isNonRetriable(err error) bool {
	return errors.Is(err, reddit.ErrNotFound) || errors.Is(err, reddit.ErrForbidden) || errors.Is(err, reddit.ErrAuthFailed)
}

func (w *CommentsWorker) recordError(ctx context.Context, post models.Post, kind models.ErrorType, cause error, retryCount int) {
	if err := w.ledger.Record(ctx, post.Subreddit, post.PostID, kind, cause, retryCount); err != nil {
		log.Printf("comments worker: failed to record error for %s: %v", post.PostID, err)
	}
}
