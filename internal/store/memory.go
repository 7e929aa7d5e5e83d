package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/reddit-fleet/scraper-control/internal/metrics"
	"github.com/reddit-fleet/scraper-control/internal/models"
)

// MemoryStore is an in-process Store implementation used by unit tests for
// every worker/queue/ledger/metrics package in this repo. Using a real
// (if in-memory) store instead of a per-package mock means dedup, tracking-
// field preservation, and pending_scrape-subset invariants are exercised
// for real rather than merely asserted against mock expectations.
type MemoryStore struct {
	mu sync.Mutex

	scrapers map[string]*models.ScraperRecord
	posts    map[string]*models.Post          // post_id -> post
	comments map[string]*models.Comment        // comment_id -> comment
	meta     map[string]*models.SubredditMetadata
	errors   []models.ErrorRow
	usage    []models.UsageRow
	accounts map[string]*models.Account
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scrapers: map[string]*models.ScraperRecord{},
		posts:    map[string]*models.Post{},
		comments: map[string]*models.Comment{},
		meta:     map[string]*models.SubredditMetadata{},
		accounts: map[string]*models.Account{},
	}
}

func (m *MemoryStore) Close() error { return nil }

// ---- Scraper Queue State (4.D) ----

func (m *MemoryStore) LoadScraper(ctx context.Context, id string) (*models.ScraperRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.scrapers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	cp.Subreddits = append([]string{}, rec.Subreddits...)
	cp.PendingScrape = append([]string{}, rec.PendingScrape...)
	return &cp, nil
}

func (m *MemoryStore) CreateScraper(ctx context.Context, rec *models.ScraperRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(rec.Subreddits) > MaxSubreddits {
		return ErrTooManySubreddits
	}
	cp := *rec
	cp.LastUpdated = time.Now()
	m.scrapers[rec.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteScraper(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scrapers, id)
	return nil
}

func (m *MemoryStore) ListScrapers(ctx context.Context) ([]models.ScraperRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ScraperRecord, 0, len(m.scrapers))
	for _, rec := range m.scrapers {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateSubreddits(ctx context.Context, id string, newList []string) ([]string, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.scrapers[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	if len(newList) > MaxSubreddits {
		return nil, nil, ErrTooManySubreddits
	}
	primary := rec.Primary()
	hasPrimary := false
	for _, s := range newList {
		if s == primary {
			hasPrimary = true
			break
		}
	}
	if !hasPrimary {
		return nil, nil, ErrPrimaryRemoval
	}

	added, removed := diffSubreddits(rec.Subreddits, newList)
	rec.Subreddits = append([]string{}, newList...)
	rec.PendingScrape = addToSet(rec.PendingScrape, added)
	rec.PendingScrape = removeFromSet(rec.PendingScrape, removed)
	rec.LastUpdated = time.Now()
	return added, removed, nil
}

func (m *MemoryStore) MarkScraped(ctx context.Context, id string, subreddit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.scrapers[id]
	if !ok {
		return ErrNotFound
	}
	rec.PendingScrape = removeFromSet(rec.PendingScrape, []string{subreddit})
	rec.LastUpdated = time.Now()
	return nil
}

func (m *MemoryStore) SetStatus(ctx context.Context, id string, status models.ScraperStatus, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.scrapers[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	rec.LastError = lastError
	rec.LastUpdated = time.Now()
	return nil
}

func (m *MemoryStore) IncrementRestartCount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.scrapers[id]
	if !ok {
		return ErrNotFound
	}
	rec.RestartCount++
	rec.LastUpdated = time.Now()
	return nil
}

func (m *MemoryStore) RecordCycle(ctx context.Context, id string, postsDelta, commentsDelta int, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.scrapers[id]
	if !ok {
		return ErrNotFound
	}
	rec.Metrics = metrics.ApplyCycle(rec.Metrics, postsDelta, commentsDelta, duration)
	rec.LastUpdated = time.Now()
	return nil
}

// ---- Store Adapter (4.G) ----

func (m *MemoryStore) UpsertPosts(ctx context.Context, posts []models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, incoming := range posts {
		existing, ok := m.posts[incoming.PostID]
		if !ok {
			cp := incoming
			m.posts[incoming.PostID] = &cp
			continue
		}
		// Preserve tracking fields: never regress to false/nil.
		merged := incoming
		merged.CommentsScraped = existing.CommentsScraped || incoming.CommentsScraped
		merged.InitialCommentsScraped = existing.InitialCommentsScraped || incoming.InitialCommentsScraped
		if existing.LastCommentFetchTime != nil {
			merged.LastCommentFetchTime = existing.LastCommentFetchTime
		}
		if existing.CommentsScrapedAt != nil {
			merged.CommentsScrapedAt = existing.CommentsScrapedAt
		}
		m.posts[incoming.PostID] = &merged
	}
	return nil
}

func (m *MemoryStore) PostsCount(ctx context.Context, subreddit string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.posts {
		if p.Subreddit == subreddit {
			n++
		}
	}
	return n, nil
}

// GetPostsForCommentUpdate implements the tiered priority query of
// spec.md §4.F: unscraped first, then num_comments desc, then created_at
// desc, limited to `limit`, restricted to posts whose tier is due.
func (m *MemoryStore) GetPostsForCommentUpdate(ctx context.Context, subreddit string, limit int, now time.Time) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var eligible []models.Post
	for _, p := range m.posts {
		if p.Subreddit != subreddit {
			continue
		}
		if isDue(*p, now) {
			eligible = append(eligible, *p)
		}
	}

	sortPostsForCommentUpdate(eligible)

	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

// isDue implements the four priority tiers from spec.md §4.F.
func isDue(p models.Post, now time.Time) bool {
	if !p.InitialCommentsScraped {
		return true // P0
	}
	if p.LastCommentFetchTime == nil {
		return true
	}
	age := now.Sub(*p.LastCommentFetchTime)
	switch {
	case p.NumComments > 100:
		return age >= 2*time.Hour // P1
	case p.NumComments >= 20:
		return age >= 6*time.Hour // P2
	default:
		return age >= 24*time.Hour // P3
	}
}

func (m *MemoryStore) ExistingCommentIDs(ctx context.Context, postID string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]bool{}
	for id, c := range m.comments {
		if c.PostID == postID {
			out[id] = true
		}
	}
	return out, nil
}

func (m *MemoryStore) UpsertComments(ctx context.Context, comments []models.Comment) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, c := range comments {
		if _, exists := m.comments[c.CommentID]; exists {
			continue // duplicates silently ignored, comment_id unique key
		}
		cp := c
		m.comments[c.CommentID] = &cp
		inserted++
	}
	return inserted, nil
}

// VerifyCommentsPresent is a fresh read over the same map the writer used,
// which is correct here because MemoryStore has no separate read cache —
// the real requirement (spec.md §4.G) is that this path must not read from
// a cache populated by the write it is verifying, which trivially holds.
func (m *MemoryStore) VerifyCommentsPresent(ctx context.Context, postID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.comments {
		if c.PostID == postID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) MarkCommentsScraped(ctx context.Context, postIDs []string, initial bool, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range postIDs {
		p, ok := m.posts[id]
		if !ok {
			continue
		}
		p.CommentsScraped = true
		p.LastCommentFetchTime = &now
		if initial {
			p.InitialCommentsScraped = true
			p.CommentsScrapedAt = &now
		}
	}
	return nil
}

func (m *MemoryStore) CountGhostPosts(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.posts {
		if !p.CommentsScraped {
			continue
		}
		hasComments := false
		for _, c := range m.comments {
			if c.PostID == p.PostID {
				hasComments = true
				break
			}
		}
		if !hasComments && p.NumComments > 0 {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) UpsertSubredditMetadata(ctx context.Context, meta models.SubredditMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := meta
	m.meta[meta.SubredditName] = &cp
	return nil
}

func (m *MemoryStore) GetSubredditMetadata(ctx context.Context, subreddit string) (*models.SubredditMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.meta[subreddit]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *meta
	return &cp, nil
}

// ---- Error Ledger (4.K) ----

func (m *MemoryStore) RecordError(ctx context.Context, row models.ErrorRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now()
	}
	m.errors = append(m.errors, row)
	return nil
}

func (m *MemoryStore) UnresolvedErrors(ctx context.Context, subreddit string) ([]models.ErrorRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ErrorRow
	for _, e := range m.errors {
		if e.Resolved {
			continue
		}
		if subreddit != "" && e.Subreddit != subreddit {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ---- Usage Recorder (4.C) ----

func (m *MemoryStore) RecordUsage(ctx context.Context, row models.UsageRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = append(m.usage, row)
	return nil
}

func (m *MemoryStore) QueryUsage(ctx context.Context, since time.Time) ([]models.UsageRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UsageRow
	for _, u := range m.usage {
		if !u.Timestamp.Before(since) {
			out = append(out, u)
		}
	}
	return out, nil
}

// ---- Accounts ----

func (m *MemoryStore) SaveAccount(ctx context.Context, acct models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := acct
	m.accounts[acct.AccountName] = &cp
	return nil
}

func (m *MemoryStore) LoadAccount(ctx context.Context, name string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acct
	return &cp, nil
}
