// Package store is the document-store abstraction (spec.md §4.G, §4.D):
// the core only ever talks to the Store interface, never to a concrete
// database client directly. Three real backends and one in-memory test
// double implement it.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/reddit-fleet/scraper-control/internal/config"
	"github.com/reddit-fleet/scraper-control/internal/models"
)

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// Store is the abstract collection API every worker, the supervisor, the
// queue mutation API, and the control-plane server use. Posts and comments
// are owned jointly by workers via compare-and-swap-shaped upserts; the
// scraper record is owned by the supervisor and mutated only through the
// methods below (spec.md §3 "Ownership").
type Store interface {
	// Scraper Queue State (4.D)
	LoadScraper(ctx context.Context, id string) (*models.ScraperRecord, error)
	CreateScraper(ctx context.Context, rec *models.ScraperRecord) error
	DeleteScraper(ctx context.Context, id string) error
	ListScrapers(ctx context.Context) ([]models.ScraperRecord, error)
	UpdateSubreddits(ctx context.Context, id string, newList []string) (added, removed []string, err error)
	MarkScraped(ctx context.Context, id string, subreddit string) error
	SetStatus(ctx context.Context, id string, status models.ScraperStatus, lastError string) error
	IncrementRestartCount(ctx context.Context, id string) error
	RecordCycle(ctx context.Context, id string, postsDelta, commentsDelta int, duration time.Duration) error

	// Store Adapter (4.G)
	UpsertPosts(ctx context.Context, posts []models.Post) error
	GetPostsForCommentUpdate(ctx context.Context, subreddit string, limit int, now time.Time) ([]models.Post, error)
	PostsCount(ctx context.Context, subreddit string) (int, error)
	ExistingCommentIDs(ctx context.Context, postID string) (map[string]bool, error)
	UpsertComments(ctx context.Context, comments []models.Comment) (inserted int, err error)
	VerifyCommentsPresent(ctx context.Context, postID string) (int, error)
	MarkCommentsScraped(ctx context.Context, postIDs []string, initial bool, now time.Time) error
	CountGhostPosts(ctx context.Context) (int, error)

	UpsertSubredditMetadata(ctx context.Context, meta models.SubredditMetadata) error
	GetSubredditMetadata(ctx context.Context, subreddit string) (*models.SubredditMetadata, error)

	// Error Ledger (4.K)
	RecordError(ctx context.Context, row models.ErrorRow) error
	UnresolvedErrors(ctx context.Context, subreddit string) ([]models.ErrorRow, error)

	// Usage Recorder (4.C) — see transport.UsageStore, satisfied structurally.
	RecordUsage(ctx context.Context, row models.UsageRow) error
	QueryUsage(ctx context.Context, since time.Time) ([]models.UsageRow, error)

	// Accounts
	SaveAccount(ctx context.Context, acct models.Account) error
	LoadAccount(ctx context.Context, name string) (*models.Account, error)

	Close() error
}

// New builds a Store instance based on configuration, matching the
// teacher's switch-on-type factory shape.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case "mongodb":
		return NewMongoStore(ctx, cfg)
	case "postgresql":
		return NewPostgresStore(ctx, cfg)
	case "dynamodb":
		return NewDynamoStore(ctx, cfg)
	case "memory", "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

// MaxSubreddits is the per-scraper subreddit list cap (spec.md §3).
const MaxSubreddits = 100

// ErrTooManySubreddits is returned when a mutation would exceed MaxSubreddits.
var ErrTooManySubreddits = errors.New("store: subreddit list exceeds 100-entry limit")

// ErrPrimaryRemoval is returned when a mutation would remove the primary
// subreddit from a scraper's list.
var ErrPrimaryRemoval = errors.New("store: cannot remove the primary subreddit")

// diffSubreddits computes added/removed sets for UpdateSubreddits-style ops.
func diffSubreddits(old, next []string) (added, removed []string) {
	oldSet := make(map[string]bool, len(old))
	for _, s := range old {
		oldSet[s] = true
	}
	nextSet := make(map[string]bool, len(next))
	for _, s := range next {
		nextSet[s] = true
		if !oldSet[s] {
			added = append(added, s)
		}
	}
	for _, s := range old {
		if !nextSet[s] {
			removed = append(removed, s)
		}
	}
	return added, removed
}

func removeFromSet(set []string, remove []string) []string {
	toRemove := make(map[string]bool, len(remove))
	for _, s := range remove {
		toRemove[s] = true
	}
	out := set[:0:0]
	for _, s := range set {
		if !toRemove[s] {
			out = append(out, s)
		}
	}
	return out
}

// sortPostsForCommentUpdate orders candidates by the priority spec.md §4.F
// names: unscraped first, then num_comments desc, then created_at desc.
// Shared by MemoryStore and DynamoStore, which both filter in Go rather
// than pushing the sort into the database.
func sortPostsForCommentUpdate(posts []models.Post) {
	sort.Slice(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if a.InitialCommentsScraped != b.InitialCommentsScraped {
			return !a.InitialCommentsScraped
		}
		if a.NumComments != b.NumComments {
			return a.NumComments > b.NumComments
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func addToSet(set []string, add []string) []string {
	existing := make(map[string]bool, len(set))
	for _, s := range set {
		existing[s] = true
	}
	out := append([]string{}, set...)
	for _, s := range add {
		if !existing[s] {
			out = append(out, s)
			existing[s] = true
		}
	}
	return out
}
