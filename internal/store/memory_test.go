package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddit-fleet/scraper-control/internal/models"
)

func TestUpsertPosts_PreservesTrackingFieldsOnRefetch(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	fetchedAt := time.Now().Add(-time.Hour)

	require.NoError(t, m.UpsertPosts(ctx, []models.Post{{
		PostID: "t3_1", Subreddit: "golang", NumComments: 5,
	}}))
	require.NoError(t, m.MarkCommentsScraped(ctx, []string{"t3_1"}, true, fetchedAt))

	// A later re-fetch of the same post (fresh score/title, tracking
	// fields zero-valued as the listing API never reports them) must not
	// regress comments_scraped or the fetch timestamp.
	require.NoError(t, m.UpsertPosts(ctx, []models.Post{{
		PostID: "t3_1", Subreddit: "golang", NumComments: 6, Score: 42,
	}}))

	posts, err := m.GetPostsForCommentUpdate(ctx, "golang", 0, time.Now())
	require.NoError(t, err)
	require.Len(t, posts, 0, "not due yet: last fetch was 1h ago and comment count is low (P3, 24h cadence)")

	// verify the stored state through a due check far enough in the future
	posts, err = m.GetPostsForCommentUpdate(ctx, "golang", 0, fetchedAt.Add(25*time.Hour))
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.True(t, posts[0].InitialCommentsScraped)
	assert.Equal(t, 6, posts[0].NumComments)
}

func TestUpsertComments_DedupesByCommentID(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	inserted, err := m.UpsertComments(ctx, []models.Comment{
		{CommentID: "c1", PostID: "t3_1"},
		{CommentID: "c2", PostID: "t3_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	inserted, err = m.UpsertComments(ctx, []models.Comment{
		{CommentID: "c1", PostID: "t3_1"}, // duplicate
		{CommentID: "c3", PostID: "t3_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	count, err := m.VerifyCommentsPresent(ctx, "t3_1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCountGhostPosts_OnlyFlagsScrapedWithNoComments(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.UpsertPosts(ctx, []models.Post{
		{PostID: "ghost", Subreddit: "golang", NumComments: 3},
		{PostID: "healthy", Subreddit: "golang", NumComments: 2},
		{PostID: "untouched", Subreddit: "golang", NumComments: 5},
	}))
	require.NoError(t, m.MarkCommentsScraped(ctx, []string{"ghost", "healthy"}, true, now))
	_, err := m.UpsertComments(ctx, []models.Comment{{CommentID: "c1", PostID: "healthy"}})
	require.NoError(t, err)

	n, err := m.CountGhostPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only 'ghost' is marked scraped, has comments>0, and has zero stored comments")
}

func TestIsDue_PriorityTiers(t *testing.T) {
	now := time.Now()

	assert.True(t, isDue(models.Post{InitialCommentsScraped: false}, now), "P0: never scraped")

	recentHighVolume := now.Add(-time.Hour)
	assert.False(t, isDue(models.Post{InitialCommentsScraped: true, NumComments: 200, LastCommentFetchTime: &recentHighVolume}, now), "P1 not yet due")
	oldHighVolume := now.Add(-3 * time.Hour)
	assert.True(t, isDue(models.Post{InitialCommentsScraped: true, NumComments: 200, LastCommentFetchTime: &oldHighVolume}, now), "P1 due after 2h")

	oldLowVolume := now.Add(-25 * time.Hour)
	assert.True(t, isDue(models.Post{InitialCommentsScraped: true, NumComments: 1, LastCommentFetchTime: &oldLowVolume}, now), "P3 due after 24h")
	recentLowVolume := now.Add(-time.Hour)
	assert.False(t, isDue(models.Post{InitialCommentsScraped: true, NumComments: 1, LastCommentFetchTime: &recentLowVolume}, now), "P3 not yet due")
}

func TestUpdateSubreddits_PendingScrapeSubsetInvariant(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.CreateScraper(ctx, &models.ScraperRecord{ID: "s1", Subreddits: []string{"golang"}}))

	_, _, err := m.UpdateSubreddits(ctx, "s1", []string{"golang", "rust", "python"})
	require.NoError(t, err)

	rec, err := m.LoadScraper(ctx, "s1")
	require.NoError(t, err)
	subredditSet := map[string]bool{}
	for _, s := range rec.Subreddits {
		subredditSet[s] = true
	}
	for _, p := range rec.PendingScrape {
		assert.True(t, subredditSet[p], "pending_scrape must always be a subset of subreddits")
	}
}

func TestUpdateSubreddits_RejectsPrimaryRemoval(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.CreateScraper(ctx, &models.ScraperRecord{ID: "s1", Subreddits: []string{"golang", "rust"}}))

	_, _, err := m.UpdateSubreddits(ctx, "s1", []string{"rust"})
	assert.ErrorIs(t, err, ErrPrimaryRemoval)
}

func TestCreateScraper_RejectsOverCap(t *testing.T) {
	m := NewMemoryStore()
	subs := make([]string, MaxSubreddits+1)
	for i := range subs {
		subs[i] = "sub"
	}
	err := m.CreateScraper(context.Background(), &models.ScraperRecord{ID: "s1", Subreddits: subs})
	assert.ErrorIs(t, err, ErrTooManySubreddits)
}
