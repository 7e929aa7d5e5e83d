package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/reddit-fleet/scraper-control/internal/config"
	"github.com/reddit-fleet/scraper-control/internal/metrics"
	"github.com/reddit-fleet/scraper-control/internal/models"
)

// collection names mirror original_source/config.py's COLLECTIONS map.
const (
	collPosts    = "posts"
	collComments = "comments"
	collMeta     = "subreddit_metadata"
	collScrapers = "scrapers"
	collAccounts = "accounts"
	collErrors   = "errors"
	collUsage    = "usage"
)

// MongoStore is the primary document-store implementation (spec.md §6
// "Downstream (Document store)").
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to MongoDB and ensures the required indexes
// (spec.md §6) exist.
func NewMongoStore(ctx context.Context, cfg config.StoreConfig) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb: ping: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(cfg.MongoDB)}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	type idx struct {
		coll string
		keys bson.D
		uniq bool
	}
	indexes := []idx{
		{collPosts, bson.D{{Key: "post_id", Value: 1}}, true},
		{collComments, bson.D{{Key: "comment_id", Value: 1}}, true},
		{collComments, bson.D{{Key: "post_id", Value: 1}}, false},
		{collComments, bson.D{{Key: "parent_id", Value: 1}}, false},
		{collMeta, bson.D{{Key: "subreddit_name", Value: 1}}, true},
		{collAccounts, bson.D{{Key: "account_name", Value: 1}}, true},
	}
	for _, i := range indexes {
		model := mongo.IndexModel{Keys: i.keys, Options: options.Index().SetUnique(i.uniq)}
		if _, err := s.db.Collection(i.coll).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("mongodb: create index on %s: %w", i.coll, err)
		}
	}
	return nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

// ---- Scraper Queue State (4.D) ----

func (s *MongoStore) LoadScraper(ctx context.Context, id string) (*models.ScraperRecord, error) {
	var rec models.ScraperRecord
	err := s.db.Collection(collScrapers).FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: load scraper: %w", err)
	}
	return &rec, nil
}

func (s *MongoStore) CreateScraper(ctx context.Context, rec *models.ScraperRecord) error {
	if len(rec.Subreddits) > MaxSubreddits {
		return ErrTooManySubreddits
	}
	rec.LastUpdated = time.Now()
	_, err := s.db.Collection(collScrapers).InsertOne(ctx, rec)
	if err != nil {
		return fmt.Errorf("mongodb: create scraper: %w", err)
	}
	return nil
}

func (s *MongoStore) DeleteScraper(ctx context.Context, id string) error {
	_, err := s.db.Collection(collScrapers).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongodb: delete scraper: %w", err)
	}
	return nil
}

func (s *MongoStore) ListScrapers(ctx context.Context) ([]models.ScraperRecord, error) {
	cur, err := s.db.Collection(collScrapers).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongodb: list scrapers: %w", err)
	}
	defer cur.Close(ctx)
	var out []models.ScraperRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongodb: decode scrapers: %w", err)
	}
	return out, nil
}

// UpdateSubreddits is a compare-and-set-shaped read-modify-write: it loads
// the current list, computes the diff, then writes the new list plus the
// updated pending_scrape set in a single $set. Two concurrent callers may
// race on the read, but the API-only-adds / worker-only-removes commuting
// property (spec.md §4.D) makes lost updates on pending_scrape benign.
func (s *MongoStore) UpdateSubreddits(ctx context.Context, id string, newList []string) ([]string, []string, error) {
	rec, err := s.LoadScraper(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if len(newList) > MaxSubreddits {
		return nil, nil, ErrTooManySubreddits
	}
	primary := rec.Primary()
	found := false
	for _, sr := range newList {
		if sr == primary {
			found = true
			break
		}
	}
	if !found {
		return nil, nil, ErrPrimaryRemoval
	}

	added, removed := diffSubreddits(rec.Subreddits, newList)
	pending := addToSet(removeFromSet(rec.PendingScrape, removed), added)

	_, err = s.db.Collection(collScrapers).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"subreddits": newList, "pending_scrape": pending, "last_updated": time.Now()}},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("mongodb: update subreddits: %w", err)
	}
	return added, removed, nil
}

func (s *MongoStore) MarkScraped(ctx context.Context, id string, subreddit string) error {
	_, err := s.db.Collection(collScrapers).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$pull": bson.M{"pending_scrape": subreddit}, "$set": bson.M{"last_updated": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("mongodb: mark scraped: %w", err)
	}
	return nil
}

func (s *MongoStore) SetStatus(ctx context.Context, id string, status models.ScraperStatus, lastError string) error {
	update := bson.M{"status": status, "last_updated": time.Now()}
	if lastError != "" {
		update["last_error"] = lastError
	}
	_, err := s.db.Collection(collScrapers).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("mongodb: set status: %w", err)
	}
	return nil
}

func (s *MongoStore) IncrementRestartCount(ctx context.Context, id string) error {
	_, err := s.db.Collection(collScrapers).UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$inc": bson.M{"restart_count": 1}, "$set": bson.M{"last_updated": time.Now()}})
	if err != nil {
		return fmt.Errorf("mongodb: increment restart count: %w", err)
	}
	return nil
}

func (s *MongoStore) RecordCycle(ctx context.Context, id string, postsDelta, commentsDelta int, duration time.Duration) error {
	rec, err := s.LoadScraper(ctx, id)
	if err != nil {
		return err
	}
	m := metrics.ApplyCycle(rec.Metrics, postsDelta, commentsDelta, duration)

	_, err = s.db.Collection(collScrapers).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"metrics": m, "last_updated": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("mongodb: record cycle: %w", err)
	}
	return nil
}

// ---- Store Adapter (4.G) ----

// UpsertPosts excludes the four tracking fields from the $set on conflict,
// implementing "never overwriting comments_scraped, initial_comments_scraped,
// last_comment_fetch_time, comments_scraped_at if already set" (spec.md §4.G)
// as a genuine projection update rather than a read-modify-write.
func (s *MongoStore) UpsertPosts(ctx context.Context, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	models_ := make([]mongo.WriteModel, 0, len(posts))
	for _, p := range posts {
		content := bson.M{
			"subreddit":     p.Subreddit,
			"title":         p.Title,
			"url":           p.URL,
			"selftext":      p.SelfText,
			"author":        p.Author,
			"score":         p.Score,
			"num_comments":  p.NumComments,
			"created_at":    p.CreatedAt,
		}
		onInsert := bson.M{
			"post_id":                   p.PostID,
			"comments_scraped":          false,
			"initial_comments_scraped":  false,
		}
		model := mongo.NewUpdateOneModel().
			SetFilter(bson.M{"post_id": p.PostID}).
			SetUpdate(bson.M{"$set": content, "$setOnInsert": onInsert}).
			SetUpsert(true)
		models_ = append(models_, model)
	}
	_, err := s.db.Collection(collPosts).BulkWrite(ctx, models_, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("mongodb: upsert posts: %w", err)
	}
	return nil
}

func (s *MongoStore) PostsCount(ctx context.Context, subreddit string) (int, error) {
	n, err := s.db.Collection(collPosts).CountDocuments(ctx, bson.M{"subreddit": subreddit})
	if err != nil {
		return 0, fmt.Errorf("mongodb: posts count: %w", err)
	}
	return int(n), nil
}

// GetPostsForCommentUpdate implements the priority-tier query of spec.md
// §4.F directly as a Mongo $or, mirroring
// original_source/comments_scraper.py's get_posts_needing_comment_updates.
func (s *MongoStore) GetPostsForCommentUpdate(ctx context.Context, subreddit string, limit int, now time.Time) ([]models.Post, error) {
	twoHoursAgo := now.Add(-2 * time.Hour)
	sixHoursAgo := now.Add(-6 * time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	filter := bson.M{
		"subreddit": subreddit,
		"$or": bson.A{
			bson.M{"initial_comments_scraped": false},
			bson.M{"num_comments": bson.M{"$gt": 100}, "last_comment_fetch_time": bson.M{"$lt": twoHoursAgo}},
			bson.M{"num_comments": bson.M{"$gte": 20, "$lte": 100}, "last_comment_fetch_time": bson.M{"$lt": sixHoursAgo}},
			bson.M{"num_comments": bson.M{"$lt": 20}, "last_comment_fetch_time": bson.M{"$lt": dayAgo}},
		},
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "initial_comments_scraped", Value: 1}, {Key: "num_comments", Value: -1}, {Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := s.db.Collection(collPosts).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: get posts for comment update: %w", err)
	}
	defer cur.Close(ctx)
	var out []models.Post
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongodb: decode posts: %w", err)
	}
	return out, nil
}

func (s *MongoStore) ExistingCommentIDs(ctx context.Context, postID string) (map[string]bool, error) {
	cur, err := s.db.Collection(collComments).Find(ctx, bson.M{"post_id": postID}, options.Find().SetProjection(bson.M{"comment_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("mongodb: existing comment ids: %w", err)
	}
	defer cur.Close(ctx)
	out := map[string]bool{}
	for cur.Next(ctx) {
		var doc struct {
			CommentID string `bson:"comment_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongodb: decode comment id: %w", err)
		}
		out[doc.CommentID] = true
	}
	return out, nil
}

// UpsertComments matches original_source/comments_scraper.py's
// save_comments_to_db: bulk upsert keyed on comment_id, duplicates silently
// ignored via $setOnInsert semantics.
func (s *MongoStore) UpsertComments(ctx context.Context, comments []models.Comment) (int, error) {
	if len(comments) == 0 {
		return 0, nil
	}
	writes := make([]mongo.WriteModel, 0, len(comments))
	for _, c := range comments {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"comment_id": c.CommentID}).
			SetUpdate(bson.M{"$setOnInsert": c}).
			SetUpsert(true))
	}
	res, err := s.db.Collection(collComments).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("mongodb: upsert comments: %w", err)
	}
	return int(res.UpsertedCount), nil
}

// VerifyCommentsPresent issues a fresh CountDocuments call — never a cache
// read — per spec.md §4.G's verify-then-mark requirement.
func (s *MongoStore) VerifyCommentsPresent(ctx context.Context, postID string) (int, error) {
	n, err := s.db.Collection(collComments).CountDocuments(ctx, bson.M{"post_id": postID})
	if err != nil {
		return 0, fmt.Errorf("mongodb: verify comments present: %w", err)
	}
	return int(n), nil
}

func (s *MongoStore) MarkCommentsScraped(ctx context.Context, postIDs []string, initial bool, now time.Time) error {
	set := bson.M{"comments_scraped": true, "last_comment_fetch_time": now}
	if initial {
		set["initial_comments_scraped"] = true
		set["comments_scraped_at"] = now
	}
	_, err := s.db.Collection(collPosts).UpdateMany(ctx, bson.M{"post_id": bson.M{"$in": postIDs}}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("mongodb: mark comments scraped: %w", err)
	}
	return nil
}

// CountGhostPosts is the health-check surface grounded on
// original_source/tools/repair_ghost_posts.py's diagnostic query (spec.md
// §7 supplement: observability only, not the repair tool itself).
func (s *MongoStore) CountGhostPosts(ctx context.Context) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"comments_scraped": true, "num_comments": bson.M{"$gt": 0}}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         collComments,
			"localField":   "post_id",
			"foreignField": "post_id",
			"as":           "matched_comments",
		}}},
		{{Key: "$match", Value: bson.M{"matched_comments": bson.A{}}}},
		{{Key: "$count", Value: "ghosts"}},
	}
	cur, err := s.db.Collection(collPosts).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("mongodb: count ghost posts: %w", err)
	}
	defer cur.Close(ctx)
	var result struct {
		Ghosts int `bson:"ghosts"`
	}
	if cur.Next(ctx) {
		if err := cur.Decode(&result); err != nil {
			return 0, fmt.Errorf("mongodb: decode ghost count: %w", err)
		}
	}
	return result.Ghosts, nil
}

func (s *MongoStore) UpsertSubredditMetadata(ctx context.Context, meta models.SubredditMetadata) error {
	_, err := s.db.Collection(collMeta).UpdateOne(ctx,
		bson.M{"subreddit_name": meta.SubredditName},
		bson.M{"$set": meta},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongodb: upsert subreddit metadata: %w", err)
	}
	return nil
}

func (s *MongoStore) GetSubredditMetadata(ctx context.Context, subreddit string) (*models.SubredditMetadata, error) {
	var meta models.SubredditMetadata
	err := s.db.Collection(collMeta).FindOne(ctx, bson.M{"subreddit_name": subreddit}).Decode(&meta)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: get subreddit metadata: %w", err)
	}
	return &meta, nil
}

// ---- Error Ledger (4.K) ----

func (s *MongoStore) RecordError(ctx context.Context, row models.ErrorRow) error {
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now()
	}
	_, err := s.db.Collection(collErrors).InsertOne(ctx, row)
	if err != nil {
		return fmt.Errorf("mongodb: record error: %w", err)
	}
	return nil
}

func (s *MongoStore) UnresolvedErrors(ctx context.Context, subreddit string) ([]models.ErrorRow, error) {
	filter := bson.M{"resolved": false}
	if subreddit != "" {
		filter["subreddit"] = subreddit
	}
	cur, err := s.db.Collection(collErrors).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongodb: unresolved errors: %w", err)
	}
	defer cur.Close(ctx)
	var out []models.ErrorRow
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongodb: decode errors: %w", err)
	}
	return out, nil
}

// ---- Usage Recorder (4.C) ----

func (s *MongoStore) RecordUsage(ctx context.Context, row models.UsageRow) error {
	_, err := s.db.Collection(collUsage).InsertOne(ctx, row)
	if err != nil {
		return fmt.Errorf("mongodb: record usage: %w", err)
	}
	return nil
}

func (s *MongoStore) QueryUsage(ctx context.Context, since time.Time) ([]models.UsageRow, error) {
	cur, err := s.db.Collection(collUsage).Find(ctx, bson.M{"timestamp": bson.M{"$gte": since}})
	if err != nil {
		return nil, fmt.Errorf("mongodb: query usage: %w", err)
	}
	defer cur.Close(ctx)
	var out []models.UsageRow
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongodb: decode usage: %w", err)
	}
	return out, nil
}

// ---- Accounts ----

func (s *MongoStore) SaveAccount(ctx context.Context, acct models.Account) error {
	_, err := s.db.Collection(collAccounts).UpdateOne(ctx,
		bson.M{"account_name": acct.AccountName},
		bson.M{"$set": acct},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongodb: save account: %w", err)
	}
	return nil
}

func (s *MongoStore) LoadAccount(ctx context.Context, name string) (*models.Account, error) {
	var acct models.Account
	err := s.db.Collection(collAccounts).FindOne(ctx, bson.M{"account_name": name}).Decode(&acct)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: load account: %w", err)
	}
	return &acct, nil
}
