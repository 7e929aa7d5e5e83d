package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/google/uuid"

	"github.com/reddit-fleet/scraper-control/internal/config"
	"github.com/reddit-fleet/scraper-control/internal/metrics"
	"github.com/reddit-fleet/scraper-control/internal/models"
)

// DynamoStore is the single-table alternate document-store implementation.
// It is adapted from the teacher's storage.DynamoDBStorage: same
// ensureTable/PutItemWithContext/dynamodbattribute marshal pattern, but
// retargeted from one flat table of posts onto all seven collections via a
// composite pk/sk key, the item's "kind" prefixing pk (SCRAPER#, POST#,
// COMMENT#, SUBREDDIT#, ERROR#, USAGE#, ACCOUNT#).
type DynamoStore struct {
	client    *dynamodb.DynamoDB
	tableName string
}

// dynamoItem is the envelope every row is marshaled into. Every collection
// stores its native fields inline via dynamodbattribute's map merge, plus
// pk/sk/kind for the shared table.
type dynamoItem map[string]interface{}

// NewDynamoStore opens a session and ensures the single table exists,
// mirroring the teacher's ensureTable startup step.
func NewDynamoStore(ctx context.Context, cfg config.StoreConfig) (*DynamoStore, error) {
	awsConfig := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("dynamodb: create session: %w", err)
	}

	tableName := cfg.TablePrefix
	if tableName == "" {
		tableName = "reddit_fleet"
	}
	d := &DynamoStore{client: dynamodb.New(sess), tableName: tableName}
	if err := d.ensureTable(); err != nil {
		return nil, fmt.Errorf("dynamodb: ensure table: %w", err)
	}
	return d, nil
}

func (d *DynamoStore) ensureTable() error {
	_, err := d.client.DescribeTable(&dynamodb.DescribeTableInput{TableName: aws.String(d.tableName)})
	if err == nil {
		return nil
	}
	input := &dynamodb.CreateTableInput{
		TableName: aws.String(d.tableName),
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: aws.String("HASH")},
			{AttributeName: aws.String("sk"), KeyType: aws.String("RANGE")},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: aws.String("S")},
			{AttributeName: aws.String("sk"), AttributeType: aws.String("S")},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	}
	if _, err := d.client.CreateTable(input); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return d.client.WaitUntilTableExists(&dynamodb.DescribeTableInput{TableName: aws.String(d.tableName)})
}

func (d *DynamoStore) Close() error { return nil }

func scraperKey(id string) (string, string) { return "SCRAPER#" + id, "META" }
func postKey(id string) (string, string)    { return "POST#" + id, "META" }
func commentKey(id string) (string, string) { return "COMMENT#" + id, "META" }
func metaKey(name string) (string, string)  { return "SUBREDDIT#" + name, "META" }
func accountKey(name string) (string, string) { return "ACCOUNT#" + name, "META" }

func (d *DynamoStore) put(ctx context.Context, kind, pk, sk string, v interface{}) error {
	item, err := dynamodbattribute.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("dynamodb: marshal %s: %w", kind, err)
	}
	item["pk"] = &dynamodb.AttributeValue{S: aws.String(pk)}
	item["sk"] = &dynamodb.AttributeValue{S: aws.String(sk)}
	item["kind"] = &dynamodb.AttributeValue{S: aws.String(kind)}
	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{TableName: aws.String(d.tableName), Item: item})
	if err != nil {
		return fmt.Errorf("dynamodb: put %s: %w", kind, err)
	}
	return nil
}

func (d *DynamoStore) get(ctx context.Context, pk, sk string, out interface{}) (bool, error) {
	result, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"pk": {S: aws.String(pk)},
			"sk": {S: aws.String(sk)},
		},
	})
	if err != nil {
		return false, fmt.Errorf("dynamodb: get item: %w", err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := dynamodbattribute.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("dynamodb: unmarshal item: %w", err)
	}
	return true, nil
}

// scanKind mirrors the teacher's flat-scan GetPosts: no secondary indexes,
// filter server-side on "kind" and let the caller filter further in memory.
func (d *DynamoStore) scanKind(ctx context.Context, kind string) ([]map[string]*dynamodb.AttributeValue, error) {
	var items []map[string]*dynamodb.AttributeValue
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(d.tableName),
		FilterExpression:          aws.String("kind = :k"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{":k": {S: aws.String(kind)}},
	}
	err := d.client.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		items = append(items, page.Items...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb: scan %s: %w", kind, err)
	}
	return items, nil
}

// ---- Scraper Queue State (4.D) ----

func (d *DynamoStore) LoadScraper(ctx context.Context, id string) (*models.ScraperRecord, error) {
	pk, sk := scraperKey(id)
	var rec models.ScraperRecord
	found, err := d.get(ctx, pk, sk, &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (d *DynamoStore) CreateScraper(ctx context.Context, rec *models.ScraperRecord) error {
	if len(rec.Subreddits) > MaxSubreddits {
		return ErrTooManySubreddits
	}
	rec.LastUpdated = time.Now()
	pk, sk := scraperKey(rec.ID)
	return d.put(ctx, "scraper", pk, sk, rec)
}

func (d *DynamoStore) DeleteScraper(ctx context.Context, id string) error {
	pk, sk := scraperKey(id)
	_, err := d.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"pk": {S: aws.String(pk)},
			"sk": {S: aws.String(sk)},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb: delete scraper: %w", err)
	}
	return nil
}

func (d *DynamoStore) ListScrapers(ctx context.Context) ([]models.ScraperRecord, error) {
	items, err := d.scanKind(ctx, "scraper")
	if err != nil {
		return nil, err
	}
	out := make([]models.ScraperRecord, 0, len(items))
	for _, item := range items {
		var rec models.ScraperRecord
		if err := dynamodbattribute.UnmarshalMap(item, &rec); err != nil {
			return nil, fmt.Errorf("dynamodb: unmarshal scraper: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (d *DynamoStore) UpdateSubreddits(ctx context.Context, id string, newList []string) ([]string, []string, error) {
	rec, err := d.LoadScraper(ctx, id)
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
	rec.Subreddits = newList
	rec.PendingScrape = addToSet(removeFromSet(rec.PendingScrape, removed), added)
	rec.LastUpdated = time.Now()

	pk, sk := scraperKey(id)
	if err := d.put(ctx, "scraper", pk, sk, rec); err != nil {
		return nil, nil, err
	}
	return added, removed, nil
}

func (d *DynamoStore) MarkScraped(ctx context.Context, id string, subreddit string) error {
	rec, err := d.LoadScraper(ctx, id)
	if err != nil {
		return err
	}
	rec.PendingScrape = removeFromSet(rec.PendingScrape, []string{subreddit})
	rec.LastUpdated = time.Now()
	pk, sk := scraperKey(id)
	return d.put(ctx, "scraper", pk, sk, rec)
}

func (d *DynamoStore) SetStatus(ctx context.Context, id string, status models.ScraperStatus, lastError string) error {
	rec, err := d.LoadScraper(ctx, id)
	if err != nil {
		return err
	}
	rec.Status = status
	rec.LastError = lastError
	rec.LastUpdated = time.Now()
	pk, sk := scraperKey(id)
	return d.put(ctx, "scraper", pk, sk, rec)
}

func (d *DynamoStore) IncrementRestartCount(ctx context.Context, id string) error {
	rec, err := d.LoadScraper(ctx, id)
	if err != nil {
		return err
	}
	rec.RestartCount++
	rec.LastUpdated = time.Now()
	pk, sk := scraperKey(id)
	return d.put(ctx, "scraper", pk, sk, rec)
}

func (d *DynamoStore) RecordCycle(ctx context.Context, id string, postsDelta, commentsDelta int, duration time.Duration) error {
	rec, err := d.LoadScraper(ctx, id)
	if err != nil {
		return err
	}
	rec.Metrics = metrics.ApplyCycle(rec.Metrics, postsDelta, commentsDelta, duration)
	rec.LastUpdated = time.Now()
	pk, sk := scraperKey(id)
	return d.put(ctx, "scraper", pk, sk, rec)
}

// ---- Store Adapter (4.G) ----

// UpsertPosts reads the existing item, if any, and preserves its tracking
// fields before the put — the DynamoDB analogue of MongoStore's
// $set/$setOnInsert split, since single-table DynamoDB has no equivalent
// projection update for arbitrary nested structs.
func (d *DynamoStore) UpsertPosts(ctx context.Context, posts []models.Post) error {
	for _, p := range posts {
		pk, sk := postKey(p.PostID)
		var existing models.Post
		found, err := d.get(ctx, pk, sk, &existing)
		if err != nil {
			return err
		}
		if found {
			p.CommentsScraped = existing.CommentsScraped || p.CommentsScraped
			p.InitialCommentsScraped = existing.InitialCommentsScraped || p.InitialCommentsScraped
			if existing.LastCommentFetchTime != nil {
				p.LastCommentFetchTime = existing.LastCommentFetchTime
			}
			if existing.CommentsScrapedAt != nil {
				p.CommentsScrapedAt = existing.CommentsScrapedAt
			}
		}
		if err := d.put(ctx, "post", pk, sk, p); err != nil {
			return fmt.Errorf("dynamodb: upsert post %s: %w", p.PostID, err)
		}
	}
	return nil
}

func (d *DynamoStore) PostsCount(ctx context.Context, subreddit string) (int, error) {
	items, err := d.scanKind(ctx, "post")
	if err != nil {
		return 0, err
	}
	count := 0
	for _, item := range items {
		var p models.Post
		if err := dynamodbattribute.UnmarshalMap(item, &p); err != nil {
			continue
		}
		if p.Subreddit == subreddit {
			count++
		}
	}
	return count, nil
}

func (d *DynamoStore) GetPostsForCommentUpdate(ctx context.Context, subreddit string, limit int, now time.Time) ([]models.Post, error) {
	items, err := d.scanKind(ctx, "post")
	if err != nil {
		return nil, err
	}
	var candidates []models.Post
	for _, item := range items {
		var p models.Post
		if err := dynamodbattribute.UnmarshalMap(item, &p); err != nil {
			continue
		}
		if p.Subreddit != subreddit {
			continue
		}
		if isDue(p, now) {
			candidates = append(candidates, p)
		}
	}
	sortPostsForCommentUpdate(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (d *DynamoStore) ExistingCommentIDs(ctx context.Context, postID string) (map[string]bool, error) {
	items, err := d.scanKind(ctx, "comment")
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, item := range items {
		var c models.Comment
		if err := dynamodbattribute.UnmarshalMap(item, &c); err != nil {
			continue
		}
		if c.PostID == postID {
			out[c.CommentID] = true
		}
	}
	return out, nil
}

func (d *DynamoStore) UpsertComments(ctx context.Context, comments []models.Comment) (int, error) {
	inserted := 0
	for _, c := range comments {
		pk, sk := commentKey(c.CommentID)
		var existing models.Comment
		found, err := d.get(ctx, pk, sk, &existing)
		if err != nil {
			return inserted, err
		}
		if found {
			continue
		}
		if err := d.put(ctx, "comment", pk, sk, c); err != nil {
			return inserted, fmt.Errorf("dynamodb: upsert comment %s: %w", c.CommentID, err)
		}
		inserted++
	}
	return inserted, nil
}

func (d *DynamoStore) VerifyCommentsPresent(ctx context.Context, postID string) (int, error) {
	ids, err := d.ExistingCommentIDs(ctx, postID)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (d *DynamoStore) MarkCommentsScraped(ctx context.Context, postIDs []string, initial bool, now time.Time) error {
	for _, id := range postIDs {
		pk, sk := postKey(id)
		var p models.Post
		found, err := d.get(ctx, pk, sk, &p)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		p.CommentsScraped = true
		p.LastCommentFetchTime = &now
		if initial {
			p.InitialCommentsScraped = true
			p.CommentsScrapedAt = &now
		}
		if err := d.put(ctx, "post", pk, sk, p); err != nil {
			return fmt.Errorf("dynamodb: mark comments scraped %s: %w", id, err)
		}
	}
	return nil
}

func (d *DynamoStore) CountGhostPosts(ctx context.Context) (int, error) {
	postItems, err := d.scanKind(ctx, "post")
	if err != nil {
		return 0, err
	}
	commentItems, err := d.scanKind(ctx, "comment")
	if err != nil {
		return 0, err
	}
	commentedPosts := map[string]bool{}
	for _, item := range commentItems {
		var c models.Comment
		if err := dynamodbattribute.UnmarshalMap(item, &c); err != nil {
			continue
		}
		commentedPosts[c.PostID] = true
	}
	count := 0
	for _, item := range postItems {
		var p models.Post
		if err := dynamodbattribute.UnmarshalMap(item, &p); err != nil {
			continue
		}
		if p.CommentsScraped && p.NumComments > 0 && !commentedPosts[p.PostID] {
			count++
		}
	}
	return count, nil
}

func (d *DynamoStore) UpsertSubredditMetadata(ctx context.Context, meta models.SubredditMetadata) error {
	pk, sk := metaKey(meta.SubredditName)
	return d.put(ctx, "subreddit_metadata", pk, sk, meta)
}

func (d *DynamoStore) GetSubredditMetadata(ctx context.Context, subreddit string) (*models.SubredditMetadata, error) {
	pk, sk := metaKey(subreddit)
	var meta models.SubredditMetadata
	found, err := d.get(ctx, pk, sk, &meta)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &meta, nil
}

// ---- Error Ledger (4.K) ----

func (d *DynamoStore) RecordError(ctx context.Context, row models.ErrorRow) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now()
	}
	pk, sk := "ERROR#"+row.ID, "META"
	return d.put(ctx, "error", pk, sk, row)
}

func (d *DynamoStore) UnresolvedErrors(ctx context.Context, subreddit string) ([]models.ErrorRow, error) {
	items, err := d.scanKind(ctx, "error")
	if err != nil {
		return nil, err
	}
	var out []models.ErrorRow
	for _, item := range items {
		var e models.ErrorRow
		if err := dynamodbattribute.UnmarshalMap(item, &e); err != nil {
			continue
		}
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

func (d *DynamoStore) RecordUsage(ctx context.Context, row models.UsageRow) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	pk, sk := "USAGE#"+row.ID, "META"
	return d.put(ctx, "usage", pk, sk, row)
}

func (d *DynamoStore) QueryUsage(ctx context.Context, since time.Time) ([]models.UsageRow, error) {
	items, err := d.scanKind(ctx, "usage")
	if err != nil {
		return nil, err
	}
	var out []models.UsageRow
	for _, item := range items {
		var u models.UsageRow
		if err := dynamodbattribute.UnmarshalMap(item, &u); err != nil {
			continue
		}
		if !u.Timestamp.Before(since) {
			out = append(out, u)
		}
	}
	return out, nil
}

// ---- Accounts ----

func (d *DynamoStore) SaveAccount(ctx context.Context, acct models.Account) error {
	pk, sk := accountKey(acct.AccountName)
	return d.put(ctx, "account", pk, sk, acct)
}

func (d *DynamoStore) LoadAccount(ctx context.Context, name string) (*models.Account, error) {
	pk, sk := accountKey(name)
	var acct models.Account
	found, err := d.get(ctx, pk, sk, &acct)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &acct, nil
}
