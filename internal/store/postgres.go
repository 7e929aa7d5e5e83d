package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/reddit-fleet/scraper-control/internal/config"
	"github.com/reddit-fleet/scraper-control/internal/metrics"
	"github.com/reddit-fleet/scraper-control/internal/models"
)

// PostgresStore is the relational alternate document-store implementation,
// normalizing the same seven collections into tables. It satisfies the
// same Store contract as MongoStore; callers cannot tell them apart.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and ensures the schema exists.
func NewPostgresStore(ctx context.Context, cfg config.StoreConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scrapers (
			id TEXT PRIMARY KEY,
			subreddits TEXT[] NOT NULL DEFAULT '{}',
			pending_scrape TEXT[] NOT NULL DEFAULT '{}',
			scraper_type TEXT NOT NULL,
			config JSONB NOT NULL,
			credentials BYTEA,
			account_name TEXT,
			status TEXT NOT NULL,
			last_error TEXT,
			auto_restart BOOLEAN NOT NULL DEFAULT TRUE,
			restart_count INTEGER NOT NULL DEFAULT 0,
			metrics JSONB,
			container_id TEXT,
			container_name TEXT,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS posts (
			post_id TEXT PRIMARY KEY,
			subreddit TEXT NOT NULL,
			title TEXT, url TEXT, selftext TEXT, author TEXT,
			score INTEGER, num_comments INTEGER, created_at TIMESTAMPTZ,
			comments_scraped BOOLEAN NOT NULL DEFAULT FALSE,
			initial_comments_scraped BOOLEAN NOT NULL DEFAULT FALSE,
			last_comment_fetch_time TIMESTAMPTZ,
			comments_scraped_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS comments (
			comment_id TEXT PRIMARY KEY,
			post_id TEXT NOT NULL,
			parent_id TEXT, parent_type TEXT, depth INTEGER,
			body TEXT, author TEXT, score INTEGER, created_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS comments_post_id_idx ON comments(post_id)`,
		`CREATE INDEX IF NOT EXISTS comments_parent_id_idx ON comments(parent_id)`,
		`CREATE TABLE IF NOT EXISTS subreddit_metadata (
			subreddit_name TEXT PRIMARY KEY,
			title TEXT, subscribers INTEGER, description TEXT,
			last_updated TIMESTAMPTZ, embedding_status TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS errors (
			id SERIAL PRIMARY KEY,
			subreddit TEXT, post_id TEXT, error_type TEXT, error_message TEXT,
			retry_count INTEGER, timestamp TIMESTAMPTZ, resolved BOOLEAN DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS usage (
			id SERIAL PRIMARY KEY,
			subreddit TEXT, scraper_type TEXT, timestamp TIMESTAMPTZ,
			actual_http_requests BIGINT, estimated_cost_usd DOUBLE PRECISION,
			cycle_duration_seconds DOUBLE PRECISION, rate_limit_snapshot JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			account_name TEXT PRIMARY KEY,
			sealed BYTEA
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// ---- Scraper Queue State (4.D) ----

func (s *PostgresStore) LoadScraper(ctx context.Context, id string) (*models.ScraperRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, subreddits, pending_scrape, scraper_type, config, status,
		coalesce(last_error, ''), auto_restart, restart_count, metrics, coalesce(container_id, ''),
		coalesce(container_name, ''), last_updated FROM scrapers WHERE id = $1`, id)

	var rec models.ScraperRecord
	var subreddits, pending pq.StringArray
	var cfgJSON, metricsJSON []byte
	err := row.Scan(&rec.ID, &subreddits, &pending, &rec.ScraperType, &cfgJSON, &rec.Status,
		&rec.LastError, &rec.AutoRestart, &rec.RestartCount, &metricsJSON, &rec.ContainerID,
		&rec.ContainerName, &rec.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load scraper: %w", err)
	}
	rec.Subreddits = []string(subreddits)
	rec.PendingScrape = []string(pending)
	if err := json.Unmarshal(cfgJSON, &rec.Config); err != nil {
		return nil, fmt.Errorf("postgres: decode config: %w", err)
	}
	if len(metricsJSON) > 0 {
		if err := json.Unmarshal(metricsJSON, &rec.Metrics); err != nil {
			return nil, fmt.Errorf("postgres: decode metrics: %w", err)
		}
	}
	return &rec, nil
}

func (s *PostgresStore) CreateScraper(ctx context.Context, rec *models.ScraperRecord) error {
	if len(rec.Subreddits) > MaxSubreddits {
		return ErrTooManySubreddits
	}
	cfgJSON, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("postgres: marshal config: %w", err)
	}
	metricsJSON, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("postgres: marshal metrics: %w", err)
	}
	rec.LastUpdated = time.Now()
	_, err = s.db.ExecContext(ctx, `INSERT INTO scrapers
		(id, subreddits, pending_scrape, scraper_type, config, credentials, account_name, status,
		 auto_restart, restart_count, metrics, last_updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		rec.ID, pq.Array(rec.Subreddits), pq.Array(rec.PendingScrape), rec.ScraperType, cfgJSON,
		rec.Credentials.Sealed, rec.Credentials.AccountName, rec.Status, rec.AutoRestart, rec.RestartCount,
		metricsJSON, rec.LastUpdated)
	if err != nil {
		return fmt.Errorf("postgres: create scraper: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteScraper(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scrapers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete scraper: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListScrapers(ctx context.Context) ([]models.ScraperRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM scrapers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list scrapers: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan scraper id: %w", err)
		}
		ids = append(ids, id)
	}
	out := make([]models.ScraperRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.LoadScraper(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (s *PostgresStore) UpdateSubreddits(ctx context.Context, id string, newList []string) ([]string, []string, error) {
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

	_, err = s.db.ExecContext(ctx, `UPDATE scrapers SET subreddits=$1, pending_scrape=$2, last_updated=$3 WHERE id=$4`,
		pq.Array(newList), pq.Array(pending), time.Now(), id)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: update subreddits: %w", err)
	}
	return added, removed, nil
}

func (s *PostgresStore) MarkScraped(ctx context.Context, id string, subreddit string) error {
	rec, err := s.LoadScraper(ctx, id)
	if err != nil {
		return err
	}
	pending := removeFromSet(rec.PendingScrape, []string{subreddit})
	_, err = s.db.ExecContext(ctx, `UPDATE scrapers SET pending_scrape=$1, last_updated=$2 WHERE id=$3`,
		pq.Array(pending), time.Now(), id)
	if err != nil {
		return fmt.Errorf("postgres: mark scraped: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, status models.ScraperStatus, lastError string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE scrapers SET status=$1, last_error=$2, last_updated=$3 WHERE id=$4`,
		status, lastError, time.Now(), id)
	if err != nil {
		return fmt.Errorf("postgres: set status: %w", err)
	}
	return nil
}

func (s *PostgresStore) IncrementRestartCount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE scrapers SET restart_count = restart_count + 1, last_updated=$1 WHERE id=$2`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("postgres: increment restart count: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordCycle(ctx context.Context, id string, postsDelta, commentsDelta int, duration time.Duration) error {
	rec, err := s.LoadScraper(ctx, id)
	if err != nil {
		return err
	}
	m := metrics.ApplyCycle(rec.Metrics, postsDelta, commentsDelta, duration)

	metricsJSON, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("postgres: marshal metrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE scrapers SET metrics=$1, last_updated=$2 WHERE id=$3`, metricsJSON, time.Now(), id)
	if err != nil {
		return fmt.Errorf("postgres: record cycle: %w", err)
	}
	return nil
}

// ---- Store Adapter (4.G) ----

// UpsertPosts uses ON CONFLICT DO UPDATE with an explicit column list that
// excludes the four tracking fields, the SQL equivalent of the projection
// update MongoStore.UpsertPosts performs.
func (s *PostgresStore) UpsertPosts(ctx context.Context, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin upsert posts: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO posts
		(post_id, subreddit, title, url, selftext, author, score, num_comments, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (post_id) DO UPDATE SET
			subreddit=EXCLUDED.subreddit, title=EXCLUDED.title, url=EXCLUDED.url,
			selftext=EXCLUDED.selftext, author=EXCLUDED.author, score=EXCLUDED.score,
			num_comments=EXCLUDED.num_comments, created_at=EXCLUDED.created_at`)
	if err != nil {
		return fmt.Errorf("postgres: prepare upsert posts: %w", err)
	}
	defer stmt.Close()

	for _, p := range posts {
		if _, err := stmt.ExecContext(ctx, p.PostID, p.Subreddit, p.Title, p.URL, p.SelfText, p.Author, p.Score, p.NumComments, p.CreatedAt); err != nil {
			return fmt.Errorf("postgres: upsert post %s: %w", p.PostID, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) PostsCount(ctx context.Context, subreddit string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM posts WHERE subreddit=$1`, subreddit).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: posts count: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) GetPostsForCommentUpdate(ctx context.Context, subreddit string, limit int, now time.Time) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, subreddit, title, url, selftext, author, score, num_comments, created_at,
		       comments_scraped, initial_comments_scraped, last_comment_fetch_time, comments_scraped_at
		FROM posts
		WHERE subreddit = $1 AND (
			initial_comments_scraped = FALSE
			OR (num_comments > 100 AND (last_comment_fetch_time IS NULL OR last_comment_fetch_time < $2))
			OR (num_comments BETWEEN 20 AND 100 AND (last_comment_fetch_time IS NULL OR last_comment_fetch_time < $3))
			OR (num_comments < 20 AND (last_comment_fetch_time IS NULL OR last_comment_fetch_time < $4))
		)
		ORDER BY initial_comments_scraped ASC, num_comments DESC, created_at DESC
		LIMIT $5`,
		subreddit, now.Add(-2*time.Hour), now.Add(-6*time.Hour), now.Add(-24*time.Hour), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: get posts for comment update: %w", err)
	}
	defer rows.Close()

	var out []models.Post
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.PostID, &p.Subreddit, &p.Title, &p.URL, &p.SelfText, &p.Author, &p.Score,
			&p.NumComments, &p.CreatedAt, &p.CommentsScraped, &p.InitialCommentsScraped,
			&p.LastCommentFetchTime, &p.CommentsScrapedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan post: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *PostgresStore) ExistingCommentIDs(ctx context.Context, postID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT comment_id FROM comments WHERE post_id=$1`, postID)
	if err != nil {
		return nil, fmt.Errorf("postgres: existing comment ids: %w", err)
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan comment id: %w", err)
		}
		out[id] = true
	}
	return out, nil
}

func (s *PostgresStore) UpsertComments(ctx context.Context, comments []models.Comment) (int, error) {
	if len(comments) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin upsert comments: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO comments
		(comment_id, post_id, parent_id, parent_type, depth, body, author, score, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (comment_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("postgres: prepare upsert comments: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, c := range comments {
		res, err := stmt.ExecContext(ctx, c.CommentID, c.PostID, c.ParentID, c.ParentType, c.Depth, c.Body, c.Author, c.Score, c.CreatedAt)
		if err != nil {
			return inserted, fmt.Errorf("postgres: upsert comment %s: %w", c.CommentID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, tx.Commit()
}

func (s *PostgresStore) VerifyCommentsPresent(ctx context.Context, postID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM comments WHERE post_id=$1`, postID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: verify comments present: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) MarkCommentsScraped(ctx context.Context, postIDs []string, initial bool, now time.Time) error {
	if len(postIDs) == 0 {
		return nil
	}
	query := `UPDATE posts SET comments_scraped=TRUE, last_comment_fetch_time=$1 WHERE post_id = ANY($2)`
	if initial {
		query = `UPDATE posts SET comments_scraped=TRUE, last_comment_fetch_time=$1,
			initial_comments_scraped=TRUE, comments_scraped_at=$1 WHERE post_id = ANY($2)`
	}
	_, err := s.db.ExecContext(ctx, query, now, pq.Array(postIDs))
	if err != nil {
		return fmt.Errorf("postgres: mark comments scraped: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountGhostPosts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM posts p
		WHERE p.comments_scraped = TRUE AND p.num_comments > 0
		AND NOT EXISTS (SELECT 1 FROM comments c WHERE c.post_id = p.post_id)`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count ghost posts: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) UpsertSubredditMetadata(ctx context.Context, meta models.SubredditMetadata) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO subreddit_metadata
		(subreddit_name, title, subscribers, description, last_updated, embedding_status)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (subreddit_name) DO UPDATE SET
			title=EXCLUDED.title, subscribers=EXCLUDED.subscribers, description=EXCLUDED.description,
			last_updated=EXCLUDED.last_updated, embedding_status=EXCLUDED.embedding_status`,
		meta.SubredditName, meta.Title, meta.Subscribers, meta.Description, meta.LastUpdated, meta.EmbeddingStatus)
	if err != nil {
		return fmt.Errorf("postgres: upsert subreddit metadata: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubredditMetadata(ctx context.Context, subreddit string) (*models.SubredditMetadata, error) {
	var meta models.SubredditMetadata
	err := s.db.QueryRowContext(ctx, `SELECT subreddit_name, title, subscribers, description, last_updated, embedding_status
		FROM subreddit_metadata WHERE subreddit_name=$1`, subreddit).
		Scan(&meta.SubredditName, &meta.Title, &meta.Subscribers, &meta.Description, &meta.LastUpdated, &meta.EmbeddingStatus)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get subreddit metadata: %w", err)
	}
	return &meta, nil
}

// ---- Error Ledger (4.K) ----

func (s *PostgresStore) RecordError(ctx context.Context, row models.ErrorRow) error {
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO errors (subreddit, post_id, error_type, error_message, retry_count, timestamp, resolved)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		row.Subreddit, row.PostID, row.ErrorType, row.ErrorMessage, row.RetryCount, row.Timestamp, row.Resolved)
	if err != nil {
		return fmt.Errorf("postgres: record error: %w", err)
	}
	return nil
}

func (s *PostgresStore) UnresolvedErrors(ctx context.Context, subreddit string) ([]models.ErrorRow, error) {
	query := `SELECT subreddit, post_id, error_type, error_message, retry_count, timestamp, resolved FROM errors WHERE resolved=FALSE`
	args := []interface{}{}
	if subreddit != "" {
		query += ` AND subreddit=$1`
		args = append(args, subreddit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: unresolved errors: %w", err)
	}
	defer rows.Close()
	var out []models.ErrorRow
	for rows.Next() {
		var e models.ErrorRow
		if err := rows.Scan(&e.Subreddit, &e.PostID, &e.ErrorType, &e.ErrorMessage, &e.RetryCount, &e.Timestamp, &e.Resolved); err != nil {
			return nil, fmt.Errorf("postgres: scan error row: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ---- Usage Recorder (4.C) ----

func (s *PostgresStore) RecordUsage(ctx context.Context, row models.UsageRow) error {
	snapshotJSON, err := json.Marshal(row.RateLimitSnapshot)
	if err != nil {
		return fmt.Errorf("postgres: marshal rate limit snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO usage
		(subreddit, scraper_type, timestamp, actual_http_requests, estimated_cost_usd, cycle_duration_seconds, rate_limit_snapshot)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		row.Subreddit, row.ScraperType, row.Timestamp, row.ActualHTTPRequests, row.EstimatedCostUSD,
		row.CycleDurationSeconds, snapshotJSON)
	if err != nil {
		return fmt.Errorf("postgres: record usage: %w", err)
	}
	return nil
}

func (s *PostgresStore) QueryUsage(ctx context.Context, since time.Time) ([]models.UsageRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT subreddit, scraper_type, timestamp, actual_http_requests, estimated_cost_usd,
		cycle_duration_seconds, rate_limit_snapshot FROM usage WHERE timestamp >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: query usage: %w", err)
	}
	defer rows.Close()
	var out []models.UsageRow
	for rows.Next() {
		var u models.UsageRow
		var snapshotJSON []byte
		if err := rows.Scan(&u.Subreddit, &u.ScraperType, &u.Timestamp, &u.ActualHTTPRequests, &u.EstimatedCostUSD,
			&u.CycleDurationSeconds, &snapshotJSON); err != nil {
			return nil, fmt.Errorf("postgres: scan usage row: %w", err)
		}
		if len(snapshotJSON) > 0 {
			_ = json.Unmarshal(snapshotJSON, &u.RateLimitSnapshot)
		}
		out = append(out, u)
	}
	return out, nil
}

// ---- Accounts ----

func (s *PostgresStore) SaveAccount(ctx context.Context, acct models.Account) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO accounts (account_name, sealed) VALUES ($1,$2)
		ON CONFLICT (account_name) DO UPDATE SET sealed=EXCLUDED.sealed`, acct.AccountName, acct.Sealed)
	if err != nil {
		return fmt.Errorf("postgres: save account: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadAccount(ctx context.Context, name string) (*models.Account, error) {
	var acct models.Account
	err := s.db.QueryRowContext(ctx, `SELECT account_name, sealed FROM accounts WHERE account_name=$1`, name).
		Scan(&acct.AccountName, &acct.Sealed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load account: %w", err)
	}
	return &acct, nil
}
