// Package models holds the wire and storage shapes shared by every
// component of the ingestion fleet.
package models

import "time"

// ScraperType distinguishes the two rotation-loop variants that share the
// worker scheduler skeleton.
type ScraperType string

const (
	ScraperTypePosts    ScraperType = "posts"
	ScraperTypeComments ScraperType = "comments"
)

// ScraperStatus is the lifecycle state of a scraper record.
type ScraperStatus string

const (
	StatusConfigured ScraperStatus = "configured"
	StatusStarting   ScraperStatus = "starting"
	StatusRunning    ScraperStatus = "running"
	StatusStopped    ScraperStatus = "stopped"
	StatusFailed     ScraperStatus = "failed"
)

// SortMethod is a Reddit listing sort order.
type SortMethod string

const (
	SortNew    SortMethod = "new"
	SortTop    SortMethod = "top"
	SortRising SortMethod = "rising"
	SortHot    SortMethod = "hot"
)

// EmbeddingStatus is set by an external collaborator (out of core scope);
// the core only ever reads and preserves it.
type EmbeddingStatus string

const (
	EmbeddingPending  EmbeddingStatus = "pending"
	EmbeddingComplete EmbeddingStatus = "complete"
	EmbeddingFailed   EmbeddingStatus = "failed"
)

// ErrorType classifies an Error Ledger row.
type ErrorType string

const (
	ErrCommentScrapeFailed ErrorType = "comment_scrape_failed"
	ErrVerificationFailed  ErrorType = "verification_failed"
	ErrAuthFailed          ErrorType = "auth_failed"
	ErrTransport           ErrorType = "transport_error"
)

// RetryPolicy configures the exponential backoff used by the comments
// worker's per-post fetch.
type RetryPolicy struct {
	MaxRetries    int     `bson:"max_retries" yaml:"max_retries" json:"max_retries"`
	BackoffFactor float64 `bson:"backoff_factor" yaml:"backoff_factor" json:"backoff_factor"`
	BaseDelay     time.Duration `bson:"base_delay" yaml:"base_delay" json:"base_delay"`
}

// DefaultRetryPolicy matches spec.md §4.F: 2s, 4s, 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BackoffFactor: 2, BaseDelay: 2 * time.Second}
}

// ScraperConfig is the per-scraper tunable set (spec.md §3, §6).
type ScraperConfig struct {
	PostsLimit          int                    `bson:"posts_limit" yaml:"posts_limit" json:"posts_limit"`
	SortingMethods      []SortMethod           `bson:"sorting_methods" yaml:"sorting_methods" json:"sorting_methods"`
	SortLimits          map[SortMethod]int     `bson:"sort_limits" yaml:"sort_limits" json:"sort_limits"`
	IntervalSeconds     int                    `bson:"interval_seconds" yaml:"interval_seconds" json:"interval_seconds"`
	RotationDelaySeconds int                   `bson:"rotation_delay_seconds" yaml:"rotation_delay_seconds" json:"rotation_delay_seconds"`
	CommentBatch        int                    `bson:"comment_batch" yaml:"comment_batch" json:"comment_batch"`
	MaxCommentDepth     int                    `bson:"max_comment_depth" yaml:"max_comment_depth" json:"max_comment_depth"`
	// MoreCommentsLimit: 0 = skip (default), -1 = expand all, N>0 = expand up to N.
	MoreCommentsLimit   int                    `bson:"more_comments_limit" yaml:"more_comments_limit" json:"more_comments_limit"`
	Retry               RetryPolicy            `bson:"retry" yaml:"retry" json:"retry"`
	TopTimeFilter        string                `bson:"top_time_filter" yaml:"top_time_filter" json:"top_time_filter"`
	InitialTopTimeFilter string                `bson:"initial_top_time_filter" yaml:"initial_top_time_filter" json:"initial_top_time_filter"`
	VerifyBeforeMarking  bool                  `bson:"verify_before_marking" yaml:"verify_before_marking" json:"verify_before_marking"`
	AutoRestart          bool                  `bson:"auto_restart" yaml:"auto_restart" json:"auto_restart"`
}

// DefaultScraperConfig mirrors original_source/config.py's DEFAULT_SCRAPER_CONFIG,
// extended with the fields spec.md §6 names explicitly.
func DefaultScraperConfig() ScraperConfig {
	return ScraperConfig{
		PostsLimit:           1000,
		SortingMethods:       []SortMethod{SortNew, SortTop, SortRising},
		SortLimits:           map[SortMethod]int{SortNew: 100, SortTop: 100, SortRising: 25},
		IntervalSeconds:      300,
		RotationDelaySeconds: 2,
		CommentBatch:         12,
		MaxCommentDepth:      3,
		MoreCommentsLimit:    0,
		Retry:                DefaultRetryPolicy(),
		TopTimeFilter:        "day",
		InitialTopTimeFilter: "month",
		VerifyBeforeMarking:  true,
		AutoRestart:          true,
	}
}

// Metrics is the rolling per-scraper stat block persisted on the scraper
// record so the control plane can display without querying raw rows.
type Metrics struct {
	Cycles            int64     `bson:"cycles" json:"cycles"`
	PostsPerHour      float64   `bson:"posts_per_hour" json:"posts_per_hour"`
	CommentsPerHour   float64   `bson:"comments_per_hour" json:"comments_per_hour"`
	AvgCycleDuration  float64   `bson:"avg_cycle_duration_seconds" json:"avg_cycle_duration_seconds"`
	LastCycleAt       time.Time `bson:"last_cycle_at" json:"last_cycle_at"`
}

// Credentials is the opaque, encrypted OAuth + user secret blob. The core
// only knows it as bytes in and bytes out of vault.Seal/Unseal.
type Credentials struct {
	AccountName string `bson:"account_name,omitempty" json:"account_name,omitempty"`
	Sealed      []byte `bson:"sealed" json:"-"`
}

// ScraperRecord is the durable per-scraper record (spec.md §3, §4.D).
type ScraperRecord struct {
	ID            string        `bson:"_id" json:"id"`
	Subreddits    []string      `bson:"subreddits" json:"subreddits"`
	PendingScrape []string      `bson:"pending_scrape" json:"pending_scrape"`
	ScraperType   ScraperType   `bson:"scraper_type" json:"scraper_type"`
	Config        ScraperConfig `bson:"config" json:"config"`
	Credentials   Credentials   `bson:"credentials" json:"-"`
	Status        ScraperStatus `bson:"status" json:"status"`
	LastError     string        `bson:"last_error,omitempty" json:"last_error,omitempty"`
	AutoRestart   bool          `bson:"auto_restart" json:"auto_restart"`
	RestartCount  int           `bson:"restart_count" json:"restart_count"`
	Metrics       Metrics       `bson:"metrics" json:"metrics"`
	ContainerID   string        `bson:"container_id,omitempty" json:"container_id,omitempty"`
	ContainerName string        `bson:"container_name,omitempty" json:"container_name,omitempty"`
	LastUpdated   time.Time     `bson:"last_updated" json:"last_updated"`
}

// Primary returns the id-bearing subreddit for the scraper. By invariant
// it is always element zero of Subreddits.
func (s *ScraperRecord) Primary() string {
	if len(s.Subreddits) == 0 {
		return s.ID
	}
	return s.Subreddits[0]
}

// Post is a Reddit submission row, with the four tracking fields that must
// never regress on upsert (spec.md §3 invariant).
type Post struct {
	PostID      string    `bson:"post_id" json:"post_id"`
	Subreddit   string    `bson:"subreddit" json:"subreddit"`
	Title       string    `bson:"title" json:"title"`
	URL         string    `bson:"url" json:"url"`
	SelfText    string    `bson:"selftext" json:"selftext"`
	Author      string    `bson:"author" json:"author"`
	Score       int       `bson:"score" json:"score"`
	NumComments int       `bson:"num_comments" json:"num_comments"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`

	// Tracking fields — monotonic, preserved on upsert.
	CommentsScraped        bool       `bson:"comments_scraped" json:"comments_scraped"`
	InitialCommentsScraped bool       `bson:"initial_comments_scraped" json:"initial_comments_scraped"`
	LastCommentFetchTime   *time.Time `bson:"last_comment_fetch_time,omitempty" json:"last_comment_fetch_time,omitempty"`
	CommentsScrapedAt      *time.Time `bson:"comments_scraped_at,omitempty" json:"comments_scraped_at,omitempty"`
}

// ParentType distinguishes a top-level comment (parent is the post) from a
// reply (parent is another comment).
type ParentType string

const (
	ParentPost    ParentType = "post"
	ParentComment ParentType = "comment"
)

// Comment is a single Reddit comment row.
type Comment struct {
	CommentID  string     `bson:"comment_id" json:"comment_id"`
	PostID     string     `bson:"post_id" json:"post_id"`
	ParentID   string     `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	ParentType ParentType `bson:"parent_type" json:"parent_type"`
	Depth      int        `bson:"depth" json:"depth"`
	Body       string     `bson:"body" json:"body"`
	Author     string     `bson:"author" json:"author"`
	Score      int        `bson:"score" json:"score"`
	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
}

// SubredditMetadata is community-level enrichment data.
type SubredditMetadata struct {
	SubredditName    string          `bson:"subreddit_name" json:"subreddit_name"`
	Title            string          `bson:"title" json:"title"`
	Subscribers      int             `bson:"subscribers" json:"subscribers"`
	Description      string          `bson:"description" json:"description"`
	LastUpdated      time.Time       `bson:"last_updated" json:"last_updated"`
	EmbeddingStatus  EmbeddingStatus `bson:"embedding_status" json:"embedding_status"`
}

// ErrorRow is an append-only Error Ledger entry (spec.md §4.K).
type ErrorRow struct {
	ID           string    `bson:"_id,omitempty" json:"id,omitempty"`
	Subreddit    string    `bson:"subreddit" json:"subreddit"`
	PostID       string    `bson:"post_id,omitempty" json:"post_id,omitempty"`
	ErrorType    ErrorType `bson:"error_type" json:"error_type"`
	ErrorMessage string    `bson:"error_message" json:"error_message"`
	RetryCount   int       `bson:"retry_count" json:"retry_count"`
	Timestamp    time.Time `bson:"timestamp" json:"timestamp"`
	Resolved     bool      `bson:"resolved" json:"resolved"`
}

// RateLimitSnapshot is a point-in-time read of the per-OAuth-app quota.
type RateLimitSnapshot struct {
	Remaining float64   `bson:"remaining" json:"remaining"`
	Used      float64   `bson:"used" json:"used"`
	ResetAt   time.Time `bson:"reset_at" json:"reset_at"`
}

// UsageRow is an append-only per-flush-interval cost row (spec.md §3, §6).
type UsageRow struct {
	ID                  string            `bson:"_id,omitempty" json:"id,omitempty"`
	Subreddit           string            `bson:"subreddit" json:"subreddit"`
	ScraperType         ScraperType       `bson:"scraper_type" json:"scraper_type"`
	Timestamp           time.Time         `bson:"timestamp" json:"timestamp"`
	ActualHTTPRequests  int64             `bson:"actual_http_requests" json:"actual_http_requests"`
	EstimatedCostUSD    float64           `bson:"estimated_cost_usd" json:"estimated_cost_usd"`
	CycleDurationSeconds float64          `bson:"cycle_duration_seconds" json:"cycle_duration_seconds"`
	RateLimitSnapshot   RateLimitSnapshot `bson:"rate_limit_snapshot" json:"rate_limit_snapshot"`
}

// Account is a reusable named credential set (spec.md §3).
type Account struct {
	AccountName string `bson:"account_name" json:"account_name"`
	Sealed      []byte `bson:"sealed" json:"-"`
}

// CostPerRequest is the billed rate: $0.24 per 1,000 requests.
const CostPerRequest = 0.24 / 1000.0

// EstimatedCost computes usage.estimated_cost_usd from a request count,
// matching spec.md invariant 7 to within 1e-6.
func EstimatedCost(requests int64) float64 {
	return float64(requests) * CostPerRequest
}
