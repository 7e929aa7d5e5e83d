package reddit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/reddit-fleet/scraper-control/internal/models"
)

const oldRedditHost = "https://old.reddit.com"

// FetchSubredditMetadataHTML scrapes old.reddit.com's sidebar when the
// JSON /about endpoint is unavailable (private subreddit shims, transient
// API outages). Grounded on the goquery document-then-select pattern the
// scraper example repo uses for its own HTML listing page.
func (c *Client) FetchSubredditMetadataHTML(ctx context.Context, subreddit string) (models.SubredditMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/r/%s/", oldRedditHost, subreddit), nil)
	if err != nil {
		return models.SubredditMetadata{}, fmt.Errorf("reddit: build html fallback request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return models.SubredditMetadata{}, fmt.Errorf("reddit: html fallback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.SubredditMetadata{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return models.SubredditMetadata{}, fmt.Errorf("reddit: html fallback returned %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return models.SubredditMetadata{}, fmt.Errorf("reddit: parse html fallback: %w", err)
	}

	meta := models.SubredditMetadata{
		SubredditName: subreddit,
		LastUpdated:   time.Now(),
	}
	meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	meta.Description = strings.TrimSpace(doc.Find(".titlebox .usertext-body").First().Text())

	subCountText := strings.TrimSpace(doc.Find(".subscribers .number").First().Text())
	subCountText = strings.ReplaceAll(subCountText, ",", "")
	if n, err := strconv.Atoi(subCountText); err == nil {
		meta.Subscribers = n
	}

	return meta, nil
}
