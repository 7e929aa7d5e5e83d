package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/reddit-fleet/scraper-control/internal/models"
)

// listingResponse mirrors the slice of Reddit's Listing JSON shape the
// Posts Worker actually reads.
type listingResponse struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data struct {
				ID          string  `json:"id"`
				Name        string  `json:"name"`
				Subreddit   string  `json:"subreddit"`
				Title       string  `json:"title"`
				URL         string  `json:"url"`
				Selftext    string  `json:"selftext"`
				Author      string  `json:"author"`
				Score       int     `json:"score"`
				NumComments int     `json:"num_comments"`
				CreatedUTC  float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// FetchListing pages through a subreddit's /r/<sub>/<sort> listing until
// limit posts are collected or the listing is exhausted, matching spec.md
// §4.A's ceil(limit/100) pagination.
func (c *Client) FetchListing(ctx context.Context, subreddit string, sort models.SortMethod, timeFilter string, limit int) ([]models.Post, error) {
	var out []models.Post
	after := ""

	for len(out) < limit {
		pageSize := limit - len(out)
		if pageSize > 100 {
			pageSize = 100
		}

		query := url.Values{}
		query.Set("limit", strconv.Itoa(pageSize))
		if after != "" {
			query.Set("after", after)
		}
		if sort == models.SortTop && timeFilter != "" {
			query.Set("t", timeFilter)
		}

		path := fmt.Sprintf("/r/%s/%s", subreddit, sort)
		body, status, err := c.get(ctx, path, query)
		if err != nil {
			return out, err
		}
		if err := classifyStatus(status); err != nil {
			return out, err
		}

		var listing listingResponse
		if err := json.Unmarshal(body, &listing); err != nil {
			return out, fmt.Errorf("reddit: decode listing: %w", err)
		}

		for _, child := range listing.Data.Children {
			d := child.Data
			out = append(out, models.Post{
				PostID:      d.ID,
				Subreddit:   d.Subreddit,
				Title:       d.Title,
				URL:         d.URL,
				SelfText:    d.Selftext,
				Author:      d.Author,
				Score:       d.Score,
				NumComments: d.NumComments,
				CreatedAt:   time.Unix(int64(d.CreatedUTC), 0).UTC(),
			})
		}

		if listing.Data.After == "" || len(listing.Data.Children) == 0 {
			break
		}
		after = listing.Data.After
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// subredditAboutResponse mirrors /r/<sub>/about.json.
type subredditAboutResponse struct {
	Data struct {
		Title       string `json:"title"`
		Subscribers int    `json:"subscribers"`
		Description string `json:"public_description"`
	} `json:"data"`
}

// FetchSubredditMetadata retrieves community-level enrichment data via the
// JSON API, the primary path; htmlfallback.go covers the case where this
// endpoint is unavailable.
func (c *Client) FetchSubredditMetadata(ctx context.Context, subreddit string) (models.SubredditMetadata, error) {
	body, status, err := c.get(ctx, fmt.Sprintf("/r/%s/about", subreddit), nil)
	if err != nil {
		return models.SubredditMetadata{}, err
	}
	if err := classifyStatus(status); err != nil {
		return models.SubredditMetadata{}, err
	}

	var resp subredditAboutResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.SubredditMetadata{}, fmt.Errorf("reddit: decode subreddit about: %w", err)
	}

	return models.SubredditMetadata{
		SubredditName: subreddit,
		Title:         resp.Data.Title,
		Subscribers:   resp.Data.Subscribers,
		Description:   resp.Data.Description,
		LastUpdated:   time.Now(),
	}, nil
}
