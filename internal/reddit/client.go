// Package reddit is the only component that speaks to Reddit's API
// (spec.md §4.A). Everything else in the fleet — the scheduler, the store,
// the supervisor — is Reddit-agnostic.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/reddit-fleet/scraper-control/internal/vault"
)

const (
	tokenURL = "https://www.reddit.com/api/v1/access_token"
	apiHost  = "https://oauth.reddit.com"
)

// Client is a single OAuth-app-scoped Reddit API handle. Each scraper
// process owns exactly one Client, built from its own unsealed
// credentials, per spec.md §3's "own OAuth app" isolation requirement.
type Client struct {
	http      *http.Client
	secrets   vault.OAuthSecrets
	userAgent string

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewClient wraps httpClient (expected to carry a transport.CountingTransport)
// with OAuth token management for the given credential set.
func NewClient(httpClient *http.Client, secrets vault.OAuthSecrets) *Client {
	return &Client{http: httpClient, secrets: secrets, userAgent: secrets.UserAgent}
}

// ensureToken performs the OAuth2 password grant if the cached token is
// missing or within 30 seconds of expiry, matching Reddit's script-app flow.
func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.expiresAt.Add(-30*time.Second)) {
		return nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.secrets.Username)
	form.Set("password", c.secrets.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("reddit: build token request: %w", err)
	}
	req.SetBasicAuth(c.secrets.ClientID, c.secrets.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reddit: token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("reddit: token request returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("reddit: decode token response: %w", err)
	}

	c.accessToken = payload.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return nil
}

// get performs an authenticated GET against apiHost+path, refreshing the
// OAuth token first if needed. It returns the raw body; callers decode it
// according to the shape they expect (listing vs. comment tree).
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, int, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, 0, err
	}

	full := apiHost + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("reddit: build request: %w", err)
	}

	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("reddit: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reddit: read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// ErrNotFound is returned for a 404 response, which per spec.md §9's Open
// Question decision means "the post is gone" rather than a transient error.
var ErrNotFound = fmt.Errorf("reddit: resource not found")

// ErrRateLimited is returned for a 429; callers should defer to the
// rate-limit oracle rather than retrying immediately.
var ErrRateLimited = fmt.Errorf("reddit: rate limited")

// ErrForbidden is returned for a 403, meaning the subreddit or post is
// private or the account is banned from it — non-retriable per spec.md
// §4.F.
var ErrForbidden = fmt.Errorf("reddit: forbidden")

// ErrAuthFailed is returned for a 401, an explicit authentication failure
// distinct from a 403 authorization failure.
var ErrAuthFailed = fmt.Errorf("reddit: authentication failed")

func classifyStatus(status int) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusUnauthorized:
		return ErrAuthFailed
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 400:
		return fmt.Errorf("reddit: unexpected status %d", status)
	default:
		return nil
	}
}
