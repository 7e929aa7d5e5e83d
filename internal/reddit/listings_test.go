package reddit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddit-fleet/scraper-control/internal/models"
	"github.com/reddit-fleet/scraper-control/internal/vault"
)

// redirectTransport sends every request to a local httptest server
// regardless of the scheme/host the client dialed, letting tests exercise
// Client's fixed tokenURL/apiHost constants against a fake backend.
type redirectTransport struct {
	target string
}

func (r *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = "http"
	req.URL.Host = r.target
	req.Host = r.target
	return http.DefaultTransport.RoundTrip(req)
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	httpClient := &http.Client{Transport: &redirectTransport{target: srv.Listener.Addr().String()}}
	c := NewClient(httpClient, vault.OAuthSecrets{ClientID: "id", ClientSecret: "secret", Username: "u", Password: "p", UserAgent: "test-agent"})
	return c, srv
}

func fakeRedditServer(t *testing.T, listingPages [][]string) http.Handler {
	t.Helper()
	page := 0
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "access_token") {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
			return
		}
		if strings.Contains(r.URL.Path, "/about") {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{"title": "Go", "subscribers": 100, "public_description": "golang"},
			})
			return
		}

		ids := listingPages[page]
		hasMore := page < len(listingPages)-1
		page++

		children := make([]map[string]interface{}, len(ids))
		for i, id := range ids {
			children[i] = map[string]interface{}{"data": map[string]interface{}{"id": id, "name": "t3_" + id, "subreddit": "golang"}}
		}
		after := ""
		if hasMore {
			after = "next"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"after": after, "children": children},
		})
	})
}

func TestFetchListing_PaginatesUntilLimit(t *testing.T) {
	pages := [][]string{{"1", "2"}, {"3"}}
	c, srv := newTestClient(t, fakeRedditServer(t, pages))
	defer srv.Close()

	posts, err := c.FetchListing(context.Background(), "golang", models.SortNew, "", 3)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, "1", posts[0].PostID, "PostID must be the bare id, not the t3_-prefixed fullname")
	assert.Equal(t, "3", posts[2].PostID)
}

func TestFetchListing_StopsOnEmptyAfter(t *testing.T) {
	pages := [][]string{{"1"}}
	c, srv := newTestClient(t, fakeRedditServer(t, pages))
	defer srv.Close()

	posts, err := c.FetchListing(context.Background(), "golang", models.SortNew, "", 100)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestFetchSubredditMetadata_ParsesAboutResponse(t *testing.T) {
	c, srv := newTestClient(t, fakeRedditServer(t, [][]string{{}}))
	defer srv.Close()

	meta, err := c.FetchSubredditMetadata(context.Background(), "golang")
	require.NoError(t, err)
	assert.Equal(t, "Go", meta.Title)
	assert.Equal(t, 100, meta.Subscribers)
}

func TestGet_ClassifiesNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "access_token") {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	httpClient := &http.Client{Transport: &redirectTransport{target: srv.Listener.Addr().String()}}
	c := NewClient(httpClient, vault.OAuthSecrets{})

	_, err := c.FetchSubredditMetadata(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}
