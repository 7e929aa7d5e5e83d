package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddit-fleet/scraper-control/internal/config"
	"github.com/reddit-fleet/scraper-control/internal/models"
	"github.com/reddit-fleet/scraper-control/internal/store"
	"github.com/reddit-fleet/scraper-control/internal/vault"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	sealer, err := vault.NewSealer(bytes.Repeat([]byte{0x11}, 32))
	require.NoError(t, err)
	s := NewServer(config.ServerConfig{Port: 0}, st, nil, sealer)
	return s, st
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHandleHealth_ReportsHealthy(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["ghost_posts"])
}

func TestHandleHealth_DegradedOnGhostPosts(t *testing.T) {
	s, st := newTestServer(t)
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	require.NoError(t, st.UpsertPosts(context.Background(), []models.Post{{
		PostID: "1", Subreddit: "golang", NumComments: 3, CommentsScraped: true,
	}}))

	resp := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	assert.Equal(t, "degraded", body["status"])
	assert.EqualValues(t, 1, body["ghost_posts"])
}

func TestHandleStart_CreatesScraperWithoutSupervisor(t *testing.T) {
	s, st := newTestServer(t)
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp := doJSON(t, srv, http.MethodPost, "/scrapers/start", startRequest{
		ID:         "s1",
		Subreddits: []string{"golang"},
		OAuthSecrets: &vault.OAuthSecrets{
			ClientID: "id", ClientSecret: "secret", Username: "u", Password: "p", UserAgent: "ua",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	rec, err := st.LoadScraper(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"golang"}, rec.Subreddits)
	assert.NotEmpty(t, rec.Credentials.Sealed)
}

func TestHandleStart_MissingCredentialsRejected(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp := doJSON(t, srv, http.MethodPost, "/scrapers/start", startRequest{
		ID:         "s1",
		Subreddits: []string{"golang"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleStart_ByAccountName(t *testing.T) {
	s, st := newTestServer(t)
	sealed, err := s.sealer.SealSecrets(vault.OAuthSecrets{ClientID: "id", ClientSecret: "secret", Username: "u", Password: "p", UserAgent: "ua"})
	require.NoError(t, err)
	require.NoError(t, st.SaveAccount(context.Background(), models.Account{AccountName: "acct1", Sealed: sealed.Sealed}))

	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp := doJSON(t, srv, http.MethodPost, "/scrapers/start", startRequest{
		ID:          "s2",
		Subreddits:  []string{"golang"},
		AccountName: "acct1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	rec, err := st.LoadScraper(context.Background(), "s2")
	require.NoError(t, err)
	assert.Equal(t, "acct1", rec.Credentials.AccountName)
}

func TestHandleSubredditsAdd_RejectsOverCap(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.CreateScraper(context.Background(), &models.ScraperRecord{ID: "s1", Subreddits: []string{"golang"}}))
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	over := make([]string, store.MaxSubreddits)
	for i := range over {
		over[i] = fmt.Sprintf("extra%d", i)
	}
	resp := doJSON(t, srv, http.MethodPost, "/scrapers/s1/subreddits/add", subredditsRequest{Subreddits: over})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleSubredditsRemove_ProtectsPrimary(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.CreateScraper(context.Background(), &models.ScraperRecord{ID: "s1", Subreddits: []string{"golang", "rust"}}))
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp := doJSON(t, srv, http.MethodPost, "/scrapers/s1/subreddits/remove", subredditsRequest{Subreddits: []string{"golang"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleSubredditsReplace_S7Scenario(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.CreateScraper(context.Background(), &models.ScraperRecord{
		ID: "s1", Subreddits: []string{"a", "b", "c", "d"}, PendingScrape: []string{"d"},
	}))
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp := doJSON(t, srv, http.MethodPatch, "/scrapers/s1/subreddits", subredditsRequest{Subreddits: []string{"a", "b", "e"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string][]string
	decodeBody(t, resp, &body)
	assert.ElementsMatch(t, []string{"e"}, body["added"])
	assert.ElementsMatch(t, []string{"c", "d"}, body["removed"])
}

func TestHandleStatus_UnknownScraperIs404(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp := doJSON(t, srv, http.MethodGet, "/scrapers/missing/status", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleLogs_ReturnsUnresolvedErrorsScopedToScraper(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.CreateScraper(context.Background(), &models.ScraperRecord{ID: "s1", Subreddits: []string{"golang"}}))
	require.NoError(t, s.ledger.Record(context.Background(), "golang", "t3_1", models.ErrAuthFailed, assertErr{"boom"}, 3))
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp := doJSON(t, srv, http.MethodGet, "/scrapers/s1/logs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	assert.Equal(t, float64(1), body["count"])
}

func TestHandleScraperResource_DeleteRemovesRecord(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.CreateScraper(context.Background(), &models.ScraperRecord{ID: "s1", Subreddits: []string{"golang"}}))
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp := doJSON(t, srv, http.MethodDelete, "/scrapers/s1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, err := st.LoadScraper(context.Background(), "s1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleUsageCost_AggregatesRecordedRows(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.RecordUsage(context.Background(), models.UsageRow{
		Subreddit: "golang", ActualHTTPRequests: 1000, EstimatedCostUSD: models.EstimatedCost(1000),
	}))
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp := doJSON(t, srv, http.MethodGet, "/api/usage/cost", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
