package server

import (
	"errors"
	"net/http"

	"github.com/reddit-fleet/scraper-control/internal/models"
	"github.com/reddit-fleet/scraper-control/internal/store"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rec, err := s.store.LoadScraper(r.Context(), id)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleLogs surfaces the Error Ledger for a scraper — the append-only
// error rows are this system's operator-facing log stream; there is no
// separate structured-log store per spec.md §4.K.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rec, err := s.store.LoadScraper(r.Context(), id)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	// Ledger rows are keyed by subreddit, so collect them across every
	// subreddit the scraper currently targets.
	var rows []models.ErrorRow
	for _, sub := range rec.Subreddits {
		subRows, err := s.ledger.Unresolved(r.Context(), sub)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		rows = append(rows, subRows...)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"scraper_id": id, "errors": rows, "count": len(rows)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rec, err := s.store.LoadScraper(r.Context(), id)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	ghostPosts, err := s.store.CountGhostPosts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scraper_id":    id,
		"metrics":       rec.Metrics,
		"restart_count": rec.RestartCount,
		"ghost_posts":   ghostPosts,
	})
}

func writeStoreErr(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
