// Package server implements the control-plane HTTP API (spec.md §6): the
// operator-facing surface for starting, stopping, retargeting, and
// observing scrapers, plus the aggregated cost endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/reddit-fleet/scraper-control/internal/config"
	"github.com/reddit-fleet/scraper-control/internal/ledger"
	"github.com/reddit-fleet/scraper-control/internal/store"
	"github.com/reddit-fleet/scraper-control/internal/supervisor"
	"github.com/reddit-fleet/scraper-control/internal/vault"
)

// Server handles the control-plane HTTP API. Usage rows arrive from
// worker processes flushing directly to the shared store; the server
// only reads them back for /api/usage/cost.
type Server struct {
	config     config.ServerConfig
	store      store.Store
	supervisor *supervisor.Supervisor
	sealer     *vault.Sealer
	ledger     *ledger.Ledger
	server     *http.Server
}

// NewServer wires the API route table to its handlers.
func NewServer(cfg config.ServerConfig, st store.Store, sup *supervisor.Supervisor, sealer *vault.Sealer) *Server {
	s := &Server{
		config:     cfg,
		store:      st,
		supervisor: sup,
		sealer:     sealer,
		ledger:     ledger.New(st),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/scrapers", s.handleScrapers)
	mux.HandleFunc("/scrapers/start", s.handleStart)
	mux.HandleFunc("/scrapers/", s.handleScraperSubpath)
	mux.HandleFunc("/api/usage/cost", s.handleUsageCost)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := s.store.ListScrapers(r.Context()); err != nil {
		body["status"] = "degraded"
		body["store_error"] = err.Error()
	}
	if ghostPosts, err := s.store.CountGhostPosts(r.Context()); err != nil {
		body["status"] = "degraded"
		body["ghost_posts_error"] = err.Error()
	} else {
		body["ghost_posts"] = ghostPosts
		if ghostPosts > 0 {
			body["status"] = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// handleScrapers dispatches GET /scrapers (list) — POST is routed
// separately to handleStart via the exact "/scrapers/start" path.
func (s *Server) handleScrapers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	recs, err := s.store.ListScrapers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"scrapers": recs, "count": len(recs)})
}

// handleScraperSubpath dispatches every "/scrapers/{id}/..." route by
// trimming the id and switching on the remaining suffix, in the teacher's
// manual path-parsing style.
func (s *Server) handleScraperSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/scrapers/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "missing scraper id")
		return
	}
	parts := strings.SplitN(rest, "/", 3)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing scraper id")
		return
	}

	switch {
	case len(parts) == 1:
		s.handleScraperResource(w, r, id)
	case len(parts) == 2 && parts[1] == "stop":
		s.handleStop(w, r, id)
	case len(parts) == 2 && parts[1] == "restart":
		s.handleRestart(w, r, id)
	case len(parts) == 2 && parts[1] == "status":
		s.handleStatus(w, r, id)
	case len(parts) == 2 && parts[1] == "logs":
		s.handleLogs(w, r, id)
	case len(parts) == 2 && parts[1] == "stats":
		s.handleStats(w, r, id)
	case len(parts) == 2 && parts[1] == "subreddits":
		s.handleSubredditsReplace(w, r, id)
	case len(parts) == 3 && parts[1] == "subreddits" && parts[2] == "add":
		s.handleSubredditsAdd(w, r, id)
	case len(parts) == 3 && parts[1] == "subreddits" && parts[2] == "remove":
		s.handleSubredditsRemove(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "unknown route")
	}
}

func (s *Server) handleScraperResource(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.supervisor != nil {
		_ = s.supervisor.Stop(r.Context(), id)
	}
	if err := s.store.DeleteScraper(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "deleted": "true"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
