package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/reddit-fleet/scraper-control/internal/queue"
	"github.com/reddit-fleet/scraper-control/internal/store"
)

type subredditsRequest struct {
	Subreddits []string `json:"subreddits"`
}

func (s *Server) handleSubredditsAdd(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req subredditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	added, removed, err := queue.Add(r.Context(), s.store, id, req.Subreddits)
	writeMutationResult(w, added, removed, err)
}

func (s *Server) handleSubredditsRemove(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req subredditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	added, removed, err := queue.Remove(r.Context(), s.store, id, req.Subreddits)
	writeMutationResult(w, added, removed, err)
}

func (s *Server) handleSubredditsReplace(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req subredditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	added, removed, err := queue.Replace(r.Context(), s.store, id, req.Subreddits)
	writeMutationResult(w, added, removed, err)
}

func writeMutationResult(w http.ResponseWriter, added, removed []string, err error) {
	if err != nil {
		if errors.Is(err, store.ErrPrimaryRemoval) || errors.Is(err, store.ErrTooManySubreddits) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"added": added, "removed": removed})
}
