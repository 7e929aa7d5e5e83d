package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/reddit-fleet/scraper-control/internal/models"
	"github.com/reddit-fleet/scraper-control/internal/vault"
)

// startRequest is the POST /scrapers/start body: subreddits lists one or
// more subreddits, the first element being the primary; id names the
// scraper record and a UUID is generated when it is empty.
type startRequest struct {
	ID            string              `json:"id"`
	Subreddits    []string            `json:"subreddits"`
	ScraperType   models.ScraperType  `json:"scraper_type"`
	Config        *models.ScraperConfig `json:"config"`
	AutoRestart   *bool               `json:"auto_restart"`
	AccountName   string              `json:"account_name"`
	OAuthSecrets  *vault.OAuthSecrets `json:"oauth_secrets"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Subreddits) == 0 {
		writeError(w, http.StatusBadRequest, "subreddits must not be empty")
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	creds, err := s.resolveCredentials(r, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := models.DefaultScraperConfig()
	if req.Config != nil {
		cfg = *req.Config
	}
	scraperType := req.ScraperType
	if scraperType == "" {
		scraperType = models.ScraperTypePosts
	}
	autoRestart := true
	if req.AutoRestart != nil {
		autoRestart = *req.AutoRestart
	}

	rec := &models.ScraperRecord{
		ID:          id,
		Subreddits:  req.Subreddits,
		ScraperType: scraperType,
		Config:      cfg,
		Credentials: creds,
		Status:      models.StatusConfigured,
		AutoRestart: autoRestart,
		LastUpdated: time.Now(),
	}
	if err := s.store.CreateScraper(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.supervisor != nil {
		if err := s.supervisor.Start(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id, "status": string(models.StatusStarting)})
}

// resolveCredentials seals oauth_secrets directly, or looks up an existing
// named account when the request references one instead of inlining
// secrets (spec.md §3's reusable Account record).
func (s *Server) resolveCredentials(r *http.Request, req startRequest) (models.Credentials, error) {
	if req.OAuthSecrets != nil {
		return s.sealer.SealSecrets(*req.OAuthSecrets)
	}
	if req.AccountName == "" {
		return models.Credentials{}, errMissingCredentials
	}
	acct, err := s.store.LoadAccount(r.Context(), req.AccountName)
	if err != nil {
		return models.Credentials{}, err
	}
	return models.Credentials{AccountName: acct.AccountName, Sealed: acct.Sealed}, nil
}

var errMissingCredentials = credentialsError("either oauth_secrets or account_name is required")

type credentialsError string

func (e credentialsError) Error() string { return string(e) }

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.supervisor == nil {
		writeError(w, http.StatusServiceUnavailable, "supervisor not attached")
		return
	}
	if err := s.supervisor.Stop(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(models.StatusStopped)})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.supervisor == nil {
		writeError(w, http.StatusServiceUnavailable, "supervisor not attached")
		return
	}
	if err := s.supervisor.Restart(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(models.StatusStarting)})
}
