package server

import (
	"net/http"
	"time"

	"github.com/reddit-fleet/scraper-control/internal/transport"
)

// usageCostWindow bounds how far back we read usage rows before reducing
// them client-side; seven days covers every aggregate Aggregate computes.
const usageCostWindow = 7 * 24 * time.Hour

func (s *Server) handleUsageCost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	now := time.Now()
	rows, err := s.store.QueryUsage(r.Context(), now.Add(-usageCostWindow))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, transport.Aggregate(rows, now))
}
