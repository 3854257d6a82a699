package api

import (
	"encoding/json"
	"net/http"

	"github.com/account-sync/internal/types"
)

// StatusResponse is the payload for GET /api/v1/status
type StatusResponse struct {
	Status  types.UpdateStatus `json:"status"`
	Account string             `json:"account,omitempty"`
}

// MetricsResponse is the payload for GET /api/v1/metrics
type MetricsResponse struct {
	Metrics types.ProcessedMetrics `json:"metrics"`
	Range   types.DateRange        `json:"range"`
	Account string                 `json:"account,omitempty"`
}

// handleStatus handles GET /api/v1/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{
		Status:  s.coordinator.Status(),
		Account: s.sessions.Current(r.Context()),
	})
}

// handleMetrics handles GET /api/v1/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, MetricsResponse{
		Metrics: s.coordinator.Metrics(),
		Range:   s.coordinator.DateRange(),
		Account: s.sessions.Current(r.Context()),
	})
}

// handleRefresh handles POST /api/v1/refresh. The refresh runs inline and
// bypasses the throttle window; the response carries the resulting status.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.coordinator.PerformUpdate(r.Context(), true)

	respondJSON(w, http.StatusOK, StatusResponse{
		Status:  s.coordinator.Status(),
		Account: s.sessions.Current(r.Context()),
	})
}

// handleCurrentAccount handles GET /api/v1/account
func (s *Server) handleCurrentAccount(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account":  s.sessions.Current(r.Context()),
		"accounts": s.accounts,
	})
}

// selectAccountRequest is the body for POST /api/v1/account
type selectAccountRequest struct {
	AccountID string `json:"accountId"`
}

// handleSelectAccount handles POST /api/v1/account
func (s *Server) handleSelectAccount(w http.ResponseWriter, r *http.Request) {
	var req selectAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Request body must be valid JSON", nil)
		return
	}
	if req.AccountID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "accountId is required", nil)
		return
	}

	if err := s.sessions.SelectAccount(r.Context(), req.AccountID, s.accounts); err != nil {
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"account": req.AccountID,
	})
}

// setDateRangeRequest is the body for POST /api/v1/daterange
type setDateRangeRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Label     string `json:"label"`
}

// handleSetDateRange handles POST /api/v1/daterange. Changing the window
// only re-derives the aggregate from cached data; no fetch is triggered.
func (s *Server) handleSetDateRange(w http.ResponseWriter, r *http.Request) {
	var req setDateRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Request body must be valid JSON", nil)
		return
	}

	dateRange, err := types.NewDateRange(req.StartDate, req.EndDate, req.Label)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Dates must use the YYYY-MM-DD format", map[string]interface{}{
			"startDate": req.StartDate,
			"endDate":   req.EndDate,
		})
		return
	}

	metrics := s.coordinator.SetDateRange(dateRange)

	respondJSON(w, http.StatusOK, MetricsResponse{
		Metrics: metrics,
		Range:   dateRange,
		Account: s.sessions.Current(r.Context()),
	})
}

// handleToggleAutoUpdate handles POST /api/v1/autoupdate/toggle
func (s *Server) handleToggleAutoUpdate(w http.ResponseWriter, r *http.Request) {
	enabled := s.coordinator.ToggleAutoUpdate(r.Context())

	respondJSON(w, http.StatusOK, map[string]bool{
		"autoUpdateEnabled": enabled,
	})
}
