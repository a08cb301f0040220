package web

import (
	"errors"
	"net/http"
	"strings"

	"circuit-ytd/internal/standings"

	"github.com/go-chi/chi/v5"
)

type calculateRequest struct {
	YearConfigID string `json:"yearConfigId"`
}

// calculateResponse keeps the field names of the hosted calculate function
// so existing clients keep working.
type calculateResponse struct {
	Success            bool                          `json:"success"`
	Message            string                        `json:"message"`
	PlayerCount        int                           `json:"playerCount"`
	TournamentCount    int                           `json:"tournamentCount"`
	ProcessedCount     int                           `json:"processedCount"`
	MissingTournaments []standings.MissingTournament `json:"missingTournaments,omitempty"`
}

func (s *Server) handleCalculateYTDCached(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	_ = decodeJSON(w, r, &req)
	yearID := strings.TrimSpace(req.YearConfigID)
	if yearID == "" {
		writeError(w, http.StatusBadRequest, "yearConfigId is required")
		return
	}

	summary, err := s.standings.Recalculate(r.Context(), yearID)
	if errors.Is(err, standings.ErrYearNotFound) {
		writeError(w, http.StatusNotFound, "Year configuration not found")
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("year_config_id", yearID).Error("calculate-ytd-cached failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Failed to calculate YTD standings",
			Message: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, calculateResponse{
		Success:            true,
		Message:            summary.Message,
		PlayerCount:        summary.PlayerCount,
		TournamentCount:    summary.TournamentCount,
		ProcessedCount:     summary.ProcessedCount,
		MissingTournaments: summary.MissingTournaments,
	})
}

func (s *Server) handleStandingsCalculate(w http.ResponseWriter, r *http.Request) {
	summary, err := s.standings.Recalculate(r.Context(), chi.URLParam(r, "yearID"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	rows, err := s.standings.Standings(r.Context(), chi.URLParam(r, "yearID"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStandingResponses(rows))
}

func (s *Server) handleMissingResults(w http.ResponseWriter, r *http.Request) {
	missing, err := s.standings.MissingResults(r.Context(), chi.URLParam(r, "yearID"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTournamentResponses(missing))
}
