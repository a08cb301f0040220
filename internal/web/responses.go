package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"circuit-ytd/internal/model"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type yearResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type tournamentResponse struct {
	ID       string `json:"id"`
	WespaID  int    `json:"wespa_id"`
	Name     string `json:"name"`
	Date     string `json:"date"`
	Category string `json:"category,omitempty"`
	URL      string `json:"url,omitempty"`
}

type playerResponse struct {
	ID      string `json:"id"`
	WespaID int    `json:"wespa_id"`
	Name    string `json:"name"`
	Country string `json:"country,omitempty"`
}

type pointsRowPayload struct {
	ID            string `json:"id,omitempty"`
	PositionRange string `json:"position_range"`
	Platinum      int    `json:"platinum"`
	Gold          int    `json:"gold"`
	Silver        int    `json:"silver"`
	Bronze        int    `json:"bronze"`
	Invitational  int    `json:"invitational"`
}

type standingResponse struct {
	Rank              int       `json:"rank"`
	YearConfigID      string    `json:"year_config_id"`
	PlayerID          string    `json:"player_id"`
	PlayerName        string    `json:"player_name"`
	TotalPoints       int       `json:"total_points"`
	TournamentsPlayed int       `json:"tournaments_played"`
	BestFinish        int       `json:"best_finish"`
	LastUpdated       time.Time `json:"last_updated"`
}

func newYearResponse(y model.YearConfig) yearResponse {
	return yearResponse{
		ID:        y.ID,
		Name:      y.Name,
		StartDate: y.StartDate.Format(model.DateLayout),
		EndDate:   y.EndDate.Format(model.DateLayout),
		IsActive:  y.IsActive,
		CreatedAt: y.CreatedAt,
	}
}

func newTournamentResponse(t model.Tournament) tournamentResponse {
	return tournamentResponse{
		ID:       t.ID,
		WespaID:  t.WespaID,
		Name:     t.Name,
		Date:     t.Date.Format(model.DateLayout),
		Category: string(t.Category),
		URL:      t.URL,
	}
}

func newTournamentResponses(ts []model.Tournament) []tournamentResponse {
	out := make([]tournamentResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, newTournamentResponse(t))
	}
	return out
}

func newPointsRowPayload(r model.PointsRow) pointsRowPayload {
	return pointsRowPayload{
		ID:            r.ID,
		PositionRange: r.PositionRange,
		Platinum:      r.Platinum,
		Gold:          r.Gold,
		Silver:        r.Silver,
		Bronze:        r.Bronze,
		Invitational:  r.Invitational,
	}
}

func (p pointsRowPayload) model() model.PointsRow {
	return model.PointsRow{
		ID:            p.ID,
		PositionRange: p.PositionRange,
		Platinum:      p.Platinum,
		Gold:          p.Gold,
		Silver:        p.Silver,
		Bronze:        p.Bronze,
		Invitational:  p.Invitational,
	}
}

// newStandingResponses ranks an ordered snapshot; tied rows still get
// distinct ranks because the order is fully deterministic.
func newStandingResponses(rows []model.YTDStanding) []standingResponse {
	out := make([]standingResponse, 0, len(rows))
	for i, st := range rows {
		out = append(out, standingResponse{
			Rank:              i + 1,
			YearConfigID:      st.YearConfigID,
			PlayerID:          st.PlayerID,
			PlayerName:        st.PlayerName,
			TotalPoints:       st.TotalPoints,
			TournamentsPlayed: st.TournamentsPlayed,
			BestFinish:        st.BestFinish,
			LastUpdated:       st.LastUpdated,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
