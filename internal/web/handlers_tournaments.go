package web

import (
	"net/http"
	"strings"
	"time"

	"circuit-ytd/internal/model"
	"circuit-ytd/internal/results"

	"github.com/go-chi/chi/v5"
)

var (
	listFrom = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
	listTo   = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
)

type tournamentRequest struct {
	WespaID  int    `json:"wespa_id"`
	Name     string `json:"name"`
	Date     string `json:"date"`
	Category string `json:"category"`
	URL      string `json:"url"`
}

type categoryRequest struct {
	Category string `json:"category"`
}

type resultsRequest struct {
	Results []results.Row `json:"results"`
}

type importAllRequest struct {
	Tournaments []results.Batch `json:"tournaments"`
}

func (s *Server) handleTournamentsList(w http.ResponseWriter, r *http.Request) {
	from, to := listFrom, listTo
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := model.ParseDay(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := model.ParseDay(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		to = parsed
	}
	tournaments, err := s.store.ListTournaments(r.Context(), from, to)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTournamentResponses(tournaments))
}

func (s *Server) handleTournamentCreate(w http.ResponseWriter, r *http.Request) {
	var req tournamentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, err := model.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	category, ok := model.ParseCategory(req.Category)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid category")
		return
	}
	tournament, err := s.store.CreateTournament(r.Context(), model.Tournament{
		WespaID:  req.WespaID,
		Name:     strings.TrimSpace(req.Name),
		Date:     date,
		Category: category,
		URL:      strings.TrimSpace(req.URL),
	})
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTournamentResponse(tournament))
}

func (s *Server) handleTournamentCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	category, ok := model.ParseCategory(req.Category)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid category")
		return
	}
	tournamentID := chi.URLParam(r, "tournamentID")
	if err := s.store.SetTournamentCategory(r.Context(), tournamentID, category); err != nil {
		s.writeErr(w, r, err)
		return
	}
	tournament, err := s.store.GetTournament(r.Context(), tournamentID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTournamentResponse(tournament))
}

func (s *Server) handleResultsImport(w http.ResponseWriter, r *http.Request) {
	var req resultsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := s.importer.Import(r.Context(), chi.URLParam(r, "tournamentID"), req.Results)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	code := http.StatusCreated
	if status == results.StatusSkipped {
		code = http.StatusOK
	}
	writeJSON(w, code, map[string]string{"status": string(status)})
}

func (s *Server) handleResultsImportAll(w http.ResponseWriter, r *http.Request) {
	var req importAllRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.importer.ImportAll(r.Context(), req.Tournaments))
}

func (s *Server) handlePlayersList(w http.ResponseWriter, r *http.Request) {
	players, err := s.store.ListPlayers(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	out := make([]playerResponse, 0, len(players))
	for _, p := range players {
		out = append(out, playerResponse{ID: p.ID, WespaID: p.WespaID, Name: p.Name, Country: p.Country})
	}
	writeJSON(w, http.StatusOK, out)
}
