package web

import (
	"errors"
	"net/http"
	"strings"

	"circuit-ytd/internal/model"
	"circuit-ytd/internal/store"

	"github.com/go-chi/chi/v5"
)

type yearRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	IsActive  bool   `json:"is_active"`
}

func (s *Server) handleYearsList(w http.ResponseWriter, r *http.Request) {
	years, err := s.store.ListYearConfigs(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	out := make([]yearResponse, 0, len(years))
	for _, y := range years {
		out = append(out, newYearResponse(y))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleYearActive(w http.ResponseWriter, r *http.Request) {
	year, err := s.store.ActiveYearConfig(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no year configured")
		return
	}
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newYearResponse(year))
}

func (s *Server) handleYearSave(w http.ResponseWriter, r *http.Request) {
	var req yearRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := model.ParseDay(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		return
	}
	end, err := model.ParseDay(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
		return
	}
	status := http.StatusCreated
	if req.ID != "" {
		if _, err := s.store.GetYearConfig(r.Context(), req.ID); err != nil {
			s.writeErr(w, r, err)
			return
		}
		status = http.StatusOK
	}
	year, err := s.store.SaveYearConfig(r.Context(), model.YearConfig{
		ID:        req.ID,
		Name:      strings.TrimSpace(req.Name),
		StartDate: start,
		EndDate:   end,
		IsActive:  req.IsActive,
	})
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	// a changed date range makes the cached snapshot stale
	s.standings.ForgetYear(r.Context(), year.ID)
	writeJSON(w, status, newYearResponse(year))
}

func (s *Server) handleYearDelete(w http.ResponseWriter, r *http.Request) {
	yearID := chi.URLParam(r, "yearID")
	if err := s.store.DeleteYearConfig(r.Context(), yearID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.standings.ForgetYear(r.Context(), yearID)
	w.WriteHeader(http.StatusNoContent)
}
