package web

import (
	"net/http"

	"circuit-ytd/internal/model"
)

type pointsRequest struct {
	Rows []pointsRowPayload `json:"rows"`
}

// handlePointsGet returns the rows in matching order.
func (s *Server) handlePointsGet(w http.ResponseWriter, r *http.Request) {
	table, err := s.standings.PointsTable(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	rows := table.Rows()
	out := make([]pointsRowPayload, 0, len(rows))
	for _, row := range rows {
		out = append(out, newPointsRowPayload(row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePointsPut(w http.ResponseWriter, r *http.Request) {
	var req pointsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows := make([]model.PointsRow, 0, len(req.Rows))
	for _, p := range req.Rows {
		rows = append(rows, p.model())
	}
	if err := s.standings.ReplacePointsTable(r.Context(), rows); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.handlePointsGet(w, r)
}
