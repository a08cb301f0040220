package web

import (
	"errors"
	"net/http"

	"circuit-ytd/internal/points"
	"circuit-ytd/internal/results"
	"circuit-ytd/internal/standings"
	"circuit-ytd/internal/store"
)

// errorStatus maps domain errors to a status and a message safe to show.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, standings.ErrYearNotFound):
		return http.StatusNotFound, "Year configuration not found"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, points.ErrInvalidTable), errors.Is(err, results.ErrInvalidRows), store.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, standings.ErrPersistence):
		return http.StatusInternalServerError, standings.ErrPersistence.Error()
	case errors.Is(err, standings.ErrUpstreamRead):
		return http.StatusInternalServerError, standings.ErrUpstreamRead.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("http_path", r.URL.Path).Error("request error")
	}
	writeError(w, status, msg)
}
