package web

import (
	"net/http"
	"time"

	"circuit-ytd/internal/results"
	"circuit-ytd/internal/standings"
	"circuit-ytd/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type Server struct {
	store      store.Store
	standings  *standings.Service
	importer   *results.Importer
	log        *logrus.Entry
	adminHash  string
	corsOrigin string
	timeout    time.Duration
}

type Options struct {
	// AdminTokenHash is a bcrypt hash; admin routes answer 403 when empty.
	AdminTokenHash string
	CorsOrigin     string
	RequestTimeout time.Duration
	Logger         *logrus.Logger
}

func NewServer(st store.Store, svc *standings.Service, importer *results.Importer, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.CorsOrigin == "" {
		opts.CorsOrigin = "*"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Server{
		store:      st,
		standings:  svc,
		importer:   importer,
		log:        opts.Logger.WithField("component", "http"),
		adminHash:  opts.AdminTokenHash,
		corsOrigin: opts.CorsOrigin,
		timeout:    opts.RequestTimeout,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.withRequestLog)
	r.Use(middleware.Recoverer)
	r.Use(s.withCORS)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.With(s.requireAdmin).Post("/calculate-ytd-cached", s.handleCalculateYTDCached)

	r.Route("/api", func(r chi.Router) {
		r.Get("/years", s.handleYearsList)
		r.Get("/years/active", s.handleYearActive)
		r.Get("/years/{yearID}/standings", s.handleStandings)
		r.Get("/years/{yearID}/missing-results", s.handleMissingResults)
		r.Get("/tournaments", s.handleTournamentsList)
		r.Get("/players", s.handlePlayersList)
		r.Get("/points", s.handlePointsGet)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/years", s.handleYearSave)
			r.Delete("/years/{yearID}", s.handleYearDelete)
			r.Post("/years/{yearID}/standings/calculate", s.handleStandingsCalculate)
			r.Post("/tournaments", s.handleTournamentCreate)
			r.Put("/tournaments/{tournamentID}/category", s.handleTournamentCategory)
			r.Post("/tournaments/{tournamentID}/results", s.handleResultsImport)
			r.Post("/results/import", s.handleResultsImportAll)
			r.Put("/points", s.handlePointsPut)
		})
	})

	return r
}
