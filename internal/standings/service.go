package standings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"circuit-ytd/internal/cache"
	"circuit-ytd/internal/model"
	"circuit-ytd/internal/points"
	"circuit-ytd/internal/store"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var (
	ErrYearNotFound = errors.New("year configuration not found")
	ErrUpstreamRead = errors.New("failed to read standings inputs")
	ErrPersistence  = errors.New("failed to save standings, retry the calculation")
)

// MissingTournament identifies a tournament skipped for lack of cached results.
type MissingTournament struct {
	ID      string `json:"id"`
	WespaID int    `json:"wespa_id"`
	Name    string `json:"name"`
}

type Summary struct {
	YearConfigID       string              `json:"year_config_id"`
	PlayerCount        int                 `json:"player_count"`
	TournamentCount    int                 `json:"tournament_count"`
	ProcessedCount     int                 `json:"processed_count"`
	MissingTournaments []MissingTournament `json:"missing_tournaments,omitempty"`
	Message            string              `json:"message"`
	CalculatedAt       time.Time           `json:"calculated_at"`
}

type Options struct {
	Cache    cache.Cache
	CacheTTL time.Duration
	// RunTimeout bounds one recalculation. Callers going away do not stop it.
	RunTimeout time.Duration
	Logger     *logrus.Logger
	Now        func() time.Time
}

const defaultRunTimeout = 2 * time.Minute

type Service struct {
	store      store.Store
	cache      cache.Cache
	cacheTTL   time.Duration
	runTimeout time.Duration
	log        *logrus.Entry
	now        func() time.Time
	runs       singleflight.Group

	// generations counts snapshot replacements per year so a reader that
	// raced a recalculation does not cache what it read.
	mu          sync.Mutex
	generations map[string]uint64
}

func NewService(st store.Store, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NewMemoryCache()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = defaultRunTimeout
	}
	return &Service{
		store:       st,
		cache:       opts.Cache,
		cacheTTL:    opts.CacheTTL,
		runTimeout:  opts.RunTimeout,
		log:         opts.Logger.WithField("component", "standings"),
		now:         opts.Now,
		generations: make(map[string]uint64),
	}
}

func (s *Service) generation(yearConfigID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[yearConfigID]
}

func (s *Service) bumpGeneration(yearConfigID string) {
	s.mu.Lock()
	s.generations[yearConfigID]++
	s.mu.Unlock()
}

// Recalculate rebuilds and replaces the standings snapshot of a year.
// Concurrent calls for the same year share one run and its result. The run
// is detached from ctx: a caller that gives up gets ctx.Err() while the run
// goes on to completion, bounded by the run timeout.
func (s *Service) Recalculate(ctx context.Context, yearConfigID string) (Summary, error) {
	ch := s.runs.DoChan(yearConfigID, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.runTimeout)
		defer cancel()
		return s.recalculate(runCtx, yearConfigID)
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.log.WithField("year_config_id", yearConfigID).Debug("joined running calculation")
		}
		if res.Err != nil {
			return Summary{}, res.Err
		}
		return res.Val.(Summary), nil
	}
}

func (s *Service) recalculate(ctx context.Context, yearConfigID string) (Summary, error) {
	log := s.log.WithField("year_config_id", yearConfigID)

	year, err := s.year(ctx, yearConfigID)
	if err != nil {
		return Summary{}, err
	}
	tournaments, err := s.store.ListTaggedTournaments(ctx, year.StartDate, year.EndDate)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: tournaments: %w", ErrUpstreamRead, err)
	}
	// points are read fresh on every run, never from the cache
	pointsRows, err := s.store.ListPointsRows(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: points table: %w", ErrUpstreamRead, err)
	}
	table := points.NewTable(pointsRows)
	if table.Len() == 0 {
		return Summary{}, fmt.Errorf("%w: points table is empty", ErrUpstreamRead)
	}

	results := make(map[string][]model.TournamentResult, len(tournaments))
	for _, t := range tournaments {
		if !Eligible(year, t) {
			continue
		}
		rows, err := s.store.ListResults(ctx, t.ID)
		if err != nil {
			return Summary{}, fmt.Errorf("%w: results for %s: %w", ErrUpstreamRead, t.Name, err)
		}
		if len(rows) == 0 {
			log.WithField("tournament", t.Name).Warn("No cached results for tournament")
		}
		results[t.ID] = rows
	}

	now := s.now().UTC()
	outcome := Compute(year, tournaments, results, table, now)

	// neither the replace nor the invalidation is interruptible once started
	persistCtx := context.WithoutCancel(ctx)
	if err := s.store.ReplaceStandings(persistCtx, year.ID, outcome.Standings); err != nil {
		log.WithError(err).Error("Failed to replace standings")
		return Summary{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.bumpGeneration(year.ID)
	if err := s.cache.Delete(persistCtx, cache.StandingsKey(year.ID)); err != nil {
		log.WithError(err).Warn("Failed to invalidate cached standings")
	}

	summary := newSummary(year.ID, outcome, now)
	log.WithFields(logrus.Fields{
		"players":   summary.PlayerCount,
		"processed": summary.ProcessedCount,
		"missing":   len(summary.MissingTournaments),
	}).Info("Recalculated YTD standings")
	return summary, nil
}

func newSummary(yearConfigID string, outcome Outcome, now time.Time) Summary {
	summary := Summary{
		YearConfigID:    yearConfigID,
		PlayerCount:     len(outcome.Standings),
		TournamentCount: len(outcome.Considered),
		ProcessedCount:  outcome.Processed(),
		CalculatedAt:    now,
	}
	for _, t := range outcome.Missing {
		summary.MissingTournaments = append(summary.MissingTournaments, MissingTournament{ID: t.ID, WespaID: t.WespaID, Name: t.Name})
	}
	summary.Message = fmt.Sprintf("Successfully calculated YTD standings for %d players", summary.PlayerCount)
	if n := len(summary.MissingTournaments); n > 0 {
		summary.Message += fmt.Sprintf(". Note: %d tournament(s) have no cached results and were skipped.", n)
	}
	return summary
}

func (s *Service) year(ctx context.Context, yearConfigID string) (model.YearConfig, error) {
	year, err := s.store.GetYearConfig(ctx, yearConfigID)
	if errors.Is(err, store.ErrNotFound) {
		return model.YearConfig{}, fmt.Errorf("%w: %s", ErrYearNotFound, yearConfigID)
	}
	if err != nil {
		return model.YearConfig{}, fmt.Errorf("%w: year config: %w", ErrUpstreamRead, err)
	}
	return year, nil
}

// Standings returns the persisted snapshot of a year.
func (s *Service) Standings(ctx context.Context, yearConfigID string) ([]model.YTDStanding, error) {
	key := cache.StandingsKey(yearConfigID)
	var cached []model.YTDStanding
	if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Cache read failed")
	} else if hit {
		return cached, nil
	}

	if _, err := s.year(ctx, yearConfigID); err != nil {
		return nil, err
	}
	gen := s.generation(yearConfigID)
	rows, err := s.store.ListStandings(ctx, yearConfigID)
	if err != nil {
		return nil, fmt.Errorf("%w: standings: %w", ErrUpstreamRead, err)
	}
	Sort(rows)
	if s.generation(yearConfigID) != gen {
		return rows, nil
	}
	if err := s.cache.Set(ctx, key, rows, s.cacheTTL); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
	return rows, nil
}

// MissingResults lists the tournaments of a year that would be skipped.
func (s *Service) MissingResults(ctx context.Context, yearConfigID string) ([]model.Tournament, error) {
	year, err := s.year(ctx, yearConfigID)
	if err != nil {
		return nil, err
	}
	tournaments, err := s.store.ListTaggedTournaments(ctx, year.StartDate, year.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: tournaments: %w", ErrUpstreamRead, err)
	}
	missing := []model.Tournament{}
	for _, t := range tournaments {
		if !Eligible(year, t) {
			continue
		}
		has, err := s.store.HasResults(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: results for %s: %w", ErrUpstreamRead, t.Name, err)
		}
		if !has {
			missing = append(missing, t)
		}
	}
	return missing, nil
}

// PointsTable loads the points rows, preferring the cache.
func (s *Service) PointsTable(ctx context.Context) (*points.Table, error) {
	var rows []model.PointsRow
	hit, err := s.cache.Get(ctx, cache.PointsTableKey, &rows)
	if err != nil {
		s.log.WithError(err).Warn("Cache read failed for points table")
	}
	if hit && len(rows) > 0 {
		return points.NewTable(rows), nil
	}
	rows, err = s.store.ListPointsRows(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		if err := s.cache.Set(ctx, cache.PointsTableKey, rows, s.cacheTTL); err != nil {
			s.log.WithError(err).Warn("Cache write failed for points table")
		}
	}
	return points.NewTable(rows), nil
}

// ReplacePointsTable validates and saves a new points table. Standings are
// not recalculated.
func (s *Service) ReplacePointsTable(ctx context.Context, rows []model.PointsRow) error {
	if err := points.Validate(rows); err != nil {
		return err
	}
	if err := s.store.ReplacePointsRows(ctx, rows); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cache.PointsTableKey); err != nil {
		s.log.WithError(err).Warn("Failed to clear cached points table")
	}
	return nil
}

// ForgetYear drops cached data for a deleted year.
func (s *Service) ForgetYear(ctx context.Context, yearConfigID string) {
	if err := s.cache.Delete(ctx, cache.StandingsKey(yearConfigID)); err != nil {
		s.log.WithError(err).Warn("Failed to clear cached standings")
	}
}
