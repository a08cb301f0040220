package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"circuit-ytd/internal/model"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu          sync.RWMutex
	years       map[string]model.YearConfig
	tournaments map[string]model.Tournament
	players     map[string]model.Player
	results     map[string][]model.TournamentResult
	points      []model.PointsRow
	standings   map[string][]model.YTDStanding
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		years:       make(map[string]model.YearConfig),
		tournaments: make(map[string]model.Tournament),
		players:     make(map[string]model.Player),
		results:     make(map[string][]model.TournamentResult),
		standings:   make(map[string][]model.YTDStanding),
	}
}

func (s *MemoryStore) ListYearConfigs(ctx context.Context) ([]model.YearConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	years := make([]model.YearConfig, 0, len(s.years))
	for _, y := range s.years {
		years = append(years, y)
	}
	sortYears(years)
	return years, nil
}

func (s *MemoryStore) GetYearConfig(ctx context.Context, id string) (model.YearConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	y, ok := s.years[id]
	if !ok {
		return model.YearConfig{}, ErrNotFound
	}
	return y, nil
}

func (s *MemoryStore) ActiveYearConfig(ctx context.Context) (model.YearConfig, error) {
	years, _ := s.ListYearConfigs(ctx)
	return pickActiveYear(years)
}

func (s *MemoryStore) SaveYearConfig(ctx context.Context, year model.YearConfig) (model.YearConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateYear(year); err != nil {
		return model.YearConfig{}, err
	}
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	for id, existing := range s.years {
		if id != year.ID && strings.EqualFold(existing.Name, year.Name) {
			return model.YearConfig{}, invalid("year name already exists")
		}
	}
	if existing, ok := s.years[year.ID]; ok && year.CreatedAt.IsZero() {
		year.CreatedAt = existing.CreatedAt
	}
	if year.CreatedAt.IsZero() {
		year.CreatedAt = time.Now()
	}
	year.StartDate = model.Day(year.StartDate)
	year.EndDate = model.Day(year.EndDate)
	if year.IsActive {
		for id, existing := range s.years {
			if existing.IsActive && id != year.ID {
				existing.IsActive = false
				s.years[id] = existing
			}
		}
	}
	s.years[year.ID] = year
	return year, nil
}

func (s *MemoryStore) DeleteYearConfig(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.years[id]; !ok {
		return ErrNotFound
	}
	delete(s.standings, id)
	delete(s.years, id)
	return nil
}

func (s *MemoryStore) ListTournaments(ctx context.Context, from, to time.Time) ([]model.Tournament, error) {
	return s.listTournaments(from, to, false), nil
}

func (s *MemoryStore) ListTaggedTournaments(ctx context.Context, from, to time.Time) ([]model.Tournament, error) {
	return s.listTournaments(from, to, true), nil
}

func (s *MemoryStore) listTournaments(from, to time.Time, taggedOnly bool) []model.Tournament {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window := model.YearConfig{StartDate: from, EndDate: to}
	tournaments := []model.Tournament{}
	for _, t := range s.tournaments {
		if taggedOnly && !t.Tagged() {
			continue
		}
		if !window.Contains(t.Date) {
			continue
		}
		tournaments = append(tournaments, t)
	}
	sort.Slice(tournaments, func(i, j int) bool {
		if tournaments[i].Date.Equal(tournaments[j].Date) {
			return tournaments[i].Name < tournaments[j].Name
		}
		return tournaments[i].Date.Before(tournaments[j].Date)
	})
	return tournaments
}

func (s *MemoryStore) GetTournament(ctx context.Context, id string) (model.Tournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tournaments[id]
	if !ok {
		return model.Tournament{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) CreateTournament(ctx context.Context, tournament model.Tournament) (model.Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateTournament(tournament); err != nil {
		return model.Tournament{}, err
	}
	if tournament.ID == "" {
		tournament.ID = uuid.NewString()
	}
	for _, existing := range s.tournaments {
		if existing.WespaID == tournament.WespaID {
			return model.Tournament{}, invalid("tournament already exists")
		}
	}
	tournament.Date = model.Day(tournament.Date)
	s.tournaments[tournament.ID] = tournament
	return tournament, nil
}

func (s *MemoryStore) SetTournamentCategory(ctx context.Context, id string, category model.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category != "" && !category.Valid() {
		return invalid("invalid category")
	}
	t, ok := s.tournaments[id]
	if !ok {
		return ErrNotFound
	}
	t.Category = category
	s.tournaments[id] = t
	return nil
}

func (s *MemoryStore) ListPlayers(ctx context.Context) ([]model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]model.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Name < players[j].Name })
	return players, nil
}

func (s *MemoryStore) UpsertPlayers(ctx context.Context, players []model.Player) ([]model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byWespa := make(map[int]string, len(s.players))
	for id, p := range s.players {
		byWespa[p.WespaID] = id
	}
	stored := make([]model.Player, 0, len(players))
	for _, p := range players {
		if p.WespaID == 0 {
			return nil, invalid("player wespa id is required")
		}
		if id, ok := byWespa[p.WespaID]; ok {
			existing := s.players[id]
			existing.Name = p.Name
			if p.Country != "" {
				existing.Country = p.Country
			}
			s.players[id] = existing
			stored = append(stored, existing)
			continue
		}
		p.ID = uuid.NewString()
		s.players[p.ID] = p
		byWespa[p.WespaID] = p.ID
		stored = append(stored, p)
	}
	return stored, nil
}

func (s *MemoryStore) HasResults(ctx context.Context, tournamentID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.results[tournamentID]) > 0, nil
}

func (s *MemoryStore) ListResults(ctx context.Context, tournamentID string) ([]model.TournamentResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.results[tournamentID]
	results := make([]model.TournamentResult, 0, len(rows))
	for _, r := range rows {
		if p, ok := s.players[r.PlayerID]; ok {
			r.PlayerName = p.Name
		}
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Position < results[j].Position })
	return results, nil
}

func (s *MemoryStore) InsertResults(ctx context.Context, results []model.TournamentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct{ tournament, player string }
	seen := map[key]bool{}
	for _, rows := range s.results {
		for _, r := range rows {
			seen[key{r.TournamentID, r.PlayerID}] = true
		}
	}
	for _, r := range results {
		if err := validateResult(r); err != nil {
			return err
		}
		if _, ok := s.tournaments[r.TournamentID]; !ok {
			return invalid("tournament not found")
		}
		if _, ok := s.players[r.PlayerID]; !ok {
			return invalid("player not found")
		}
		k := key{r.TournamentID, r.PlayerID}
		if seen[k] {
			return invalid("result already exists")
		}
		seen[k] = true
	}
	for _, r := range results {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.PlayerName = ""
		s.results[r.TournamentID] = append(s.results[r.TournamentID], r)
	}
	return nil
}

func (s *MemoryStore) ListPointsRows(ctx context.Context) ([]model.PointsRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]model.PointsRow, len(s.points))
	copy(rows, s.points)
	return rows, nil
}

func (s *MemoryStore) ReplacePointsRows(ctx context.Context, rows []model.PointsRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := make([]model.PointsRow, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		replaced = append(replaced, row)
	}
	s.points = replaced
	return nil
}

func (s *MemoryStore) ListStandings(ctx context.Context, yearConfigID string) ([]model.YTDStanding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]model.YTDStanding, len(s.standings[yearConfigID]))
	copy(rows, s.standings[yearConfigID])
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TotalPoints > rows[j].TotalPoints })
	return rows, nil
}

func (s *MemoryStore) ReplaceStandings(ctx context.Context, yearConfigID string, standings []model.YTDStanding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.years[yearConfigID]; !ok {
		return ErrNotFound
	}
	rows := make([]model.YTDStanding, 0, len(standings))
	for _, st := range standings {
		st.YearConfigID = yearConfigID
		rows = append(rows, st)
	}
	if len(rows) == 0 {
		delete(s.standings, yearConfigID)
		return nil
	}
	s.standings[yearConfigID] = rows
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
