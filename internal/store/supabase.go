package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"circuit-ytd/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

// SupabaseStore talks to the hosted Postgres through PostgREST. PostgREST
// has no multi-statement transactions, so ReplaceStandings is a delete
// followed by an insert: a failed insert leaves the snapshot empty and the
// caller must retry.
type SupabaseStore struct {
	client  *supabase.Client
	breaker *gobreaker.CircuitBreaker
	log     *logrus.Entry
}

type SupabaseOptions struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int
	OpenTimeout      time.Duration
	Logger           *logrus.Logger
}

func NewSupabaseStore(url, serviceKey string, opts SupabaseOptions) (*SupabaseStore, error) {
	if strings.TrimSpace(url) == "" || strings.TrimSpace(serviceKey) == "" {
		return nil, errors.New("supabase url and service key are required")
	}
	client, err := supabase.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("component", "supabase_store")
	threshold := opts.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	timeout := opts.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "supabase",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return &SupabaseStore{client: client, breaker: breaker, log: log}, nil
}

// postgrest-go reports failures as "(code) message".
var postgrestCode = regexp.MustCompile(`^\(([0-9A-Z]+)\)`)

// isClientError reports whether PostgREST rejected the request itself:
// constraint and data errors, bad columns, malformed requests, auth. Those
// say nothing about the health of the backend.
func isClientError(err error) bool {
	m := postgrestCode.FindStringSubmatch(err.Error())
	if m == nil {
		return false
	}
	code := m[1]
	for _, prefix := range []string{"22", "23", "42", "PGRST1", "PGRST2", "PGRST3"} {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}

// call runs one PostgREST request behind the breaker. The postgrest client
// has no context support, so ctx is only checked before the request.
func (s *SupabaseStore) call(ctx context.Context, op string, fn func() ([]byte, error)) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	body, _ := out.([]byte)
	return body, nil
}

func (s *SupabaseStore) fetch(ctx context.Context, op string, dest any, fn func() ([]byte, error)) error {
	body, err := s.call(ctx, op, fn)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

type supabaseYear struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func (y supabaseYear) model() model.YearConfig {
	start, _ := model.ParseDay(y.StartDate)
	end, _ := model.ParseDay(y.EndDate)
	return model.YearConfig{ID: y.ID, Name: y.Name, StartDate: start, EndDate: end, IsActive: y.IsActive, CreatedAt: y.CreatedAt}
}

type supabaseTournament struct {
	ID       string  `json:"id"`
	WespaID  int     `json:"wespa_id"`
	Name     string  `json:"name"`
	Date     string  `json:"date"`
	Category *string `json:"category"`
	URL      string  `json:"url"`
}

func (t supabaseTournament) model() model.Tournament {
	date, _ := model.ParseDay(t.Date)
	out := model.Tournament{ID: t.ID, WespaID: t.WespaID, Name: t.Name, Date: date, URL: t.URL}
	if t.Category != nil {
		out.Category = model.Category(*t.Category)
	}
	return out
}

type supabasePlayer struct {
	ID      string  `json:"id,omitempty"`
	WespaID int     `json:"wespa_id"`
	Name    string  `json:"name"`
	Country *string `json:"country,omitempty"`
}

// playerUpsert is the bulk upsert payload. Every object carries the same
// keys, PostgREST rejects a batch whose objects differ.
type playerUpsert struct {
	WespaID int    `json:"wespa_id"`
	Name    string `json:"name"`
}

type supabaseResult struct {
	ID           string `json:"id,omitempty"`
	TournamentID string `json:"tournament_id"`
	PlayerID     string `json:"player_id"`
	Position     int    `json:"position"`
	TotalPlayers int    `json:"total_players"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	Byes         int    `json:"byes"`
	Spread       int    `json:"spread"`
	OldRating    *int   `json:"old_rating"`
	NewRating    *int   `json:"new_rating"`
	RatingChange *int   `json:"rating_change"`
	Players      *struct {
		Name string `json:"name"`
	} `json:"players,omitempty"`
}

// supabasePointsRow maps points_config. The table has no ordering column;
// points.NewTable orders the rows.
type supabasePointsRow struct {
	ID            string `json:"id,omitempty"`
	PositionRange string `json:"position_range"`
	Platinum      int    `json:"platinum"`
	Gold          int    `json:"gold"`
	Silver        int    `json:"silver"`
	Bronze        int    `json:"bronze"`
	Invitational  int    `json:"invitational"`
}

type supabaseStanding struct {
	YearConfigID      string    `json:"year_config_id"`
	PlayerID          string    `json:"player_id"`
	PlayerName        string    `json:"player_name"`
	TotalPoints       int       `json:"total_points"`
	TournamentsPlayed int       `json:"tournaments_played"`
	BestFinish        int       `json:"best_finish"`
	LastUpdated       time.Time `json:"last_updated"`
}

func (s *SupabaseStore) ListYearConfigs(ctx context.Context) ([]model.YearConfig, error) {
	var rows []supabaseYear
	err := s.fetch(ctx, "list year configs", &rows, func() ([]byte, error) {
		data, _, err := s.client.From("year_configs").Select("*", "", false).
			Order("start_date", &postgrest.OrderOpts{Ascending: false}).
			Execute()
		return data, err
	})
	if err != nil {
		return nil, err
	}
	years := make([]model.YearConfig, 0, len(rows))
	for _, r := range rows {
		years = append(years, r.model())
	}
	sortYears(years)
	return years, nil
}

func (s *SupabaseStore) GetYearConfig(ctx context.Context, id string) (model.YearConfig, error) {
	var rows []supabaseYear
	err := s.fetch(ctx, "get year config", &rows, func() ([]byte, error) {
		data, _, err := s.client.From("year_configs").Select("*", "", false).Eq("id", id).Execute()
		return data, err
	})
	if err != nil {
		return model.YearConfig{}, err
	}
	if len(rows) == 0 {
		return model.YearConfig{}, ErrNotFound
	}
	return rows[0].model(), nil
}

func (s *SupabaseStore) ActiveYearConfig(ctx context.Context) (model.YearConfig, error) {
	years, err := s.ListYearConfigs(ctx)
	if err != nil {
		return model.YearConfig{}, err
	}
	return pickActiveYear(years)
}

func (s *SupabaseStore) SaveYearConfig(ctx context.Context, year model.YearConfig) (model.YearConfig, error) {
	if err := validateYear(year); err != nil {
		return model.YearConfig{}, err
	}
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	if year.IsActive {
		_, err := s.call(ctx, "deactivate years", func() ([]byte, error) {
			data, _, err := s.client.From("year_configs").
				Update(map[string]any{"is_active": false}, "minimal", "").
				Eq("is_active", "true").Neq("id", year.ID).
				Execute()
			return data, err
		})
		if err != nil {
			return model.YearConfig{}, err
		}
	}
	row := map[string]any{
		"id":         year.ID,
		"name":       year.Name,
		"start_date": model.Day(year.StartDate).Format(model.DateLayout),
		"end_date":   model.Day(year.EndDate).Format(model.DateLayout),
		"is_active":  year.IsActive,
	}
	var saved []supabaseYear
	err := s.fetch(ctx, "save year config", &saved, func() ([]byte, error) {
		data, _, err := s.client.From("year_configs").Upsert(row, "id", "representation", "").Execute()
		return data, err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return model.YearConfig{}, invalid("year name already exists")
		}
		return model.YearConfig{}, err
	}
	if len(saved) == 0 {
		return s.GetYearConfig(ctx, year.ID)
	}
	return saved[0].model(), nil
}

func (s *SupabaseStore) DeleteYearConfig(ctx context.Context, id string) error {
	if _, err := s.GetYearConfig(ctx, id); err != nil {
		return err
	}
	if _, err := s.call(ctx, "delete standings", func() ([]byte, error) {
		data, _, err := s.client.From("ytd_standings").Delete("minimal", "").Eq("year_config_id", id).Execute()
		return data, err
	}); err != nil {
		return err
	}
	_, err := s.call(ctx, "delete year config", func() ([]byte, error) {
		data, _, err := s.client.From("year_configs").Delete("minimal", "").Eq("id", id).Execute()
		return data, err
	})
	return err
}

func (s *SupabaseStore) ListTournaments(ctx context.Context, from, to time.Time) ([]model.Tournament, error) {
	return s.listTournaments(ctx, from, to, false)
}

func (s *SupabaseStore) ListTaggedTournaments(ctx context.Context, from, to time.Time) ([]model.Tournament, error) {
	return s.listTournaments(ctx, from, to, true)
}

func (s *SupabaseStore) listTournaments(ctx context.Context, from, to time.Time, taggedOnly bool) ([]model.Tournament, error) {
	var rows []supabaseTournament
	err := s.fetch(ctx, "list tournaments", &rows, func() ([]byte, error) {
		q := s.client.From("tournaments").Select("*", "", false).
			Gte("date", model.Day(from).Format(model.DateLayout)).
			Lte("date", model.Day(to).Format(model.DateLayout))
		if taggedOnly {
			q = q.Not("category", "is", "null")
		}
		data, _, err := q.Order("date", &postgrest.OrderOpts{Ascending: true}).Execute()
		return data, err
	})
	if err != nil {
		return nil, err
	}
	tournaments := make([]model.Tournament, 0, len(rows))
	for _, r := range rows {
		tournaments = append(tournaments, r.model())
	}
	return tournaments, nil
}

func (s *SupabaseStore) GetTournament(ctx context.Context, id string) (model.Tournament, error) {
	var rows []supabaseTournament
	err := s.fetch(ctx, "get tournament", &rows, func() ([]byte, error) {
		data, _, err := s.client.From("tournaments").Select("*", "", false).Eq("id", id).Execute()
		return data, err
	})
	if err != nil {
		return model.Tournament{}, err
	}
	if len(rows) == 0 {
		return model.Tournament{}, ErrNotFound
	}
	return rows[0].model(), nil
}

func (s *SupabaseStore) CreateTournament(ctx context.Context, tournament model.Tournament) (model.Tournament, error) {
	if err := validateTournament(tournament); err != nil {
		return model.Tournament{}, err
	}
	if tournament.ID == "" {
		tournament.ID = uuid.NewString()
	}
	tournament.Date = model.Day(tournament.Date)
	row := supabaseTournament{
		ID:      tournament.ID,
		WespaID: tournament.WespaID,
		Name:    tournament.Name,
		Date:    tournament.Date.Format(model.DateLayout),
		URL:     tournament.URL,
	}
	if tournament.Category != "" {
		c := string(tournament.Category)
		row.Category = &c
	}
	_, err := s.call(ctx, "create tournament", func() ([]byte, error) {
		data, _, err := s.client.From("tournaments").Insert(row, false, "", "minimal", "").Execute()
		return data, err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return model.Tournament{}, invalid("tournament already exists")
		}
		return model.Tournament{}, err
	}
	return tournament, nil
}

func (s *SupabaseStore) SetTournamentCategory(ctx context.Context, id string, category model.Category) error {
	if category != "" && !category.Valid() {
		return invalid("invalid category")
	}
	var value any
	if category != "" {
		value = string(category)
	}
	var updated []supabaseTournament
	err := s.fetch(ctx, "set tournament category", &updated, func() ([]byte, error) {
		data, _, err := s.client.From("tournaments").
			Update(map[string]any{"category": value}, "representation", "").
			Eq("id", id).
			Execute()
		return data, err
	})
	if err != nil {
		return err
	}
	if len(updated) == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SupabaseStore) ListPlayers(ctx context.Context) ([]model.Player, error) {
	var rows []supabasePlayer
	err := s.fetch(ctx, "list players", &rows, func() ([]byte, error) {
		data, _, err := s.client.From("players").Select("*", "", false).
			Order("name", &postgrest.OrderOpts{Ascending: true}).
			Execute()
		return data, err
	})
	if err != nil {
		return nil, err
	}
	return playersFromRows(rows), nil
}

func (s *SupabaseStore) UpsertPlayers(ctx context.Context, players []model.Player) ([]model.Player, error) {
	if len(players) == 0 {
		return []model.Player{}, nil
	}
	rows := make([]playerUpsert, 0, len(players))
	for _, p := range players {
		if p.WespaID == 0 {
			return nil, invalid("player wespa id is required")
		}
		rows = append(rows, playerUpsert{WespaID: p.WespaID, Name: p.Name})
	}
	var saved []supabasePlayer
	err := s.fetch(ctx, "upsert players", &saved, func() ([]byte, error) {
		data, _, err := s.client.From("players").Upsert(rows, "wespa_id", "representation", "").Execute()
		return data, err
	})
	if err != nil {
		return nil, err
	}
	byWespa := make(map[int]model.Player, len(saved))
	for _, p := range playersFromRows(saved) {
		byWespa[p.WespaID] = p
	}
	// a known country is written separately so an unknown one keeps the stored value
	for _, p := range players {
		if p.Country == "" {
			continue
		}
		_, err := s.call(ctx, "set player country", func() ([]byte, error) {
			data, _, err := s.client.From("players").
				Update(map[string]any{"country": p.Country}, "minimal", "").
				Eq("wespa_id", strconv.Itoa(p.WespaID)).
				Execute()
			return data, err
		})
		if err != nil {
			return nil, err
		}
		if sp, ok := byWespa[p.WespaID]; ok {
			sp.Country = p.Country
			byWespa[p.WespaID] = sp
		}
	}
	stored := make([]model.Player, 0, len(players))
	for _, p := range players {
		if sp, ok := byWespa[p.WespaID]; ok {
			stored = append(stored, sp)
		}
	}
	return stored, nil
}

func playersFromRows(rows []supabasePlayer) []model.Player {
	players := make([]model.Player, 0, len(rows))
	for _, r := range rows {
		p := model.Player{ID: r.ID, WespaID: r.WespaID, Name: r.Name}
		if r.Country != nil {
			p.Country = *r.Country
		}
		players = append(players, p)
	}
	return players
}

func (s *SupabaseStore) HasResults(ctx context.Context, tournamentID string) (bool, error) {
	var rows []struct {
		ID string `json:"id"`
	}
	err := s.fetch(ctx, "check results", &rows, func() ([]byte, error) {
		data, _, err := s.client.From("tournament_results").Select("id", "", false).
			Eq("tournament_id", tournamentID).
			Limit(1, "").
			Execute()
		return data, err
	})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (s *SupabaseStore) ListResults(ctx context.Context, tournamentID string) ([]model.TournamentResult, error) {
	var rows []supabaseResult
	err := s.fetch(ctx, "list results", &rows, func() ([]byte, error) {
		data, _, err := s.client.From("tournament_results").Select("*, players(name)", "", false).
			Eq("tournament_id", tournamentID).
			Order("position", &postgrest.OrderOpts{Ascending: true}).
			Execute()
		return data, err
	})
	if err != nil {
		return nil, err
	}
	results := make([]model.TournamentResult, 0, len(rows))
	for _, r := range rows {
		result := model.TournamentResult{
			ID:           r.ID,
			TournamentID: r.TournamentID,
			PlayerID:     r.PlayerID,
			Position:     r.Position,
			TotalPlayers: r.TotalPlayers,
			Wins:         r.Wins,
			Losses:       r.Losses,
			Byes:         r.Byes,
			Spread:       r.Spread,
			OldRating:    r.OldRating,
			NewRating:    r.NewRating,
			RatingChange: r.RatingChange,
		}
		if r.Players != nil {
			result.PlayerName = r.Players.Name
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *SupabaseStore) InsertResults(ctx context.Context, results []model.TournamentResult) error {
	if len(results) == 0 {
		return nil
	}
	rows := make([]supabaseResult, 0, len(results))
	for _, r := range results {
		if err := validateResult(r); err != nil {
			return err
		}
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		rows = append(rows, supabaseResult{
			ID:           id,
			TournamentID: r.TournamentID,
			PlayerID:     r.PlayerID,
			Position:     r.Position,
			TotalPlayers: r.TotalPlayers,
			Wins:         r.Wins,
			Losses:       r.Losses,
			Byes:         r.Byes,
			Spread:       r.Spread,
			OldRating:    r.OldRating,
			NewRating:    r.NewRating,
			RatingChange: r.RatingChange,
		})
	}
	_, err := s.call(ctx, "insert results", func() ([]byte, error) {
		data, _, err := s.client.From("tournament_results").Insert(rows, false, "", "minimal", "").Execute()
		return data, err
	})
	if err != nil && isUniqueViolation(err) {
		return invalid("result already exists")
	}
	return err
}

func (s *SupabaseStore) ListPointsRows(ctx context.Context) ([]model.PointsRow, error) {
	var rows []supabasePointsRow
	err := s.fetch(ctx, "list points", &rows, func() ([]byte, error) {
		data, _, err := s.client.From("points_config").Select("*", "", false).
			Order("id", &postgrest.OrderOpts{Ascending: true}).
			Execute()
		return data, err
	})
	if err != nil {
		return nil, err
	}
	table := make([]model.PointsRow, 0, len(rows))
	for _, r := range rows {
		table = append(table, model.PointsRow{
			ID:            r.ID,
			PositionRange: r.PositionRange,
			Platinum:      r.Platinum,
			Gold:          r.Gold,
			Silver:        r.Silver,
			Bronze:        r.Bronze,
			Invitational:  r.Invitational,
		})
	}
	return table, nil
}

func (s *SupabaseStore) ReplacePointsRows(ctx context.Context, rows []model.PointsRow) error {
	// PostgREST refuses an unfiltered delete; every uuid is >= the nil uuid
	if _, err := s.call(ctx, "clear points", func() ([]byte, error) {
		data, _, err := s.client.From("points_config").Delete("minimal", "").Gte("id", uuid.Nil.String()).Execute()
		return data, err
	}); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	payload := make([]supabasePointsRow, 0, len(rows))
	for _, r := range rows {
		payload = append(payload, supabasePointsRow{
			PositionRange: r.PositionRange,
			Platinum:      r.Platinum,
			Gold:          r.Gold,
			Silver:        r.Silver,
			Bronze:        r.Bronze,
			Invitational:  r.Invitational,
		})
	}
	_, err := s.call(context.WithoutCancel(ctx), "insert points", func() ([]byte, error) {
		data, _, err := s.client.From("points_config").Insert(payload, false, "", "minimal", "").Execute()
		return data, err
	})
	return err
}

func (s *SupabaseStore) ListStandings(ctx context.Context, yearConfigID string) ([]model.YTDStanding, error) {
	var rows []supabaseStanding
	err := s.fetch(ctx, "list standings", &rows, func() ([]byte, error) {
		data, _, err := s.client.From("ytd_standings").Select("*", "", false).
			Eq("year_config_id", yearConfigID).
			Order("total_points", &postgrest.OrderOpts{Ascending: false}).
			Execute()
		return data, err
	})
	if err != nil {
		return nil, err
	}
	standings := make([]model.YTDStanding, 0, len(rows))
	for _, r := range rows {
		standings = append(standings, model.YTDStanding{
			YearConfigID:      r.YearConfigID,
			PlayerID:          r.PlayerID,
			PlayerName:        r.PlayerName,
			TotalPoints:       r.TotalPoints,
			TournamentsPlayed: r.TournamentsPlayed,
			BestFinish:        r.BestFinish,
			LastUpdated:       r.LastUpdated,
		})
	}
	return standings, nil
}

func (s *SupabaseStore) ReplaceStandings(ctx context.Context, yearConfigID string, standings []model.YTDStanding) error {
	if _, err := s.GetYearConfig(ctx, yearConfigID); err != nil {
		return err
	}
	if _, err := s.call(ctx, "clear standings", func() ([]byte, error) {
		data, _, err := s.client.From("ytd_standings").Delete("minimal", "").Eq("year_config_id", yearConfigID).Execute()
		return data, err
	}); err != nil {
		return err
	}
	if len(standings) == 0 {
		return nil
	}
	rows := make([]supabaseStanding, 0, len(standings))
	for _, st := range standings {
		rows = append(rows, supabaseStanding{
			YearConfigID:      yearConfigID,
			PlayerID:          st.PlayerID,
			PlayerName:        st.PlayerName,
			TotalPoints:       st.TotalPoints,
			TournamentsPlayed: st.TournamentsPlayed,
			BestFinish:        st.BestFinish,
			LastUpdated:       st.LastUpdated.UTC(),
		})
	}
	// the snapshot is already cleared, finish even if the caller has gone
	_, err := s.call(context.WithoutCancel(ctx), "insert standings", func() ([]byte, error) {
		data, _, err := s.client.From("ytd_standings").Insert(rows, false, "", "minimal", "").Execute()
		return data, err
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"year_config_id": yearConfigID,
			"rows":           len(rows),
		}).WithError(err).Error("Standings cleared but insert failed")
	}
	return err
}

func (s *SupabaseStore) Close() error {
	return nil
}
