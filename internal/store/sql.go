package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"circuit-ytd/internal/model"

	"github.com/google/uuid"
)

// dialect carries what differs between the Postgres and SQLite schemas.
// Queries are written with ? placeholders and rebound per dialect.
type dialect struct {
	name      string
	rebind    func(query string) string
	date      func(t time.Time) any
	timestamp func(t time.Time) any
}

var postgresDialect = dialect{
	name:      "postgres",
	rebind:    rebindDollar,
	date:      func(t time.Time) any { return model.Day(t) },
	timestamp: func(t time.Time) any { return t.UTC() },
}

var sqliteDialect = dialect{
	name:      "sqlite",
	rebind:    func(query string) string { return query },
	date:      func(t time.Time) any { return model.Day(t).Format(model.DateLayout) },
	timestamp: func(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) },
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlStore implements Store on database/sql for both SQL dialects.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

func (s *sqlStore) q(query string) string {
	return s.d.rebind(query)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const yearColumns = `id, name, start_date, end_date, is_active, created_at`

func (s *sqlStore) ListYearConfigs(ctx context.Context) ([]model.YearConfig, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+yearColumns+` FROM year_configs ORDER BY start_date DESC, name DESC`))
	if err != nil {
		return nil, fmt.Errorf("list year configs: %w", err)
	}
	defer rows.Close()

	years := []model.YearConfig{}
	for rows.Next() {
		year, err := scanYearRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan year config: %w", err)
		}
		years = append(years, year)
	}
	return years, rows.Err()
}

func (s *sqlStore) GetYearConfig(ctx context.Context, id string) (model.YearConfig, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+yearColumns+` FROM year_configs WHERE id = ?`), id)
	year, err := scanYearRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.YearConfig{}, ErrNotFound
	}
	if err != nil {
		return model.YearConfig{}, fmt.Errorf("get year config: %w", err)
	}
	return year, nil
}

func (s *sqlStore) ActiveYearConfig(ctx context.Context) (model.YearConfig, error) {
	years, err := s.ListYearConfigs(ctx)
	if err != nil {
		return model.YearConfig{}, err
	}
	return pickActiveYear(years)
}

func (s *sqlStore) SaveYearConfig(ctx context.Context, year model.YearConfig) (model.YearConfig, error) {
	if err := validateYear(year); err != nil {
		return model.YearConfig{}, err
	}
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	if year.CreatedAt.IsZero() {
		year.CreatedAt = time.Now()
	}
	year.StartDate = model.Day(year.StartDate)
	year.EndDate = model.Day(year.EndDate)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if year.IsActive {
			if _, err := tx.ExecContext(ctx, s.q(`UPDATE year_configs SET is_active = ? WHERE is_active = ? AND id <> ?`), false, true, year.ID); err != nil {
				return fmt.Errorf("deactivate years: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO year_configs (`+yearColumns+`) VALUES (?,?,?,?,?,?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, start_date = excluded.start_date, end_date = excluded.end_date, is_active = excluded.is_active`),
			year.ID, year.Name, s.d.date(year.StartDate), s.d.date(year.EndDate), year.IsActive, s.d.timestamp(year.CreatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return invalid("year name already exists")
			}
			return fmt.Errorf("save year config: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.YearConfig{}, err
	}
	return s.GetYearConfig(ctx, year.ID)
}

func (s *sqlStore) DeleteYearConfig(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM ytd_standings WHERE year_config_id = ?`), id); err != nil {
			return fmt.Errorf("delete standings: %w", err)
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM year_configs WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete year config: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

const tournamentColumns = `id, wespa_id, name, date, category, url`

func (s *sqlStore) ListTournaments(ctx context.Context, from, to time.Time) ([]model.Tournament, error) {
	return s.listTournaments(ctx, from, to, false)
}

func (s *sqlStore) ListTaggedTournaments(ctx context.Context, from, to time.Time) ([]model.Tournament, error) {
	return s.listTournaments(ctx, from, to, true)
}

func (s *sqlStore) listTournaments(ctx context.Context, from, to time.Time, taggedOnly bool) ([]model.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE date >= ? AND date <= ?`
	if taggedOnly {
		query += ` AND category IS NOT NULL`
	}
	query += ` ORDER BY date, name`
	rows, err := s.db.QueryContext(ctx, s.q(query), s.d.date(from), s.d.date(to))
	if err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := []model.Tournament{}
	for rows.Next() {
		t, err := scanTournamentRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tournament: %w", err)
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

func (s *sqlStore) GetTournament(ctx context.Context, id string) (model.Tournament, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+tournamentColumns+` FROM tournaments WHERE id = ?`), id)
	t, err := scanTournamentRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Tournament{}, ErrNotFound
	}
	if err != nil {
		return model.Tournament{}, fmt.Errorf("get tournament: %w", err)
	}
	return t, nil
}

func (s *sqlStore) CreateTournament(ctx context.Context, tournament model.Tournament) (model.Tournament, error) {
	if err := validateTournament(tournament); err != nil {
		return model.Tournament{}, err
	}
	if tournament.ID == "" {
		tournament.ID = uuid.NewString()
	}
	tournament.Date = model.Day(tournament.Date)
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO tournaments (`+tournamentColumns+`) VALUES (?,?,?,?,?,?)`),
		tournament.ID, tournament.WespaID, tournament.Name, s.d.date(tournament.Date), categoryValue(tournament.Category), tournament.URL,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Tournament{}, invalid("tournament already exists")
		}
		return model.Tournament{}, fmt.Errorf("create tournament: %w", err)
	}
	return tournament, nil
}

func (s *sqlStore) SetTournamentCategory(ctx context.Context, id string, category model.Category) error {
	if category != "" && !category.Valid() {
		return invalid("invalid category")
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE tournaments SET category = ? WHERE id = ?`), categoryValue(category), id)
	if err != nil {
		return fmt.Errorf("set tournament category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) ListPlayers(ctx context.Context) ([]model.Player, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, wespa_id, name, country FROM players ORDER BY name`))
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	players := []model.Player{}
	for rows.Next() {
		var p model.Player
		if err := rows.Scan(&p.ID, &p.WespaID, &p.Name, &p.Country); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (s *sqlStore) UpsertPlayers(ctx context.Context, players []model.Player) ([]model.Player, error) {
	stored := make([]model.Player, 0, len(players))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range players {
			if p.WespaID == 0 {
				return invalid("player wespa id is required")
			}
			_, err := tx.ExecContext(ctx, s.q(`INSERT INTO players (id, wespa_id, name, country) VALUES (?,?,?,?)
ON CONFLICT (wespa_id) DO UPDATE SET name = excluded.name,
  country = CASE WHEN excluded.country <> '' THEN excluded.country ELSE players.country END`),
				uuid.NewString(), p.WespaID, p.Name, p.Country,
			)
			if err != nil {
				return fmt.Errorf("upsert player %d: %w", p.WespaID, err)
			}
			var saved model.Player
			err = tx.QueryRowContext(ctx, s.q(`SELECT id, wespa_id, name, country FROM players WHERE wespa_id = ?`), p.WespaID).
				Scan(&saved.ID, &saved.WespaID, &saved.Name, &saved.Country)
			if err != nil {
				return fmt.Errorf("load player %d: %w", p.WespaID, err)
			}
			stored = append(stored, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *sqlStore) HasResults(ctx context.Context, tournamentID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM tournament_results WHERE tournament_id = ? LIMIT 1`), tournamentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check results: %w", err)
	}
	return true, nil
}

func (s *sqlStore) ListResults(ctx context.Context, tournamentID string) ([]model.TournamentResult, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT r.id, r.tournament_id, r.player_id, COALESCE(p.name, ''), r.position, r.total_players,
  r.wins, r.losses, r.byes, r.spread, r.old_rating, r.new_rating, r.rating_change
FROM tournament_results r
LEFT JOIN players p ON p.id = r.player_id
WHERE r.tournament_id = ?
ORDER BY r.position, r.player_id`), tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := []model.TournamentResult{}
	for rows.Next() {
		var r model.TournamentResult
		var oldRating, newRating, change sql.NullInt64
		if err := rows.Scan(
			&r.ID,
			&r.TournamentID,
			&r.PlayerID,
			&r.PlayerName,
			&r.Position,
			&r.TotalPlayers,
			&r.Wins,
			&r.Losses,
			&r.Byes,
			&r.Spread,
			&oldRating,
			&newRating,
			&change,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.OldRating = intPtr(oldRating)
		r.NewRating = intPtr(newRating)
		r.RatingChange = intPtr(change)
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *sqlStore) InsertResults(ctx context.Context, results []model.TournamentResult) error {
	for _, r := range results {
		if err := validateResult(r); err != nil {
			return err
		}
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range results {
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			_, err := tx.ExecContext(ctx, s.q(`INSERT INTO tournament_results (id, tournament_id, player_id, position, total_players, wins, losses, byes, spread, old_rating, new_rating, rating_change)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`),
				r.ID, r.TournamentID, r.PlayerID, r.Position, r.TotalPlayers, r.Wins, r.Losses, r.Byes, r.Spread,
				intValue(r.OldRating), intValue(r.NewRating), intValue(r.RatingChange),
			)
			if err != nil {
				if isUniqueViolation(err) {
					return invalid("result already exists")
				}
				return fmt.Errorf("insert result: %w", err)
			}
		}
		return nil
	})
}

func (s *sqlStore) ListPointsRows(ctx context.Context) ([]model.PointsRow, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, position_range, platinum, gold, silver, bronze, invitational FROM points_config ORDER BY sort_order`))
	if err != nil {
		return nil, fmt.Errorf("list points: %w", err)
	}
	defer rows.Close()

	table := []model.PointsRow{}
	for rows.Next() {
		var r model.PointsRow
		if err := rows.Scan(&r.ID, &r.PositionRange, &r.Platinum, &r.Gold, &r.Silver, &r.Bronze, &r.Invitational); err != nil {
			return nil, fmt.Errorf("scan points row: %w", err)
		}
		table = append(table, r)
	}
	return table, rows.Err()
}

func (s *sqlStore) ReplacePointsRows(ctx context.Context, rows []model.PointsRow) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM points_config`); err != nil {
			return fmt.Errorf("clear points: %w", err)
		}
		for i, r := range rows {
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			_, err := tx.ExecContext(ctx, s.q(`INSERT INTO points_config (id, sort_order, position_range, platinum, gold, silver, bronze, invitational) VALUES (?,?,?,?,?,?,?,?)`),
				r.ID, i, r.PositionRange, r.Platinum, r.Gold, r.Silver, r.Bronze, r.Invitational,
			)
			if err != nil {
				return fmt.Errorf("insert points row %q: %w", r.PositionRange, err)
			}
		}
		return nil
	})
}

func (s *sqlStore) ListStandings(ctx context.Context, yearConfigID string) ([]model.YTDStanding, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT year_config_id, player_id, player_name, total_points, tournaments_played, best_finish, last_updated
FROM ytd_standings
WHERE year_config_id = ?
ORDER BY total_points DESC, best_finish ASC, tournaments_played DESC, player_id ASC`), yearConfigID)
	if err != nil {
		return nil, fmt.Errorf("list standings: %w", err)
	}
	defer rows.Close()

	standings := []model.YTDStanding{}
	for rows.Next() {
		var st model.YTDStanding
		var updated dbTime
		if err := rows.Scan(&st.YearConfigID, &st.PlayerID, &st.PlayerName, &st.TotalPoints, &st.TournamentsPlayed, &st.BestFinish, &updated); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		st.LastUpdated = updated.Time
		standings = append(standings, st)
	}
	return standings, rows.Err()
}

// ReplaceStandings runs the delete and the inserts in one transaction, so a
// failed insert leaves the previous snapshot in place.
func (s *sqlStore) ReplaceStandings(ctx context.Context, yearConfigID string, standings []model.YTDStanding) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM year_configs WHERE id = ?`), yearConfigID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check year config: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM ytd_standings WHERE year_config_id = ?`), yearConfigID); err != nil {
			return fmt.Errorf("clear standings: %w", err)
		}
		for _, st := range standings {
			_, err := tx.ExecContext(ctx, s.q(`INSERT INTO ytd_standings (year_config_id, player_id, player_name, total_points, tournaments_played, best_finish, last_updated)
VALUES (?,?,?,?,?,?,?)`),
				yearConfigID, st.PlayerID, st.PlayerName, st.TotalPoints, st.TournamentsPlayed, st.BestFinish, s.d.timestamp(st.LastUpdated),
			)
			if err != nil {
				return fmt.Errorf("insert standing %s: %w", st.PlayerID, err)
			}
		}
		return nil
	})
}

func scanYearRow(scanner interface{ Scan(dest ...any) error }) (model.YearConfig, error) {
	var year model.YearConfig
	var start, end, created dbTime
	if err := scanner.Scan(&year.ID, &year.Name, &start, &end, &year.IsActive, &created); err != nil {
		return model.YearConfig{}, err
	}
	year.StartDate = model.Day(start.Time)
	year.EndDate = model.Day(end.Time)
	year.CreatedAt = created.Time
	return year, nil
}

func scanTournamentRow(scanner interface{ Scan(dest ...any) error }) (model.Tournament, error) {
	var t model.Tournament
	var date dbTime
	var category sql.NullString
	if err := scanner.Scan(&t.ID, &t.WespaID, &t.Name, &date, &category, &t.URL); err != nil {
		return model.Tournament{}, err
	}
	t.Date = model.Day(date.Time)
	if category.Valid {
		t.Category = model.Category(category.String)
	}
	return t, nil
}

// dbTime scans DATE/TIMESTAMP columns whether the driver hands back a
// time.Time or text.
type dbTime struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	model.DateLayout,
}

func (d *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.Time = time.Time{}
		return nil
	case time.Time:
		d.Time = v
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	}
	return fmt.Errorf("unsupported time value %T", src)
}

func (d *dbTime) parse(raw string) error {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", raw)
}

func categoryValue(c model.Category) any {
	if c == "" {
		return nil
	}
	return string(c)
}

func intValue(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
