package results

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"circuit-ytd/internal/model"
	"circuit-ytd/internal/store"

	"github.com/sirupsen/logrus"
)

// Row is one parsed line of a tournament's final standings.
type Row struct {
	PlayerWespaID int    `json:"player_wespa_id"`
	PlayerName    string `json:"player_name"`
	Country       string `json:"country,omitempty"`
	Position      int    `json:"position"`
	TotalPlayers  int    `json:"total_players"`
	Wins          int    `json:"wins"`
	Losses        int    `json:"losses"`
	Byes          int    `json:"byes"`
	Spread        int    `json:"spread"`
	OldRating     *int   `json:"old_rating,omitempty"`
	NewRating     *int   `json:"new_rating,omitempty"`
	RatingChange  *int   `json:"rating_change,omitempty"`
}

type Status string

const (
	StatusImported Status = "imported"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Batch is the rows of one tournament.
type Batch struct {
	TournamentID string `json:"tournamentId"`
	Rows         []Row  `json:"results"`
}

type Counts struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

type Importer struct {
	store store.Store
	log   *logrus.Entry
}

func NewImporter(st store.Store, log *logrus.Logger) *Importer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Importer{store: st, log: log.WithField("component", "results_importer")}
}

// Import caches the results of one tournament. Results are immutable once
// imported, so a tournament that already has results is skipped.
func (i *Importer) Import(ctx context.Context, tournamentID string, rows []Row) (Status, error) {
	tournament, err := i.store.GetTournament(ctx, tournamentID)
	if err != nil {
		return StatusFailed, err
	}
	log := i.log.WithField("tournament", tournament.Name)

	has, err := i.store.HasResults(ctx, tournament.ID)
	if err != nil {
		return StatusFailed, fmt.Errorf("check existing results: %w", err)
	}
	if has {
		log.Debug("Results already cached, skipping")
		return StatusSkipped, nil
	}
	if err := validateRows(rows); err != nil {
		return StatusFailed, err
	}

	// one player per wespa id; the last name seen wins
	names := make(map[int]model.Player)
	order := make([]int, 0, len(rows))
	for _, r := range rows {
		if _, ok := names[r.PlayerWespaID]; !ok {
			order = append(order, r.PlayerWespaID)
		}
		names[r.PlayerWespaID] = model.Player{WespaID: r.PlayerWespaID, Name: strings.TrimSpace(r.PlayerName), Country: r.Country}
	}
	players := make([]model.Player, 0, len(order))
	for _, id := range order {
		players = append(players, names[id])
	}
	stored, err := i.store.UpsertPlayers(ctx, players)
	if err != nil {
		return StatusFailed, fmt.Errorf("save players: %w", err)
	}
	ids := make(map[int]string, len(stored))
	for _, p := range stored {
		ids[p.WespaID] = p.ID
	}

	results := make([]model.TournamentResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, model.TournamentResult{
			TournamentID: tournament.ID,
			PlayerID:     ids[r.PlayerWespaID],
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
	if err := i.store.InsertResults(ctx, results); err != nil {
		return StatusFailed, fmt.Errorf("save results: %w", err)
	}
	log.WithField("results", len(results)).Info("Imported tournament results")
	return StatusImported, nil
}

// ImportAll imports each batch in turn; a failed batch does not stop the rest.
func (i *Importer) ImportAll(ctx context.Context, batches []Batch) Counts {
	var counts Counts
	for n, b := range batches {
		status, err := i.Import(ctx, b.TournamentID, b.Rows)
		entry := i.log.WithFields(logrus.Fields{
			"tournament_id": b.TournamentID,
			"current":       n + 1,
			"total":         len(batches),
		})
		switch status {
		case StatusImported:
			counts.Imported++
		case StatusSkipped:
			counts.Skipped++
		default:
			counts.Failed++
			entry.WithError(err).Error("Failed to import tournament results")
		}
	}
	return counts
}

var ErrInvalidRows = errors.New("invalid results")

func validateRows(rows []Row) error {
	if len(rows) == 0 {
		return fmt.Errorf("%w: no results to import", ErrInvalidRows)
	}
	seen := make(map[int]bool, len(rows))
	for _, r := range rows {
		if r.PlayerWespaID <= 0 {
			return fmt.Errorf("%w: player wespa id is required", ErrInvalidRows)
		}
		if strings.TrimSpace(r.PlayerName) == "" {
			return fmt.Errorf("%w: player %d has no name", ErrInvalidRows, r.PlayerWespaID)
		}
		if r.Position < 1 {
			return fmt.Errorf("%w: player %d has invalid position %d", ErrInvalidRows, r.PlayerWespaID, r.Position)
		}
		if seen[r.PlayerWespaID] {
			return fmt.Errorf("%w: player %d appears twice", ErrInvalidRows, r.PlayerWespaID)
		}
		seen[r.PlayerWespaID] = true
	}
	return nil
}
