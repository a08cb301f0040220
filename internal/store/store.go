package store

import (
	"context"
	"errors"
	"time"

	"circuit-ytd/internal/model"
)

var ErrNotFound = errors.New("not found")

type Store interface {
	ListYearConfigs(ctx context.Context) ([]model.YearConfig, error)
	GetYearConfig(ctx context.Context, id string) (model.YearConfig, error)
	// ActiveYearConfig falls back to the most recent year when none is active.
	ActiveYearConfig(ctx context.Context) (model.YearConfig, error)
	// SaveYearConfig inserts or updates by id. Saving an active year
	// deactivates every other year.
	SaveYearConfig(ctx context.Context, year model.YearConfig) (model.YearConfig, error)
	// DeleteYearConfig removes the year and its standings snapshot.
	DeleteYearConfig(ctx context.Context, id string) error

	ListTournaments(ctx context.Context, from, to time.Time) ([]model.Tournament, error)
	ListTaggedTournaments(ctx context.Context, from, to time.Time) ([]model.Tournament, error)
	GetTournament(ctx context.Context, id string) (model.Tournament, error)
	CreateTournament(ctx context.Context, tournament model.Tournament) (model.Tournament, error)
	// SetTournamentCategory tags a tournament; the empty category untags it.
	SetTournamentCategory(ctx context.Context, id string, category model.Category) error

	ListPlayers(ctx context.Context) ([]model.Player, error)
	// UpsertPlayers matches on WespaID and returns the stored players.
	UpsertPlayers(ctx context.Context, players []model.Player) ([]model.Player, error)

	HasResults(ctx context.Context, tournamentID string) (bool, error)
	// ListResults returns results joined with the player name, best position first.
	ListResults(ctx context.Context, tournamentID string) ([]model.TournamentResult, error)
	InsertResults(ctx context.Context, results []model.TournamentResult) error

	ListPointsRows(ctx context.Context) ([]model.PointsRow, error)
	ReplacePointsRows(ctx context.Context, rows []model.PointsRow) error

	// ListStandings returns the snapshot ordered by total points.
	ListStandings(ctx context.Context, yearConfigID string) ([]model.YTDStanding, error)
	// ReplaceStandings deletes the snapshot for the year and inserts standings.
	ReplaceStandings(ctx context.Context, yearConfigID string, standings []model.YTDStanding) error

	Close() error
}

// ValidationError reports input the store refused: missing fields or a
// conflict with an existing record.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func invalid(msg string) error {
	return &ValidationError{msg: msg}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
