package store

import (
	"sort"
	"strings"

	"circuit-ytd/internal/model"
)

func validateYear(year model.YearConfig) error {
	if strings.TrimSpace(year.Name) == "" {
		return invalid("year name is required")
	}
	if year.StartDate.IsZero() || year.EndDate.IsZero() {
		return invalid("year start and end dates are required")
	}
	if model.Day(year.EndDate).Before(model.Day(year.StartDate)) {
		return invalid("year end date is before start date")
	}
	return nil
}

func validateTournament(t model.Tournament) error {
	if strings.TrimSpace(t.Name) == "" {
		return invalid("tournament name is required")
	}
	if t.WespaID <= 0 {
		return invalid("tournament wespa id is required")
	}
	if t.Date.IsZero() {
		return invalid("tournament date is required")
	}
	if t.Category != "" && !t.Category.Valid() {
		return invalid("invalid category")
	}
	return nil
}

func validateResult(r model.TournamentResult) error {
	if r.TournamentID == "" || r.PlayerID == "" {
		return invalid("result needs a tournament and a player")
	}
	if r.Position < 1 {
		return invalid("result position must be at least 1")
	}
	return nil
}

// sortYears orders years newest first.
func sortYears(years []model.YearConfig) {
	sort.Slice(years, func(i, j int) bool {
		if years[i].StartDate.Equal(years[j].StartDate) {
			return years[i].Name > years[j].Name
		}
		return years[i].StartDate.After(years[j].StartDate)
	})
}

// pickActiveYear expects years ordered newest first.
func pickActiveYear(years []model.YearConfig) (model.YearConfig, error) {
	for _, y := range years {
		if y.IsActive {
			return y, nil
		}
	}
	if len(years) > 0 {
		return years[0], nil
	}
	return model.YearConfig{}, ErrNotFound
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
