package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"circuit-ytd/internal/model"
	"circuit-ytd/internal/points"
)

type SeedOptions struct {
	// Year also creates an active calendar-year config when no year exists.
	Year bool
	Now  time.Time
}

// Seed installs the default points table into an empty store.
func Seed(ctx context.Context, st Store, opts SeedOptions) error {
	rows, err := st.ListPointsRows(ctx)
	if err != nil {
		return fmt.Errorf("seed points: %w", err)
	}
	if len(rows) == 0 {
		if err := st.ReplacePointsRows(ctx, points.DefaultRows()); err != nil {
			return fmt.Errorf("seed points: %w", err)
		}
	}
	if !opts.Year {
		return nil
	}
	_, err = st.ActiveYearConfig(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("seed year: %w", err)
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	year := now.Year()
	_, err = st.SaveYearConfig(ctx, model.YearConfig{
		Name:      strconv.Itoa(year),
		StartDate: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
		IsActive:  true,
	})
	if err != nil {
		return fmt.Errorf("seed year: %w", err)
	}
	return nil
}
