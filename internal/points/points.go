// Package points maps a finishing position and tournament category to
// circuit points using the configured points table.
package points

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"circuit-ytd/internal/model"
)

// Range is a parsed position_range value. Open ranges have no upper bound.
type Range struct {
	Min  int
	Max  int
	Open bool
}

func (r Range) Contains(position int) bool {
	if position < r.Min {
		return false
	}
	return r.Open || position <= r.Max
}

// ParseRange understands "N", "min-max" and "N+".
func ParseRange(raw string) (Range, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Range{}, false
	}
	if strings.HasSuffix(s, "+") {
		low, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(s, "+")))
		if err != nil || low < 1 {
			return Range{}, false
		}
		return Range{Min: low, Open: true}, true
	}
	if lo, hi, ok := strings.Cut(s, "-"); ok {
		low, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return Range{}, false
		}
		high, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil || low < 1 || high < low {
			return Range{}, false
		}
		return Range{Min: low, Max: high}, true
	}
	exact, err := strconv.Atoi(s)
	if err != nil || exact < 1 {
		return Range{}, false
	}
	return Range{Min: exact, Max: exact}, true
}

type entry struct {
	rng   Range
	valid bool
	row   model.PointsRow
}

// Table is a points table with its rows in matching order: closed ranges by
// lower bound, open-ended rows last. Malformed rows are kept but never match.
type Table struct {
	entries []entry
}

func NewTable(rows []model.PointsRow) *Table {
	entries := make([]entry, 0, len(rows))
	for _, row := range rows {
		rng, ok := ParseRange(row.PositionRange)
		entries = append(entries, entry{rng: rng, valid: ok, row: row})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.valid != b.valid {
			return a.valid
		}
		if a.rng.Open != b.rng.Open {
			return !a.rng.Open
		}
		if a.rng.Min != b.rng.Min {
			return a.rng.Min < b.rng.Min
		}
		return a.rng.Max < b.rng.Max
	})
	return &Table{entries: entries}
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Rows returns the rows in matching order.
func (t *Table) Rows() []model.PointsRow {
	if t == nil {
		return nil
	}
	rows := make([]model.PointsRow, 0, len(t.entries))
	for _, e := range t.entries {
		rows = append(rows, e.row)
	}
	return rows
}

// PointsFor returns the points of the first row covering position, or 0.
func (t *Table) PointsFor(position int, category model.Category) int {
	if t == nil || position < 1 {
		return 0
	}
	for _, e := range t.entries {
		if e.valid && e.rng.Contains(position) {
			return e.row.Points(category)
		}
	}
	return 0
}

func PointsFor(position int, category model.Category, rows []model.PointsRow) int {
	return NewTable(rows).PointsFor(position, category)
}

var ErrInvalidTable = errors.New("invalid points table")

// Validate is stricter than lookup and is applied before a table is saved.
func Validate(rows []model.PointsRow) error {
	if len(rows) == 0 {
		return fmt.Errorf("%w: no rows", ErrInvalidTable)
	}
	seen := make(map[string]bool, len(rows))
	open := 0
	for _, row := range rows {
		rng, ok := ParseRange(row.PositionRange)
		if !ok {
			return fmt.Errorf("%w: invalid position range %q", ErrInvalidTable, row.PositionRange)
		}
		key := strings.TrimSpace(row.PositionRange)
		if seen[key] {
			return fmt.Errorf("%w: duplicate position range %q", ErrInvalidTable, key)
		}
		seen[key] = true
		if rng.Open {
			open++
		}
		for _, c := range model.Categories {
			if row.Points(c) < 0 {
				return fmt.Errorf("%w: negative %s points for range %q", ErrInvalidTable, c, key)
			}
		}
	}
	if open > 1 {
		return fmt.Errorf("%w: only one open-ended range is allowed", ErrInvalidTable)
	}
	return nil
}

func DefaultRows() []model.PointsRow {
	return []model.PointsRow{
		{PositionRange: "1", Platinum: 10000, Gold: 8000, Silver: 6000, Bronze: 4000, Invitational: 6500},
		{PositionRange: "2", Platinum: 8500, Gold: 7000, Silver: 5000, Bronze: 3500, Invitational: 5750},
		{PositionRange: "3", Platinum: 7500, Gold: 6000, Silver: 4250, Bronze: 3000, Invitational: 5000},
		{PositionRange: "4", Platinum: 6500, Gold: 5250, Silver: 3750, Bronze: 2750, Invitational: 4500},
		{PositionRange: "5", Platinum: 6000, Gold: 4500, Silver: 3250, Bronze: 2250, Invitational: 4000},
		{PositionRange: "6-10", Platinum: 5000, Gold: 4000, Silver: 3000, Bronze: 2000, Invitational: 3500},
		{PositionRange: "11-15", Platinum: 4500, Gold: 3500, Silver: 2500, Bronze: 1500, Invitational: 3000},
		{PositionRange: "16-20", Platinum: 4000, Gold: 3000, Silver: 2000, Bronze: 1250, Invitational: 2250},
		{PositionRange: "21-25", Platinum: 3750, Gold: 2750, Silver: 1750, Bronze: 1000, Invitational: 2000},
		{PositionRange: "26-30", Platinum: 3000, Gold: 2000, Silver: 1250, Bronze: 750, Invitational: 1500},
		{PositionRange: "31-35", Platinum: 2500, Gold: 1500, Silver: 1000, Bronze: 500, Invitational: 1250},
		{PositionRange: "36-40", Platinum: 2000, Gold: 1250, Silver: 750, Bronze: 350, Invitational: 1000},
		{PositionRange: "41-45", Platinum: 1500, Gold: 1000, Silver: 600, Bronze: 300, Invitational: 750},
		{PositionRange: "46-50", Platinum: 1000, Gold: 750, Silver: 500, Bronze: 350, Invitational: 600},
		{PositionRange: "51-55", Platinum: 750, Gold: 600, Silver: 450, Bronze: 300, Invitational: 500},
		{PositionRange: "56-60", Platinum: 700, Gold: 650, Silver: 400, Bronze: 325, Invitational: 450},
		{PositionRange: "61-65", Platinum: 650, Gold: 600, Silver: 375, Bronze: 300, Invitational: 425},
		{PositionRange: "66-70", Platinum: 600, Gold: 575, Silver: 350, Bronze: 275, Invitational: 400},
		{PositionRange: "71-75", Platinum: 575, Gold: 550, Silver: 325, Bronze: 250, Invitational: 375},
		{PositionRange: "76-80", Platinum: 550, Gold: 525, Silver: 300, Bronze: 225, Invitational: 350},
		{PositionRange: "81-85", Platinum: 525, Gold: 500, Silver: 275, Bronze: 200, Invitational: 325},
		{PositionRange: "86-90", Platinum: 500, Gold: 475, Silver: 250, Bronze: 175, Invitational: 300},
		{PositionRange: "91-95", Platinum: 475, Gold: 450, Silver: 225, Bronze: 150, Invitational: 275},
		{PositionRange: "96-100", Platinum: 450, Gold: 425, Silver: 200, Bronze: 125, Invitational: 250},
		{PositionRange: "100+", Platinum: 425, Gold: 400, Silver: 175, Bronze: 100, Invitational: 225},
	}
}
