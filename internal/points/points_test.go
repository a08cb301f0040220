package points

import (
	"testing"

	"circuit-ytd/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Range
		ok   bool
	}{
		{name: "exact", raw: "1", want: Range{Min: 1, Max: 1}, ok: true},
		{name: "inclusive range", raw: "6-10", want: Range{Min: 6, Max: 10}, ok: true},
		{name: "spaces", raw: " 11 - 15 ", want: Range{Min: 11, Max: 15}, ok: true},
		{name: "open ended", raw: "100+", want: Range{Min: 100, Open: true}, ok: true},
		{name: "empty", raw: "", ok: false},
		{name: "reversed", raw: "10-6", ok: false},
		{name: "zero", raw: "0", ok: false},
		{name: "text", raw: "first", ok: false},
		{name: "half range", raw: "5-", ok: false},
		{name: "bare plus", raw: "+", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRange(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestPointsFor_DefaultTable(t *testing.T) {
	rows := DefaultRows()

	tests := []struct {
		position int
		category model.Category
		want     int
	}{
		{1, model.CategoryPlatinum, 10000},
		{1, model.CategoryInvitational, 6500},
		{5, model.CategoryBronze, 2250},
		{7, model.CategoryGold, 4000},
		{10, model.CategoryGold, 4000},
		{11, model.CategorySilver, 2500},
		{100, model.CategoryGold, 425},
		{101, model.CategoryGold, 400},
		{150, model.CategoryGold, 400},
		{150, model.CategoryBronze, 100},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PointsFor(tt.position, tt.category, rows), "position %d %s", tt.position, tt.category)
	}
}

func TestPointsFor_NoMatchScoresZero(t *testing.T) {
	rows := []model.PointsRow{
		{PositionRange: "1", Gold: 100},
		{PositionRange: "2-3", Gold: 50},
	}

	assert.Equal(t, 0, PointsFor(4, model.CategoryGold, rows))
	assert.Equal(t, 0, PointsFor(0, model.CategoryGold, rows))
	assert.Equal(t, 0, PointsFor(-3, model.CategoryGold, rows))
	assert.Equal(t, 0, PointsFor(1, model.Category("diamond"), rows))
	assert.Equal(t, 0, PointsFor(1, model.CategoryGold, nil))
}

func TestPointsFor_IgnoresInputOrder(t *testing.T) {
	rows := []model.PointsRow{
		{PositionRange: "10+", Gold: 1},
		{PositionRange: "6-10", Gold: 4000},
		{PositionRange: "2-5", Gold: 5000},
		{PositionRange: "1", Gold: 8000},
	}

	assert.Equal(t, 8000, PointsFor(1, model.CategoryGold, rows))
	assert.Equal(t, 4000, PointsFor(7, model.CategoryGold, rows))
	assert.Equal(t, 4000, PointsFor(10, model.CategoryGold, rows), "closed row wins over the open row")
	assert.Equal(t, 1, PointsFor(11, model.CategoryGold, rows))
}

func TestPointsFor_MalformedRowsNeverMatch(t *testing.T) {
	rows := []model.PointsRow{
		{PositionRange: "top", Gold: 9999},
		{PositionRange: "3-1", Gold: 9999},
		{PositionRange: "1-3", Gold: 10},
	}

	assert.Equal(t, 10, PointsFor(2, model.CategoryGold, rows))
	assert.Equal(t, 0, PointsFor(4, model.CategoryGold, rows))
}

func TestNewTable_RowsInMatchingOrder(t *testing.T) {
	table := NewTable([]model.PointsRow{
		{PositionRange: "100+"},
		{PositionRange: "bogus"},
		{PositionRange: "6-10"},
		{PositionRange: "1"},
	})

	var ranges []string
	for _, row := range table.Rows() {
		ranges = append(ranges, row.PositionRange)
	}
	assert.Equal(t, []string{"1", "6-10", "100+", "bogus"}, ranges)
	assert.Equal(t, 4, table.Len())
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(DefaultRows()))

	assert.ErrorIs(t, Validate(nil), ErrInvalidTable)
	assert.ErrorContains(t, Validate([]model.PointsRow{{PositionRange: "x"}}), "invalid position range")
	assert.ErrorContains(t, Validate([]model.PointsRow{{PositionRange: "1"}, {PositionRange: "1"}}), "duplicate")
	assert.ErrorContains(t, Validate([]model.PointsRow{{PositionRange: "50+"}, {PositionRange: "100+"}}), "open-ended")
	assert.ErrorContains(t, Validate([]model.PointsRow{{PositionRange: "1", Silver: -1}}), "negative silver")
}
