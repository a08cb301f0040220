package standings

import (
	"testing"
	"time"

	"circuit-ytd/internal/model"
	"circuit-ytd/internal/points"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	season = model.YearConfig{
		ID:        "y2024",
		Name:      "2024",
		StartDate: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
	calculatedAt = time.Date(2024, time.July, 1, 9, 0, 0, 0, time.UTC)
)

func tournament(id string, date string, c model.Category) model.Tournament {
	d, err := model.ParseDay(date)
	if err != nil {
		panic(err)
	}
	return model.Tournament{ID: id, WespaID: len(id), Name: "T " + id, Date: d, Category: c}
}

func result(tournamentID, playerID, name string, position int) model.TournamentResult {
	return model.TournamentResult{TournamentID: tournamentID, PlayerID: playerID, PlayerName: name, Position: position}
}

func TestCompute_SumsPointsAcrossCategories(t *testing.T) {
	tournaments := []model.Tournament{
		tournament("a", "2024-02-01", model.CategoryGold),
		tournament("b", "2024-03-01", model.CategoryGold),
		tournament("c", "2024-04-01", model.CategorySilver),
	}
	results := map[string][]model.TournamentResult{
		"a": {result("a", "p1", "Ann", 3)},
		"b": {result("b", "p1", "Ann", 1)},
		"c": {result("c", "p1", "Ann", 12)},
	}

	out := Compute(season, tournaments, results, points.NewTable(points.DefaultRows()), calculatedAt)

	require.Len(t, out.Standings, 1)
	got := out.Standings[0]
	assert.Equal(t, "p1", got.PlayerID)
	assert.Equal(t, "Ann", got.PlayerName)
	assert.Equal(t, 6000+8000+2500, got.TotalPoints)
	assert.Equal(t, 3, got.TournamentsPlayed)
	assert.Equal(t, 1, got.BestFinish)
	assert.Equal(t, season.ID, got.YearConfigID)
	assert.Equal(t, calculatedAt, got.LastUpdated)
	assert.Equal(t, 3, out.Processed())
	assert.Empty(t, out.Missing)
}

func TestCompute_IgnoresUntaggedAndOutOfRange(t *testing.T) {
	tournaments := []model.Tournament{
		tournament("in", "2024-12-31", model.CategoryBronze),
		tournament("before", "2023-12-31", model.CategoryGold),
		tournament("after", "2025-01-01", model.CategoryGold),
		tournament("untagged", "2024-06-01", ""),
	}
	results := map[string][]model.TournamentResult{
		"in":       {result("in", "p1", "Ann", 1)},
		"before":   {result("before", "p1", "Ann", 1)},
		"after":    {result("after", "p2", "Bo", 1)},
		"untagged": {result("untagged", "p2", "Bo", 1)},
	}

	out := Compute(season, tournaments, results, points.NewTable(points.DefaultRows()), calculatedAt)

	require.Len(t, out.Standings, 1)
	assert.Equal(t, "p1", out.Standings[0].PlayerID)
	assert.Equal(t, 4000, out.Standings[0].TotalPoints)
	require.Len(t, out.Considered, 1)
	assert.Equal(t, "in", out.Considered[0].ID)
}

func TestCompute_MissingResultsAreSkipped(t *testing.T) {
	tournaments := []model.Tournament{
		tournament("a", "2024-02-01", model.CategoryGold),
		tournament("b", "2024-03-01", model.CategoryPlatinum),
	}
	results := map[string][]model.TournamentResult{
		"a": {result("a", "p1", "Ann", 2)},
	}

	out := Compute(season, tournaments, results, points.NewTable(points.DefaultRows()), calculatedAt)

	require.Len(t, out.Standings, 1)
	assert.Equal(t, 7000, out.Standings[0].TotalPoints)
	require.Len(t, out.Missing, 1)
	assert.Equal(t, "b", out.Missing[0].ID)
	assert.Equal(t, 1, out.Processed())
}

func TestCompute_NameFallsBackToUnknown(t *testing.T) {
	tournaments := []model.Tournament{
		tournament("a", "2024-02-01", model.CategoryGold),
		tournament("b", "2024-03-01", model.CategoryGold),
	}
	results := map[string][]model.TournamentResult{
		"a": {result("a", "p1", "", 4), result("a", "p2", "", 5)},
		"b": {result("b", "p1", "Ann", 6)},
	}

	out := Compute(season, tournaments, results, points.NewTable(points.DefaultRows()), calculatedAt)

	require.Len(t, out.Standings, 2)
	byID := map[string]model.YTDStanding{}
	for _, st := range out.Standings {
		byID[st.PlayerID] = st
	}
	assert.Equal(t, "Ann", byID["p1"].PlayerName)
	assert.Equal(t, 4, byID["p1"].BestFinish)
	assert.Equal(t, "Unknown", byID["p2"].PlayerName)
}

func TestCompute_EmptySeason(t *testing.T) {
	out := Compute(season, nil, nil, points.NewTable(points.DefaultRows()), calculatedAt)
	assert.Empty(t, out.Standings)
	assert.NotNil(t, out.Standings)
	assert.Equal(t, 0, out.Processed())
}

func TestSort_TieBreak(t *testing.T) {
	rows := []model.YTDStanding{
		{PlayerID: "d", TotalPoints: 100, BestFinish: 2, TournamentsPlayed: 2},
		{PlayerID: "c", TotalPoints: 100, BestFinish: 2, TournamentsPlayed: 2},
		{PlayerID: "b", TotalPoints: 100, BestFinish: 2, TournamentsPlayed: 3},
		{PlayerID: "a", TotalPoints: 100, BestFinish: 1, TournamentsPlayed: 1},
		{PlayerID: "e", TotalPoints: 200, BestFinish: 9, TournamentsPlayed: 1},
	}

	Sort(rows)

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.PlayerID)
	}
	assert.Equal(t, []string{"e", "a", "b", "c", "d"}, ids)
}

func TestCompute_IsDeterministic(t *testing.T) {
	tournaments := []model.Tournament{tournament("a", "2024-02-01", model.CategoryGold)}
	results := map[string][]model.TournamentResult{
		"a": {result("a", "p2", "Bo", 7), result("a", "p1", "Ann", 8), result("a", "p3", "Cy", 6)},
	}
	table := points.NewTable(points.DefaultRows())

	first := Compute(season, tournaments, results, table, calculatedAt)
	second := Compute(season, tournaments, results, table, calculatedAt)

	assert.Equal(t, first.Standings, second.Standings)
	// 6-10 all score 4000 gold, so best finish decides
	assert.Equal(t, "p3", first.Standings[0].PlayerID)
	assert.Equal(t, "p2", first.Standings[1].PlayerID)
	assert.Equal(t, "p1", first.Standings[2].PlayerID)
}
