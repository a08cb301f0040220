package standings

import (
	"sort"
	"time"

	"circuit-ytd/internal/model"
	"circuit-ytd/internal/points"
)

const unknownPlayerName = "Unknown"

// Outcome is the result of one aggregation pass.
type Outcome struct {
	Standings []model.YTDStanding
	// Considered holds the tagged, in-range tournaments in input order.
	Considered []model.Tournament
	Missing    []model.Tournament
}

func (o Outcome) Processed() int {
	return len(o.Considered) - len(o.Missing)
}

// Eligible reports whether t counts towards the standings of year.
func Eligible(year model.YearConfig, t model.Tournament) bool {
	return t.Tagged() && year.Contains(t.Date)
}

// Compute aggregates cached results into standings for year. Tournaments
// that are untagged or outside the year are ignored; eligible tournaments
// without results are reported in Missing and contribute nothing.
func Compute(year model.YearConfig, tournaments []model.Tournament, results map[string][]model.TournamentResult, table *points.Table, now time.Time) Outcome {
	out := Outcome{}
	index := make(map[string]*model.YTDStanding)

	for _, tournament := range tournaments {
		if !Eligible(year, tournament) {
			continue
		}
		out.Considered = append(out.Considered, tournament)
		rows := results[tournament.ID]
		if len(rows) == 0 {
			out.Missing = append(out.Missing, tournament)
			continue
		}
		for _, result := range rows {
			earned := table.PointsFor(result.Position, tournament.Category)
			entry := index[result.PlayerID]
			if entry == nil {
				entry = &model.YTDStanding{
					YearConfigID: year.ID,
					PlayerID:     result.PlayerID,
					BestFinish:   result.Position,
				}
				index[result.PlayerID] = entry
			}
			if entry.PlayerName == "" {
				entry.PlayerName = result.PlayerName
			}
			entry.TotalPoints += earned
			entry.TournamentsPlayed++
			if result.Position < entry.BestFinish {
				entry.BestFinish = result.Position
			}
		}
	}

	out.Standings = make([]model.YTDStanding, 0, len(index))
	for _, entry := range index {
		if entry.PlayerName == "" {
			entry.PlayerName = unknownPlayerName
		}
		entry.LastUpdated = now
		out.Standings = append(out.Standings, *entry)
	}
	Sort(out.Standings)
	return out
}

// Sort orders standings by total points, then best finish, then tournaments
// played (more first), then player id.
func Sort(standings []model.YTDStanding) {
	sort.Slice(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.TotalPoints != b.TotalPoints {
			return a.TotalPoints > b.TotalPoints
		}
		if a.BestFinish != b.BestFinish {
			return a.BestFinish < b.BestFinish
		}
		if a.TournamentsPlayed != b.TournamentsPlayed {
			return a.TournamentsPlayed > b.TournamentsPlayed
		}
		return a.PlayerID < b.PlayerID
	})
}
