package model

import (
	"strings"
	"time"
)

type Category string

const (
	CategoryPlatinum     Category = "platinum"
	CategoryGold         Category = "gold"
	CategorySilver       Category = "silver"
	CategoryBronze       Category = "bronze"
	CategoryInvitational Category = "invitational"
)

var Categories = []Category{
	CategoryPlatinum,
	CategoryGold,
	CategorySilver,
	CategoryBronze,
	CategoryInvitational,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory accepts any casing; an empty string parses to the untagged category.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	if c == "" {
		return "", true
	}
	return c, c.Valid()
}

const DateLayout = "2006-01-02"

// Day truncates t to a UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDay(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

type PointsRow struct {
	ID            string
	PositionRange string
	Platinum      int
	Gold          int
	Silver        int
	Bronze        int
	Invitational  int
}

// Points returns the column for c, or 0 for an unknown category.
func (r PointsRow) Points(c Category) int {
	switch c {
	case CategoryPlatinum:
		return r.Platinum
	case CategoryGold:
		return r.Gold
	case CategorySilver:
		return r.Silver
	case CategoryBronze:
		return r.Bronze
	case CategoryInvitational:
		return r.Invitational
	}
	return 0
}

type Tournament struct {
	ID       string
	WespaID  int
	Name     string
	Date     time.Time
	Category Category
	URL      string
}

func (t Tournament) Tagged() bool {
	return t.Category != ""
}

type Player struct {
	ID      string
	WespaID int
	Name    string
	Country string
}

type TournamentResult struct {
	ID           string
	TournamentID string
	PlayerID     string
	PlayerName   string
	Position     int
	TotalPlayers int
	Wins         int
	Losses       int
	Byes         int
	Spread       int
	OldRating    *int
	NewRating    *int
	RatingChange *int
}

type YearConfig struct {
	ID        string
	Name      string
	StartDate time.Time
	EndDate   time.Time
	IsActive  bool
	CreatedAt time.Time
}

// Contains reports whether t falls on a day within [StartDate, EndDate].
func (y YearConfig) Contains(t time.Time) bool {
	day := Day(t)
	return !day.Before(Day(y.StartDate)) && !day.After(Day(y.EndDate))
}

type YTDStanding struct {
	YearConfigID      string
	PlayerID          string
	PlayerName        string
	TotalPoints       int
	TournamentsPlayed int
	BestFinish        int
	LastUpdated       time.Time
}
