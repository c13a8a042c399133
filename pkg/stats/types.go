// Package stats defines the statistics bundle consumed by the factor library
// and the collaborators that fetch it.
package stats

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/phenomenon0/capper-engine/pkg/sports"
)

// ErrNotFound is returned by fetchers when a team has no data.
var ErrNotFound = errors.New("stats: not found")

// TeamStats is a flat set of well-known team fields. A nil pointer means the
// upstream fetch did not provide the field.
type TeamStats struct {
	TeamID      string `json:"team_id"`
	GamesPlayed int    `json:"games_played"`

	OffensiveRating *float64 `json:"offensive_rating,omitempty"` // points per 100 possessions
	DefensiveRating *float64 `json:"defensive_rating,omitempty"`
	Pace            *float64 `json:"pace,omitempty"`           // possessions per 48 minutes
	TurnoverRate    *float64 `json:"turnover_rate,omitempty"`  // 0-1
	ReboundRate     *float64 `json:"rebound_rate,omitempty"`   // 0-1
	StealsPerGame   *float64 `json:"steals_per_game,omitempty"`
	BlocksPerGame   *float64 `json:"blocks_per_game,omitempty"`
	WinStreak       *int     `json:"win_streak,omitempty"` // negative for a losing streak
	Last10Wins      *int     `json:"last10_wins,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Empty reports whether the fetch carried no usable data.
func (ts TeamStats) Empty() bool {
	return ts.GamesPlayed == 0 &&
		ts.OffensiveRating == nil && ts.DefensiveRating == nil && ts.Pace == nil &&
		ts.TurnoverRate == nil && ts.ReboundRate == nil &&
		ts.StealsPerGame == nil && ts.BlocksPerGame == nil &&
		ts.WinStreak == nil && ts.Last10Wins == nil
}

// Injury is one player on a team's injury report.
type Injury struct {
	Player string  `json:"player"`
	Status string  `json:"status"` // out, doubtful, questionable, probable
	// Impact is the estimated points per game the team loses without the player.
	Impact float64 `json:"impact"`
}

// InjuryReport is a team's current injury list.
type InjuryReport struct {
	TeamID    string    `json:"team_id"`
	Injuries  []Injury  `json:"injuries"`
	UpdatedAt time.Time `json:"updated_at"`
}

// statusWeight is the probability a listed player misses the game.
var statusWeight = map[string]float64{
	"out":          1.0,
	"doubtful":     0.75,
	"questionable": 0.4,
	"probable":     0.1,
	"day-to-day":   0.3,
}

// Impact returns the expected points lost to injuries.
func (r *InjuryReport) Impact() float64 {
	if r == nil {
		return 0
	}
	total := 0.0
	for _, inj := range r.Injuries {
		total += inj.Impact * statusWeight[strings.ToLower(strings.TrimSpace(inj.Status))]
	}
	return total
}

// Fetcher is the external stats/injury collaborator.
type Fetcher interface {
	TeamStats(ctx context.Context, sport sports.Sport, teamID string) (*TeamStats, error)
	Injuries(ctx context.Context, sport sports.Sport, teamID string) (*InjuryReport, error)
}

// Bundle is everything the factor library needs for one game. Fetch errors
// are kept so factors can record what degraded.
type Bundle struct {
	Sport sports.Sport
	Home  TeamStats
	Away  TeamStats

	HomeInjuries *InjuryReport
	AwayInjuries *InjuryReport

	HomeStatsErr  error
	AwayStatsErr  error
	InjuriesErr   error
	FetchDuration time.Duration
}

// StatsAvailable reports whether at least one team's stats were fetched
// with data. Without them every team rating is a league average.
func (b *Bundle) StatsAvailable() bool {
	home := b.HomeStatsErr == nil && !b.Home.Empty()
	away := b.AwayStatsErr == nil && !b.Away.Empty()
	return home || away
}

// InjuriesAvailable reports whether both injury reports were fetched.
func (b *Bundle) InjuriesAvailable() bool {
	return b.InjuriesErr == nil && b.HomeInjuries != nil && b.AwayInjuries != nil
}
