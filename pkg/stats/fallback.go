package stats

import "github.com/phenomenon0/capper-engine/pkg/sports"

// LeagueAverages are the documented fallback values used when a field could
// not be fetched. Injuries have no fallback.
type LeagueAverages struct {
	OffensiveRating float64
	DefensiveRating float64
	Pace            float64
	TurnoverRate    float64
	ReboundRate     float64
	StealsPerGame   float64
	BlocksPerGame   float64
	WinStreak       int
	Last10Wins      int
	HomeCourt       float64 // points
	PointsPerGame   float64
}

// NBA 2024-25 league averages.
var nbaAverages = LeagueAverages{
	OffensiveRating: 114.5,
	DefensiveRating: 114.5,
	Pace:            99.0,
	TurnoverRate:    0.135,
	ReboundRate:     0.50,
	StealsPerGame:   8.2,
	BlocksPerGame:   4.9,
	WinStreak:       0,
	Last10Wins:      5,
	HomeCourt:       2.5,
	PointsPerGame:   113.0,
}

var ncaabAverages = LeagueAverages{
	OffensiveRating: 105.0,
	DefensiveRating: 105.0,
	Pace:            68.0,
	TurnoverRate:    0.17,
	ReboundRate:     0.50,
	StealsPerGame:   6.5,
	BlocksPerGame:   3.3,
	Last10Wins:      5,
	HomeCourt:       3.5,
	PointsPerGame:   72.0,
}

// Averages returns the fallback constants for a sport (NBA by default).
func Averages(sport sports.Sport) LeagueAverages {
	if sport == sports.SportNCAAB {
		return ncaabAverages
	}
	return nbaAverages
}

// Resolved is a TeamStats with every field filled in. Fallbacks lists the
// fields that came from league averages.
type Resolved struct {
	TeamID          string
	GamesPlayed     int
	OffensiveRating float64
	DefensiveRating float64
	Pace            float64
	TurnoverRate    float64
	ReboundRate     float64
	StealsPerGame   float64
	BlocksPerGame   float64
	WinStreak       int
	Last10Wins      int
	Fallbacks       []string
}

// UsedFallback reports whether field came from league averages.
func (r Resolved) UsedFallback(field string) bool {
	for _, f := range r.Fallbacks {
		if f == field {
			return true
		}
	}
	return false
}

// Resolve fills missing fields from league averages.
func Resolve(ts TeamStats, avg LeagueAverages) Resolved {
	r := Resolved{TeamID: ts.TeamID, GamesPlayed: ts.GamesPlayed}
	r.OffensiveRating = pickFloat(ts.OffensiveRating, avg.OffensiveRating, "offensive_rating", &r.Fallbacks)
	r.DefensiveRating = pickFloat(ts.DefensiveRating, avg.DefensiveRating, "defensive_rating", &r.Fallbacks)
	r.Pace = pickFloat(ts.Pace, avg.Pace, "pace", &r.Fallbacks)
	r.TurnoverRate = pickFloat(ts.TurnoverRate, avg.TurnoverRate, "turnover_rate", &r.Fallbacks)
	r.ReboundRate = pickFloat(ts.ReboundRate, avg.ReboundRate, "rebound_rate", &r.Fallbacks)
	r.StealsPerGame = pickFloat(ts.StealsPerGame, avg.StealsPerGame, "steals_per_game", &r.Fallbacks)
	r.BlocksPerGame = pickFloat(ts.BlocksPerGame, avg.BlocksPerGame, "blocks_per_game", &r.Fallbacks)
	r.WinStreak = pickInt(ts.WinStreak, avg.WinStreak, "win_streak", &r.Fallbacks)
	r.Last10Wins = pickInt(ts.Last10Wins, avg.Last10Wins, "last10_wins", &r.Fallbacks)
	return r
}

func pickFloat(v *float64, def float64, field string, fallbacks *[]string) float64 {
	if v == nil {
		*fallbacks = append(*fallbacks, field)
		return def
	}
	return *v
}

func pickInt(v *int, def int, field string, fallbacks *[]string) int {
	if v == nil {
		*fallbacks = append(*fallbacks, field)
		return def
	}
	return *v
}
