package factors

import (
	"errors"
	"fmt"

	"github.com/phenomenon0/capper-engine/pkg/stats"
)

// Scale constants. A raw differential equal to its scale maps to a signal of
// tanh(1) ~ 0.76.
const (
	NetRatingScale    = 10.0 // net rating points
	TurnoverScale     = 3.0  // turnover pct points
	ReboundScale      = 5.0  // rebound pct points
	DisruptionScale   = 4.0  // steals+blocks per game
	RecentFormScale   = 4.0
	HomeCourtScale    = 3.0 // points
	PaceScale         = 4.0 // possessions above league average
	InjuryScale       = 5.0 // points lost
	MarketDevScale    = 6.0 // points between model and consensus spread
	streakWeight      = 0.5
	last10PointWeight = 10.0
)

// Factor names.
const (
	NameNetRating           = "net_rating"
	NameTurnovers           = "turnovers"
	NameRebounding          = "rebounding"
	NameDefensiveDisruption = "defensive_disruption"
	NameRecentForm          = "recent_form"
	NameHomeCourt           = "home_court"
	NamePace                = "pace"
	NameInjuries            = "injuries"
	NameMarketDeviation     = "market_deviation"
	NameResearch            = "research"
)

// ErrInjuriesUnavailable disables the injuries factor when no report exists.
var ErrInjuriesUnavailable = errors.New("injury report unavailable")

// NetRating compares each team's offensive minus defensive rating.
func NetRating(homeOff, homeDef, awayOff, awayDef float64) Signal {
	if err := checkNonNegative(homeOff, homeDef, awayOff, awayDef); err != nil {
		return neutral(NameNetRating, err.Error())
	}
	raw := (homeOff - homeDef) - (awayOff - awayDef)
	return saturate(NameNetRating, raw, NetRatingScale)
}

// Turnovers favors the team that gives the ball away less often.
func Turnovers(homeRate, awayRate float64) Signal {
	if err := checkRate(homeRate, awayRate); err != nil {
		return neutral(NameTurnovers, err.Error())
	}
	raw := (awayRate - homeRate) * 100
	return saturate(NameTurnovers, raw, TurnoverScale)
}

// Rebounding compares rebound share.
func Rebounding(homeRate, awayRate float64) Signal {
	if err := checkRate(homeRate, awayRate); err != nil {
		return neutral(NameRebounding, err.Error())
	}
	raw := (homeRate - awayRate) * 100
	return saturate(NameRebounding, raw, ReboundScale)
}

// DefensiveDisruption compares steals plus blocks per game.
func DefensiveDisruption(homeStl, homeBlk, awayStl, awayBlk float64) Signal {
	if err := checkNonNegative(homeStl, homeBlk, awayStl, awayBlk); err != nil {
		return neutral(NameDefensiveDisruption, err.Error())
	}
	raw := (homeStl + homeBlk) - (awayStl + awayBlk)
	return saturate(NameDefensiveDisruption, raw, DisruptionScale)
}

// RecentForm combines last-10 records with current streaks. Streaks are
// positive for wins and negative for losses.
func RecentForm(homeLast10, awayLast10, homeStreak, awayStreak int) Signal {
	if homeLast10 < 0 || homeLast10 > 10 || awayLast10 < 0 || awayLast10 > 10 {
		return neutral(NameRecentForm, fmt.Sprintf("last-10 wins %d/%d outside [0,10]", homeLast10, awayLast10))
	}
	winPctDiff := float64(homeLast10-awayLast10) / 10
	raw := winPctDiff*last10PointWeight + float64(homeStreak-awayStreak)*streakWeight
	return saturate(NameRecentForm, raw, RecentFormScale)
}

// HomeCourt is the fixed home advantage in points. Neutral sites get none.
func HomeCourt(points float64, neutralSite bool) Signal {
	if !finite(points) {
		return neutral(NameHomeCourt, "non-finite home court")
	}
	if neutralSite {
		return Signal{Name: NameHomeCourt, Meta: map[string]string{"neutral_site": "true"}}
	}
	return saturate(NameHomeCourt, points, HomeCourtScale)
}

// Pace is a totals factor: a combined pace above league average favors the over.
func Pace(homePace, awayPace, leagueAvg float64) Signal {
	if err := checkNonNegative(homePace, awayPace, leagueAvg); err != nil || homePace == 0 || awayPace == 0 {
		s := neutral(NamePace, "pace must be positive")
		s.Totals = true
		return s
	}
	raw := (homePace+awayPace)/2 - leagueAvg
	s := saturate(NamePace, raw, PaceScale)
	s.Totals = true
	return s
}

// Injuries compares expected points lost to injury. It has no league-average
// fallback: a missing report disables the factor.
func Injuries(home, away *stats.InjuryReport, fetchErr error) Signal {
	if fetchErr != nil {
		return disabled(NameInjuries, fetchErr)
	}
	if home == nil || away == nil {
		return disabled(NameInjuries, ErrInjuriesUnavailable)
	}
	homeImpact, awayImpact := home.Impact(), away.Impact()
	if err := checkNonNegative(homeImpact, awayImpact); err != nil {
		return neutral(NameInjuries, err.Error())
	}
	s := saturate(NameInjuries, awayImpact-homeImpact, InjuryScale)
	s.Meta = map[string]string{
		"home_impact": fmt.Sprintf("%.2f", homeImpact),
		"away_impact": fmt.Sprintf("%.2f", awayImpact),
	}
	return s
}

// MarketDeviation compares the model's home margin with the margin implied by
// the consensus spread (the negated home line).
func MarketDeviation(modelMargin, homeLine float64) Signal {
	if !finite(modelMargin, homeLine) {
		return neutral(NameMarketDeviation, "non-finite margin or line")
	}
	return saturate(NameMarketDeviation, modelMargin+homeLine, MarketDevScale)
}

// Research passes through an externally supplied signal in [-1, 1].
func Research(value, confidence float64) Signal {
	if !finite(value, confidence) || value < -1 || value > 1 || confidence < 0 || confidence > 1 {
		return neutral(NameResearch, "research signal outside [-1,1] or confidence outside [0,1]")
	}
	s := Signal{Name: NameResearch, Raw: value, Value: value}
	pts := value * MaxPoints
	if pts > 0 {
		s.HomeScore = pts
	} else if pts < 0 {
		s.AwayScore = -pts
	}
	s.Meta = map[string]string{"confidence": fmt.Sprintf("%.2f", confidence)}
	return s
}
