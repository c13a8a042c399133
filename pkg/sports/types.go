// Package sports defines the game, odds, pick and pass types shared by the
// capper engine.
//
// Sign conventions used throughout the engine:
//   - a positive margin, effect or contribution favors the HOME team
//   - for totals, a positive value favors the OVER
//   - confidence is on a 0-10 scale
package sports

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sport identifies a league feed (odds-api style keys).
type Sport string

const (
	SportNBA   Sport = "basketball_nba"
	SportNCAAB Sport = "basketball_ncaab"
	SportNFL   Sport = "americanfootball_nfl"
	SportNHL   Sport = "icehockey_nhl"
	SportMLB   Sport = "baseball_mlb"
)

// BetType is the kind of wager a pick is placed on.
type BetType string

const (
	BetMoneyline  BetType = "moneyline"
	BetSpread     BetType = "spread"
	BetTotalOver  BetType = "total_over"
	BetTotalUnder BetType = "total_under"

	// betTotal is the normalized form of both total sides.
	betTotal BetType = "total"
)

// Normalized collapses total_over/total_under to "total" so duplicate checks
// treat both sides of a total as the same market.
func (b BetType) Normalized() BetType {
	if b == BetTotalOver || b == BetTotalUnder {
		return betTotal
	}
	return b
}

// Valid reports whether b is one of the four pick types.
func (b BetType) Valid() bool {
	switch b {
	case BetMoneyline, BetSpread, BetTotalOver, BetTotalUnder:
		return true
	}
	return false
}

// Side is a team side of a game.
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
	SideNone Side = ""
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	switch s {
	case SideHome:
		return SideAway
	case SideAway:
		return SideHome
	default:
		return SideNone
	}
}

// Team identifies one side of a game.
type Team struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation,omitempty"`
}

// Moneyline holds both moneyline prices (American odds, 0 = not offered).
type Moneyline struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Spread holds a point spread quoted from the home team's perspective.
// HomeLine -6.5 means home is favored by 6.5.
type Spread struct {
	HomePrice int     `json:"home_price"`
	AwayPrice int     `json:"away_price"`
	HomeLine  float64 `json:"home_line"`
}

// Total holds an over/under market.
type Total struct {
	OverPrice  int     `json:"over_price"`
	UnderPrice int     `json:"under_price"`
	Line       float64 `json:"line"`
}

// BookOdds is one bookmaker's quote for a game. Every market is optional.
type BookOdds struct {
	Moneyline *Moneyline `json:"moneyline,omitempty"`
	Spread    *Spread    `json:"spread,omitempty"`
	Total     *Total     `json:"total,omitempty"`
}

// Game is the immutable input to a single analysis run.
type Game struct {
	ID          string              `json:"id"`
	Sport       Sport               `json:"sport"`
	HomeTeam    Team                `json:"home_team"`
	AwayTeam    Team                `json:"away_team"`
	StartTime   time.Time           `json:"start_time"`
	NeutralSite bool                `json:"neutral_site,omitempty"`
	Odds        map[string]BookOdds `json:"odds"`
}

// Matchup returns "Away @ Home".
func (g Game) Matchup() string {
	return g.AwayTeam.Name + " @ " + g.HomeTeam.Name
}

// TeamName returns the display name for a side.
func (g Game) TeamName(s Side) string {
	if s == SideAway {
		return g.AwayTeam.Name
	}
	return g.HomeTeam.Name
}

// FactorSummary is the per-factor breakdown attached to a pick.
type FactorSummary struct {
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Contribution float64 `json:"contribution"`
	Reliability  float64 `json:"reliability"`
	Reasoning    string  `json:"reasoning"`
}

// Pick is a recommendation that survived every decision gate.
type Pick struct {
	ID            string          `json:"id"`
	GameID        string          `json:"game_id"`
	Capper        string          `json:"capper"`
	BetType       BetType         `json:"pick_type"`
	Side          Side            `json:"side,omitempty"`
	Selection     string          `json:"selection"`
	Odds          int             `json:"odds"`
	Line          float64         `json:"line,omitempty"`
	Units         int             `json:"units"`
	ToWin         decimal.Decimal `json:"to_win"`
	Confidence    float64         `json:"confidence"`
	ConfidencePct float64         `json:"confidence_pct"`
	Factors       []FactorSummary `json:"factors,omitempty"`
	Reasoning     []string        `json:"reasoning"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PassKind classifies why no pick was produced.
type PassKind string

const (
	PassNoEdge      PassKind = "no_edge"
	PassDataMissing PassKind = "data_missing"
	PassFault       PassKind = "fault"
	PassIneligible  PassKind = "ineligible"
	PassClaimed     PassKind = "claimed"
	PassBudget      PassKind = "budget"
)

// Stage names the step at which a game was rejected.
type Stage string

const (
	StageEligibility    Stage = "eligibility"
	StageData           Stage = "data"
	StageFactors        Stage = "factors"
	StageMarket         Stage = "market"
	StageFilter         Stage = "filter"
	StageConfidenceGate Stage = "confidence_gate"
	StageFavoriteGuard  Stage = "favorite_guard"
	StageSizing         Stage = "sizing"
	StageBudget         Stage = "budget"
)

// PassRecord is emitted whenever a game yields no pick. It is never dropped.
type PassRecord struct {
	GameID  string   `json:"game_id"`
	Capper  string   `json:"capper,omitempty"`
	Stage   Stage    `json:"stage"`
	Kind    PassKind `json:"kind"`
	Reason  string   `json:"reason"`
	Details []string `json:"details,omitempty"`
}
