// Package grading settles picks against final scores and summarizes a
// capper's record in units.
package grading

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/phenomenon0/capper-engine/pkg/oddsmath"
	"github.com/phenomenon0/capper-engine/pkg/sports"
)

// Outcome is the settlement of one pick.
type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
	OutcomePush    Outcome = "push"
	OutcomePending Outcome = "pending" // no final score yet
)

// Score is a game's final score.
type Score struct {
	GameID string `json:"game_id"`
	Home   int    `json:"home"`
	Away   int    `json:"away"`
}

// Config holds grading parameters.
type Config struct {
	Bankroll decimal.Decimal // starting bankroll in units
}

// DefaultConfig returns default grading configuration.
func DefaultConfig() *Config {
	return &Config{Bankroll: decimal.NewFromInt(100)}
}

// GradedPick is a pick with its settlement.
type GradedPick struct {
	Pick    sports.Pick     `json:"pick"`
	Outcome Outcome         `json:"outcome"`
	Profit  decimal.Decimal `json:"profit"` // units
}

// EquityPoint records the bankroll after a settled pick.
type EquityPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Bankroll  decimal.Decimal `json:"bankroll"`
	Drawdown  decimal.Decimal `json:"drawdown"`
}

// Result holds a graded record.
type Result struct {
	Picks       int             `json:"picks"`
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
	Pushes      int             `json:"pushes"`
	Pending     int             `json:"pending"`
	UnitsRisked decimal.Decimal `json:"units_risked"`
	UnitsWon    decimal.Decimal `json:"units_won"` // net
	ROI         decimal.Decimal `json:"roi"`       // percentage of units risked
	WinRate     decimal.Decimal `json:"win_rate"`  // wins / (wins + losses)
	MaxDrawdown decimal.Decimal `json:"max_drawdown"`
	Graded      []GradedPick    `json:"graded,omitempty"`
	EquityCurve []EquityPoint   `json:"equity_curve,omitempty"`
}

// Settle grades one pick against a final score.
func Settle(p sports.Pick, s Score) (Outcome, error) {
	switch p.BetType {
	case sports.BetTotalOver:
		return compare(float64(s.Home+s.Away) - p.Line), nil
	case sports.BetTotalUnder:
		return compare(p.Line - float64(s.Home+s.Away)), nil
	case sports.BetSpread:
		margin, err := sideMargin(p, s)
		if err != nil {
			return "", err
		}
		return compare(margin + p.Line), nil
	case sports.BetMoneyline:
		margin, err := sideMargin(p, s)
		if err != nil {
			return "", err
		}
		return compare(margin), nil
	default:
		return "", fmt.Errorf("pick %s: cannot grade bet type %q", p.ID, p.BetType)
	}
}

func sideMargin(p sports.Pick, s Score) (float64, error) {
	switch p.Side {
	case sports.SideHome:
		return float64(s.Home - s.Away), nil
	case sports.SideAway:
		return float64(s.Away - s.Home), nil
	default:
		return 0, fmt.Errorf("pick %s: %s pick has no side", p.ID, p.BetType)
	}
}

func compare(v float64) Outcome {
	switch {
	case v > 0:
		return OutcomeWin
	case v < 0:
		return OutcomeLoss
	default:
		return OutcomePush
	}
}

// Profit returns the net units for a settled pick.
func Profit(p sports.Pick, o Outcome) (decimal.Decimal, error) {
	units := decimal.NewFromInt(int64(p.Units))
	switch o {
	case OutcomeWin:
		if !p.ToWin.IsZero() {
			return p.ToWin, nil
		}
		return oddsmath.ToWin(p.Odds, units)
	case OutcomeLoss:
		return units.Neg(), nil
	default:
		return decimal.Zero, nil
	}
}

// Grade settles picks in creation order. Picks without a score are pending
// and do not move the bankroll.
func Grade(picks []sports.Pick, scores map[string]Score, config *Config) (*Result, error) {
	if config == nil {
		config = DefaultConfig()
	}
	ordered := append([]sports.Pick(nil), picks...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	res := &Result{Picks: len(ordered)}
	bankroll := config.Bankroll
	peak := bankroll

	for _, p := range ordered {
		s, ok := scores[p.GameID]
		if !ok {
			res.Pending++
			res.Graded = append(res.Graded, GradedPick{Pick: p, Outcome: OutcomePending})
			continue
		}
		outcome, err := Settle(p, s)
		if err != nil {
			return nil, err
		}
		profit, err := Profit(p, outcome)
		if err != nil {
			return nil, fmt.Errorf("pick %s: %w", p.ID, err)
		}

		switch outcome {
		case OutcomeWin:
			res.Wins++
		case OutcomeLoss:
			res.Losses++
		case OutcomePush:
			res.Pushes++
		}
		res.UnitsRisked = res.UnitsRisked.Add(decimal.NewFromInt(int64(p.Units)))
		res.UnitsWon = res.UnitsWon.Add(profit)
		res.Graded = append(res.Graded, GradedPick{Pick: p, Outcome: outcome, Profit: profit})

		bankroll = bankroll.Add(profit)
		if bankroll.GreaterThan(peak) {
			peak = bankroll
		}
		drawdown := decimal.Zero
		if peak.IsPositive() {
			drawdown = peak.Sub(bankroll).Div(peak)
		}
		if drawdown.GreaterThan(res.MaxDrawdown) {
			res.MaxDrawdown = drawdown
		}
		res.EquityCurve = append(res.EquityCurve, EquityPoint{
			Timestamp: p.CreatedAt,
			Bankroll:  bankroll,
			Drawdown:  drawdown,
		})
	}

	if res.UnitsRisked.IsPositive() {
		res.ROI = res.UnitsWon.Div(res.UnitsRisked).Mul(decimal.NewFromInt(100))
	}
	if decided := res.Wins + res.Losses; decided > 0 {
		res.WinRate = decimal.NewFromInt(int64(res.Wins)).Div(decimal.NewFromInt(int64(decided)))
	}
	return res, nil
}

// LoadScores reads final scores from a JSON array file.
func LoadScores(filename string) (map[string]Score, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	var list []Score
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	out := make(map[string]Score, len(list))
	for _, s := range list {
		if s.GameID == "" {
			return nil, fmt.Errorf("score without game_id")
		}
		out[s.GameID] = s
	}
	return out, nil
}
