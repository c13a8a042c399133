package market

import (
	"fmt"
	"math"

	"github.com/phenomenon0/capper-engine/pkg/sports"
)

// BetConfidence is the graded confidence for one market.
type BetConfidence struct {
	BetType    sports.BetType `json:"bet_type"`
	Side       sports.Side    `json:"side,omitempty"` // empty for totals
	Line       float64        `json:"line,omitempty"`
	Confidence float64        `json:"confidence"`
	Gap        float64        `json:"gap"`
	Tier       string         `json:"tier"`
	Reasoning  string         `json:"reasoning"`
}

// ConfidenceResult holds at most one graded bet per market (total, spread,
// moneyline). Markets without a line or without a lean are absent and
// explained in Reasoning.
type ConfidenceResult struct {
	Bets      []BetConfidence `json:"bets"`
	Reasoning []string        `json:"reasoning"`
}

// Get returns the graded bet for a market. Both total sides match total.
func (r ConfidenceResult) Get(bt sports.BetType) (BetConfidence, bool) {
	for _, b := range r.Bets {
		if b.BetType.Normalized() == bt.Normalized() {
			return b, true
		}
	}
	return BetConfidence{}, false
}

// Compare grades the prediction against the market lines. It is pure.
func Compare(pred ScorePrediction, lines sports.MarketLines, tiers TierConfig) ConfidenceResult {
	var r ConfidenceResult
	note := func(format string, args ...interface{}) {
		r.Reasoning = append(r.Reasoning, fmt.Sprintf(format, args...))
	}

	// Totals
	switch {
	case !lines.HasTotal:
		note("no total line")
	case pred.Total == lines.TotalLine:
		note("predicted total %.1f equals the line", pred.Total)
	default:
		gap := pred.Total - lines.TotalLine
		bt := sports.BetTotalOver
		if gap < 0 {
			bt = sports.BetTotalUnder
		}
		tier := tiers.Totals.Grade(math.Abs(gap))
		r.Bets = append(r.Bets, BetConfidence{
			BetType:    bt,
			Line:       lines.TotalLine,
			Confidence: tier.Confidence,
			Gap:        math.Abs(gap),
			Tier:       tier.Label,
			Reasoning:  fmt.Sprintf("predicted total %.1f vs line %.1f (gap %.1f, %s)", pred.Total, lines.TotalLine, math.Abs(gap), tier.Label),
		})
	}

	favorite := lines.Favorite()
	agree := favorite == sports.SideNone || favorite == pred.Winner
	// A disagreement inside the minimum margin is no call on the winner.
	upset := !agree && math.Abs(pred.Margin) >= tiers.UpsetMinMargin

	// Spread
	implied := -lines.SpreadHomeLine
	switch {
	case !lines.HasSpread:
		note("no spread line")
	case pred.Winner == sports.SideNone:
		note("predicted margin is zero, no spread lean")
	case !upset:
		gap := pred.Margin - implied
		if gap == 0 {
			note("predicted margin %+.1f equals the spread", pred.Margin)
			break
		}
		side := sports.SideHome
		if gap < 0 {
			side = sports.SideAway
		}
		tier := tiers.Spread.Grade(math.Abs(gap))
		r.Bets = append(r.Bets, BetConfidence{
			BetType:    sports.BetSpread,
			Side:       side,
			Line:       spreadLine(lines.SpreadHomeLine, side),
			Confidence: tier.Confidence,
			Gap:        math.Abs(gap),
			Tier:       tier.Label,
			Reasoning: fmt.Sprintf("predicted margin %+.1f vs market %+.1f, %.1f points toward %s (%s)",
				pred.Margin, implied, math.Abs(gap), side, tier.Label),
		})
	default:
		tier := tiers.Upset.Grade(math.Abs(pred.Margin))
		r.Bets = append(r.Bets, BetConfidence{
			BetType:    sports.BetSpread,
			Side:       pred.Winner,
			Line:       spreadLine(lines.SpreadHomeLine, pred.Winner),
			Confidence: tier.Confidence,
			Gap:        math.Abs(pred.Margin - implied),
			Tier:       tier.Label,
			Reasoning: fmt.Sprintf("model picks %s to win by %.1f against market favorite %s (%s)",
				pred.Winner, math.Abs(pred.Margin), favorite, tier.Label),
		})
	}

	// Moneyline
	switch {
	case lines.HomeMoneyline == 0 && lines.AwayMoneyline == 0:
		note("no moneyline")
	case pred.Winner == sports.SideNone:
		note("no predicted winner, no moneyline lean")
	case !agree && !upset:
		note("predicted margin %+.1f against favorite %s is under the %.1f upset minimum, no moneyline lean",
			pred.Margin, favorite, tiers.UpsetMinMargin)
	default:
		tiersFor, label := tiers.Moneyline, "same winner as market"
		if !agree {
			tiersFor, label = tiers.Upset, "upset"
		}
		tier := tiersFor.Grade(math.Abs(pred.Margin))
		r.Bets = append(r.Bets, BetConfidence{
			BetType:    sports.BetMoneyline,
			Side:       pred.Winner,
			Confidence: tier.Confidence,
			Gap:        math.Abs(pred.Margin),
			Tier:       tier.Label,
			Reasoning: fmt.Sprintf("%s to win by %.1f, %s (%s)",
				pred.Winner, math.Abs(pred.Margin), label, tier.Label),
		})
	}

	return r
}

// spreadLine returns the line from the selected side's perspective.
func spreadLine(homeLine float64, side sports.Side) float64 {
	if side == sports.SideAway {
		return -homeLine
	}
	return homeLine
}
