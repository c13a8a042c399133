package sports

import (
	"sort"

	"github.com/phenomenon0/capper-engine/pkg/oddsmath"
)

// MarketLines is the consensus view of a game's market across bookmakers.
type MarketLines struct {
	HasSpread bool
	HasTotal  bool

	// Consensus (median) lines.
	SpreadHomeLine float64
	TotalLine      float64

	// Best available price per selection (0 = not offered).
	HomeMoneyline int
	AwayMoneyline int
	HomeSpread    int
	AwaySpread    int
	Over          int
	Under         int

	// Books quoting each market.
	SpreadBooks int
	TotalBooks  int
}

// Favorite returns the market-implied favorite. The spread decides when
// available; a pick'em spread falls back to the moneyline.
func (m MarketLines) Favorite() Side {
	if m.HasSpread && m.SpreadHomeLine != 0 {
		if m.SpreadHomeLine < 0 {
			return SideHome
		}
		return SideAway
	}
	if m.HomeMoneyline != 0 && m.AwayMoneyline != 0 && m.HomeMoneyline != m.AwayMoneyline {
		if oddsmath.BetterPrice(m.AwayMoneyline, m.HomeMoneyline) {
			return SideHome
		}
		return SideAway
	}
	return SideNone
}

// Price returns the best available price for a bet type on a side.
// For totals the side is ignored.
func (m MarketLines) Price(bt BetType, side Side) int {
	switch bt {
	case BetMoneyline:
		if side == SideAway {
			return m.AwayMoneyline
		}
		return m.HomeMoneyline
	case BetSpread:
		if side == SideAway {
			return m.AwaySpread
		}
		return m.HomeSpread
	case BetTotalOver:
		return m.Over
	case BetTotalUnder:
		return m.Under
	}
	return 0
}

// Lines builds the consensus market view from every bookmaker quote.
// Bookmakers are visited in name order so the result is deterministic.
func (g Game) Lines() MarketLines {
	books := make([]string, 0, len(g.Odds))
	for name := range g.Odds {
		books = append(books, name)
	}
	sort.Strings(books)

	var ml MarketLines
	var spreads, totals []float64

	for _, name := range books {
		o := g.Odds[name]
		if o.Moneyline != nil {
			ml.HomeMoneyline = best(ml.HomeMoneyline, o.Moneyline.Home)
			ml.AwayMoneyline = best(ml.AwayMoneyline, o.Moneyline.Away)
		}
		if o.Spread != nil {
			spreads = append(spreads, o.Spread.HomeLine)
		}
		if o.Total != nil && o.Total.Line > 0 {
			totals = append(totals, o.Total.Line)
		}
	}

	if len(spreads) > 0 {
		ml.HasSpread = true
		ml.SpreadBooks = len(spreads)
		ml.SpreadHomeLine = median(spreads)
	}
	if len(totals) > 0 {
		ml.HasTotal = true
		ml.TotalBooks = len(totals)
		ml.TotalLine = median(totals)
	}

	// Prices only count when the book hangs the consensus number.
	for _, name := range books {
		o := g.Odds[name]
		if o.Spread != nil && ml.HasSpread && o.Spread.HomeLine == ml.SpreadHomeLine {
			ml.HomeSpread = best(ml.HomeSpread, o.Spread.HomePrice)
			ml.AwaySpread = best(ml.AwaySpread, o.Spread.AwayPrice)
		}
		if o.Total != nil && ml.HasTotal && o.Total.Line == ml.TotalLine {
			ml.Over = best(ml.Over, o.Total.OverPrice)
			ml.Under = best(ml.Under, o.Total.UnderPrice)
		}
	}

	return ml
}

func best(cur, candidate int) int {
	if oddsmath.BetterPrice(candidate, cur) {
		return candidate
	}
	return cur
}

// median returns the lower-middle element for even counts so the result is
// always a line some book actually hangs.
func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	return s[(len(s)-1)/2]
}
