package factors

import (
	"fmt"
	"math"
	"time"

	"github.com/phenomenon0/capper-engine/pkg/sports"
	"github.com/phenomenon0/capper-engine/pkg/stats"
)

// MaxLogOdds is the log-odds effect of a fully saturated signal.
const MaxLogOdds = 0.5

// DefaultRecency is used when a source carries no timestamp.
const DefaultRecency = 0.8

// Weights are the declared share of maximum influence per factor.
type Weights map[string]float64

// DefaultWeights returns the NBA weights.
func DefaultWeights() Weights {
	return Weights{
		NameNetRating:           1.0,
		NameTurnovers:           0.4,
		NameRebounding:          0.4,
		NameDefensiveDisruption: 0.3,
		NameRecentForm:          0.5,
		NameHomeCourt:           0.75,
		NamePace:                1.0,
		NameInjuries:            0.8,
		NameMarketDeviation:     0.6,
		NameResearch:            1.0,
	}
}

// ResearchInput is an optional externally supplied signal.
type ResearchInput struct {
	Value      float64 // [-1, 1], positive favors home
	Confidence float64 // [0, 1]
	Responses  int
	Sources    []string
	Summary    string
}

// Options carries everything Build needs besides the stats bundle.
type Options struct {
	Now         time.Time
	NeutralSite bool
	Weights     Weights

	// Lines and BaselineMargin enable the market-deviation factor.
	Lines          *sports.MarketLines
	BaselineMargin *float64

	Research *ResearchInput
}

// Build evaluates every factor against the bundle. Disabled factors are
// included with a zero effect so the audit trail shows them.
func Build(b *stats.Bundle, opts Options) []Factor {
	if opts.Weights == nil {
		opts.Weights = DefaultWeights()
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	avg := stats.Averages(b.Sport)
	home := stats.Resolve(b.Home, avg)
	away := stats.Resolve(b.Away, avg)
	games := min(home.GamesPlayed, away.GamesPlayed)
	recency := math.Min(recencyOf(b.Home.UpdatedAt, opts.Now), recencyOf(b.Away.UpdatedAt, opts.Now))
	statsSource := []string{"team_stats"}

	quality := func(fields ...string) (float64, bool) {
		q, used := 1.0, false
		for _, f := range fields {
			if home.UsedFallback(f) {
				q -= 0.25
				used = true
			}
			if away.UsedFallback(f) {
				q -= 0.25
				used = true
			}
		}
		return math.Max(q, 0.25), used
	}

	var out []Factor
	add := func(sig Signal, cat Category, n int, rec float64, fields []string, sources []string, reasoning string) {
		q, fb := quality(fields...)
		if fb {
			if sig.Meta == nil {
				sig.Meta = map[string]string{}
			}
			sig.Meta["fallback"] = "true"
		}
		f := Factor{
			Name:        sig.Name,
			Category:    cat,
			Unit:        UnitPoints,
			Totals:      sig.Totals,
			Weight:      opts.Weights[sig.Name],
			Effect:      sig.Points(),
			SampleSize:  n,
			Recency:     rec,
			DataQuality: q,
			Disabled:    sig.Disabled,
			Signal:      sig,
			Reasoning:   reasoning,
			Sources:     sources,
		}
		switch {
		case sig.Disabled:
			f.Effect = 0
			f.Reasoning = fmt.Sprintf("disabled: %s", sig.Meta["error"])
		case sig.BadInput():
			f.DataQuality = 0
			f.Reasoning = fmt.Sprintf("bad input: %s", sig.Meta["detail"])
		}
		out = append(out, f)
	}

	add(NetRating(home.OffensiveRating, home.DefensiveRating, away.OffensiveRating, away.DefensiveRating),
		CategoryMatchup, games, recency,
		[]string{"offensive_rating", "defensive_rating"}, statsSource,
		fmt.Sprintf("net rating %+.1f vs %+.1f",
			home.OffensiveRating-home.DefensiveRating, away.OffensiveRating-away.DefensiveRating))

	add(Turnovers(home.TurnoverRate, away.TurnoverRate),
		CategoryMatchup, games, recency,
		[]string{"turnover_rate"}, statsSource,
		fmt.Sprintf("turnover rate %.1f%% vs %.1f%%", home.TurnoverRate*100, away.TurnoverRate*100))

	add(Rebounding(home.ReboundRate, away.ReboundRate),
		CategoryMatchup, games, recency,
		[]string{"rebound_rate"}, statsSource,
		fmt.Sprintf("rebound share %.1f%% vs %.1f%%", home.ReboundRate*100, away.ReboundRate*100))

	add(DefensiveDisruption(home.StealsPerGame, home.BlocksPerGame, away.StealsPerGame, away.BlocksPerGame),
		CategoryMatchup, games, recency,
		[]string{"steals_per_game", "blocks_per_game"}, statsSource,
		fmt.Sprintf("steals+blocks %.1f vs %.1f",
			home.StealsPerGame+home.BlocksPerGame, away.StealsPerGame+away.BlocksPerGame))

	add(RecentForm(home.Last10Wins, away.Last10Wins, home.WinStreak, away.WinStreak),
		CategoryRecentForm, min(games, 10), recency,
		[]string{"last10_wins", "win_streak"}, statsSource,
		fmt.Sprintf("last 10 %d-%d vs %d-%d, streak %+d vs %+d",
			home.Last10Wins, 10-home.Last10Wins, away.Last10Wins, 10-away.Last10Wins, home.WinStreak, away.WinStreak))

	add(HomeCourt(avg.HomeCourt, opts.NeutralSite),
		CategoryContext, home.GamesPlayed, 1.0, nil, []string{"league_averages"},
		homeCourtReasoning(avg.HomeCourt, opts.NeutralSite))

	add(Pace(home.Pace, away.Pace, avg.Pace),
		CategoryMatchup, games, recency,
		[]string{"pace"}, statsSource,
		fmt.Sprintf("combined pace %.1f vs league %.1f", (home.Pace+away.Pace)/2, avg.Pace))

	inj := Injuries(b.HomeInjuries, b.AwayInjuries, b.InjuriesErr)
	injCount := 1
	if b.InjuriesAvailable() {
		injCount = max(1, len(b.HomeInjuries.Injuries)+len(b.AwayInjuries.Injuries))
	}
	add(inj, CategoryInjuries, injCount, recencyOfInjuries(b, opts.Now), nil, []string{"injury_report"},
		fmt.Sprintf("expected points lost %s vs %s", inj.Meta["home_impact"], inj.Meta["away_impact"]))

	if opts.Lines != nil && opts.Lines.HasSpread && opts.BaselineMargin != nil {
		sig := MarketDeviation(*opts.BaselineMargin, opts.Lines.SpreadHomeLine)
		add(sig, CategoryMarketDeviation, opts.Lines.SpreadBooks, 1.0,
			[]string{"offensive_rating", "defensive_rating", "pace"}, []string{"consensus_spread"},
			fmt.Sprintf("baseline margin %+.1f vs market %+.1f", *opts.BaselineMargin, -opts.Lines.SpreadHomeLine))
		toLogOdds(&out[len(out)-1])
	}

	if r := opts.Research; r != nil {
		sig := Research(r.Value, r.Confidence)
		reasoning := r.Summary
		if reasoning == "" {
			reasoning = fmt.Sprintf("research signal %+.2f at confidence %.2f", r.Value, r.Confidence)
		}
		add(sig, CategoryExternalResearch, r.Responses, 1.0, nil, r.Sources, reasoning)
		f := &out[len(out)-1]
		toLogOdds(f)
		f.Effect *= r.Confidence
	}

	return out
}

// toLogOdds rescales a point effect built from MaxPoints to log-odds.
func toLogOdds(f *Factor) {
	f.Unit = UnitLogOdds
	f.Effect = f.Effect / MaxPoints * MaxLogOdds
}

func homeCourtReasoning(points float64, neutral bool) string {
	if neutral {
		return "neutral site, no home court"
	}
	return fmt.Sprintf("home court worth %.1f points", points)
}

// recencyOf is 1 for data under a day old and decays with a one-week
// time constant after that.
func recencyOf(updated, now time.Time) float64 {
	if updated.IsZero() {
		return DefaultRecency
	}
	age := now.Sub(updated)
	if age <= 24*time.Hour {
		return 1
	}
	r := math.Exp(-float64(age-24*time.Hour) / float64(7*24*time.Hour))
	return math.Max(r, 0.1)
}

func recencyOfInjuries(b *stats.Bundle, now time.Time) float64 {
	if !b.InjuriesAvailable() {
		return 0
	}
	return math.Min(recencyOf(b.HomeInjuries.UpdatedAt, now), recencyOf(b.AwayInjuries.UpdatedAt, now))
}
