// Package analysis runs the per-game pipeline: stats, factors, calibration,
// aggregation, score prediction, market comparison and the decision policy.
package analysis

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/phenomenon0/capper-engine/pkg/aggregate"
	"github.com/phenomenon0/capper-engine/pkg/decision"
	"github.com/phenomenon0/capper-engine/pkg/factors"
	"github.com/phenomenon0/capper-engine/pkg/market"
	"github.com/phenomenon0/capper-engine/pkg/reliability"
	"github.com/phenomenon0/capper-engine/pkg/research"
	"github.com/phenomenon0/capper-engine/pkg/sports"
	"github.com/phenomenon0/capper-engine/pkg/stats"
)

// DefaultResearchTimeout bounds the optional research call.
const DefaultResearchTimeout = 3 * time.Second

// Research status values recorded on a report.
const (
	ResearchDisabled = "disabled"
	ResearchPresent  = "present"
	ResearchAbsent   = "absent"
	ResearchTimedOut = "timeout"
)

// StatsCollector fetches a game's stats bundle. It never fails as a whole.
type StatsCollector interface {
	Collect(ctx context.Context, game sports.Game) *stats.Bundle
}

// ScorePredictor projects scores before and after the factor edge.
type ScorePredictor interface {
	Baseline(b *stats.Bundle) market.ScorePrediction
	Predict(b *stats.Bundle, agg aggregate.Result) market.ScorePrediction
}

// Config holds the numeric configuration shared by every game.
type Config struct {
	ResearchTimeout time.Duration
	Weights         factors.Weights
	Reliability     reliability.Table
	Aggregate       aggregate.Config
	Tiers           market.TierConfig
}

// DefaultConfig returns the NBA defaults.
func DefaultConfig() Config {
	return Config{
		ResearchTimeout: DefaultResearchTimeout,
		Weights:         factors.DefaultWeights(),
		Reliability:     reliability.DefaultTable(),
		Aggregate:       aggregate.DefaultConfig(),
		Tiers:           market.DefaultTierConfig(),
	}
}

// Report is the full audit record of one game's analysis. Exactly one of
// Outcome.Pick and Outcome.Pass is set.
type Report struct {
	Game           sports.Game
	Lines          sports.MarketLines
	Bundle         *stats.Bundle
	Factors        []factors.Factor
	Aggregate      aggregate.Result
	Baseline       market.ScorePrediction
	Prediction     market.ScorePrediction
	Confidence     market.ConfidenceResult
	Candidates     []decision.Candidate
	Outcome        decision.Outcome
	ResearchStatus string
	Duration       time.Duration
}

// Analyzer runs the pipeline for one game at a time. It holds no per-game
// state and is safe for concurrent use.
type Analyzer struct {
	cfg          Config
	collector    StatsCollector
	predictor    ScorePredictor
	research     research.Provider
	residualizer *reliability.Residualizer
	now          func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithResearch enables the external-research factor.
func WithResearch(p research.Provider) Option {
	return func(a *Analyzer) {
		a.research = p
	}
}

// WithPredictor replaces the pace and efficiency predictor.
func WithPredictor(p ScorePredictor) Option {
	return func(a *Analyzer) {
		a.predictor = p
	}
}

// WithResidualizer strips the part of the baseline margin already explained
// by the market line before the market-deviation factor sees it.
func WithResidualizer(r *reliability.Residualizer) Option {
	return func(a *Analyzer) {
		a.residualizer = r
	}
}

// WithClock sets the clock used for recency.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		a.now = now
	}
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(collector StatsCollector, cfg Config, opts ...Option) *Analyzer {
	if cfg.ResearchTimeout <= 0 {
		cfg.ResearchTimeout = DefaultResearchTimeout
	}
	if cfg.Reliability == nil {
		cfg.Reliability = reliability.DefaultTable()
	}
	a := &Analyzer{
		cfg:       cfg,
		collector: collector,
		predictor: market.NewPredictor(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs one game through the pipeline for one policy. It never
// panics: a fault at any stage becomes a fault pass.
func (a *Analyzer) Analyze(ctx context.Context, game sports.Game, policy *decision.Policy, claimed []sports.BetType) (rep *Report) {
	start := time.Now()
	rep = &Report{Game: game, ResearchStatus: ResearchDisabled}
	stage := sports.StageData

	defer func() {
		if r := recover(); r != nil {
			rep.Outcome = decision.Outcome{Pass: &sports.PassRecord{
				GameID:  game.ID,
				Capper:  policy.Name(),
				Stage:   stage,
				Kind:    sports.PassFault,
				Reason:  fmt.Sprintf("panic during %s: %v", stage, r),
				Details: []string{firstFrames(debug.Stack(), 6)},
			}}
		}
		rep.Duration = time.Since(start)
	}()

	rep.Lines = game.Lines()
	if !rep.Lines.HasSpread && !rep.Lines.HasTotal && rep.Lines.HomeMoneyline == 0 && rep.Lines.AwayMoneyline == 0 {
		rep.Outcome = decision.Outcome{Pass: &sports.PassRecord{
			GameID: game.ID,
			Capper: policy.Name(),
			Stage:  sports.StageData,
			Kind:   sports.PassDataMissing,
			Reason: "no bookmaker odds for the game",
		}}
		return rep
	}

	rep.Bundle = a.collector.Collect(ctx, game)
	if rep.Bundle == nil {
		rep.Outcome = decision.Outcome{Pass: &sports.PassRecord{
			GameID: game.ID,
			Capper: policy.Name(),
			Stage:  sports.StageData,
			Kind:   sports.PassDataMissing,
			Reason: "stats collector returned nothing",
		}}
		return rep
	}
	if !rep.Bundle.StatsAvailable() {
		rep.Outcome = decision.Outcome{Pass: &sports.PassRecord{
			GameID:  game.ID,
			Capper:  policy.Name(),
			Stage:   sports.StageData,
			Kind:    sports.PassDataMissing,
			Reason:  "no team stats for either team",
			Details: fetchErrors(rep.Bundle),
		}}
		return rep
	}

	stage = sports.StageFactors
	rep.Baseline = a.predictor.Baseline(rep.Bundle)
	opts := factors.Options{
		Now:         a.now(),
		NeutralSite: game.NeutralSite,
		Weights:     a.cfg.Weights,
		Lines:       &rep.Lines,
	}
	if rep.Lines.HasSpread {
		margin := rep.Baseline.Margin
		if a.residualizer != nil {
			implied := -rep.Lines.SpreadHomeLine
			margin = implied + a.residualizer.Residual(margin, implied)
		}
		opts.BaselineMargin = &margin
	}
	if a.research != nil {
		opts.Research, rep.ResearchStatus = a.consultResearch(ctx, game, rep.Lines)
	}

	built := factors.Build(rep.Bundle, opts)
	rep.Factors = reliability.Dedupe(reliability.Calibrate(built, a.cfg.Reliability))
	rep.Aggregate = aggregate.Aggregate(rep.Factors, a.cfg.Aggregate)

	stage = sports.StageMarket
	rep.Prediction = a.predictor.Predict(rep.Bundle, rep.Aggregate)
	rep.Confidence = market.Compare(rep.Prediction, rep.Lines, a.cfg.Tiers)
	rep.Candidates = Candidates(game, rep.Lines, rep.Confidence)

	stage = sports.StageFilter
	rep.Outcome = policy.Decide(game.ID, rep.Candidates, claimed)
	a.annotate(rep)
	return rep
}

// consultResearch asks the provider under the research time box. A provider
// that ignores its context is abandoned when the box closes.
func (a *Analyzer) consultResearch(ctx context.Context, game sports.Game, lines sports.MarketLines) (*factors.ResearchInput, string) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ResearchTimeout)
	defer cancel()

	type result struct {
		in  *factors.ResearchInput
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("research panic: %v", r)}
			}
		}()
		in, err := a.research.Research(ctx, research.QueryFor(game, lines))
		ch <- result{in: in, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil || r.in == nil {
			return nil, ResearchAbsent
		}
		return r.in, ResearchPresent
	case <-ctx.Done():
		return nil, ResearchTimedOut
	}
}

// annotate attaches the factor breakdown and trail to the outcome.
func (a *Analyzer) annotate(rep *Report) {
	trail := rep.Aggregate.Trail()
	notes := append([]string{}, rep.Prediction.Reasoning...)
	notes = append(notes, rep.Confidence.Reasoning...)
	if rep.ResearchStatus != ResearchDisabled && rep.ResearchStatus != ResearchPresent {
		notes = append(notes, "research "+rep.ResearchStatus)
	}

	if p := rep.Outcome.Pick; p != nil {
		for _, f := range rep.Aggregate.ByImpact() {
			p.Factors = append(p.Factors, f.Summary())
		}
		p.Reasoning = append(p.Reasoning, notes...)
		p.Reasoning = append(p.Reasoning, trail...)
		return
	}
	if pass := rep.Outcome.Pass; pass != nil {
		pass.Details = append(pass.Details, notes...)
		pass.Details = append(pass.Details, trail...)
	}
}

// Candidates converts graded bets into priced, labeled policy candidates.
func Candidates(game sports.Game, lines sports.MarketLines, cr market.ConfidenceResult) []decision.Candidate {
	var out []decision.Candidate
	for _, b := range cr.Bets {
		out = append(out, decision.Candidate{
			BetType:    b.BetType,
			Side:       b.Side,
			Selection:  Selection(game, b),
			Odds:       lines.Price(b.BetType, b.Side),
			Line:       b.Line,
			Confidence: b.Confidence,
			Reasoning:  b.Reasoning,
		})
	}
	return out
}

// Selection renders the human-readable pick text.
func Selection(game sports.Game, b market.BetConfidence) string {
	switch b.BetType {
	case sports.BetTotalOver:
		return fmt.Sprintf("Over %g", b.Line)
	case sports.BetTotalUnder:
		return fmt.Sprintf("Under %g", b.Line)
	case sports.BetSpread:
		if b.Line == 0 {
			return game.TeamName(b.Side) + " PK"
		}
		return fmt.Sprintf("%s %+g", game.TeamName(b.Side), b.Line)
	default:
		return game.TeamName(b.Side) + " ML"
	}
}

func fetchErrors(b *stats.Bundle) []string {
	var out []string
	for _, err := range []error{b.HomeStatsErr, b.AwayStatsErr, b.InjuriesErr} {
		if err != nil {
			out = append(out, err.Error())
		}
	}
	return out
}

func firstFrames(stack []byte, n int) string {
	lines := strings.Split(string(stack), "\n")
	if len(lines) > n*2+1 {
		lines = lines[:n*2+1]
	}
	return strings.Join(lines, "\n")
}
