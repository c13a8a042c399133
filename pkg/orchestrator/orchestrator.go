// Package orchestrator runs a capper policy across a slate of games and
// truncates the resulting picks to a budget.
package orchestrator

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/phenomenon0/capper-engine/pkg/analysis"
	"github.com/phenomenon0/capper-engine/pkg/decision"
	"github.com/phenomenon0/capper-engine/pkg/eligibility"
	"github.com/phenomenon0/capper-engine/pkg/sports"
)

// Stage represents a stage in the batch workflow.
type Stage string

const (
	StageEligibility Stage = "eligibility"
	StageAnalysis    Stage = "analysis"
	StageRanking     Stage = "ranking"
)

// StageResult holds the result of a stage execution.
type StageResult struct {
	Capper    string                 `json:"capper"`
	Stage     Stage                  `json:"stage"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Duration  time.Duration          `json:"duration"`
	Timestamp time.Time              `json:"timestamp"`
}

// Analyzer runs one game through the per-game pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, game sports.Game, policy *decision.Policy, claimed []sports.BetType) *analysis.Report
}

// Config configures a batch run.
type Config struct {
	// Workers bounds concurrent per-game analyses. Zero means GOMAXPROCS.
	Workers int
	// GameTimeout bounds one game's analysis. Zero means no bound.
	GameTimeout time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		GameTimeout: 30 * time.Second,
	}
}

// BatchResult is the output of one RunBatch call. Every game on the slate
// yields exactly one pick or one pass.
type BatchResult struct {
	Capper    string              `json:"capper"`
	Picks     []sports.Pick       `json:"picks"`
	Passes    []sports.PassRecord `json:"passes"`
	Games     int                 `json:"games"`
	StartedAt time.Time           `json:"started_at"`
	Duration  time.Duration       `json:"duration"`
}

// Orchestrator coordinates a capper's batch workflow.
type Orchestrator struct {
	cfg      Config
	analyzer Analyzer
	policy   *decision.Policy
	checker  eligibility.Checker
	now      func() time.Time

	// Callbacks
	onPick          func(*sports.Pick)
	onPass          func(*sports.PassRecord)
	onReport        func(*analysis.Report)
	onStageComplete func(*StageResult)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithChecker replaces the default time-eligibility gate.
func WithChecker(c eligibility.Checker) Option {
	return func(o *Orchestrator) {
		o.checker = c
	}
}

// WithClock sets the clock passed to the eligibility gate.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an orchestrator for one capper policy.
func New(analyzer Analyzer, policy *decision.Policy, cfg Config, opts ...Option) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	o := &Orchestrator{
		cfg:      cfg,
		analyzer: analyzer,
		policy:   policy,
		checker:  eligibility.NewTimeChecker(eligibility.DefaultBuffer),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OnPick sets a callback for picks that survive truncation.
func (o *Orchestrator) OnPick(fn func(*sports.Pick)) {
	o.onPick = fn
}

// OnPass sets a callback for pass records.
func (o *Orchestrator) OnPass(fn func(*sports.PassRecord)) {
	o.onPass = fn
}

// OnReport sets a callback for full per-game analysis reports.
func (o *Orchestrator) OnReport(fn func(*analysis.Report)) {
	o.onReport = fn
}

// OnStageComplete sets a callback for stage completions.
func (o *Orchestrator) OnStageComplete(fn func(*StageResult)) {
	o.onStageComplete = fn
}

// Capper returns the policy name.
func (o *Orchestrator) Capper() string {
	return o.policy.Name()
}

// RunBatch analyzes every game on the slate and keeps at most budget picks,
// highest confidence first. A budget of zero or less keeps every pick.
//
// claimed holds the bet types already picked per game ID. It is read, never
// written. A failure in one game becomes a fault pass for that game and does
// not stop the batch. The only error returned is ctx's.
func (o *Orchestrator) RunBatch(ctx context.Context, slate []sports.Game, claimed map[string][]sports.BetType, budget int) (*BatchResult, error) {
	res := &BatchResult{Capper: o.Capper(), StartedAt: o.now()}
	start := time.Now()

	games, dupes := uniqueGames(slate)
	res.Games = len(games)
	for _, g := range dupes {
		res.Passes = append(res.Passes, o.passFor(g.ID, sports.StageData, sports.PassDataMissing, "game listed more than once on the slate"))
	}

	eligible := o.runEligibility(games, res)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	picks, passes := o.runAnalysis(ctx, eligible, claimed)
	res.Passes = append(res.Passes, passes...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.runRanking(picks, budget, res)

	sort.SliceStable(res.Passes, func(i, j int) bool { return res.Passes[i].GameID < res.Passes[j].GameID })
	for i := range res.Passes {
		o.emitPass(&res.Passes[i])
	}
	for i := range res.Picks {
		if o.onPick != nil {
			o.onPick(&res.Picks[i])
		}
	}

	res.Duration = time.Since(start)
	return res, nil
}

func (o *Orchestrator) runEligibility(games []sports.Game, res *BatchResult) []sports.Game {
	start := time.Now()
	now := o.now()

	eligible := make([]sports.Game, 0, len(games))
	for _, g := range games {
		e := o.checker.Check(g, now)
		if !e.IsValid {
			res.Passes = append(res.Passes, o.passFor(g.ID, sports.StageEligibility, sports.PassIneligible, e.Reason))
			continue
		}
		eligible = append(eligible, g)
	}

	o.stageDone(StageEligibility, start, nil, map[string]interface{}{
		"games":    len(games),
		"eligible": len(eligible),
	})
	return eligible
}

// runAnalysis fans games out to the worker pool. Results land in slots
// indexed by slate position so completion order never matters.
func (o *Orchestrator) runAnalysis(ctx context.Context, games []sports.Game, claimed map[string][]sports.BetType) ([]sports.Pick, []sports.PassRecord) {
	start := time.Now()
	outcomes := make([]decision.Outcome, len(games))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(o.cfg.Workers, len(games)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = o.analyzeGame(ctx, games[i], claimed[games[i].ID])
			}
		}()
	}

feed:
	for i := range games {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	var picks []sports.Pick
	var passes []sports.PassRecord
	faults := 0
	for i, out := range outcomes {
		switch {
		case out.Pick != nil:
			picks = append(picks, *out.Pick)
		case out.Pass != nil:
			if out.Pass.Kind == sports.PassFault {
				faults++
			}
			passes = append(passes, *out.Pass)
		default:
			// Never dispatched because ctx was cancelled.
			passes = append(passes, o.passFor(games[i].ID, sports.StageData, sports.PassFault, "batch cancelled before analysis"))
		}
	}

	var err error
	if faults > 0 {
		err = fmt.Errorf("%d of %d games faulted", faults, len(games))
	}
	o.stageDone(StageAnalysis, start, err, map[string]interface{}{
		"analyzed": len(games),
		"picks":    len(picks),
		"passes":   len(passes),
		"faults":   faults,
	})
	return picks, passes
}

func (o *Orchestrator) analyzeGame(ctx context.Context, game sports.Game, claimed []sports.BetType) (out decision.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = decision.Outcome{Pass: o.passPtr(game.ID, sports.StageData, sports.PassFault, fmt.Sprintf("panic: %v", r))}
		}
	}()

	if o.cfg.GameTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.GameTimeout)
		defer cancel()
	}

	rep := o.analyzer.Analyze(ctx, game, o.policy, claimed)
	if rep == nil {
		return decision.Outcome{Pass: o.passPtr(game.ID, sports.StageData, sports.PassFault, "analyzer returned no report")}
	}
	if o.onReport != nil {
		o.onReport(rep)
	}
	out = rep.Outcome
	if out.Pick != nil {
		out.Pick.Capper = o.Capper()
	}
	if out.Pass != nil {
		out.Pass.Capper = o.Capper()
	}
	return out
}

func (o *Orchestrator) runRanking(picks []sports.Pick, budget int, res *BatchResult) {
	start := time.Now()
	SortPicks(picks)

	keep := len(picks)
	if budget > 0 && budget < keep {
		keep = budget
	}
	res.Picks = picks[:keep]
	for _, p := range picks[keep:] {
		res.Passes = append(res.Passes, o.passFor(p.GameID, sports.StageBudget, sports.PassBudget,
			fmt.Sprintf("%s %s at %.2f cut by batch budget of %d", p.BetType, p.Selection, p.Confidence, budget)))
	}

	o.stageDone(StageRanking, start, nil, map[string]interface{}{
		"candidates": len(picks),
		"budget":     budget,
		"kept":       keep,
	})
}

// SortPicks orders picks by confidence descending, then game ID, then bet type.
func SortPicks(picks []sports.Pick) {
	sort.SliceStable(picks, func(i, j int) bool {
		a, b := picks[i], picks[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.GameID != b.GameID {
			return a.GameID < b.GameID
		}
		return a.BetType < b.BetType
	})
}

func uniqueGames(slate []sports.Game) (games, dupes []sports.Game) {
	seen := make(map[string]bool, len(slate))
	for _, g := range slate {
		if seen[g.ID] {
			dupes = append(dupes, g)
			continue
		}
		seen[g.ID] = true
		games = append(games, g)
	}
	return games, dupes
}

func (o *Orchestrator) passFor(gameID string, stage sports.Stage, kind sports.PassKind, reason string) sports.PassRecord {
	return *o.passPtr(gameID, stage, kind, reason)
}

func (o *Orchestrator) passPtr(gameID string, stage sports.Stage, kind sports.PassKind, reason string) *sports.PassRecord {
	return &sports.PassRecord{
		GameID: gameID,
		Capper: o.Capper(),
		Stage:  stage,
		Kind:   kind,
		Reason: reason,
	}
}

func (o *Orchestrator) emitPass(p *sports.PassRecord) {
	if o.onPass != nil {
		o.onPass(p)
	}
}

func (o *Orchestrator) stageDone(stage Stage, start time.Time, err error, data map[string]interface{}) {
	if o.onStageComplete == nil {
		return
	}
	result := &StageResult{
		Capper:    o.Capper(),
		Stage:     stage,
		Success:   err == nil,
		Data:      data,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	o.onStageComplete(result)
}
