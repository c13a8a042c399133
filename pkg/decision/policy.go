package decision

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/phenomenon0/capper-engine/pkg/oddsmath"
	"github.com/phenomenon0/capper-engine/pkg/sports"
)

// Candidate is one graded selection offered to the policy.
type Candidate struct {
	BetType    sports.BetType `json:"bet_type"`
	Side       sports.Side    `json:"side,omitempty"`
	Selection  string         `json:"selection"`
	Odds       int            `json:"odds"` // 0 = no price available
	Line       float64        `json:"line,omitempty"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s %s (%+d) at %.2f", c.BetType, c.Selection, c.Odds, c.Confidence)
}

// Outcome is the result of one decision: exactly one of Pick and Pass is set.
type Outcome struct {
	Pick  *sports.Pick
	Pass  *sports.PassRecord
	Trail []string
}

// betTypeRank breaks confidence ties: spreads first, then totals, then
// moneylines.
var betTypeRank = map[sports.BetType]int{
	sports.BetSpread:     0,
	sports.BetTotalOver:  1,
	sports.BetTotalUnder: 1,
	sports.BetMoneyline:  2,
}

// Policy applies one capper's Config. It holds no mutable state and is safe
// for concurrent use.
type Policy struct {
	cfg   Config
	now   func() time.Time
	newID func() string
}

// Option configures a Policy.
type Option func(*Policy)

// WithClock sets the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		p.now = now
	}
}

// WithIDGenerator sets the pick ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(p *Policy) {
		p.newID = gen
	}
}

// NewPolicy creates a policy after validating cfg.
func NewPolicy(cfg Config, opts ...Option) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Policy{
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the policy's configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// Name returns the capper name.
func (p *Policy) Name() string {
	return p.cfg.Name
}

// Decide runs the gates in order: filter, rank, minimum confidence, heavy
// favorite guard, sizing. claimed lists bet types already picked for the
// game; both total sides count as the same market.
func (p *Policy) Decide(gameID string, candidates []Candidate, claimed []sports.BetType) Outcome {
	var out Outcome
	trail := func(format string, args ...interface{}) {
		out.Trail = append(out.Trail, fmt.Sprintf(format, args...))
	}
	pass := func(stage sports.Stage, kind sports.PassKind, reason string) Outcome {
		out.Pass = &sports.PassRecord{
			GameID:  gameID,
			Capper:  p.cfg.Name,
			Stage:   stage,
			Kind:    kind,
			Reason:  reason,
			Details: out.Trail,
		}
		return out
	}

	if len(candidates) == 0 {
		return pass(sports.StageMarket, sports.PassNoEdge, "no market produced a lean")
	}

	// (a) filter
	taken := make(map[sports.BetType]bool, len(claimed))
	for _, bt := range claimed {
		taken[bt.Normalized()] = true
	}
	var eligible []Candidate
	var droppedClaimed int
	for _, c := range candidates {
		switch {
		case taken[c.BetType.Normalized()]:
			droppedClaimed++
			trail("%s dropped: %s already claimed", c.Selection, c.BetType.Normalized())
		case c.Odds == 0:
			trail("%s dropped: no odds available", c.Selection)
		default:
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		if droppedClaimed > 0 {
			return pass(sports.StageFilter, sports.PassClaimed, "every graded bet type is already claimed or unpriced")
		}
		return pass(sports.StageFilter, sports.PassDataMissing, "no graded bet type has odds")
	}

	// (b) rank
	agreement := make(map[sports.BetType]float64, len(eligible))
	if d := p.cfg.Disagreement; d != nil {
		for i, c := range eligible {
			rng := rand.New(rand.NewSource(d.Seed ^ hashKey(gameID+"/"+string(c.BetType))))
			mean, frac := simulate(rng, d, c.Confidence, p.cfg.MinConfidence)
			trail("%s: %d models mean %.2f, %.0f%% above minimum", c.Selection, d.Models, mean, frac*100)
			eligible[i].Confidence = mean
			agreement[c.BetType] = frac
		}
	}
	sortCandidates(eligible)
	best := eligible[0]
	trail("best: %s", best)

	// (c) minimum confidence
	if best.Confidence < p.cfg.MinConfidence {
		return pass(sports.StageConfidenceGate, sports.PassNoEdge,
			fmt.Sprintf("best bet %s at %.2f is below the %.2f minimum", best.Selection, best.Confidence, p.cfg.MinConfidence))
	}
	if d := p.cfg.Disagreement; d != nil && agreement[best.BetType] < d.Quorum {
		return pass(sports.StageConfidenceGate, sports.PassNoEdge,
			fmt.Sprintf("models disagree on %s: %.0f%% clear the minimum, %.0f%% required",
				best.Selection, agreement[best.BetType]*100, d.Quorum*100))
	}

	// (d) heavy favorite guard
	if oddsmath.IsHeavyFavorite(best.Odds, p.cfg.HeavyFavoriteOdds) && best.Confidence < p.cfg.HeavyFavoriteMinConfidence {
		return pass(sports.StageFavoriteGuard, sports.PassNoEdge,
			fmt.Sprintf("%s at %+d is a heavy favorite and needs %.2f confidence, has %.2f",
				best.Selection, best.Odds, p.cfg.HeavyFavoriteMinConfidence, best.Confidence))
	}

	// (e) sizing
	units := p.cfg.Units(best.Confidence)
	if units <= 0 {
		return pass(sports.StageSizing, sports.PassNoEdge,
			fmt.Sprintf("confidence %.2f sizes to zero units", best.Confidence))
	}
	toWin, err := oddsmath.ToWin(best.Odds, decimal.NewFromInt(int64(units)))
	if err != nil {
		return pass(sports.StageSizing, sports.PassFault, fmt.Sprintf("sizing %s: %v", best.Selection, err))
	}
	trail("sized %d units to win %s", units, toWin.StringFixed(2))

	reasoning := []string{best.Reasoning}
	out.Pick = &sports.Pick{
		ID:            p.newID(),
		GameID:        gameID,
		Capper:        p.cfg.Name,
		BetType:       best.BetType,
		Side:          best.Side,
		Selection:     best.Selection,
		Odds:          best.Odds,
		Line:          best.Line,
		Units:         units,
		ToWin:         toWin,
		Confidence:    round2(best.Confidence),
		ConfidencePct: round2(ConfidenceToPercent(best.Confidence)),
		Reasoning:     append(reasoning, out.Trail...),
		CreatedAt:     p.now().UTC(),
	}
	return out
}

func sortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Confidence != cs[j].Confidence {
			return cs[i].Confidence > cs[j].Confidence
		}
		if ri, rj := betTypeRank[cs[i].BetType], betTypeRank[cs[j].BetType]; ri != rj {
			return ri < rj
		}
		return strings.Compare(cs[i].Selection, cs[j].Selection) < 0
	})
}

// simulate draws d.Models noisy confidences around c and returns their mean
// and the fraction at or above floor. Each candidate gets its own source
// derived from the seed, the game and the bet type, so results do not depend
// on candidate or game order.
func simulate(rng *rand.Rand, d *DisagreementConfig, c, floor float64) (mean, frac float64) {
	var sum float64
	var above int
	for i := 0; i < d.Models; i++ {
		v := c + (rng.Float64()*2-1)*d.Spread
		v = math.Max(0, math.Min(10, v))
		sum += v
		if v >= floor {
			above++
		}
	}
	return sum / float64(d.Models), float64(above) / float64(d.Models)
}

func hashKey(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
