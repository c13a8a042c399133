// Package reliability shrinks raw factor effects toward zero until enough
// evidence supports them, caps each factor's influence and removes
// near-duplicate factors.
package reliability

import (
	"math"

	"github.com/phenomenon0/capper-engine/pkg/factors"
)

// CategoryParams are the shrinkage and cap parameters for one category.
type CategoryParams struct {
	// K is the sample size at which reliability reaches sqrt(1/2).
	K       float64      `toml:"k"`
	SoftCap float64      `toml:"soft_cap"`
	Unit    factors.Unit `toml:"unit"`
}

// Table maps categories to their parameters.
type Table map[factors.Category]CategoryParams

// fallbackParams apply to categories missing from a table.
var fallbackParams = CategoryParams{K: 20, SoftCap: 3.0, Unit: factors.UnitPoints}

// DefaultTable returns the NBA calibration. Injury signals need the least
// evidence; broad matchup narratives need the most.
func DefaultTable() Table {
	return Table{
		factors.CategoryInjuries:         {K: 2, SoftCap: 4.0, Unit: factors.UnitPoints},
		factors.CategoryMatchup:          {K: 20, SoftCap: 4.0, Unit: factors.UnitPoints},
		factors.CategoryContext:          {K: 5, SoftCap: 3.0, Unit: factors.UnitPoints},
		factors.CategoryWeather:          {K: 5, SoftCap: 2.0, Unit: factors.UnitPoints},
		factors.CategoryRecentForm:       {K: 8, SoftCap: 2.5, Unit: factors.UnitPoints},
		factors.CategoryMarketDeviation:  {K: 10, SoftCap: 0.35, Unit: factors.UnitLogOdds},
		factors.CategoryExternalResearch: {K: 15, SoftCap: 0.4, Unit: factors.UnitLogOdds},
	}
}

// Params returns the parameters for a category.
func (t Table) Params(c factors.Category) CategoryParams {
	if p, ok := t[c]; ok {
		return p
	}
	return fallbackParams
}

// Reliability is sqrt(n/(n+k)) * recency * quality. Negative n counts as
// zero and recency and quality are clamped to [0,1]. A non-positive k
// trusts any sample.
func Reliability(n int, k, recency, quality float64) float64 {
	if n <= 0 || math.IsNaN(k) || math.IsInf(k, 1) {
		return 0
	}
	shrink := 1.0
	if k > 0 {
		shrink = math.Sqrt(float64(n) / (float64(n) + k))
	}
	recency = clamp01(recency)
	quality = clamp01(quality)
	return shrink * recency * quality
}

// Contribution caps weight*effect at ±softCap and scales it by reliability.
func Contribution(weight, effect, softCap, reliability float64) float64 {
	raw := weight * effect
	if math.IsNaN(raw) {
		return 0
	}
	softCap = math.Abs(softCap)
	raw = math.Max(-softCap, math.Min(softCap, raw))
	return raw * clamp01(reliability)
}

// Calibrate fills Reliability, SoftCap and Contribution on each factor. The
// input slice is not modified.
func Calibrate(fs []factors.Factor, table Table) []factors.Factor {
	out := make([]factors.Factor, len(fs))
	for i, f := range fs {
		p := table.Params(f.Category)
		if f.Unit == "" {
			f.Unit = p.Unit
		}
		f.SoftCap = p.SoftCap
		if f.Disabled {
			f.Reliability = 0
			f.Contribution = 0
		} else {
			f.Reliability = Reliability(f.SampleSize, p.K, f.Recency, f.DataQuality)
			f.Contribution = Contribution(f.Weight, f.Effect, p.SoftCap, f.Reliability)
		}
		out[i] = f
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
