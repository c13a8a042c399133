// Package aggregate sums calibrated factor contributions into the game's
// margin and total edges and exposes the views used in audit trails.
package aggregate

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/phenomenon0/capper-engine/pkg/factors"
)

// Config controls unit conversion and the edge bound.
type Config struct {
	PointsPerLogOdds float64 `toml:"points_per_log_odds"`
	MaxEdge          float64 `toml:"max_edge"` // points, applied to both edges
}

// DefaultConfig returns the NBA defaults.
func DefaultConfig() Config {
	return Config{
		PointsPerLogOdds: 7.0,
		MaxEdge:          12.0,
	}
}

// Result is the aggregate of one game's factors.
type Result struct {
	// Edge is the margin edge in points; positive favors home.
	Edge float64
	// TotalEdge is the totals edge in points; positive favors the over.
	TotalEdge float64

	RawEdge      float64
	RawTotalEdge float64
	Clamped      bool

	factors []factors.Factor
	scale   float64
}

// Aggregate sums contributions exactly, so the result does not depend on
// factor order. Log-odds contributions are converted to points first.
func Aggregate(fs []factors.Factor, cfg Config) Result {
	if cfg.PointsPerLogOdds <= 0 {
		cfg.PointsPerLogOdds = DefaultConfig().PointsPerLogOdds
	}
	if cfg.MaxEdge <= 0 {
		cfg.MaxEdge = DefaultConfig().MaxEdge
	}

	margin, total := decimal.Zero, decimal.Zero
	for _, f := range fs {
		pts := points(f, cfg.PointsPerLogOdds)
		if math.IsNaN(pts) || math.IsInf(pts, 0) {
			continue
		}
		if f.Totals {
			total = total.Add(decimal.NewFromFloat(pts))
		} else {
			margin = margin.Add(decimal.NewFromFloat(pts))
		}
	}

	r := Result{
		RawEdge:      margin.InexactFloat64(),
		RawTotalEdge: total.InexactFloat64(),
		factors:      append([]factors.Factor(nil), fs...),
		scale:        cfg.PointsPerLogOdds,
	}
	r.Edge, r.Clamped = clamp(r.RawEdge, cfg.MaxEdge)
	var totalClamped bool
	r.TotalEdge, totalClamped = clamp(r.RawTotalEdge, cfg.MaxEdge)
	r.Clamped = r.Clamped || totalClamped
	return r
}

// Points returns a factor's contribution in points under this result's
// conversion.
func (r Result) Points(f factors.Factor) float64 {
	return points(f, r.scale)
}

// Factors returns the aggregated factors in input order.
func (r Result) Factors() []factors.Factor {
	return append([]factors.Factor(nil), r.factors...)
}

// ByImpact returns factors by descending |contribution in points|, ties
// broken by name.
func (r Result) ByImpact() []factors.Factor {
	out := r.Factors()
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := math.Abs(r.Points(out[i])), math.Abs(r.Points(out[j]))
		if pi != pj {
			return pi > pj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Positive returns factors favoring home (or the over), by impact.
func (r Result) Positive() []factors.Factor {
	return r.filter(func(v float64) bool { return v > 0 })
}

// Negative returns factors favoring away (or the under), by impact.
func (r Result) Negative() []factors.Factor {
	return r.filter(func(v float64) bool { return v < 0 })
}

func (r Result) filter(keep func(float64) bool) []factors.Factor {
	var out []factors.Factor
	for _, f := range r.ByImpact() {
		if keep(f.Contribution) {
			out = append(out, f)
		}
	}
	return out
}

// Trail renders one line per factor by impact. Disabled factors are listed
// so the trail shows what was missing.
func (r Result) Trail() []string {
	var lines []string
	for _, f := range r.ByImpact() {
		target := "margin"
		if f.Totals {
			target = "total"
		}
		line := fmt.Sprintf("%s [%s]: %+.2f pts (%s)", f.Name, target, r.Points(f), f.Reasoning)
		if f.Disabled {
			line = fmt.Sprintf("%s [%s]: disabled (%s)", f.Name, target, f.Reasoning)
		}
		lines = append(lines, line)
	}
	return lines
}

func points(f factors.Factor, perLogOdds float64) float64 {
	if f.Unit == factors.UnitLogOdds {
		return f.Contribution * perLogOdds
	}
	return f.Contribution
}

func clamp(v, bound float64) (float64, bool) {
	switch {
	case v > bound:
		return bound, true
	case v < -bound:
		return -bound, true
	}
	return v, false
}
