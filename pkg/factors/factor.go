package factors

import "github.com/phenomenon0/capper-engine/pkg/sports"

// Category groups factors that share shrinkage and cap parameters.
type Category string

const (
	CategoryMarketDeviation  Category = "market-deviation"
	CategoryRecentForm       Category = "recent-form"
	CategoryMatchup          Category = "matchup"
	CategoryContext          Category = "context"
	CategoryInjuries         Category = "injuries"
	CategoryWeather          Category = "weather"
	CategoryExternalResearch Category = "external-research"
)

// Unit is the denomination of a factor's effect and contribution.
type Unit string

const (
	UnitPoints  Unit = "points"
	UnitLogOdds Unit = "log_odds"
)

// Factor is one calibrated input to the aggregate edge. It is built fresh
// for every game and never shared.
//
// Effect is signed like Signal.Points. Reliability, SoftCap and Contribution
// are zero until the factor is calibrated.
type Factor struct {
	Name     string
	Category Category
	Unit     Unit
	Totals   bool // contributes to the total edge instead of the margin edge
	Weight   float64
	Effect   float64

	SampleSize  int
	Recency     float64
	DataQuality float64

	Reliability  float64
	SoftCap      float64
	Contribution float64

	Disabled  bool
	Signal    Signal
	Reasoning string
	Sources   []string
}

// Summary converts a calibrated factor into the breakdown attached to a pick.
func (f Factor) Summary() sports.FactorSummary {
	return sports.FactorSummary{
		Name:         f.Name,
		Category:     string(f.Category),
		Contribution: f.Contribution,
		Reliability:  f.Reliability,
		Reasoning:    f.Reasoning,
	}
}
