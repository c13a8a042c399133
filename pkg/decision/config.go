// Package decision turns graded bet confidences into a sized pick or a
// structured pass.
//
// Confidence is on a 0-10 scale everywhere in the engine. Percent values
// are converted at the boundary with PercentToConfidence.
package decision

import (
	"fmt"
	"sort"

	"github.com/phenomenon0/capper-engine/pkg/oddsmath"
)

// UnitTier sizes a pick at or above MinConfidence.
type UnitTier struct {
	MinConfidence float64 `toml:"min_confidence" json:"min_confidence"`
	Units         int     `toml:"units" json:"units"`
}

// DisagreementConfig simulates several models that each see the graded
// confidence with uniform noise of ±Spread. The pick proceeds on the models'
// mean, and only if at least Quorum of them clear the minimum confidence.
type DisagreementConfig struct {
	Seed   int64   `toml:"seed" json:"seed"`
	Models int     `toml:"models" json:"models"`
	Spread float64 `toml:"spread" json:"spread"`
	Quorum float64 `toml:"quorum" json:"quorum"` // fraction of models, 0-1
}

// Config parameterizes one capper personality.
type Config struct {
	Name          string  `toml:"name" json:"name"`
	MinConfidence float64 `toml:"min_confidence" json:"min_confidence"`

	// Odds at or below HeavyFavoriteOdds need HeavyFavoriteMinConfidence.
	HeavyFavoriteOdds          int     `toml:"heavy_favorite_odds" json:"heavy_favorite_odds"`
	HeavyFavoriteMinConfidence float64 `toml:"heavy_favorite_min_confidence" json:"heavy_favorite_min_confidence"`

	UnitTiers    []UnitTier `toml:"unit_tiers" json:"unit_tiers"`
	DefaultUnits int        `toml:"default_units" json:"default_units"`

	Disagreement *DisagreementConfig `toml:"disagreement,omitempty" json:"disagreement,omitempty"`
}

func defaultUnitTiers() []UnitTier {
	return []UnitTier{
		{MinConfidence: 9.0, Units: 3},
		{MinConfidence: 7.5, Units: 2},
	}
}

// Baseline returns the standard capper.
func Baseline() Config {
	return Config{
		Name:                       "baseline",
		MinConfidence:              6.5,
		HeavyFavoriteOdds:          oddsmath.HeavyFavoriteOdds,
		HeavyFavoriteMinConfidence: 9.0,
		UnitTiers:                  defaultUnitTiers(),
		DefaultUnits:               1,
	}
}

// Conservative requires a stronger edge before betting.
func Conservative() Config {
	c := Baseline()
	c.Name = "conservative"
	c.MinConfidence = 7.5
	c.HeavyFavoriteOdds = -200
	c.UnitTiers = []UnitTier{
		{MinConfidence: 9.0, Units: 2},
	}
	return c
}

// Aggressive bets thinner edges and sizes up sooner.
func Aggressive() Config {
	c := Baseline()
	c.Name = "aggressive"
	c.MinConfidence = 6.0
	c.UnitTiers = []UnitTier{
		{MinConfidence: 8.5, Units: 3},
		{MinConfidence: 7.0, Units: 2},
	}
	return c
}

// Consensus simulates a panel of five models seeded with seed.
func Consensus(seed int64) Config {
	c := Baseline()
	c.Name = "consensus"
	c.MinConfidence = 7.0
	c.Disagreement = &DisagreementConfig{
		Seed:   seed,
		Models: 5,
		Spread: 0.75,
		Quorum: 0.6,
	}
	return c
}

// Presets returns every built-in personality, keyed by name.
func Presets(seed int64) map[string]Config {
	out := make(map[string]Config)
	for _, c := range []Config{Baseline(), Conservative(), Aggressive(), Consensus(seed)} {
		out[c.Name] = c
	}
	return out
}

// Validate checks ranges and tier ordering.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("capper name is required")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 10 {
		return fmt.Errorf("%s: min confidence %v outside 0-10", c.Name, c.MinConfidence)
	}
	if c.HeavyFavoriteMinConfidence < 0 || c.HeavyFavoriteMinConfidence > 10 {
		return fmt.Errorf("%s: heavy favorite confidence %v outside 0-10", c.Name, c.HeavyFavoriteMinConfidence)
	}
	if c.HeavyFavoriteOdds > -100 {
		return fmt.Errorf("%s: heavy favorite odds %d must be a favorite price (<= -100)", c.Name, c.HeavyFavoriteOdds)
	}
	if c.DefaultUnits < 0 {
		return fmt.Errorf("%s: default units %d negative", c.Name, c.DefaultUnits)
	}
	for _, t := range c.UnitTiers {
		if t.Units <= 0 {
			return fmt.Errorf("%s: unit tier at %v has %d units", c.Name, t.MinConfidence, t.Units)
		}
	}
	if d := c.Disagreement; d != nil {
		if d.Models <= 0 {
			return fmt.Errorf("%s: disagreement needs at least one model", c.Name)
		}
		if d.Spread < 0 || d.Quorum < 0 || d.Quorum > 1 {
			return fmt.Errorf("%s: disagreement spread %v / quorum %v out of range", c.Name, d.Spread, d.Quorum)
		}
	}
	return nil
}

// Units sizes a pick: the highest tier the confidence reaches, else
// DefaultUnits.
func (c Config) Units(confidence float64) int {
	tiers := append([]UnitTier(nil), c.UnitTiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinConfidence > tiers[j].MinConfidence })
	for _, t := range tiers {
		if confidence >= t.MinConfidence {
			return t.Units
		}
	}
	return c.DefaultUnits
}

// PercentToConfidence converts a 0-100 value to the 0-10 scale.
func PercentToConfidence(pct float64) float64 {
	return pct / 10
}

// ConfidenceToPercent converts a 0-10 confidence to 0-100.
func ConfidenceToPercent(c float64) float64 {
	return c * 10
}
