package market

import (
	"fmt"
	"sort"
)

// Tier maps a minimum gap to a confidence on the 0-10 scale.
type Tier struct {
	MinGap     float64 `toml:"min_gap" json:"min_gap"`
	Confidence float64 `toml:"confidence" json:"confidence"`
	Label      string  `toml:"label" json:"label"`
}

// Tiers is a set of gap thresholds plus the fallback tier for gaps below
// every threshold.
type Tiers struct {
	Levels  []Tier `toml:"levels" json:"levels"`
	Default Tier   `toml:"default" json:"default"`
}

// Grade returns the tier with the largest MinGap that gap reaches (gap >=
// MinGap). Gaps below every level get the default tier.
func (t Tiers) Grade(gap float64) Tier {
	best := t.Default
	found := false
	for _, l := range t.Levels {
		if gap >= l.MinGap && (!found || l.MinGap > best.MinGap) {
			best = l
			found = true
		}
	}
	return best
}

// Validate checks that confidence never decreases as the gap grows and that
// no level is below the default.
func (t Tiers) Validate() error {
	levels := append([]Tier(nil), t.Levels...)
	sort.Slice(levels, func(i, j int) bool { return levels[i].MinGap < levels[j].MinGap })
	prev := t.Default.Confidence
	for i, l := range levels {
		if i > 0 && l.MinGap == levels[i-1].MinGap {
			return fmt.Errorf("duplicate tier gap %v", l.MinGap)
		}
		if l.Confidence < prev {
			return fmt.Errorf("tier %q (gap %v) confidence %v below a smaller-gap tier (%v)", l.Label, l.MinGap, l.Confidence, prev)
		}
		if l.Confidence < 0 || l.Confidence > 10 {
			return fmt.Errorf("tier %q confidence %v outside 0-10", l.Label, l.Confidence)
		}
		prev = l.Confidence
	}
	return nil
}

// TierConfig holds the tier sets for every comparison.
type TierConfig struct {
	Totals    Tiers `toml:"totals" json:"totals"`
	Spread    Tiers `toml:"spread" json:"spread"`
	Upset     Tiers `toml:"upset" json:"upset"`
	Moneyline Tiers `toml:"moneyline" json:"moneyline"`

	// UpsetMinMargin is the predicted winning margin needed to grade a
	// disagreement with the market favorite as an upset.
	UpsetMinMargin float64 `toml:"upset_min_margin" json:"upset_min_margin"`
}

// DefaultUpsetMinMargin is the default UpsetMinMargin in points.
const DefaultUpsetMinMargin = 1.5

// DefaultTierConfig returns the standard tiers. Winner disagreement grades
// above any same-winner spread tier.
func DefaultTierConfig() TierConfig {
	return TierConfig{
		Totals: Tiers{
			Levels: []Tier{
				{MinGap: 15, Confidence: 9.5, Label: "top"},
				{MinGap: 10, Confidence: 8.5, Label: "strong"},
				{MinGap: 7, Confidence: 7.5, Label: "good"},
				{MinGap: 4, Confidence: 6.5, Label: "moderate"},
			},
			Default: Tier{Confidence: 5.0, Label: "minimal"},
		},
		Spread: Tiers{
			Levels: []Tier{
				{MinGap: 10, Confidence: 9.0, Label: "top"},
				{MinGap: 7, Confidence: 8.0, Label: "strong"},
				{MinGap: 4, Confidence: 7.0, Label: "good"},
				{MinGap: 2, Confidence: 6.0, Label: "moderate"},
			},
			Default: Tier{Confidence: 5.0, Label: "minimal"},
		},
		Upset: Tiers{
			Levels: []Tier{
				{MinGap: 7, Confidence: 9.5, Label: "upset_strong"},
				{MinGap: 3, Confidence: 9.0, Label: "upset"},
			},
			Default: Tier{Confidence: 8.5, Label: "upset_lean"},
		},
		Moneyline: Tiers{
			Levels: []Tier{
				{MinGap: 10, Confidence: 8.0, Label: "strong"},
				{MinGap: 6, Confidence: 7.0, Label: "good"},
				{MinGap: 3, Confidence: 6.0, Label: "moderate"},
			},
			Default: Tier{Confidence: 5.0, Label: "minimal"},
		},
		UpsetMinMargin: DefaultUpsetMinMargin,
	}
}

// Validate validates every tier set.
func (c TierConfig) Validate() error {
	if c.UpsetMinMargin < 0 {
		return fmt.Errorf("upset_min_margin %v negative", c.UpsetMinMargin)
	}
	for name, t := range map[string]Tiers{
		"totals":    c.Totals,
		"spread":    c.Spread,
		"upset":     c.Upset,
		"moneyline": c.Moneyline,
	} {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%s tiers: %w", name, err)
		}
	}
	return nil
}
