package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/phenomenon0/capper-engine/pkg/decision"
)

// Capper is one [[cappers]] entry: a preset plus optional overrides.
type Capper struct {
	Preset string `toml:"preset"` // baseline, conservative, aggressive or consensus
	Name   string `toml:"name"`   // defaults to the preset name

	MinConfidence              *float64                     `toml:"min_confidence"`
	HeavyFavoriteOdds          *int                         `toml:"heavy_favorite_odds"`
	HeavyFavoriteMinConfidence *float64                     `toml:"heavy_favorite_min_confidence"`
	UnitTiers                  []decision.UnitTier          `toml:"unit_tiers"`
	DefaultUnits               *int                         `toml:"default_units"`
	Disagreement               *decision.DisagreementConfig `toml:"disagreement"`
	Disabled                   bool                         `toml:"disabled"`
}

// Resolve applies the overrides to the preset.
func (c Capper) Resolve(seed int64) (decision.Config, error) {
	preset := strings.ToLower(c.Preset)
	if preset == "" {
		preset = "baseline"
	}
	cfg, ok := decision.Presets(seed)[preset]
	if !ok {
		return decision.Config{}, fmt.Errorf("capper %q: unknown preset %q", c.Name, c.Preset)
	}

	if c.Name != "" {
		cfg.Name = c.Name
	}
	if c.MinConfidence != nil {
		cfg.MinConfidence = *c.MinConfidence
	}
	if c.HeavyFavoriteOdds != nil {
		cfg.HeavyFavoriteOdds = *c.HeavyFavoriteOdds
	}
	if c.HeavyFavoriteMinConfidence != nil {
		cfg.HeavyFavoriteMinConfidence = *c.HeavyFavoriteMinConfidence
	}
	if c.UnitTiers != nil {
		cfg.UnitTiers = c.UnitTiers
	}
	if c.DefaultUnits != nil {
		cfg.DefaultUnits = *c.DefaultUnits
	}
	if c.Disagreement != nil {
		cfg.Disagreement = c.Disagreement
	}

	if err := cfg.Validate(); err != nil {
		return decision.Config{}, err
	}
	return cfg, nil
}

// CapperConfigs resolves every enabled capper.
func (c *Config) CapperConfigs() ([]decision.Config, error) {
	var out []decision.Config
	for _, entry := range c.Cappers {
		if entry.Disabled {
			continue
		}
		cfg, err := entry.Resolve(c.Service.Seed)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// FileLoader re-reads the capper list from a config file on every load. It
// satisfies registry.Loader.
type FileLoader struct {
	Path string
}

// LoadCappers implements registry.Loader.
func (l FileLoader) LoadCappers(ctx context.Context) ([]decision.Config, error) {
	cfg, err := Load(l.Path)
	if err != nil {
		return nil, err
	}
	return cfg.CapperConfigs()
}
