// Package config loads the capper service configuration from TOML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/phenomenon0/capper-engine/pkg/aggregate"
	"github.com/phenomenon0/capper-engine/pkg/analysis"
	"github.com/phenomenon0/capper-engine/pkg/factors"
	"github.com/phenomenon0/capper-engine/pkg/market"
	"github.com/phenomenon0/capper-engine/pkg/reliability"
)

// Config represents the service configuration.
type Config struct {
	Service  ServiceConfig     `toml:"service"`
	Engine   EngineConfig      `toml:"engine"`
	Tiers    market.TierConfig `toml:"tiers"`
	Cappers  []Capper          `toml:"cappers"`
	Stats    StatsConfig       `toml:"stats"`
	Research ResearchConfig    `toml:"research"`
	Postgres PostgresConfig    `toml:"postgres"`
	Redis    RedisConfig       `toml:"redis"`
	Kafka    KafkaConfig       `toml:"kafka"`
	HTTP     HTTPConfig        `toml:"http"`
}

// ServiceConfig contains process-level settings.
type ServiceConfig struct {
	Name     string `toml:"name"`
	Env      string `toml:"env"`       // "local" switches to development logging
	LogLevel string `toml:"log_level"` // empty keeps the env default
	Interval string `toml:"interval"`  // batch interval (e.g., "10m")
	Budget   int    `toml:"budget"`    // max picks per capper per batch, 0 = unlimited
	Seed     int64  `toml:"seed"`      // disagreement seed for the consensus preset
	Slate    string `toml:"slate"`     // JSON slate file read each batch
}

// EngineConfig contains the numeric engine settings.
type EngineConfig struct {
	Workers           int               `toml:"workers"`
	GameTimeout       string            `toml:"game_timeout"`
	EligibilityBuffer string            `toml:"eligibility_buffer"`
	ResearchTimeout   string            `toml:"research_timeout"`
	Aggregate         aggregate.Config  `toml:"aggregate"`
	Weights           factors.Weights   `toml:"weights"`
	Reliability       reliability.Table `toml:"reliability"`
}

// StatsConfig configures the game-stats API client.
type StatsConfig struct {
	BaseURL   string  `toml:"base_url"`
	Timeout   string  `toml:"timeout"`
	RateLimit float64 `toml:"rate_limit"` // requests per second
	Burst     int     `toml:"burst"`
}

// ResearchEndpoint is one research client.
type ResearchEndpoint struct {
	Name   string  `toml:"name"`
	URL    string  `toml:"url"`
	Weight float64 `toml:"weight"`
}

// ResearchConfig configures the optional research panel. No endpoints means
// research is disabled.
type ResearchConfig struct {
	Endpoints []ResearchEndpoint `toml:"endpoints"`
	CacheTTL  string             `toml:"cache_ttl"`
	Timeout   string             `toml:"timeout"` // per client request
}

// PostgresConfig configures the pick store. An empty DSN disables it.
type PostgresConfig struct {
	DSN string `toml:"dsn"`
}

// RedisConfig configures the stats cache. An empty address disables it.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// KafkaConfig configures pick publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// HTTPConfig configures the status API.
type HTTPConfig struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "capperd",
			Env:      "local",
			Interval: "10m",
			Budget:   5,
			Seed:     42,
		},
		Engine: EngineConfig{
			Workers:           4,
			GameTimeout:       "30s",
			EligibilityBuffer: "15m",
			ResearchTimeout:   analysis.DefaultResearchTimeout.String(),
			Aggregate:         aggregate.DefaultConfig(),
			Weights:           factors.DefaultWeights(),
			Reliability:       reliability.DefaultTable(),
		},
		Tiers: market.DefaultTierConfig(),
		Cappers: []Capper{
			{Preset: "baseline"},
			{Preset: "conservative"},
			{Preset: "aggressive"},
			{Preset: "consensus"},
		},
		Stats: StatsConfig{
			BaseURL:   "http://localhost:8085",
			Timeout:   "10s",
			RateLimit: 10,
			Burst:     5,
		},
		Research: ResearchConfig{
			CacheTTL: "10m",
			Timeout:  "10s",
		},
		Kafka: KafkaConfig{
			Topic: "capper.picks",
		},
		HTTP: HTTPConfig{
			Addr:           ":8090",
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := Parse(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML into cfg. Keys absent from data keep cfg's values.
// Lists present in data replace the defaults rather than extending them.
func Parse(data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	var lists struct {
		Cappers []Capper `toml:"cappers"`
		Tiers   struct {
			Totals    levels `toml:"totals"`
			Spread    levels `toml:"spread"`
			Upset     levels `toml:"upset"`
			Moneyline levels `toml:"moneyline"`
		} `toml:"tiers"`
		Research struct {
			Endpoints []ResearchEndpoint `toml:"endpoints"`
		} `toml:"research"`
		Kafka struct {
			Brokers []string `toml:"brokers"`
		} `toml:"kafka"`
		HTTP struct {
			AllowedOrigins []string `toml:"allowed_origins"`
		} `toml:"http"`
	}
	if err := toml.Unmarshal(data, &lists); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	replace(&cfg.Cappers, lists.Cappers)
	replace(&cfg.Tiers.Totals.Levels, lists.Tiers.Totals.Levels)
	replace(&cfg.Tiers.Spread.Levels, lists.Tiers.Spread.Levels)
	replace(&cfg.Tiers.Upset.Levels, lists.Tiers.Upset.Levels)
	replace(&cfg.Tiers.Moneyline.Levels, lists.Tiers.Moneyline.Levels)
	replace(&cfg.Research.Endpoints, lists.Research.Endpoints)
	replace(&cfg.Kafka.Brokers, lists.Kafka.Brokers)
	replace(&cfg.HTTP.AllowedOrigins, lists.HTTP.AllowedOrigins)
	return nil
}

type levels struct {
	Levels []market.Tier `toml:"levels"`
}

func replace[T any](dst *[]T, src []T) {
	if src != nil {
		*dst = src
	}
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("ENV"); v != "" {
		c.Service.Env = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Service.LogLevel = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("STATS_BASE_URL"); v != "" {
		c.Stats.BaseURL = v
	}
	if v := os.Getenv("BATCH_BUDGET"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BATCH_BUDGET %q: %w", v, err)
		}
		c.Service.Budget = n
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	durations := map[string]string{
		"service.interval":          c.Service.Interval,
		"engine.game_timeout":       c.Engine.GameTimeout,
		"engine.eligibility_buffer": c.Engine.EligibilityBuffer,
		"engine.research_timeout":   c.Engine.ResearchTimeout,
		"stats.timeout":             c.Stats.Timeout,
		"research.cache_ttl":        c.Research.CacheTTL,
		"research.timeout":          c.Research.Timeout,
	}
	for key, v := range durations {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
	}

	if c.Service.Budget < 0 {
		return fmt.Errorf("service.budget cannot be negative: %d", c.Service.Budget)
	}
	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers cannot be negative: %d", c.Engine.Workers)
	}
	if c.Engine.Aggregate.PointsPerLogOdds <= 0 {
		return fmt.Errorf("engine.aggregate.points_per_log_odds must be positive")
	}
	if err := c.Tiers.Validate(); err != nil {
		return fmt.Errorf("tiers: %w", err)
	}
	for i, e := range c.Research.Endpoints {
		if e.Name == "" || e.URL == "" {
			return fmt.Errorf("research endpoint %d needs a name and url", i)
		}
	}
	if len(c.Cappers) == 0 {
		return fmt.Errorf("at least one capper is required")
	}
	if _, err := c.CapperConfigs(); err != nil {
		return err
	}
	return nil
}

// Duration parses a validated duration setting, returning def when empty.
func Duration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || v == "" {
		return def
	}
	return d
}

// AnalysisConfig builds the per-game analyzer configuration.
func (c *Config) AnalysisConfig() analysis.Config {
	return analysis.Config{
		ResearchTimeout: Duration(c.Engine.ResearchTimeout, analysis.DefaultResearchTimeout),
		Weights:         c.Engine.Weights,
		Reliability:     c.Engine.Reliability,
		Aggregate:       c.Engine.Aggregate,
		Tiers:           c.Tiers,
	}
}
