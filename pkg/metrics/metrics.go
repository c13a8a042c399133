// Package metrics provides Prometheus metrics for the capper engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/phenomenon0/capper-engine/pkg/factors"
	"github.com/phenomenon0/capper-engine/pkg/sports"
)

// EngineMetrics collects and exposes engine Prometheus metrics on a private
// registry.
type EngineMetrics struct {
	registry *prometheus.Registry

	// Decision metrics
	PicksTotal     *prometheus.CounterVec
	PassesTotal    *prometheus.CounterVec
	PickConfidence *prometheus.HistogramVec
	PickUnits      *prometheus.CounterVec

	// Factor metrics
	FactorContribution *prometheus.HistogramVec
	FactorsDisabled    *prometheus.CounterVec

	// Batch metrics
	BatchRuns     *prometheus.CounterVec
	BatchDuration *prometheus.HistogramVec
	StageLatency  *prometheus.HistogramVec
	SlateGames    *prometheus.GaugeVec

	// Upstream metrics
	StatsFetchErrors *prometheus.CounterVec
	ResearchOutcomes *prometheus.CounterVec
}

// NewEngineMetrics creates a new engine metrics collector.
func NewEngineMetrics() *EngineMetrics {
	registry := prometheus.NewRegistry()

	m := &EngineMetrics{
		registry: registry,

		PicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capper_picks_total",
				Help: "Total number of picks published",
			},
			[]string{"capper", "bet_type"},
		),
		PassesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capper_passes_total",
				Help: "Total number of passes by stage and kind",
			},
			[]string{"stage", "kind"},
		),
		PickConfidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capper_pick_confidence",
				Help:    "Pick confidence (0-10)",
				Buckets: prometheus.LinearBuckets(5, 0.5, 11), // 5.0 to 10.0
			},
			[]string{"capper"},
		),
		PickUnits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capper_pick_units_total",
				Help: "Units risked across picks",
			},
			[]string{"capper"},
		),

		FactorContribution: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capper_factor_contribution",
				Help:    "Calibrated factor contribution (signed, factor units)",
				Buckets: []float64{-4, -2, -1, -0.5, -0.1, 0, 0.1, 0.5, 1, 2, 4},
			},
			[]string{"category"},
		),
		FactorsDisabled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capper_factors_disabled_total",
				Help: "Factors that self-disabled for missing data",
			},
			[]string{"factor"},
		),

		BatchRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capper_batch_runs_total",
				Help: "Total number of batch runs",
			},
			[]string{"capper", "status"},
		),
		BatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capper_batch_duration_seconds",
				Help:    "Batch run duration",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~400s
			},
			[]string{"capper"},
		),
		StageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capper_stage_latency_seconds",
				Help:    "Individual batch stage latency",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
			},
			[]string{"stage"},
		),
		SlateGames: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "capper_slate_games",
				Help: "Games on the most recent slate",
			},
			[]string{},
		),

		StatsFetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capper_stats_fetch_errors_total",
				Help: "Failed stats and injury fetches",
			},
			[]string{"kind"},
		),
		ResearchOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capper_research_outcomes_total",
				Help: "Research provider outcomes",
			},
			[]string{"status"},
		),
	}

	m.registerAll()
	return m
}

func (m *EngineMetrics) registerAll() {
	m.registry.MustRegister(
		m.PicksTotal,
		m.PassesTotal,
		m.PickConfidence,
		m.PickUnits,
		m.FactorContribution,
		m.FactorsDisabled,
		m.BatchRuns,
		m.BatchDuration,
		m.StageLatency,
		m.SlateGames,
		m.StatsFetchErrors,
		m.ResearchOutcomes,
	)
}

// Registry returns the prometheus registry.
func (m *EngineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// --- Helper methods for recording metrics ---

// RecordPick records a published pick.
func (m *EngineMetrics) RecordPick(p *sports.Pick) {
	m.PicksTotal.WithLabelValues(p.Capper, string(p.BetType)).Inc()
	m.PickConfidence.WithLabelValues(p.Capper).Observe(p.Confidence)
	m.PickUnits.WithLabelValues(p.Capper).Add(float64(p.Units))
}

// RecordPass records a pass.
func (m *EngineMetrics) RecordPass(p *sports.PassRecord) {
	m.PassesTotal.WithLabelValues(string(p.Stage), string(p.Kind)).Inc()
}

// RecordFactors records the calibrated contributions of one analysis.
func (m *EngineMetrics) RecordFactors(fs []factors.Factor) {
	for _, f := range fs {
		if f.Disabled {
			m.FactorsDisabled.WithLabelValues(f.Name).Inc()
			continue
		}
		m.FactorContribution.WithLabelValues(string(f.Category)).Observe(f.Contribution)
	}
}

// RecordStatsErrors counts the failed fetches on a bundle's error fields.
func (m *EngineMetrics) RecordStatsErrors(home, away, injuries error) {
	if home != nil {
		m.StatsFetchErrors.WithLabelValues("home_stats").Inc()
	}
	if away != nil {
		m.StatsFetchErrors.WithLabelValues("away_stats").Inc()
	}
	if injuries != nil {
		m.StatsFetchErrors.WithLabelValues("injuries").Inc()
	}
}

// RecordResearch records a research outcome ("present", "absent", ...).
func (m *EngineMetrics) RecordResearch(status string) {
	m.ResearchOutcomes.WithLabelValues(status).Inc()
}

// RecordStage records a batch stage latency.
func (m *EngineMetrics) RecordStage(stage string, seconds float64) {
	m.StageLatency.WithLabelValues(stage).Observe(seconds)
}

// RecordBatch records a finished batch run.
func (m *EngineMetrics) RecordBatch(capper string, success bool, games int, seconds float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.BatchRuns.WithLabelValues(capper, status).Inc()
	m.BatchDuration.WithLabelValues(capper).Observe(seconds)
	m.SlateGames.WithLabelValues().Set(float64(games))
}
