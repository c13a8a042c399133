package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/phenomenon0/capper-engine/pkg/analysis"
	"github.com/phenomenon0/capper-engine/pkg/config"
	"github.com/phenomenon0/capper-engine/pkg/eligibility"
	"github.com/phenomenon0/capper-engine/pkg/metrics"
	"github.com/phenomenon0/capper-engine/pkg/orchestrator"
	"github.com/phenomenon0/capper-engine/pkg/publisher"
	"github.com/phenomenon0/capper-engine/pkg/registry"
	"github.com/phenomenon0/capper-engine/pkg/reliability"
	"github.com/phenomenon0/capper-engine/pkg/research"
	"github.com/phenomenon0/capper-engine/pkg/sports"
	"github.com/phenomenon0/capper-engine/pkg/stats"
	"github.com/phenomenon0/capper-engine/pkg/store"
	"github.com/phenomenon0/capper-engine/pkg/streaming"
)

// residualWindow is how much prediction history fits the residualizer.
const residualWindow = 60 * 24 * time.Hour

// claimSource reports the bet types a capper already holds per game.
type claimSource interface {
	Claimed(ctx context.Context, capper string, gameIDs []string) (map[string][]sports.BetType, error)
}

type daemon struct {
	cfg *config.Config
	log *zap.Logger

	analyzer orchestrator.Analyzer
	registry *registry.Registry
	checker  eligibility.Checker
	runner   *orchestrator.Runner
	metrics  *metrics.EngineMetrics
	hub      *streaming.Hub

	db        *sql.DB
	store     *store.Postgres
	redis     *redis.Client
	publisher *publisher.KafkaPublisher
	claims    claimSource
	recent    *recentLog

	mu        sync.RWMutex
	lastBatch map[string]batchSummary // by capper
}

type batchSummary struct {
	Capper    string    `json:"capper"`
	Games     int       `json:"games"`
	Picks     int       `json:"picks"`
	Passes    int       `json:"passes"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Error     string    `json:"error,omitempty"`
}

func newDaemon(ctx context.Context, cfg *config.Config, configPath string, lg *zap.Logger) (*daemon, error) {
	d := &daemon{
		cfg:       cfg,
		log:       lg,
		metrics:   metrics.NewEngineMetrics(),
		hub:       streaming.NewHub(lg.Named("ws")),
		checker:   eligibility.NewTimeChecker(config.Duration(cfg.Engine.EligibilityBuffer, eligibility.DefaultBuffer)),
		recent:    newRecentLog(500),
		lastBatch: make(map[string]batchSummary),
	}
	mem := newMemClaims()
	d.claims = mem

	// Pick store
	var loader registry.Loader = config.FileLoader{Path: configPath}
	if cfg.Postgres.DSN != "" {
		db, err := store.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		d.db = db
		d.store = store.NewPostgres(db)
		if err := d.store.Migrate(ctx); err != nil {
			return nil, err
		}
		d.claims = d.store
		loader = mergedLoader{file: loader, db: d.store, log: lg}
		lg.Info("postgres store enabled")
	}
	d.registry = registry.New(loader)

	// Stats: HTTP API, optionally behind Redis
	var fetcher stats.Fetcher = stats.NewHTTPClient(
		stats.WithBaseURL(cfg.Stats.BaseURL),
		stats.WithRateLimit(cfg.Stats.RateLimit, cfg.Stats.Burst),
		stats.WithHTTPClient(&http.Client{Timeout: config.Duration(cfg.Stats.Timeout, 10*time.Second)}),
	)
	if cfg.Redis.Addr != "" {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := d.redis.Ping(ctx).Err(); err != nil {
			lg.Warn("redis unavailable, stats cache will miss", zap.Error(err))
		}
		fetcher = stats.NewCachedFetcher(fetcher, d.redis)
		lg.Info("redis stats cache enabled", zap.String("addr", cfg.Redis.Addr))
	}
	collector := stats.NewCollector(fetcher, config.Duration(cfg.Stats.Timeout, 10*time.Second))

	opts := []analysis.Option{}
	if panel := newResearchPanel(cfg); panel != nil {
		opts = append(opts, analysis.WithResearch(panel))
		lg.Info("research panel enabled", zap.Int("endpoints", len(cfg.Research.Endpoints)))
	}
	if d.store != nil {
		if r, err := d.fitResidualizer(ctx); err != nil {
			lg.Info("residualizer not fitted", zap.Error(err))
		} else {
			opts = append(opts, analysis.WithResidualizer(r))
			lg.Info("residualizer fitted", zap.Int("n", r.N), zap.Float64("slope", r.Slope), zap.Float64("r2", r.R2))
		}
	}
	d.analyzer = analysis.NewAnalyzer(collector, cfg.AnalysisConfig(), opts...)

	// Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := publisher.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, lg.Named("kafka"))
		if err != nil {
			return nil, err
		}
		d.publisher = p
		lg.Info("kafka publisher enabled", zap.String("topic", cfg.Kafka.Topic))
	}

	d.runner = orchestrator.NewRunner(config.Duration(cfg.Service.Interval, 10*time.Minute), d.cycle)
	d.runner.OnError(func(err error) {
		lg.Error("batch cycle failed", zap.Error(err))
		d.hub.BroadcastError(err, "batch")
	})
	return d, nil
}

func newResearchPanel(cfg *config.Config) *research.Panel {
	if len(cfg.Research.Endpoints) == 0 {
		return nil
	}
	panel := research.NewPanel(&research.PanelConfig{
		CacheTTL: config.Duration(cfg.Research.CacheTTL, 10*time.Minute),
	})
	timeout := config.Duration(cfg.Research.Timeout, 10*time.Second)
	for _, e := range cfg.Research.Endpoints {
		weight := e.Weight
		if weight <= 0 {
			weight = 1
		}
		panel.AddClient(research.NewHTTPClient(e.Name, e.URL, timeout), weight)
	}
	return panel
}

func (d *daemon) fitResidualizer(ctx context.Context) (*reliability.Residualizer, error) {
	baseline, implied, err := d.store.PredictionHistory(ctx, residualWindow)
	if err != nil {
		return nil, err
	}
	return reliability.FitResidualizer(baseline, implied)
}

// cycle runs one batch per capper over the current slate.
func (d *daemon) cycle(ctx context.Context) error {
	if d.cfg.Service.Slate == "" {
		return errors.New("no slate configured (service.slate or -slate)")
	}
	games, err := sports.LoadSlate(d.cfg.Service.Slate)
	if err != nil {
		return err
	}

	policies, err := d.registry.Policies(ctx)
	if err != nil {
		if len(policies) == 0 {
			return fmt.Errorf("capper registry: %w", err)
		}
		d.log.Warn("capper reload failed, using previous set", zap.Error(err))
	}

	ids := make([]string, len(games))
	for i, g := range games {
		ids[i] = g.ID
	}

	var errs []error
	for _, p := range policies {
		claimed, err := d.claims.Claimed(ctx, p.Name(), ids)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: claimed picks: %w", p.Name(), err))
			continue
		}

		o := orchestrator.New(d.analyzer, p, orchestrator.Config{
			Workers:     d.cfg.Engine.Workers,
			GameTimeout: config.Duration(d.cfg.Engine.GameTimeout, 30*time.Second),
		}, orchestrator.WithChecker(d.checker))
		d.wire(o)

		res, err := o.RunBatch(ctx, games, claimed, d.cfg.Service.Budget)
		summary := batchSummary{Capper: p.Name(), Games: len(games)}
		if err != nil {
			summary.Error = err.Error()
			d.metrics.RecordBatch(p.Name(), false, len(games), 0)
			d.setSummary(summary)
			d.hub.BroadcastBatch(summary.Capper, summary)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		summary.Picks, summary.Passes = len(res.Picks), len(res.Passes)
		summary.StartedAt, summary.Duration = res.StartedAt, res.Duration.String()

		if err := d.persist(ctx, res); err != nil {
			summary.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
		d.metrics.RecordBatch(p.Name(), summary.Error == "", len(games), res.Duration.Seconds())
		d.setSummary(summary)
		d.hub.BroadcastBatch(summary.Capper, summary)

		d.log.Info("batch complete",
			zap.String("capper", p.Name()),
			zap.Int("games", len(games)),
			zap.Int("picks", len(res.Picks)),
			zap.Int("passes", len(res.Passes)),
			zap.Duration("duration", res.Duration),
		)
	}
	return errors.Join(errs...)
}

// wire connects orchestrator callbacks to logging, metrics and the stream.
func (d *daemon) wire(o *orchestrator.Orchestrator) {
	o.OnPick(func(p *sports.Pick) {
		d.log.Info("pick",
			zap.String("capper", p.Capper),
			zap.String("game_id", p.GameID),
			zap.String("bet_type", string(p.BetType)),
			zap.String("selection", p.Selection),
			zap.Int("odds", p.Odds),
			zap.Int("units", p.Units),
			zap.Float64("confidence", p.Confidence),
		)
		d.metrics.RecordPick(p)
		d.hub.BroadcastPick(p)
	})
	o.OnPass(func(p *sports.PassRecord) {
		d.log.Debug("pass",
			zap.String("capper", p.Capper),
			zap.String("game_id", p.GameID),
			zap.String("stage", string(p.Stage)),
			zap.String("kind", string(p.Kind)),
			zap.String("reason", p.Reason),
		)
		d.metrics.RecordPass(p)
		d.hub.BroadcastPass(p)
	})
	o.OnReport(func(rep *analysis.Report) {
		d.metrics.RecordFactors(rep.Factors)
		d.metrics.RecordResearch(rep.ResearchStatus)
		if b := rep.Bundle; b != nil {
			d.metrics.RecordStatsErrors(b.HomeStatsErr, b.AwayStatsErr, b.InjuriesErr)
		}
		if d.store != nil && rep.Lines.HasSpread && rep.Bundle != nil {
			if err := d.store.SavePrediction(context.Background(), rep.Game.ID, rep.Baseline.Margin, -rep.Lines.SpreadHomeLine); err != nil {
				d.log.Warn("save prediction failed", zap.String("game_id", rep.Game.ID), zap.Error(err))
			}
		}
	})
	o.OnStageComplete(func(r *orchestrator.StageResult) {
		d.metrics.RecordStage(string(r.Stage), r.Duration.Seconds())
		d.hub.BroadcastStage(r.Capper, r)
		if !r.Success {
			d.log.Warn("stage failed", zap.String("capper", r.Capper), zap.String("stage", string(r.Stage)), zap.String("error", r.Error))
		}
	})
}

func (d *daemon) persist(ctx context.Context, res *orchestrator.BatchResult) error {
	d.recent.add(res.Picks, res.Passes)
	if mem, ok := d.claims.(*memClaims); ok {
		mem.add(res.Picks)
	}

	var errs []error
	if d.store != nil {
		if err := d.store.SaveBatch(ctx, res.Picks, res.Passes); err != nil {
			errs = append(errs, fmt.Errorf("save batch: %w", err))
		}
	}
	if d.publisher != nil {
		if err := d.publisher.PublishPicks(ctx, res.Picks); err != nil {
			errs = append(errs, err)
		}
		if err := d.publisher.PublishPasses(ctx, res.Passes); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *daemon) setSummary(s batchSummary) {
	d.mu.Lock()
	d.lastBatch[s.Capper] = s
	d.mu.Unlock()
}

func (d *daemon) summaries() []batchSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]batchSummary, 0, len(d.lastBatch))
	for _, s := range d.lastBatch {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Capper < out[j].Capper })
	return out
}

// Close releases external connections.
func (d *daemon) Close() {
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			d.log.Warn("kafka close failed", zap.Error(err))
		}
	}
	if d.redis != nil {
		d.redis.Close()
	}
	if d.db != nil {
		d.db.Close()
	}
}
