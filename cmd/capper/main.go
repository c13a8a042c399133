// capper analyzes a slate file once and prints the picks and passes. It needs
// no database and can replay a slate at a fixed time.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/phenomenon0/capper-engine/pkg/analysis"
	"github.com/phenomenon0/capper-engine/pkg/config"
	"github.com/phenomenon0/capper-engine/pkg/decision"
	"github.com/phenomenon0/capper-engine/pkg/eligibility"
	"github.com/phenomenon0/capper-engine/pkg/grading"
	"github.com/phenomenon0/capper-engine/pkg/orchestrator"
	"github.com/phenomenon0/capper-engine/pkg/registry"
	"github.com/phenomenon0/capper-engine/pkg/sports"
	"github.com/phenomenon0/capper-engine/pkg/stats"
)

var (
	configPath = flag.String("config", "capper.toml", "Path to the TOML config file")
	slatePath  = flag.String("slate", "", "Slate JSON file (required)")
	capperName = flag.String("capper", "", "Run only this capper (default: all)")
	budget     = flag.Int("budget", -1, "Max picks per capper (default: service.budget, 0 = unlimited)")
	at         = flag.String("at", "", "Evaluate as of this RFC3339 time (default: now)")
	offline    = flag.Bool("offline", false, "Skip the stats API and use league averages")
	outputFile = flag.String("output", "", "Output file (.json or .csv); stdout JSON when empty")
	verbose    = flag.Bool("verbose", false, "Print reasoning for every pick")
	scoresFile = flag.String("scores", "", "Final scores JSON; grades the picks when set")
)

// offlineFetcher has no data, so every team resolves to league averages.
type offlineFetcher struct{}

func (offlineFetcher) TeamStats(context.Context, sports.Sport, string) (*stats.TeamStats, error) {
	return nil, stats.ErrNotFound
}

func (offlineFetcher) Injuries(context.Context, sports.Sport, string) (*stats.InjuryReport, error) {
	return nil, stats.ErrNotFound
}

func main() {
	flag.Parse()
	if *slatePath == "" {
		log.Fatal("-slate is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if *budget >= 0 {
		cfg.Service.Budget = *budget
	}

	now, err := clock(*at)
	if err != nil {
		log.Fatalf("Invalid -at: %v", err)
	}

	games, err := sports.LoadSlate(*slatePath)
	if err != nil {
		log.Fatalf("Failed to load slate: %v", err)
	}

	var fetcher stats.Fetcher = offlineFetcher{}
	if !*offline {
		fetcher = stats.NewHTTPClient(
			stats.WithBaseURL(cfg.Stats.BaseURL),
			stats.WithRateLimit(cfg.Stats.RateLimit, cfg.Stats.Burst),
		)
	}
	collector := stats.NewCollector(fetcher, config.Duration(cfg.Stats.Timeout, 10*time.Second))
	analyzer := analysis.NewAnalyzer(collector, cfg.AnalysisConfig(), analysis.WithClock(now))

	policies, err := selectPolicies(cfg, *capperName)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	var results []*orchestrator.BatchResult
	for _, p := range policies {
		o := orchestrator.New(analyzer, p, orchestrator.Config{
			Workers:     cfg.Engine.Workers,
			GameTimeout: config.Duration(cfg.Engine.GameTimeout, 30*time.Second),
		},
			orchestrator.WithChecker(eligibility.NewTimeChecker(config.Duration(cfg.Engine.EligibilityBuffer, eligibility.DefaultBuffer))),
			orchestrator.WithClock(now),
		)
		res, err := o.RunBatch(ctx, games, nil, cfg.Service.Budget)
		if err != nil {
			log.Fatalf("Batch failed for %s: %v", p.Name(), err)
		}
		results = append(results, res)
		if *outputFile != "" {
			printResult(res)
		}
	}

	if *scoresFile != "" {
		scores, err := grading.LoadScores(*scoresFile)
		if err != nil {
			log.Fatalf("Failed to load scores: %v", err)
		}
		for _, res := range results {
			record, err := grading.Grade(res.Picks, scores, nil)
			if err != nil {
				log.Fatalf("Grading failed for %s: %v", res.Capper, err)
			}
			printRecord(res.Capper, record)
		}
	}

	if *outputFile == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			log.Fatalf("Failed to write results: %v", err)
		}
		return
	}
	if err := exportResults(results, *outputFile); err != nil {
		log.Fatalf("Failed to export results: %v", err)
	}
	log.Printf("Results written to %s", *outputFile)
}

func clock(at string) (func() time.Time, error) {
	if at == "" {
		return time.Now, nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return nil, err
	}
	return func() time.Time { return t }, nil
}

func selectPolicies(cfg *config.Config, name string) ([]*decision.Policy, error) {
	cappers, err := cfg.CapperConfigs()
	if err != nil {
		return nil, err
	}
	reg := registry.New(registry.Static(cappers...))
	ctx := context.Background()
	if name == "" {
		return reg.Policies(ctx)
	}
	c, err := reg.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("capper %q: %w", name, err)
	}
	p, err := decision.NewPolicy(c)
	if err != nil {
		return nil, err
	}
	return []*decision.Policy{p}, nil
}

func printResult(res *orchestrator.BatchResult) {
	fmt.Println()
	fmt.Printf("==================== %s ====================\n", strings.ToUpper(res.Capper))
	fmt.Printf("  Games:   %d\n", res.Games)
	fmt.Printf("  Picks:   %d\n", len(res.Picks))
	fmt.Printf("  Passes:  %d\n", len(res.Passes))
	fmt.Printf("  Elapsed: %s\n", res.Duration.Round(time.Millisecond))
	fmt.Println()
	for i, p := range res.Picks {
		fmt.Printf("  %d. %-28s %+5d  %du  conf %.1f  (%s)\n", i+1, p.Selection, p.Odds, p.Units, p.Confidence, p.GameID)
		if *verbose {
			for _, r := range p.Reasoning {
				fmt.Printf("       - %s\n", r)
			}
		}
	}
	if *verbose {
		for _, p := range res.Passes {
			fmt.Printf("  pass %s [%s/%s] %s\n", p.GameID, p.Stage, p.Kind, p.Reason)
		}
	}
}

func printRecord(capper string, r *grading.Result) {
	fmt.Fprintf(os.Stderr, "  %-14s %d-%d-%d  pending %d  units %s  ROI %s%%  max drawdown %s%%\n",
		capper, r.Wins, r.Losses, r.Pushes, r.Pending,
		r.UnitsWon.StringFixed(2),
		r.ROI.StringFixed(1),
		r.MaxDrawdown.Mul(decimal.NewFromInt(100)).StringFixed(1),
	)
}

func exportResults(results []*orchestrator.BatchResult, filename string) error {
	if strings.HasSuffix(filename, ".csv") {
		return exportCSV(results, filename)
	}
	if !strings.HasSuffix(filename, ".json") {
		filename += ".json"
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	return os.WriteFile(filename, data, 0644)
}

func exportCSV(results []*orchestrator.BatchResult, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	w.Write([]string{"capper", "game_id", "outcome", "bet_type", "selection", "odds", "units", "confidence", "reason"})
	for _, res := range results {
		for _, p := range res.Picks {
			w.Write([]string{
				p.Capper, p.GameID, "pick", string(p.BetType), p.Selection,
				strconv.Itoa(p.Odds), strconv.Itoa(p.Units),
				strconv.FormatFloat(p.Confidence, 'f', 1, 64), "",
			})
		}
		for _, p := range res.Passes {
			w.Write([]string{p.Capper, p.GameID, "pass", "", "", "", "", "", fmt.Sprintf("%s/%s: %s", p.Stage, p.Kind, p.Reason)})
		}
	}
	w.Flush()
	return w.Error()
}
