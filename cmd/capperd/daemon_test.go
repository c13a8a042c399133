package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/phenomenon0/capper-engine/pkg/analysis"
	"github.com/phenomenon0/capper-engine/pkg/config"
	"github.com/phenomenon0/capper-engine/pkg/decision"
	"github.com/phenomenon0/capper-engine/pkg/eligibility"
	"github.com/phenomenon0/capper-engine/pkg/metrics"
	"github.com/phenomenon0/capper-engine/pkg/orchestrator"
	"github.com/phenomenon0/capper-engine/pkg/registry"
	"github.com/phenomenon0/capper-engine/pkg/sports"
	"github.com/phenomenon0/capper-engine/pkg/streaming"
)

// pickFirst picks a spread on g1 and passes everything else.
type pickFirst struct {
	mu      sync.Mutex
	claimed map[string][]sports.BetType
}

func (a *pickFirst) Analyze(ctx context.Context, game sports.Game, policy *decision.Policy, claimed []sports.BetType) *analysis.Report {
	a.mu.Lock()
	if a.claimed == nil {
		a.claimed = make(map[string][]sports.BetType)
	}
	a.claimed[policy.Name()+"/"+game.ID] = claimed
	a.mu.Unlock()

	rep := &analysis.Report{Game: game}
	if game.ID == "g1" && len(claimed) == 0 {
		rep.Outcome.Pick = &sports.Pick{
			ID:         "p-" + policy.Name(),
			GameID:     game.ID,
			BetType:    sports.BetSpread,
			Selection:  game.HomeTeam.Name + " -3.5",
			Odds:       -110,
			Units:      1,
			Confidence: 8,
		}
		return rep
	}
	rep.Outcome.Pass = &sports.PassRecord{GameID: game.ID, Stage: sports.StageConfidenceGate, Kind: sports.PassNoEdge, Reason: "no edge"}
	return rep
}

func writeSlate(t *testing.T, start time.Time) string {
	t.Helper()
	var games []string
	for _, id := range []string{"g1", "g2"} {
		games = append(games, fmt.Sprintf(`{"id":%q,"home_team":{"id":"h","name":"Home"},"away_team":{"id":"a","name":"Away"},"start_time":%q}`,
			id, start.Format(time.RFC3339)))
	}
	path := filepath.Join(t.TempDir(), "slate.json")
	if err := os.WriteFile(path, []byte("["+strings.Join(games, ",")+"]"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestDaemon(t *testing.T, a orchestrator.Analyzer, loader registry.Loader) *daemon {
	t.Helper()
	cfg := config.Default()
	cfg.Service.Slate = writeSlate(t, time.Now().Add(3*time.Hour))
	lg := zap.NewNop()
	d := &daemon{
		cfg:       cfg,
		log:       lg,
		analyzer:  a,
		registry:  registry.New(loader),
		checker:   eligibility.NewTimeChecker(eligibility.DefaultBuffer),
		metrics:   metrics.NewEngineMetrics(),
		hub:       streaming.NewHub(lg),
		claims:    newMemClaims(),
		recent:    newRecentLog(10),
		lastBatch: make(map[string]batchSummary),
	}
	d.runner = orchestrator.NewRunner(time.Hour, d.cycle)
	return d
}

func twoCappers() registry.Loader {
	a := decision.Baseline()
	b := decision.Aggressive()
	return registry.Static(a, b)
}

func TestCycle_RecordsClaims(t *testing.T) {
	a := &pickFirst{}
	d := newTestDaemon(t, a, twoCappers())

	if err := d.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	picks := d.recent.Picks(0)
	if len(picks) != 2 {
		t.Fatalf("picks = %d, want one per capper", len(picks))
	}
	if got := d.recent.Passes(0); len(got) != 2 {
		t.Fatalf("passes = %d, want 2", len(got))
	}
	for _, p := range picks {
		if p.Capper == "" {
			t.Errorf("pick %s has no capper", p.ID)
		}
	}

	// The second run sees the first run's picks as claimed.
	if err := d.cycle(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	for _, capper := range []string{"baseline", "aggressive"} {
		got := a.claimed[capper+"/g1"]
		if len(got) != 1 || got[0] != sports.BetSpread {
			t.Errorf("%s claimed on g1 = %v, want [spread]", capper, got)
		}
	}
	if n := len(d.recent.Picks(0)); n != 2 {
		t.Errorf("second cycle should add no picks, have %d", n)
	}

	sums := d.summaries()
	if len(sums) != 2 || sums[0].Capper != "aggressive" || sums[1].Capper != "baseline" {
		t.Fatalf("summaries = %+v", sums)
	}
}

func TestCycle_NoSlate(t *testing.T) {
	d := newTestDaemon(t, &pickFirst{}, twoCappers())
	d.cfg.Service.Slate = ""
	if err := d.cycle(context.Background()); err == nil {
		t.Fatal("expected error without a slate")
	}
}

func TestCycle_RegistryFailure(t *testing.T) {
	d := newTestDaemon(t, &pickFirst{}, registry.LoaderFunc(func(context.Context) ([]decision.Config, error) {
		return nil, fmt.Errorf("db down")
	}))
	err := d.cycle(context.Background())
	if err == nil || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("err = %v", err)
	}
}

func TestMergedLoader(t *testing.T) {
	override := decision.Baseline()
	override.MinConfidence = 8
	extra := decision.Conservative()
	extra.Name = "Sharp"

	l := mergedLoader{
		file: registry.Static(decision.Baseline(), decision.Aggressive()),
		db:   registry.Static(override, extra),
		log:  zap.NewNop(),
	}
	got, err := l.LoadCappers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("cappers = %d, want 3", len(got))
	}
	if got[0].Name != "baseline" || got[0].MinConfidence != 8 {
		t.Errorf("db row should override baseline, got %+v", got[0])
	}
	if got[2].Name != "Sharp" {
		t.Errorf("db-only capper not appended: %+v", got[2])
	}

	l.db = registry.LoaderFunc(func(context.Context) ([]decision.Config, error) {
		return nil, fmt.Errorf("no table")
	})
	got, err = l.LoadCappers(context.Background())
	if err != nil || len(got) != 2 {
		t.Fatalf("db failure should fall back to file cappers: %d, %v", len(got), err)
	}
}

func TestRecentLog(t *testing.T) {
	r := newRecentLog(3)
	for i := 0; i < 5; i++ {
		r.add([]sports.Pick{{ID: fmt.Sprint(i)}}, nil)
	}
	got := r.Picks(0)
	if len(got) != 3 || got[0].ID != "4" || got[2].ID != "2" {
		t.Fatalf("picks = %+v", got)
	}
	if got := r.Picks(1); len(got) != 1 || got[0].ID != "4" {
		t.Fatalf("limit 1 = %+v", got)
	}
}

func TestRouter(t *testing.T) {
	var loads atomic.Int32
	loader := registry.LoaderFunc(func(context.Context) ([]decision.Config, error) {
		loads.Add(1)
		return []decision.Config{decision.Baseline(), decision.Consensus(1)}, nil
	})
	d := newTestDaemon(t, &pickFirst{}, loader)
	d.recent.add([]sports.Pick{{ID: "a"}, {ID: "b"}}, []sports.PassRecord{{GameID: "g9"}})
	d.metrics.RecordBatch("baseline", true, 2, 0.5)

	srv := httptest.NewServer(d.router())
	defer srv.Close()

	tests := []struct {
		name   string
		method string
		path   string
		status int
		check  func(t *testing.T, body []byte)
	}{
		{"health", http.MethodGet, "/health", http.StatusOK, func(t *testing.T, body []byte) {
			if !strings.Contains(string(body), `"ok"`) {
				t.Errorf("body = %s", body)
			}
		}},
		{"cappers", http.MethodGet, "/cappers", http.StatusOK, func(t *testing.T, body []byte) {
			var got []capperView
			if err := json.Unmarshal(body, &got); err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].Name != "baseline" || !got[1].Consensus {
				t.Errorf("cappers = %+v", got)
			}
		}},
		{"picks newest first", http.MethodGet, "/picks?limit=1", http.StatusOK, func(t *testing.T, body []byte) {
			var got []sports.Pick
			if err := json.Unmarshal(body, &got); err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[0].ID != "b" {
				t.Errorf("picks = %+v", got)
			}
		}},
		{"bad limit", http.MethodGet, "/picks?limit=zero", http.StatusBadRequest, nil},
		{"passes", http.MethodGet, "/passes", http.StatusOK, func(t *testing.T, body []byte) {
			if !strings.Contains(string(body), "g9") {
				t.Errorf("body = %s", body)
			}
		}},
		{"status", http.MethodGet, "/status", http.StatusOK, func(t *testing.T, body []byte) {
			var got statusView
			if err := json.Unmarshal(body, &got); err != nil {
				t.Fatal(err)
			}
			if got.Runner.Running || len(got.Cappers) != 2 || got.Store {
				t.Errorf("status = %+v", got)
			}
		}},
		{"reload", http.MethodPost, "/reload", http.StatusOK, func(t *testing.T, body []byte) {
			if n := loads.Load(); n < 2 {
				t.Errorf("reload did not hit the loader (loads = %d)", n)
			}
		}},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, func(t *testing.T, body []byte) {
			if !strings.Contains(string(body), "capper_batch_runs_total") {
				t.Errorf("batch counter missing from metrics output")
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			var buf strings.Builder
			if _, err := io.Copy(&buf, resp.Body); err != nil {
				t.Fatal(err)
			}
			if tt.check != nil {
				tt.check(t, []byte(buf.String()))
			}
		})
	}
}
