package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phenomenon0/capper-engine/pkg/analysis"
	"github.com/phenomenon0/capper-engine/pkg/decision"
	"github.com/phenomenon0/capper-engine/pkg/eligibility"
	"github.com/phenomenon0/capper-engine/pkg/sports"
)

var testNow = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

// stubAnalyzer returns a pick whose confidence is looked up by game ID.
type stubAnalyzer struct {
	confidence map[string]float64
	panicOn    string
	mu         sync.Mutex
	claimed    map[string][]sports.BetType
	delay      func(id string) time.Duration
}

func (s *stubAnalyzer) Analyze(ctx context.Context, game sports.Game, policy *decision.Policy, claimed []sports.BetType) *analysis.Report {
	if game.ID == s.panicOn {
		panic("nil bundle")
	}
	if s.delay != nil {
		time.Sleep(s.delay(game.ID))
	}
	s.mu.Lock()
	if s.claimed == nil {
		s.claimed = make(map[string][]sports.BetType)
	}
	s.claimed[game.ID] = claimed
	s.mu.Unlock()

	rep := &analysis.Report{Game: game}
	c, ok := s.confidence[game.ID]
	if !ok {
		rep.Outcome.Pass = &sports.PassRecord{GameID: game.ID, Stage: sports.StageConfidenceGate, Kind: sports.PassNoEdge, Reason: "no edge"}
		return rep
	}
	rep.Outcome.Pick = &sports.Pick{
		ID:         "pick-" + game.ID,
		GameID:     game.ID,
		BetType:    sports.BetSpread,
		Selection:  game.HomeTeam.Name + " -3.5",
		Odds:       -110,
		Units:      1,
		Confidence: c,
	}
	return rep
}

func slate(n int) []sports.Game {
	games := make([]sports.Game, n)
	for i := range games {
		games[i] = sports.Game{
			ID:        fmt.Sprintf("g%02d", i),
			Sport:     sports.SportNBA,
			HomeTeam:  sports.Team{ID: fmt.Sprintf("h%d", i), Name: fmt.Sprintf("Home %d", i)},
			AwayTeam:  sports.Team{ID: fmt.Sprintf("a%d", i), Name: fmt.Sprintf("Away %d", i)},
			StartTime: testNow.Add(2 * time.Hour),
		}
	}
	return games
}

func newTestOrchestrator(t *testing.T, a Analyzer, cfg Config, opts ...Option) *Orchestrator {
	t.Helper()
	p, err := decision.NewPolicy(decision.Baseline())
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(a, p, cfg, opts...)
}

func tenConfidences() map[string]float64 {
	conf := make(map[string]float64)
	for i := 0; i < 10; i++ {
		conf[fmt.Sprintf("g%02d", i)] = 6.5 + float64(i)*0.3
	}
	return conf
}

func TestRunBatch_TruncatesToTopByConfidence(t *testing.T) {
	o := newTestOrchestrator(t, &stubAnalyzer{confidence: tenConfidences()}, Config{Workers: 3})

	res, err := o.RunBatch(context.Background(), slate(10), nil, 3)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, p := range res.Picks {
		got = append(got, p.GameID)
	}
	want := []string{"g09", "g08", "g07"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("picks = %v, want %v", got, want)
	}

	budgetPasses := 0
	for _, p := range res.Passes {
		if p.Kind == sports.PassBudget {
			budgetPasses++
			if p.Stage != sports.StageBudget {
				t.Errorf("budget pass at stage %s", p.Stage)
			}
		}
	}
	if budgetPasses != 7 {
		t.Errorf("budget passes = %d, want 7", budgetPasses)
	}
	if len(res.Picks)+len(res.Passes) != 10 {
		t.Errorf("every game must yield one outcome: %d picks + %d passes", len(res.Picks), len(res.Passes))
	}
}

func TestRunBatch_OrderIndependent(t *testing.T) {
	conf := tenConfidences()
	conf["g03"] = conf["g08"] // tie broken by game ID

	games := slate(10)
	var first []sports.Pick
	for trial := 0; trial < 20; trial++ {
		shuffled := append([]sports.Game(nil), games...)
		rand.New(rand.NewSource(int64(trial))).Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		a := &stubAnalyzer{
			confidence: conf,
			delay: func(id string) time.Duration {
				return time.Duration(len(id)*int(id[len(id)-1])%7) * time.Millisecond
			},
		}
		o := newTestOrchestrator(t, a, Config{Workers: 4})
		res, err := o.RunBatch(context.Background(), shuffled, nil, 4)
		if err != nil {
			t.Fatal(err)
		}
		if first == nil {
			first = res.Picks
			continue
		}
		if !reflect.DeepEqual(first, res.Picks) {
			t.Fatalf("trial %d: picks differ\n got %v\nwant %v", trial, res.Picks, first)
		}
	}
	if first[1].GameID != "g03" || first[2].GameID != "g08" {
		t.Errorf("tie should break on game ID, got %s then %s", first[1].GameID, first[2].GameID)
	}
}

func TestRunBatch_EligibilityAndFaults(t *testing.T) {
	games := slate(4)
	games[0].StartTime = testNow.Add(-10 * time.Minute) // started
	games[1].StartTime = testNow.Add(5 * time.Minute)   // inside buffer

	a := &stubAnalyzer{
		confidence: map[string]float64{"g02": 8, "g03": 9},
		panicOn:    "g03",
	}
	o := newTestOrchestrator(t, a, DefaultConfig())

	res, err := o.RunBatch(context.Background(), games, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Picks) != 1 || res.Picks[0].GameID != "g02" {
		t.Fatalf("expected only g02 to pick, got %+v", res.Picks)
	}
	if res.Picks[0].Capper != decision.Baseline().Name {
		t.Errorf("pick capper = %q", res.Picks[0].Capper)
	}

	kinds := map[string]sports.PassKind{}
	for _, p := range res.Passes {
		kinds[p.GameID] = p.Kind
	}
	want := map[string]sports.PassKind{
		"g00": sports.PassIneligible,
		"g01": sports.PassIneligible,
		"g03": sports.PassFault,
	}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("pass kinds = %v, want %v", kinds, want)
	}
}

func TestRunBatch_ClaimedPassedThrough(t *testing.T) {
	a := &stubAnalyzer{confidence: map[string]float64{"g00": 8}}
	o := newTestOrchestrator(t, a, Config{Workers: 1})
	claimed := map[string][]sports.BetType{"g00": {sports.BetSpread, sports.BetTotalOver}}

	if _, err := o.RunBatch(context.Background(), slate(2), claimed, 0); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.claimed["g00"], claimed["g00"]) {
		t.Errorf("claimed for g00 = %v", a.claimed["g00"])
	}
	if a.claimed["g01"] != nil {
		t.Errorf("g01 has no claims, got %v", a.claimed["g01"])
	}
}

func TestRunBatch_DuplicateGames(t *testing.T) {
	games := slate(2)
	games = append(games, games[0])
	o := newTestOrchestrator(t, &stubAnalyzer{confidence: map[string]float64{"g00": 8, "g01": 7}}, Config{Workers: 2})

	res, err := o.RunBatch(context.Background(), games, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Picks) != 2 || len(res.Passes) != 1 {
		t.Errorf("got %d picks and %d passes, want 2 and 1", len(res.Picks), len(res.Passes))
	}
}

func TestRunBatch_Callbacks(t *testing.T) {
	o := newTestOrchestrator(t, &stubAnalyzer{confidence: map[string]float64{"g00": 8, "g01": 7}}, Config{Workers: 2},
		WithChecker(eligibility.CheckerFunc(func(g sports.Game, now time.Time) eligibility.Eligibility {
			return eligibility.Eligibility{IsValid: g.ID != "g02", Reason: "blocked"}
		})))

	var picks, passes, reports int32
	var stages []Stage
	o.OnPick(func(*sports.Pick) { atomic.AddInt32(&picks, 1) })
	o.OnPass(func(*sports.PassRecord) { atomic.AddInt32(&passes, 1) })
	o.OnReport(func(*analysis.Report) { atomic.AddInt32(&reports, 1) })
	o.OnStageComplete(func(r *StageResult) { stages = append(stages, r.Stage) })

	if _, err := o.RunBatch(context.Background(), slate(4), nil, 1); err != nil {
		t.Fatal(err)
	}
	// g00 picks, g01 cut by budget, g02 ineligible, g03 no edge.
	if picks != 1 || passes != 3 || reports != 3 {
		t.Errorf("callbacks: picks=%d passes=%d reports=%d", picks, passes, reports)
	}
	want := []Stage{StageEligibility, StageAnalysis, StageRanking}
	if !reflect.DeepEqual(stages, want) {
		t.Errorf("stages = %v, want %v", stages, want)
	}
}

func TestRunBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := newTestOrchestrator(t, &stubAnalyzer{}, DefaultConfig())
	if _, err := o.RunBatch(ctx, slate(3), nil, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRunner(t *testing.T) {
	var n int32
	r := NewRunner(10*time.Millisecond, func(ctx context.Context) error {
		if atomic.AddInt32(&n, 1) == 2 {
			return errors.New("slate feed down")
		}
		return nil
	})
	var failures int32
	r.OnError(func(error) { atomic.AddInt32(&failures, 1) })

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&n) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()

	if r.IsRunning() {
		t.Error("runner still running after Stop")
	}
	if st := r.Status(); st.Runs < 3 {
		t.Errorf("runs = %d, want >= 3", st.Runs)
	}
	if atomic.LoadInt32(&failures) != 1 {
		t.Errorf("failures = %d, want 1", failures)
	}
}
