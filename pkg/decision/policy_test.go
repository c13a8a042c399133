package decision

import (
	"strings"
	"testing"
	"time"

	"github.com/phenomenon0/capper-engine/pkg/sports"
)

func newTestPolicy(t *testing.T, cfg Config) *Policy {
	t.Helper()
	fixed := time.Date(2025, 1, 15, 18, 0, 0, 0, time.UTC)
	p, err := NewPolicy(cfg, WithClock(func() time.Time { return fixed }), WithIDGenerator(func() string { return "pick-1" }))
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}
	return p
}

func spread(conf float64, odds int) Candidate {
	return Candidate{BetType: sports.BetSpread, Side: sports.SideHome, Selection: "Boston Celtics -3.5", Odds: odds, Line: -3.5, Confidence: conf, Reasoning: "margin beyond line"}
}

func total(conf float64, odds int) Candidate {
	return Candidate{BetType: sports.BetTotalOver, Selection: "Over 220", Odds: odds, Line: 220, Confidence: conf, Reasoning: "pace"}
}

func moneyline(conf float64, odds int) Candidate {
	return Candidate{BetType: sports.BetMoneyline, Side: sports.SideHome, Selection: "Boston Celtics ML", Odds: odds, Confidence: conf, Reasoning: "winner"}
}

func TestPresets(t *testing.T) {
	for name, cfg := range Presets(42) {
		if err := cfg.Validate(); err != nil {
			t.Errorf("preset %s invalid: %v", name, err)
		}
	}
	if Baseline().MinConfidence != 6.5 || Conservative().MinConfidence != 7.5 {
		t.Error("unexpected preset thresholds")
	}
	if Conservative().MinConfidence <= Baseline().MinConfidence {
		t.Error("conservative should be stricter than baseline")
	}
	if Aggressive().MinConfidence >= Baseline().MinConfidence {
		t.Error("aggressive should be looser than baseline")
	}
	if Consensus(1).Disagreement == nil {
		t.Error("consensus should simulate disagreement")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no name", func(c *Config) { c.Name = "" }},
		{"percent min confidence", func(c *Config) { c.MinConfidence = 65 }},
		{"underdog guard", func(c *Config) { c.HeavyFavoriteOdds = 150 }},
		{"zero unit tier", func(c *Config) { c.UnitTiers = []UnitTier{{MinConfidence: 8, Units: 0}} }},
		{"no models", func(c *Config) { c.Disagreement = &DisagreementConfig{Models: 0} }},
		{"quorum above one", func(c *Config) { c.Disagreement = &DisagreementConfig{Models: 3, Quorum: 2} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Baseline()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
			if _, err := NewPolicy(cfg); err == nil {
				t.Error("NewPolicy should reject invalid config")
			}
		})
	}
}

func TestConfig_Units(t *testing.T) {
	cfg := Baseline()
	tests := []struct {
		conf float64
		want int
	}{
		{10, 3}, {9.0, 3}, {8.99, 2}, {8.5, 2}, {7.5, 2}, {7.49, 1}, {6.5, 1}, {0, 1},
	}
	for _, tt := range tests {
		if got := cfg.Units(tt.conf); got != tt.want {
			t.Errorf("Units(%v) = %d, want %d", tt.conf, got, tt.want)
		}
	}
}

func TestPercentConversion(t *testing.T) {
	if PercentToConfidence(90) != 9.0 || PercentToConfidence(85) != 8.5 {
		t.Error("percent conversion wrong")
	}
	if ConfidenceToPercent(9.1) < 90.99 || ConfidenceToPercent(9.1) > 91.01 {
		t.Error("confidence conversion wrong")
	}
}

func TestDecide_HeavyFavoriteGuard(t *testing.T) {
	p := newTestPolicy(t, Baseline())
	tests := []struct {
		name   string
		odds   int
		conf   float64
		accept bool
	}{
		{"-300 at 85%", -300, PercentToConfidence(85), false},
		{"-300 at 91%", -300, PercentToConfidence(91), true},
		{"-250 at 90%", -250, 9.0, true},
		{"-250 at 89.9%", -250, 8.99, false},
		{"-249 at 70%", -249, 7.0, true},
		{"-150 at 70%", -150, 7.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := p.Decide("g1", []Candidate{moneyline(tt.conf, tt.odds)}, nil)
			if tt.accept {
				if out.Pick == nil {
					t.Fatalf("expected pick, got pass %+v", out.Pass)
				}
				return
			}
			if out.Pick != nil {
				t.Fatal("expected rejection")
			}
			if out.Pass.Stage != sports.StageFavoriteGuard || out.Pass.Kind != sports.PassNoEdge {
				t.Errorf("unexpected pass %+v", out.Pass)
			}
			if !strings.Contains(out.Pass.Reason, "heavy favorite") {
				t.Errorf("reason should explain the guard: %q", out.Pass.Reason)
			}
		})
	}
}

func TestDecide_GuardDoesNotFallBack(t *testing.T) {
	p := newTestPolicy(t, Baseline())
	out := p.Decide("g1", []Candidate{moneyline(8.5, -300), spread(7.0, -110)}, nil)
	if out.Pick != nil {
		t.Errorf("guard rejects the game, got pick %+v", out.Pick)
	}
}

func TestDecide_DuplicatePrevention(t *testing.T) {
	p := newTestPolicy(t, Baseline())
	candidates := []Candidate{spread(9.2, -110), total(7.0, -110), moneyline(6.8, -150)}

	for i := 0; i < 5; i++ {
		out := p.Decide("g1", candidates, []sports.BetType{sports.BetSpread})
		if out.Pick == nil {
			t.Fatalf("expected a non-spread pick, got %+v", out.Pass)
		}
		if out.Pick.BetType == sports.BetSpread {
			t.Fatal("second spread pick returned")
		}
		if out.Pick.BetType != sports.BetTotalOver {
			t.Errorf("best remaining is the total, got %s", out.Pick.BetType)
		}
	}

	// A claimed under blocks the over.
	out := p.Decide("g1", []Candidate{total(9.5, -110)}, []sports.BetType{sports.BetTotalUnder})
	if out.Pick != nil || out.Pass.Kind != sports.PassClaimed || out.Pass.Stage != sports.StageFilter {
		t.Errorf("claimed total should pass as claimed, got %+v / %+v", out.Pick, out.Pass)
	}
}

func TestDecide_FilterNoOdds(t *testing.T) {
	p := newTestPolicy(t, Baseline())
	out := p.Decide("g1", []Candidate{spread(9, 0), total(8, 0)}, nil)
	if out.Pass == nil || out.Pass.Kind != sports.PassDataMissing {
		t.Errorf("expected data_missing pass, got %+v", out.Pass)
	}
	if len(out.Pass.Details) != 2 {
		t.Errorf("expected a detail per dropped candidate, got %v", out.Pass.Details)
	}

	out = p.Decide("g1", nil, nil)
	if out.Pass == nil || out.Pass.Stage != sports.StageMarket {
		t.Errorf("expected market pass for no candidates, got %+v", out.Pass)
	}
}

func TestDecide_ConfidenceGate(t *testing.T) {
	out := newTestPolicy(t, Conservative()).Decide("g1", []Candidate{spread(7.2, -110)}, nil)
	if out.Pass == nil || out.Pass.Stage != sports.StageConfidenceGate || out.Pass.Kind != sports.PassNoEdge {
		t.Fatalf("expected confidence gate pass, got %+v", out.Pass)
	}
	if !strings.Contains(out.Pass.Reason, "below the 7.50 minimum") {
		t.Errorf("unexpected reason %q", out.Pass.Reason)
	}

	if out := newTestPolicy(t, Baseline()).Decide("g1", []Candidate{spread(7.2, -110)}, nil); out.Pick == nil {
		t.Error("baseline should accept 7.2")
	}
}

func TestDecide_PickFields(t *testing.T) {
	p := newTestPolicy(t, Baseline())
	out := p.Decide("g1", []Candidate{moneyline(8.0, -150), spread(8.0, -110), total(6.0, -110)}, nil)
	if out.Pick == nil {
		t.Fatalf("expected pick, got %+v", out.Pass)
	}
	pick := out.Pick

	// Equal confidence: spread wins the tie-break.
	if pick.BetType != sports.BetSpread {
		t.Errorf("tie-break picked %s, want spread", pick.BetType)
	}
	if pick.ID != "pick-1" || pick.Capper != "baseline" || pick.GameID != "g1" {
		t.Errorf("unexpected identity fields %+v", pick)
	}
	if pick.Units != 2 || pick.ToWin.StringFixed(2) != "1.82" {
		t.Errorf("units/to-win = %d/%s, want 2/1.82", pick.Units, pick.ToWin.StringFixed(2))
	}
	if pick.Confidence != 8.0 || pick.ConfidencePct != 80 {
		t.Errorf("confidence = %v (%v%%)", pick.Confidence, pick.ConfidencePct)
	}
	if pick.Reasoning[0] != "margin beyond line" {
		t.Errorf("first reasoning line should be the candidate's, got %q", pick.Reasoning[0])
	}
	if !pick.CreatedAt.Equal(time.Date(2025, 1, 15, 18, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", pick.CreatedAt)
	}
}

func TestDecide_OrderIndependent(t *testing.T) {
	p := newTestPolicy(t, Baseline())
	a := p.Decide("g1", []Candidate{total(8.1, -110), spread(8.1, -110), moneyline(8.1, -140)}, nil)
	b := p.Decide("g1", []Candidate{moneyline(8.1, -140), spread(8.1, -110), total(8.1, -110)}, nil)
	if a.Pick.BetType != b.Pick.BetType {
		t.Errorf("candidate order changed the pick: %s vs %s", a.Pick.BetType, b.Pick.BetType)
	}
}

func TestDecide_SeededDisagreement(t *testing.T) {
	cfg := Consensus(42)
	p := newTestPolicy(t, cfg)
	candidates := []Candidate{spread(7.3, -110), total(7.1, -110)}

	first := p.Decide("g1", candidates, nil)
	for i := 0; i < 10; i++ {
		again := p.Decide("g1", candidates, nil)
		if (first.Pick == nil) != (again.Pick == nil) {
			t.Fatal("same seed produced different outcomes")
		}
		if strings.Join(first.Trail, "|") != strings.Join(again.Trail, "|") {
			t.Fatal("same seed produced different trails")
		}
	}

	// Far above the minimum, noise of ±0.75 cannot break the quorum.
	strong := p.Decide("g2", []Candidate{spread(9.6, -110)}, nil)
	if strong.Pick == nil {
		t.Errorf("strong candidate rejected: %+v", strong.Pass)
	}
	// Far below it, no model clears the bar.
	weak := p.Decide("g3", []Candidate{spread(5.0, -110)}, nil)
	if weak.Pass == nil || weak.Pass.Stage != sports.StageConfidenceGate {
		t.Errorf("weak candidate should fail the gate: %+v", weak.Pass)
	}
}
