package aggregate

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/phenomenon0/capper-engine/pkg/factors"
)

func sampleFactors() []factors.Factor {
	return []factors.Factor{
		{Name: "net_rating", Unit: factors.UnitPoints, Contribution: 2.137, Reasoning: "better net rating"},
		{Name: "turnovers", Unit: factors.UnitPoints, Contribution: -0.731, Reasoning: "sloppy"},
		{Name: "rebounding", Unit: factors.UnitPoints, Contribution: 0.1, Reasoning: "glass"},
		{Name: "market_deviation", Unit: factors.UnitLogOdds, Contribution: 0.2, Reasoning: "model vs line"},
		{Name: "injuries", Unit: factors.UnitPoints, Contribution: -1.05, Reasoning: "star out"},
		{Name: "pace", Unit: factors.UnitPoints, Totals: true, Contribution: 1.3, Reasoning: "fast"},
		{Name: "home_court", Unit: factors.UnitPoints, Contribution: 0.3, Reasoning: "home"},
		{Name: "recent_form", Unit: factors.UnitPoints, Contribution: 0.7, Reasoning: "hot"},
	}
}

func TestAggregate_Sum(t *testing.T) {
	r := Aggregate(sampleFactors(), DefaultConfig())

	wantEdge := 2.137 - 0.731 + 0.1 + 0.2*7 - 1.05 + 0.3 + 0.7
	if math.Abs(r.Edge-wantEdge) > 1e-9 {
		t.Errorf("Edge = %v, want %v", r.Edge, wantEdge)
	}
	if math.Abs(r.TotalEdge-1.3) > 1e-9 {
		t.Errorf("TotalEdge = %v, want 1.3", r.TotalEdge)
	}
	if r.Clamped {
		t.Error("edge should not be clamped")
	}
}

func TestAggregate_Commutative(t *testing.T) {
	fs := sampleFactors()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		fs = append(fs, factors.Factor{Name: "noise", Unit: factors.UnitPoints, Contribution: rng.NormFloat64() / 3})
	}
	base := Aggregate(fs, DefaultConfig())

	for trial := 0; trial < 200; trial++ {
		perm := append([]factors.Factor(nil), fs...)
		rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		r := Aggregate(perm, DefaultConfig())
		if r.Edge != base.Edge || r.TotalEdge != base.TotalEdge {
			t.Fatalf("permutation %d changed the sum: %v/%v vs %v/%v", trial, r.Edge, r.TotalEdge, base.Edge, base.TotalEdge)
		}
	}
}

func TestAggregate_Clamped(t *testing.T) {
	fs := []factors.Factor{
		{Name: "a", Contribution: 9},
		{Name: "b", Contribution: 8},
		{Name: "c", Totals: true, Contribution: -20},
	}
	r := Aggregate(fs, Config{PointsPerLogOdds: 7, MaxEdge: 12})
	if r.Edge != 12 || r.TotalEdge != -12 || !r.Clamped {
		t.Errorf("expected clamped edges, got %+v", r)
	}
	if r.RawEdge != 17 {
		t.Errorf("RawEdge = %v, want 17", r.RawEdge)
	}
}

func TestAggregate_Views(t *testing.T) {
	r := Aggregate(sampleFactors(), DefaultConfig())

	byImpact := r.ByImpact()
	if byImpact[0].Name != "net_rating" || byImpact[1].Name != "market_deviation" {
		t.Errorf("unexpected impact order: %s, %s", byImpact[0].Name, byImpact[1].Name)
	}
	for i := 1; i < len(byImpact); i++ {
		if math.Abs(r.Points(byImpact[i])) > math.Abs(r.Points(byImpact[i-1])) {
			t.Errorf("ByImpact not sorted at %d", i)
		}
	}

	for _, f := range r.Positive() {
		if f.Contribution <= 0 {
			t.Errorf("Positive returned %s with %v", f.Name, f.Contribution)
		}
	}
	neg := r.Negative()
	if len(neg) != 2 || neg[0].Name != "injuries" {
		t.Errorf("unexpected negative view: %v", neg)
	}

	trail := r.Trail()
	if len(trail) != len(sampleFactors()) {
		t.Fatalf("trail has %d lines, want %d", len(trail), len(sampleFactors()))
	}
	if !strings.HasPrefix(trail[0], "net_rating [margin]: +2.14 pts (better net rating)") {
		t.Errorf("unexpected first trail line %q", trail[0])
	}
	for _, line := range trail {
		if !strings.Contains(line, "(") {
			t.Errorf("trail line %q has no reasoning", line)
		}
	}
}

func TestAggregate_Empty(t *testing.T) {
	r := Aggregate(nil, Config{})
	if r.Edge != 0 || r.TotalEdge != 0 || len(r.Trail()) != 0 {
		t.Errorf("empty aggregate should be zero, got %+v", r)
	}
}
