package reliability

import (
	"reflect"
	"testing"

	"github.com/phenomenon0/capper-engine/pkg/factors"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Net Rating", "netrating"},
		{"net_rating", "netrating"},
		{"NET-RATING!", "netrating"},
		{"Énergie Défensive", "energiedefensive"},
		{"last 10", "last10"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDedupe(t *testing.T) {
	in := []factors.Factor{
		{Name: "Net Rating", Reliability: 0.4, Contribution: 1.0, Reasoning: "from stats", Sources: []string{"stats"}},
		{Name: "pace", Reliability: 0.5, Reasoning: "fast teams"},
		{Name: "net_rating", Reliability: 0.7, Contribution: 1.5, Reasoning: "from research", Sources: []string{"research", "stats"}},
		{Name: "NET-RATING", Reliability: 0.2, Contribution: 9, Reasoning: "", Sources: []string{"blog"}},
	}

	out := Dedupe(in)

	if len(out) != 2 {
		t.Fatalf("expected 2 factors after dedupe, got %d", len(out))
	}
	net := out[0]
	if net.Name != "net_rating" || net.Contribution != 1.5 {
		t.Errorf("highest reliability instance should win, got %+v", net)
	}
	if net.Reasoning != "from stats; from research" {
		t.Errorf("reasoning = %q", net.Reasoning)
	}
	if want := []string{"stats", "research", "blog"}; !reflect.DeepEqual(net.Sources, want) {
		t.Errorf("sources = %v, want %v", net.Sources, want)
	}
	if out[1].Name != "pace" {
		t.Errorf("order should follow first appearance, got %s second", out[1].Name)
	}
	if len(in[0].Sources) != 1 {
		t.Error("Dedupe must not modify input sources")
	}
}
