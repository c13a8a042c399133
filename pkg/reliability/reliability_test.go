package reliability

import (
	"math"
	"testing"

	"github.com/phenomenon0/capper-engine/pkg/factors"
)

func TestReliability_BoundsAndMonotonicity(t *testing.T) {
	ks := []float64{0.5, 2, 5, 20, 100}
	levels := []float64{0, 0.25, 0.5, 0.9, 1}

	for _, k := range ks {
		for _, rec := range levels {
			for _, q := range levels {
				prev := -1.0
				for n := 0; n <= 500; n++ {
					r := Reliability(n, k, rec, q)
					if r < 0 || r > rec*q+1e-12 {
						t.Fatalf("Reliability(%d, %v, %v, %v) = %v outside [0, %v]", n, k, rec, q, r, rec*q)
					}
					if r < prev {
						t.Fatalf("Reliability not monotonic in n at n=%d k=%v: %v < %v", n, k, r, prev)
					}
					prev = r
				}
			}
		}
	}
}

func TestReliability_Values(t *testing.T) {
	tests := []struct {
		name   string
		n      int
		k      float64
		rec, q float64
		want   float64
	}{
		{"n equals k", 20, 20, 1, 1, math.Sqrt(0.5)},
		{"scaled by recency and quality", 2, 2, 0.5, 0.8, math.Sqrt(0.5) * 0.4},
		{"zero samples", 0, 5, 1, 1, 0},
		{"negative samples", -3, 5, 1, 1, 0},
		{"recency clamped", 20, 20, 2, 1, math.Sqrt(0.5)},
		{"quality clamped", 20, 20, 1, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reliability(tt.n, tt.k, tt.rec, tt.q)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Reliability = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReliability_InjuriesNeedLessEvidence(t *testing.T) {
	table := DefaultTable()
	inj := Reliability(3, table.Params(factors.CategoryInjuries).K, 1, 1)
	matchup := Reliability(3, table.Params(factors.CategoryMatchup).K, 1, 1)
	if inj <= matchup {
		t.Errorf("injury reliability %v should exceed matchup %v at the same sample size", inj, matchup)
	}
}

func TestContribution_Capped(t *testing.T) {
	tests := []struct {
		name                     string
		weight, effect, cap, rel float64
		want                     float64
	}{
		{"under cap", 0.5, 4, 4, 1, 2},
		{"capped positive", 1, 10, 4, 0.5, 2},
		{"capped negative", 1, -10, 4, 0.5, -2},
		{"negative cap treated as magnitude", 1, 10, -4, 1, 4},
		{"reliability clamped", 1, 1, 4, 3, 1},
		{"nan effect", 1, math.NaN(), 4, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Contribution(tt.weight, tt.effect, tt.cap, tt.rel)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Contribution = %v, want %v", got, tt.want)
			}
			if math.Abs(got) > math.Abs(tt.cap)*math.Min(1, tt.rel)+1e-12 {
				t.Errorf("|contribution| %v exceeds softCap*reliability", got)
			}
		})
	}
}

func TestCalibrate(t *testing.T) {
	in := []factors.Factor{
		{Name: "net_rating", Category: factors.CategoryMatchup, Weight: 1, Effect: 4.5, SampleSize: 40, Recency: 1, DataQuality: 1},
		{Name: "injuries", Category: factors.CategoryInjuries, Weight: 1, Effect: 3, SampleSize: 2, Recency: 1, DataQuality: 1, Disabled: true},
		{Name: "mystery", Category: "unknown", Weight: 1, Effect: 10, SampleSize: 20, Recency: 1, DataQuality: 1},
	}

	out := Calibrate(in, DefaultTable())

	if in[0].Contribution != 0 {
		t.Error("Calibrate must not modify its input")
	}
	net := out[0]
	wantRel := math.Sqrt(40.0 / 60.0)
	if math.Abs(net.Reliability-wantRel) > 1e-12 {
		t.Errorf("net reliability = %v, want %v", net.Reliability, wantRel)
	}
	if math.Abs(net.Contribution-4.0*wantRel) > 1e-12 {
		t.Errorf("net contribution = %v, want capped %v", net.Contribution, 4.0*wantRel)
	}
	if net.Unit != factors.UnitPoints {
		t.Errorf("unit = %q, want points", net.Unit)
	}
	if out[1].Contribution != 0 || out[1].Reliability != 0 {
		t.Errorf("disabled factor should contribute nothing: %+v", out[1])
	}
	if out[2].SoftCap != fallbackParams.SoftCap {
		t.Errorf("unknown category should use fallback cap, got %v", out[2].SoftCap)
	}

	for _, f := range out {
		if f.Reliability < 0 || f.Reliability > 1 {
			t.Errorf("%s reliability %v outside [0,1]", f.Name, f.Reliability)
		}
		if math.Abs(f.Contribution) > f.SoftCap*f.Reliability+1e-12 {
			t.Errorf("%s |contribution| %v > softCap*reliability %v", f.Name, f.Contribution, f.SoftCap*f.Reliability)
		}
	}
}
