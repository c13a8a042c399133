// Package factors maps team statistics, injuries and market lines to bounded
// signals and bipolar point scores.
//
// Every factor function is pure. Non-finite or out-of-domain input yields a
// neutral signal tagged ReasonBadInput instead of an error.
package factors

import (
	"fmt"
	"math"
)

// MaxPoints is the largest single-sided score any factor can produce.
const MaxPoints = 5.0

// ReasonBadInput tags a neutral signal produced from invalid input.
const ReasonBadInput = "bad_input"

// Signal is the output of one factor function.
//
// Value is the saturated signal in [-1, 1]. Exactly one of HomeScore and
// AwayScore is non-zero unless Value is zero. For totals factors the two
// scores read as over and under.
type Signal struct {
	Name      string
	Value     float64
	Raw       float64 // differential before scaling
	HomeScore float64
	AwayScore float64
	Totals    bool
	Reason    string
	Disabled  bool
	Meta      map[string]string
}

// OverScore is HomeScore for a totals factor.
func (s Signal) OverScore() float64 { return s.HomeScore }

// UnderScore is AwayScore for a totals factor.
func (s Signal) UnderScore() float64 { return s.AwayScore }

// Points returns the signed score: positive favors home (or over).
func (s Signal) Points() float64 { return s.HomeScore - s.AwayScore }

// BadInput reports whether the signal was neutralized because of invalid input.
func (s Signal) BadInput() bool { return s.Reason == ReasonBadInput }

// saturate scales raw, bounds it with tanh and splits it into sided scores.
func saturate(name string, raw, scale float64) Signal {
	s := Signal{Name: name, Raw: raw}
	if !finite(raw) || !finite(scale) || scale <= 0 {
		return neutral(name, "non-finite differential")
	}
	s.Value = math.Tanh(raw / scale)
	pts := s.Value * MaxPoints
	switch {
	case pts > 0:
		s.HomeScore = pts
	case pts < 0:
		s.AwayScore = -pts
	}
	return s
}

func neutral(name, detail string) Signal {
	return Signal{
		Name:   name,
		Reason: ReasonBadInput,
		Meta:   map[string]string{"detail": detail},
	}
}

func disabled(name string, err error) Signal {
	return Signal{
		Name:     name,
		Disabled: true,
		Meta:     map[string]string{"error": err.Error()},
	}
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// checkRate validates fractions such as turnover or rebound rate.
func checkRate(vs ...float64) error {
	for _, v := range vs {
		if !finite(v) || v < 0 || v > 1 {
			return fmt.Errorf("rate %v outside [0,1]", v)
		}
	}
	return nil
}

func checkNonNegative(vs ...float64) error {
	for _, v := range vs {
		if !finite(v) || v < 0 {
			return fmt.Errorf("value %v must be finite and non-negative", v)
		}
	}
	return nil
}
