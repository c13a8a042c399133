// Package eligibility decides whether a game can still be bet.
package eligibility

import (
	"fmt"
	"math"
	"time"

	"github.com/phenomenon0/capper-engine/pkg/sports"
)

// DefaultBuffer is how long before tip-off a game stops being eligible.
const DefaultBuffer = 15 * time.Minute

// Eligibility is the result of a check.
type Eligibility struct {
	IsValid           bool   `json:"is_valid"`
	Reason            string `json:"reason,omitempty"`
	MinutesUntilStart int    `json:"minutes_until_start"`
}

// Checker is the time-eligibility gate consulted for every game.
type Checker interface {
	Check(game sports.Game, now time.Time) Eligibility
}

// TimeChecker rejects games that have started or start within Buffer.
type TimeChecker struct {
	Buffer time.Duration
}

// NewTimeChecker creates a checker. A non-positive buffer uses DefaultBuffer.
func NewTimeChecker(buffer time.Duration) *TimeChecker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &TimeChecker{Buffer: buffer}
}

// Check implements Checker.
func (c *TimeChecker) Check(game sports.Game, now time.Time) Eligibility {
	if game.StartTime.IsZero() {
		return Eligibility{Reason: "game has no start time"}
	}
	until := game.StartTime.Sub(now)
	e := Eligibility{MinutesUntilStart: int(math.Floor(until.Minutes()))}
	switch {
	case until <= 0:
		e.Reason = fmt.Sprintf("game started %d minutes ago", -e.MinutesUntilStart)
	case until < c.Buffer:
		e.Reason = fmt.Sprintf("game starts in %d minutes, inside the %d minute buffer", e.MinutesUntilStart, int(c.Buffer.Minutes()))
	default:
		e.IsValid = true
	}
	return e
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(game sports.Game, now time.Time) Eligibility

// Check implements Checker.
func (f CheckerFunc) Check(game sports.Game, now time.Time) Eligibility {
	return f(game, now)
}
