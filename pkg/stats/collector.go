package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/phenomenon0/capper-engine/pkg/sports"
)

// Collector fetches a game's stats bundle. The four upstream calls run
// concurrently and a failed call leaves its part of the bundle empty.
type Collector struct {
	fetcher Fetcher
	timeout time.Duration
}

// NewCollector creates a collector. A zero timeout means the caller's
// context is the only bound.
func NewCollector(fetcher Fetcher, timeout time.Duration) *Collector {
	return &Collector{fetcher: fetcher, timeout: timeout}
}

// Collect never fails as a whole. Partial failures are recorded on the
// bundle's *Err fields.
func (c *Collector) Collect(ctx context.Context, game sports.Game) *Bundle {
	start := time.Now()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	b := &Bundle{
		Sport: game.Sport,
		Home:  TeamStats{TeamID: game.HomeTeam.ID},
		Away:  TeamStats{TeamID: game.AwayTeam.ID},
	}

	var wg sync.WaitGroup
	var homeInjErr, awayInjErr error

	wg.Add(4)
	go func() {
		defer wg.Done()
		ts, err := c.teamStats(ctx, game.Sport, game.HomeTeam.ID)
		if err != nil {
			b.HomeStatsErr = fmt.Errorf("home stats %s: %w", game.HomeTeam.ID, err)
			return
		}
		b.Home = *ts
	}()
	go func() {
		defer wg.Done()
		ts, err := c.teamStats(ctx, game.Sport, game.AwayTeam.ID)
		if err != nil {
			b.AwayStatsErr = fmt.Errorf("away stats %s: %w", game.AwayTeam.ID, err)
			return
		}
		b.Away = *ts
	}()
	go func() {
		defer wg.Done()
		b.HomeInjuries, homeInjErr = c.injuries(ctx, game.Sport, game.HomeTeam.ID)
	}()
	go func() {
		defer wg.Done()
		b.AwayInjuries, awayInjErr = c.injuries(ctx, game.Sport, game.AwayTeam.ID)
	}()
	wg.Wait()

	switch {
	case homeInjErr != nil:
		b.InjuriesErr = fmt.Errorf("home injuries %s: %w", game.HomeTeam.ID, homeInjErr)
	case awayInjErr != nil:
		b.InjuriesErr = fmt.Errorf("away injuries %s: %w", game.AwayTeam.ID, awayInjErr)
	}
	if b.InjuriesErr != nil {
		b.HomeInjuries, b.AwayInjuries = nil, nil
	}

	b.FetchDuration = time.Since(start)
	return b
}

// teamStats calls the fetcher from a collector goroutine. A nil result is
// ErrNotFound and a panic becomes an error.
func (c *Collector) teamStats(ctx context.Context, sport sports.Sport, teamID string) (ts *TeamStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			ts, err = nil, fmt.Errorf("fetcher panic: %v", r)
		}
	}()
	ts, err = c.fetcher.TeamStats(ctx, sport, teamID)
	if err == nil && ts == nil {
		err = ErrNotFound
	}
	return ts, err
}

func (c *Collector) injuries(ctx context.Context, sport sports.Sport, teamID string) (r *InjuryReport, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("fetcher panic: %v", p)
		}
	}()
	r, err = c.fetcher.Injuries(ctx, sport, teamID)
	if err == nil && r == nil {
		err = ErrNotFound
	}
	return r, err
}
