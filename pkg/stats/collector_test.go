package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phenomenon0/capper-engine/pkg/sports"
)

type stubFetcher struct {
	stats    map[string]*TeamStats
	injuries map[string]*InjuryReport
	failInj  bool
}

func (s *stubFetcher) TeamStats(ctx context.Context, sport sports.Sport, teamID string) (*TeamStats, error) {
	ts, ok := s.stats[teamID]
	if !ok {
		return nil, ErrNotFound
	}
	return ts, nil
}

func (s *stubFetcher) Injuries(ctx context.Context, sport sports.Sport, teamID string) (*InjuryReport, error) {
	if s.failInj {
		return nil, errors.New("injury feed down")
	}
	return s.injuries[teamID], nil
}

func testGame() sports.Game {
	return sports.Game{
		ID:       "g1",
		Sport:    sports.SportNBA,
		HomeTeam: sports.Team{ID: "bos", Name: "Boston Celtics"},
		AwayTeam: sports.Team{ID: "nyk", Name: "New York Knicks"},
	}
}

func TestCollector_PartialFailure(t *testing.T) {
	f := &stubFetcher{
		stats: map[string]*TeamStats{
			"bos": {TeamID: "bos", GamesPlayed: 30, Pace: ptr(98.0)},
		},
		failInj: true,
	}

	b := NewCollector(f, time.Second).Collect(context.Background(), testGame())

	if b.HomeStatsErr != nil {
		t.Errorf("home stats should succeed: %v", b.HomeStatsErr)
	}
	if b.Home.GamesPlayed != 30 {
		t.Errorf("home games played = %d, want 30", b.Home.GamesPlayed)
	}
	if !errors.Is(b.AwayStatsErr, ErrNotFound) {
		t.Errorf("away stats error = %v, want ErrNotFound", b.AwayStatsErr)
	}
	if b.Away.TeamID != "nyk" {
		t.Errorf("away team id should be kept for fallbacks, got %q", b.Away.TeamID)
	}
	if b.InjuriesAvailable() {
		t.Error("injuries should be unavailable")
	}
	if b.InjuriesErr == nil {
		t.Error("injury error should be recorded")
	}
}

func TestCollector_AllAvailable(t *testing.T) {
	f := &stubFetcher{
		stats: map[string]*TeamStats{
			"bos": {TeamID: "bos"},
			"nyk": {TeamID: "nyk"},
		},
		injuries: map[string]*InjuryReport{
			"bos": {TeamID: "bos"},
			"nyk": {TeamID: "nyk", Injuries: []Injury{{Player: "X", Status: "out", Impact: 3}}},
		},
	}

	b := NewCollector(f, 0).Collect(context.Background(), testGame())
	if !b.InjuriesAvailable() {
		t.Fatalf("injuries should be available: %v", b.InjuriesErr)
	}
	if b.AwayInjuries.Impact() != 3 {
		t.Errorf("away impact = %v, want 3", b.AwayInjuries.Impact())
	}
}

// nilFetcher answers (nil, nil) for the away team and panics on its injuries.
type nilFetcher struct{ stubFetcher }

func (f *nilFetcher) TeamStats(ctx context.Context, sport sports.Sport, teamID string) (*TeamStats, error) {
	if teamID == "nyk" {
		return nil, nil
	}
	return f.stubFetcher.TeamStats(ctx, sport, teamID)
}

func (f *nilFetcher) Injuries(ctx context.Context, sport sports.Sport, teamID string) (*InjuryReport, error) {
	if teamID == "nyk" {
		panic("decoder blew up")
	}
	return &InjuryReport{TeamID: teamID}, nil
}

func TestCollector_NilAndPanickingFetcher(t *testing.T) {
	f := &nilFetcher{stubFetcher{stats: map[string]*TeamStats{
		"bos": {TeamID: "bos", GamesPlayed: 20},
	}}}

	b := NewCollector(f, time.Second).Collect(context.Background(), testGame())

	if !errors.Is(b.AwayStatsErr, ErrNotFound) {
		t.Errorf("nil stats should be ErrNotFound, got %v", b.AwayStatsErr)
	}
	if b.Away.TeamID != "nyk" {
		t.Errorf("away team id = %q, want nyk", b.Away.TeamID)
	}
	if b.InjuriesErr == nil || b.InjuriesAvailable() {
		t.Errorf("a panicking injury fetch should be recorded, got %v", b.InjuriesErr)
	}
	if !b.StatsAvailable() {
		t.Error("home stats were fetched, bundle should have stats")
	}
}

func TestBundle_StatsAvailable(t *testing.T) {
	down := errors.New("down")
	tests := []struct {
		name string
		b    Bundle
		want bool
	}{
		{"both fetched", Bundle{Home: TeamStats{GamesPlayed: 10}, Away: TeamStats{GamesPlayed: 10}}, true},
		{"one failed", Bundle{Home: TeamStats{GamesPlayed: 10}, AwayStatsErr: down}, true},
		{"both failed", Bundle{HomeStatsErr: down, AwayStatsErr: down}, false},
		{"both empty", Bundle{Home: TeamStats{TeamID: "bos"}, Away: TeamStats{TeamID: "nyk"}}, false},
		{"one empty one failed", Bundle{Home: TeamStats{TeamID: "bos"}, AwayStatsErr: down}, false},
		{"rating only", Bundle{Home: TeamStats{Pace: ptr(99.0)}, AwayStatsErr: down}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.StatsAvailable(); got != tt.want {
				t.Errorf("StatsAvailable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInjuryReport_ImpactStatusCase(t *testing.T) {
	r := &InjuryReport{Injuries: []Injury{
		{Player: "A", Status: "Out", Impact: 8},
		{Player: "B", Status: " OUT ", Impact: 4},
		{Player: "C", Status: "Questionable", Impact: 5},
	}}
	if got, want := r.Impact(), 14.0; got != want {
		t.Errorf("Impact() = %v, want %v", got, want)
	}
}
