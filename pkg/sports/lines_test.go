package sports

import "testing"

func testGame() Game {
	return Game{
		ID:       "g1",
		Sport:    SportNBA,
		HomeTeam: Team{ID: "bos", Name: "Boston Celtics"},
		AwayTeam: Team{ID: "nyk", Name: "New York Knicks"},
		Odds: map[string]BookOdds{
			"draftkings": {
				Moneyline: &Moneyline{Home: -160, Away: 135},
				Spread:    &Spread{HomePrice: -110, AwayPrice: -110, HomeLine: -3.5},
				Total:     &Total{OverPrice: -110, UnderPrice: -110, Line: 220.5},
			},
			"fanduel": {
				Moneyline: &Moneyline{Home: -150, Away: 130},
				Spread:    &Spread{HomePrice: -105, AwayPrice: -115, HomeLine: -3.5},
				Total:     &Total{OverPrice: -108, UnderPrice: -112, Line: 220.5},
			},
			"pinnacle": {
				Spread: &Spread{HomePrice: -120, AwayPrice: 100, HomeLine: -4.5},
				Total:  &Total{OverPrice: -105, UnderPrice: -115, Line: 221.5},
			},
		},
	}
}

func TestLines_Consensus(t *testing.T) {
	ml := testGame().Lines()

	if !ml.HasSpread || ml.SpreadHomeLine != -3.5 {
		t.Errorf("spread consensus = %v (has=%v), want -3.5", ml.SpreadHomeLine, ml.HasSpread)
	}
	if !ml.HasTotal || ml.TotalLine != 220.5 {
		t.Errorf("total consensus = %v, want 220.5", ml.TotalLine)
	}
	if ml.HomeMoneyline != -150 || ml.AwayMoneyline != 135 {
		t.Errorf("best moneylines = %d/%d, want -150/135", ml.HomeMoneyline, ml.AwayMoneyline)
	}
	// pinnacle hangs -4.5, so its prices are ignored at -3.5.
	if ml.HomeSpread != -105 || ml.AwaySpread != -110 {
		t.Errorf("best spread prices = %d/%d, want -105/-110", ml.HomeSpread, ml.AwaySpread)
	}
	if ml.Over != -108 || ml.Under != -110 {
		t.Errorf("best total prices = %d/%d, want -108/-110", ml.Over, ml.Under)
	}
	if ml.Favorite() != SideHome {
		t.Errorf("favorite = %q, want home", ml.Favorite())
	}
}

func TestLines_NoOdds(t *testing.T) {
	g := Game{ID: "g2"}
	ml := g.Lines()
	if ml.HasSpread || ml.HasTotal {
		t.Error("expected no markets")
	}
	if ml.Favorite() != SideNone {
		t.Errorf("favorite = %q, want none", ml.Favorite())
	}
}

func TestFavorite_PickemFallsBackToMoneyline(t *testing.T) {
	ml := MarketLines{HasSpread: true, SpreadHomeLine: 0, HomeMoneyline: 120, AwayMoneyline: -140}
	if ml.Favorite() != SideAway {
		t.Errorf("favorite = %q, want away", ml.Favorite())
	}
}

func TestBetTypeNormalized(t *testing.T) {
	if BetTotalOver.Normalized() != BetTotalUnder.Normalized() {
		t.Error("over and under should normalize to the same market")
	}
	if BetSpread.Normalized() != BetSpread {
		t.Error("spread should normalize to itself")
	}
	if BetType("parlay").Valid() {
		t.Error("parlay is not a pick type")
	}
}
