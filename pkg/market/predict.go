// Package market predicts scores and grades the gap between the prediction
// and the market's lines.
package market

import (
	"fmt"

	"github.com/phenomenon0/capper-engine/pkg/aggregate"
	"github.com/phenomenon0/capper-engine/pkg/sports"
	"github.com/phenomenon0/capper-engine/pkg/stats"
)

// ScorePrediction is the model's projected final score.
type ScorePrediction struct {
	HomeScore float64     `json:"home_score"`
	AwayScore float64     `json:"away_score"`
	Total     float64     `json:"total"`
	Margin    float64     `json:"margin"` // home minus away
	Winner    sports.Side `json:"winner"`
	Reasoning []string    `json:"reasoning"`
}

// Predictor projects scores from pace and efficiency.
type Predictor struct{}

// NewPredictor creates a predictor.
func NewPredictor() *Predictor {
	return &Predictor{}
}

// Baseline projects the score from stats alone. Each team scores the average
// of its offensive rating and the opponent's defensive rating per 100
// possessions, over the teams' mean pace.
func (p *Predictor) Baseline(b *stats.Bundle) ScorePrediction {
	avg := stats.Averages(b.Sport)
	home := stats.Resolve(b.Home, avg)
	away := stats.Resolve(b.Away, avg)

	pace := (home.Pace + away.Pace) / 2
	homePts := pace * (home.OffensiveRating + away.DefensiveRating) / 2 / 100
	awayPts := pace * (away.OffensiveRating + home.DefensiveRating) / 2 / 100

	pred := newPrediction(homePts, awayPts)
	pred.Reasoning = []string{
		fmt.Sprintf("pace %.1f possessions", pace),
		fmt.Sprintf("efficiency projection %.1f-%.1f", homePts, awayPts),
	}
	if n := len(home.Fallbacks) + len(away.Fallbacks); n > 0 {
		pred.Reasoning = append(pred.Reasoning, fmt.Sprintf("%d stat fields from league averages", n))
	}
	return pred
}

// Predict shifts the baseline margin by the aggregate edge and the total by
// the totals edge. Home court is already part of the edge.
func (p *Predictor) Predict(b *stats.Bundle, agg aggregate.Result) ScorePrediction {
	base := p.Baseline(b)
	margin := base.Margin + agg.Edge
	total := base.Total + agg.TotalEdge

	pred := newPrediction((total+margin)/2, (total-margin)/2)
	pred.Reasoning = append(base.Reasoning,
		fmt.Sprintf("factor edge %+.2f margin, %+.2f total", agg.Edge, agg.TotalEdge),
		fmt.Sprintf("projected %.1f-%.1f (total %.1f, margin %+.1f)", pred.HomeScore, pred.AwayScore, pred.Total, pred.Margin),
	)
	return pred
}

func newPrediction(home, away float64) ScorePrediction {
	pred := ScorePrediction{
		HomeScore: home,
		AwayScore: away,
		Total:     home + away,
		Margin:    home - away,
	}
	switch {
	case pred.Margin > 0:
		pred.Winner = sports.SideHome
	case pred.Margin < 0:
		pred.Winner = sports.SideAway
	}
	return pred
}
