// Package research combines optional external research services into a
// single signal for the external-research factor.
package research

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/phenomenon0/capper-engine/pkg/factors"
	"github.com/phenomenon0/capper-engine/pkg/sports"
)

// ErrNoClients is returned by a panel with no clients.
var ErrNoClients = errors.New("research: no clients configured")

// Query describes the game being researched.
type Query struct {
	GameID    string       `json:"game_id"`
	Sport     sports.Sport `json:"sport"`
	HomeTeam  string       `json:"home_team"`
	AwayTeam  string       `json:"away_team"`
	StartTime time.Time    `json:"start_time"`
	// Market context the service may use.
	SpreadHomeLine float64 `json:"spread_home_line,omitempty"`
	TotalLine      float64 `json:"total_line,omitempty"`
}

// QueryFor builds a query from a game and its lines.
func QueryFor(game sports.Game, lines sports.MarketLines) Query {
	return Query{
		GameID:         game.ID,
		Sport:          game.Sport,
		HomeTeam:       game.HomeTeam.Name,
		AwayTeam:       game.AwayTeam.Name,
		StartTime:      game.StartTime,
		SpreadHomeLine: lines.SpreadHomeLine,
		TotalLine:      lines.TotalLine,
	}
}

// Client is one research service. Research returns the raw response body.
type Client interface {
	Name() string
	Research(ctx context.Context, q Query) (string, error)
}

// Provider is what the analyzer consumes: a signal or an error meaning
// "absent".
type Provider interface {
	Research(ctx context.Context, q Query) (*factors.ResearchInput, error)
}

// Opinion is one client's parsed answer.
type Opinion struct {
	Client     string          `json:"client"`
	Signal     decimal.Decimal `json:"signal"`     // -1..1, positive favors home
	Confidence decimal.Decimal `json:"confidence"` // 0-1
	Reasoning  string          `json:"reasoning"`
	LatencyMs  int64           `json:"latency_ms"`
}

// Consensus is the weighted combination of opinions.
type Consensus struct {
	GameID       string          `json:"game_id"`
	Signal       decimal.Decimal `json:"signal"`
	Confidence   decimal.Decimal `json:"confidence"`
	Disagreement decimal.Decimal `json:"disagreement"` // std dev of signals
	Opinions     []Opinion       `json:"opinions"`
	Errors       []string        `json:"errors,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Panel queries every client concurrently and combines their opinions,
// weighting each by client weight times its own confidence.
type Panel struct {
	mu       sync.RWMutex
	clients  map[string]Client
	weights  map[string]decimal.Decimal
	cache    map[string]*Consensus
	cacheTTL time.Duration
	now      func() time.Time
}

// PanelConfig configures a panel.
type PanelConfig struct {
	Weights  map[string]float64 // by client name; missing names share equally
	CacheTTL time.Duration
	Now      func() time.Time
}

// NewPanel creates a panel.
func NewPanel(config *PanelConfig, clients ...Client) *Panel {
	p := &Panel{
		clients:  make(map[string]Client),
		weights:  make(map[string]decimal.Decimal),
		cache:    make(map[string]*Consensus),
		cacheTTL: 10 * time.Minute,
		now:      time.Now,
	}
	if config != nil {
		for name, w := range config.Weights {
			p.weights[name] = decimal.NewFromFloat(w)
		}
		if config.CacheTTL > 0 {
			p.cacheTTL = config.CacheTTL
		}
		if config.Now != nil {
			p.now = config.Now
		}
	}
	for _, c := range clients {
		p.clients[c.Name()] = c
	}
	return p
}

// AddClient adds a client with a weight.
func (p *Panel) AddClient(c Client, weight float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[c.Name()] = c
	p.weights[c.Name()] = decimal.NewFromFloat(weight)
}

// Research implements Provider.
func (p *Panel) Research(ctx context.Context, q Query) (*factors.ResearchInput, error) {
	c, err := p.Consult(ctx, q)
	if err != nil {
		return nil, err
	}
	in := &factors.ResearchInput{
		Value:      c.Signal.InexactFloat64(),
		Confidence: c.Confidence.InexactFloat64(),
		Responses:  len(c.Opinions),
		Summary: fmt.Sprintf("%d research opinions, signal %s, confidence %s, disagreement %s",
			len(c.Opinions), c.Signal.StringFixed(2), c.Confidence.StringFixed(2), c.Disagreement.StringFixed(2)),
	}
	for _, o := range c.Opinions {
		in.Sources = append(in.Sources, "research:"+o.Client)
	}
	return in, nil
}

// Consult returns the panel consensus for a game, from cache when fresh.
func (p *Panel) Consult(ctx context.Context, q Query) (*Consensus, error) {
	if c, ok := p.cached(q.GameID); ok {
		return c, nil
	}

	p.mu.RLock()
	clients := make(map[string]Client, len(p.clients))
	weights := make(map[string]decimal.Decimal, len(p.weights))
	for k, v := range p.clients {
		clients[k] = v
	}
	for k, v := range p.weights {
		weights[k] = v
	}
	p.mu.RUnlock()

	if len(clients) == 0 {
		return nil, ErrNoClients
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var opinions []Opinion
	var errs []string

	for name, client := range clients {
		wg.Add(1)
		go func(name string, client Client) {
			defer wg.Done()
			start := time.Now()
			body, err := client.Research(ctx, q)
			if err == nil {
				var o *Opinion
				o, err = ParseOpinion(body)
				if err == nil {
					o.Client = name
					o.LatencyMs = time.Since(start).Milliseconds()
					mu.Lock()
					opinions = append(opinions, *o)
					mu.Unlock()
					return
				}
			}
			mu.Lock()
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			mu.Unlock()
		}(name, client)
	}
	wg.Wait()

	if len(opinions) == 0 {
		sort.Strings(errs)
		return nil, fmt.Errorf("all research clients failed: %v", errs)
	}

	sort.Slice(opinions, func(i, j int) bool { return opinions[i].Client < opinions[j].Client })
	sort.Strings(errs)
	c := combine(q.GameID, opinions, weights)
	c.Errors = errs
	c.Timestamp = p.now()

	p.mu.Lock()
	p.cache[q.GameID] = c
	p.mu.Unlock()
	return c, nil
}

func (p *Panel) cached(gameID string) (*Consensus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.cache[gameID]
	if !ok || p.now().Sub(c.Timestamp) > p.cacheTTL {
		return nil, false
	}
	return c, true
}

func combine(gameID string, opinions []Opinion, weights map[string]decimal.Decimal) *Consensus {
	c := &Consensus{GameID: gameID, Opinions: opinions}

	totalWeight := decimal.Zero
	weightedSum := decimal.Zero
	confidenceSum := decimal.Zero
	for _, o := range opinions {
		w, ok := weights[o.Client]
		if !ok || w.IsZero() {
			w = decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(len(opinions))))
		}
		effective := w.Mul(o.Confidence)
		totalWeight = totalWeight.Add(effective)
		weightedSum = weightedSum.Add(o.Signal.Mul(effective))
		confidenceSum = confidenceSum.Add(o.Confidence)
	}
	if !totalWeight.IsZero() {
		c.Signal = weightedSum.Div(totalWeight)
	}
	n := decimal.NewFromInt(int64(len(opinions)))
	c.Confidence = confidenceSum.Div(n)

	if len(opinions) > 1 {
		mean := decimal.Zero
		for _, o := range opinions {
			mean = mean.Add(o.Signal)
		}
		mean = mean.Div(n)
		variance := decimal.Zero
		for _, o := range opinions {
			d := o.Signal.Sub(mean)
			variance = variance.Add(d.Mul(d))
		}
		variance = variance.Div(n)
		c.Disagreement = decimal.NewFromFloat(sqrt(variance.InexactFloat64()))
		// Disagreement erodes confidence: a spread of 1 halves it.
		c.Confidence = c.Confidence.Mul(decimal.NewFromInt(1).Sub(c.Disagreement.Div(decimal.NewFromInt(2)))).
			Round(4)
		if c.Confidence.IsNegative() {
			c.Confidence = decimal.Zero
		}
	}
	return c
}
