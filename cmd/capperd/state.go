package main

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/phenomenon0/capper-engine/pkg/decision"
	"github.com/phenomenon0/capper-engine/pkg/registry"
	"github.com/phenomenon0/capper-engine/pkg/sports"
)

// memClaims remembers issued picks when no store is configured.
type memClaims struct {
	mu     sync.Mutex
	byGame map[string]map[string][]sports.BetType // capper -> game -> types
}

func newMemClaims() *memClaims {
	return &memClaims{byGame: make(map[string]map[string][]sports.BetType)}
}

func (m *memClaims) Claimed(_ context.Context, capper string, gameIDs []string) (map[string][]sports.BetType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]sports.BetType)
	games := m.byGame[registry.Key(capper)]
	for _, id := range gameIDs {
		if types := games[id]; len(types) > 0 {
			out[id] = append([]sports.BetType(nil), types...)
		}
	}
	return out, nil
}

func (m *memClaims) add(picks []sports.Pick) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range picks {
		key := registry.Key(p.Capper)
		if m.byGame[key] == nil {
			m.byGame[key] = make(map[string][]sports.BetType)
		}
		m.byGame[key][p.GameID] = append(m.byGame[key][p.GameID], p.BetType)
	}
}

// recentLog is a bounded in-memory history served by the status API.
type recentLog struct {
	mu     sync.RWMutex
	max    int
	picks  []sports.Pick
	passes []sports.PassRecord
}

func newRecentLog(max int) *recentLog {
	return &recentLog{max: max}
}

func (r *recentLog) add(picks []sports.Pick, passes []sports.PassRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.picks = keepLast(append(r.picks, picks...), r.max)
	r.passes = keepLast(append(r.passes, passes...), r.max)
}

// Picks returns up to limit picks, newest first.
func (r *recentLog) Picks(limit int) []sports.Pick {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return newestFirst(r.picks, limit)
}

// Passes returns up to limit passes, newest first.
func (r *recentLog) Passes(limit int) []sports.PassRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return newestFirst(r.passes, limit)
}

func keepLast[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return append([]T(nil), s[len(s)-n:]...)
}

func newestFirst[T any](s []T, limit int) []T {
	if limit <= 0 || limit > len(s) {
		limit = len(s)
	}
	out := make([]T, 0, limit)
	for i := len(s) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s[i])
	}
	return out
}

// mergedLoader reads cappers from the config file and lets rows in the
// cappers table override or add to them by name.
type mergedLoader struct {
	file registry.Loader
	db   registry.Loader
	log  *zap.Logger
}

func (l mergedLoader) LoadCappers(ctx context.Context) ([]decision.Config, error) {
	base, err := l.file.LoadCappers(ctx)
	if err != nil {
		return nil, err
	}
	extra, err := l.db.LoadCappers(ctx)
	if err != nil {
		l.log.Warn("database cappers unavailable", zap.Error(err))
		return base, nil
	}

	idx := make(map[string]int, len(base))
	for i, c := range base {
		idx[registry.Key(c.Name)] = i
	}
	for _, c := range extra {
		if i, ok := idx[registry.Key(c.Name)]; ok {
			base[i] = c
			continue
		}
		idx[registry.Key(c.Name)] = len(base)
		base = append(base, c)
	}
	return base, nil
}
