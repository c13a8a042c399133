// Package registry caches capper policies loaded from the config file or the
// database.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/phenomenon0/capper-engine/pkg/decision"
)

// DefaultTTL is how long a loaded capper set is trusted.
const DefaultTTL = 5 * time.Minute

// ErrUnknownCapper is returned for names not in the registry.
var ErrUnknownCapper = errors.New("registry: unknown capper")

// Loader fetches the current capper configurations.
type Loader interface {
	LoadCappers(ctx context.Context) ([]decision.Config, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) ([]decision.Config, error)

// LoadCappers implements Loader.
func (f LoaderFunc) LoadCappers(ctx context.Context) ([]decision.Config, error) {
	return f(ctx)
}

// Static returns a Loader that always yields cfgs.
func Static(cfgs ...decision.Config) Loader {
	return LoaderFunc(func(context.Context) ([]decision.Config, error) {
		out := make([]decision.Config, len(cfgs))
		copy(out, cfgs)
		return out, nil
	})
}

// Registry maps capper names to policy configurations. Entries are reloaded
// when older than the TTL or after Invalidate.
type Registry struct {
	loader Loader
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	byName   map[string]decision.Config // folded name -> config
	loadedAt time.Time
	stale    bool
	gen      uint64 // bumped by Invalidate
	loads    int
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithTTL sets the refresh interval. Non-positive values keep the default.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// New creates a registry. Nothing is loaded until first use.
func New(loader Loader, opts ...Option) *Registry {
	r := &Registry{
		loader: loader,
		ttl:    DefaultTTL,
		now:    time.Now,
		stale:  true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key normalizes a capper name for lookup: trimmed and case folded.
func Key(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// Invalidate forces the next lookup to reload.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.stale = true
	r.gen++
	r.mu.Unlock()
}

// EnsureLoaded reloads the capper set if it is stale or expired. When a
// reload fails the previous set stays in place and the error is returned.
func (r *Registry) EnsureLoaded(ctx context.Context) error {
	r.mu.RLock()
	needsRefresh := r.stale || r.byName == nil || r.now().Sub(r.loadedAt) > r.ttl
	r.mu.RUnlock()

	if needsRefresh {
		return r.Refresh(ctx)
	}
	return nil
}

// Refresh loads and validates the capper set unconditionally. An Invalidate
// that lands while the loader runs keeps the registry stale.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.RLock()
	gen := r.gen
	r.mu.RUnlock()

	cfgs, err := r.loader.LoadCappers(ctx)
	if err != nil {
		return fmt.Errorf("load cappers: %w", err)
	}

	byName := make(map[string]decision.Config, len(cfgs))
	for _, c := range cfgs {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("capper %q: %w", c.Name, err)
		}
		k := Key(c.Name)
		if _, dup := byName[k]; dup {
			return fmt.Errorf("capper %q defined more than once", c.Name)
		}
		byName[k] = c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = byName
	r.loadedAt = r.now()
	r.stale = r.gen != gen
	r.loads++
	return nil
}

// Get returns a capper's configuration.
func (r *Registry) Get(ctx context.Context, name string) (decision.Config, error) {
	err := r.EnsureLoaded(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.byName == nil {
		return decision.Config{}, err
	}
	c, ok := r.byName[Key(name)]
	if !ok {
		return decision.Config{}, fmt.Errorf("%w: %s", ErrUnknownCapper, name)
	}
	return c, nil
}

// All returns every capper sorted by name. A failed reload is returned
// alongside the previous set when one exists.
func (r *Registry) All(ctx context.Context) ([]decision.Config, error) {
	err := r.EnsureLoaded(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]decision.Config, 0, len(r.byName))
	for _, c := range r.byName {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return Key(out[i].Name) < Key(out[j].Name) })
	return out, err
}

// Policies builds a decision policy per capper.
func (r *Registry) Policies(ctx context.Context, opts ...decision.Option) ([]*decision.Policy, error) {
	cfgs, err := r.All(ctx)
	if len(cfgs) == 0 && err != nil {
		return nil, err
	}
	policies := make([]*decision.Policy, 0, len(cfgs))
	for _, c := range cfgs {
		p, perr := decision.NewPolicy(c, opts...)
		if perr != nil {
			return nil, fmt.Errorf("capper %q: %w", c.Name, perr)
		}
		policies = append(policies, p)
	}
	return policies, err
}

// Loads returns how many successful loads have happened.
func (r *Registry) Loads() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loads
}
