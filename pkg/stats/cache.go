package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phenomenon0/capper-engine/pkg/sports"
)

// TTL constants
const (
	TeamStatsTTL = 6 * time.Hour
	InjuriesTTL  = 15 * time.Minute
)

// CachedFetcher is a Redis read-through cache in front of another Fetcher.
// Cache failures fall through to the upstream fetcher.
type CachedFetcher struct {
	next   Fetcher
	client *redis.Client
}

// NewCachedFetcher wraps next with a Redis cache.
func NewCachedFetcher(next Fetcher, client *redis.Client) *CachedFetcher {
	return &CachedFetcher{next: next, client: client}
}

func statsKey(sport sports.Sport, teamID string) string {
	return fmt.Sprintf("stats:%s:team:%s", sport, teamID)
}

func injuriesKey(sport sports.Sport, teamID string) string {
	return fmt.Sprintf("stats:%s:injuries:%s", sport, teamID)
}

// TeamStats implements Fetcher.
func (f *CachedFetcher) TeamStats(ctx context.Context, sport sports.Sport, teamID string) (*TeamStats, error) {
	key := statsKey(sport, teamID)

	var ts TeamStats
	if ok := f.read(ctx, key, &ts); ok {
		return &ts, nil
	}

	fresh, err := f.next.TeamStats(ctx, sport, teamID)
	if err != nil {
		return nil, err
	}
	f.write(ctx, key, fresh, TeamStatsTTL)
	return fresh, nil
}

// Injuries implements Fetcher.
func (f *CachedFetcher) Injuries(ctx context.Context, sport sports.Sport, teamID string) (*InjuryReport, error) {
	key := injuriesKey(sport, teamID)

	var report InjuryReport
	if ok := f.read(ctx, key, &report); ok {
		return &report, nil
	}

	fresh, err := f.next.Injuries(ctx, sport, teamID)
	if err != nil {
		return nil, err
	}
	f.write(ctx, key, fresh, InjuriesTTL)
	return fresh, nil
}

// Invalidate drops cached entries for a team.
func (f *CachedFetcher) Invalidate(ctx context.Context, sport sports.Sport, teamID string) error {
	return f.client.Del(ctx, statsKey(sport, teamID), injuriesKey(sport, teamID)).Err()
}

func (f *CachedFetcher) read(ctx context.Context, key string, dst interface{}) bool {
	b, err := f.client.Get(ctx, key).Bytes()
	if err != nil {
		// redis.Nil on a miss, or the cache is down.
		return false
	}
	return json.Unmarshal(b, dst) == nil
}

func (f *CachedFetcher) write(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = f.client.Set(ctx, key, b, ttl).Err()
}
