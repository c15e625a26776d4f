/*
Package cache keeps analytics reads off the store.

KEYING:
  Every cached value lives under the current generation number:

    parking:analytics:gen                     INCR counter
    parking:analytics:<gen>:report:<from>:<to>
    parking:analytics:<gen>:summary

  Bumping the generation orphans every cached entry at once; the old keys
  expire on their own TTL. Writers never delete keys.

INVALIDATION:
  Analytics implements engine.Observer and bumps the generation whenever
  a reservation commits or ends. The HTTP layer also calls Invalidate after
  slot provisioning and scenario loads.

FAILURE MODE:
  Redis errors are logged and the call falls through to the store. The
  cache never turns a working read into a failing one.
*/
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/parking-engine/engine"
)

const (
	keyPrefix     = "parking:analytics"
	generationKey = keyPrefix + ":gen"
)

// Source is what the cache fronts. *engine.Service satisfies it.
type Source interface {
	Report(ctx context.Context, rng engine.Range) (engine.Report, error)
	Summary(ctx context.Context) (engine.AvailabilitySummary, error)
}

type Analytics struct {
	redis  *redis.Client
	source Source
	ttl    time.Duration
}

func NewAnalytics(client *redis.Client, source Source, ttl time.Duration) *Analytics {
	return &Analytics{redis: client, source: source, ttl: ttl}
}

// Report returns the cached report for rng, computing it on a miss.
func (a *Analytics) Report(ctx context.Context, rng engine.Range) (engine.Report, error) {
	var report engine.Report
	key := func(gen string) string {
		return fmt.Sprintf("%s:%s:report:%s:%s", keyPrefix, gen, rng.FromDate(), rng.ToDate())
	}
	err := a.readThrough(ctx, key, &report, func() (any, error) {
		return a.source.Report(ctx, rng)
	})
	return report, err
}

// Summary returns the cached availability summary.
func (a *Analytics) Summary(ctx context.Context) (engine.AvailabilitySummary, error) {
	var summary engine.AvailabilitySummary
	key := func(gen string) string {
		return fmt.Sprintf("%s:%s:summary", keyPrefix, gen)
	}
	err := a.readThrough(ctx, key, &summary, func() (any, error) {
		return a.source.Summary(ctx)
	})
	return summary, err
}

// Invalidate moves every reader to a fresh generation.
func (a *Analytics) Invalidate(ctx context.Context) {
	if err := a.redis.Incr(ctx, generationKey).Err(); err != nil {
		log.Printf("[Cache] Failed to bump generation: %v", err)
	}
}

// Observe invalidates on every committed change to occupancy or stats.
func (a *Analytics) Observe(ctx context.Context, ev engine.Event) {
	switch ev.Kind {
	case engine.EventReserved, engine.EventEnded:
		a.Invalidate(ctx)
	}
}

func (a *Analytics) generation(ctx context.Context) (string, error) {
	gen, err := a.redis.Get(ctx, generationKey).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

// readThrough fills dst from the cache or from load. load's result is
// stored under the generation that was current before it ran, so a
// concurrent invalidation is never masked.
func (a *Analytics) readThrough(ctx context.Context, key func(gen string) string, dst any, load func() (any, error)) error {
	gen, err := a.generation(ctx)
	if err != nil {
		log.Printf("[Cache] Generation lookup failed, reading store: %v", err)
		return fill(dst, load)
	}

	k := key(gen)
	raw, err := a.redis.Get(ctx, k).Bytes()
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(raw, dst); jsonErr == nil {
			return nil
		}
		log.Printf("[Cache] Dropping unreadable entry %s", k)
	case !errors.Is(err, redis.Nil):
		log.Printf("[Cache] Get %s failed: %v", k, err)
	}

	value, err := load()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := a.redis.Set(ctx, k, payload, a.ttl).Err(); err != nil {
		log.Printf("[Cache] Set %s failed: %v", k, err)
	}
	return json.Unmarshal(payload, dst)
}

func fill(dst any, load func() (any, error)) error {
	value, err := load()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, dst)
}

// =============================================================================
// CLIENT
// =============================================================================

// NewRedisClient connects to url, which may be a redis:// URL or a bare
// host:port. It fails if the server does not answer a ping.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}

	opts.PoolSize = 20
	opts.MinIdleConns = 2
	opts.MaxRetries = 3

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	log.Println("[Cache] Connected to Redis")
	return client, nil
}
