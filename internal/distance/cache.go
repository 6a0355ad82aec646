package distance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	gocache "github.com/patrickmn/go-cache"
	redis "github.com/redis/go-redis/v9"

	"routecap/internal/metrics"
	"routecap/internal/model"
)

// Cache stores reliable pair entries. Implementations are safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool)
	Set(ctx context.Context, key string, e Entry)
}

// PairKey identifies a directed coordinate pair at ~1 m resolution.
func PairKey(a, b model.Coordinate) string {
	return fmt.Sprintf("%.5f,%.5f|%.5f,%.5f", a.Lat, a.Lng, b.Lat, b.Lng)
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	c *gocache.Cache
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryCache{c: gocache.New(ttl, 2*ttl)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (Entry, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return Entry{}, false
	}
	e, ok := v.(Entry)
	return e, ok
}

func (m *MemoryCache) Set(_ context.Context, key string, e Entry) {
	m.c.Set(key, e, gocache.DefaultExpiration)
}

// RedisCache shares entries between API replicas.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{rdb: rdb, ttl: ttl, prefix: "dist:"}
}

func (r *RedisCache) Get(ctx context.Context, key string) (Entry, bool) {
	b, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("op=distance.cache.get backend=redis err=%v", err)
		}
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, false
	}
	return e, true
}

func (r *RedisCache) Set(ctx context.Context, key string, e Entry) {
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, r.prefix+key, b, r.ttl).Err(); err != nil {
		log.Printf("op=distance.cache.set backend=redis err=%v", err)
	}
}

// CachedProvider is a read-through cache in front of Inner. A matrix is served
// from cache only when every off-diagonal pair is present; otherwise Inner is
// called once and its reliable entries are stored.
type CachedProvider struct {
	Inner Provider
	Cache Cache
}

func (c *CachedProvider) Name() string { return c.Inner.Name() }

func (c *CachedProvider) ComputeMatrix(ctx context.Context, stops []model.Stop) (Matrix, error) {
	if err := checkStops(stops); err != nil {
		return Matrix{}, err
	}
	n := len(stops)
	entries := newEntries(n)
	hit := true
	for i := 0; i < n && hit; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				entries[i][j] = Entry{Reliable: true}
				continue
			}
			e, ok := c.Cache.Get(ctx, PairKey(stops[i].Location, stops[j].Location))
			if !ok {
				hit = false
				break
			}
			entries[i][j] = e
		}
	}
	if hit {
		metrics.DistanceCacheLookups.WithLabelValues("hit").Inc()
		return Matrix{Entries: entries, Method: MethodExternal, Reliable: true}, nil
	}
	metrics.DistanceCacheLookups.WithLabelValues("miss").Inc()

	m, err := c.Inner.ComputeMatrix(ctx, stops)
	if err != nil {
		return Matrix{}, err
	}
	for i := 0; i < m.Size() && i < n; i++ {
		for j := 0; j < len(m.Entries[i]) && j < n; j++ {
			if i == j || !m.Entries[i][j].Reliable {
				continue
			}
			c.Cache.Set(ctx, PairKey(stops[i].Location, stops[j].Location), m.Entries[i][j])
		}
	}
	return m, nil
}
