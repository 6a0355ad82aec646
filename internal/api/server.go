// Package api exposes the optimization engine over tenant-scoped HTTP routes.
package api

import (
    "context"
    "fmt"
    "io"
    "log"

    redis "github.com/redis/go-redis/v9"
    "golang.org/x/time/rate"

    "routecap/internal/auth"
    "routecap/internal/config"
    "routecap/internal/distance"
    "routecap/internal/opt"
    "routecap/internal/store"
    "routecap/internal/webhooks"
)

type Server struct {
    Config    config.Config
    Store     store.Store
    Auth      *auth.Verifier
    Broker    EventBroker
    Notifier  *webhooks.Notifier
    Webhooks  *webhooks.Worker
    Optimizer *opt.Optimizer
    Scorer    *opt.Scorer
    Batch     *opt.Batch
    Planner   opt.Planner
    Matcher   *opt.Matcher
    Runs      *opt.RunLog

    redis   *redis.Client
    closers []io.Closer
}

// NewServer wires the engine from cfg. Without DATABASE_URL the in-memory
// store is used, optionally seeded from cfg.FixturesPath.
func NewServer(cfg config.Config) (*Server, error) {
    s := &Server{Config: cfg, Auth: auth.NewVerifier(cfg.Auth), Runs: opt.NewRunLog()}

    if cfg.DatabaseURL == "" {
        s.Store = store.NewMemory()
    } else {
        pg, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil { return nil, fmt.Errorf("postgres: %w", err) }
        if cfg.Migrate {
            if err := pg.MigrateDir("db/migrations"); err != nil { log.Printf("op=migrate err=%v", err) }
        }
        s.Store = pg
        s.closers = append(s.closers, pg)
    }
    if cfg.FixturesPath != "" {
        f, err := store.LoadFixtures(cfg.FixturesPath)
        if err != nil { return nil, err }
        if sd, ok := s.Store.(store.Seeder); ok {
            if err := sd.Seed(context.Background(), f); err != nil { return nil, fmt.Errorf("seed fixtures: %w", err) }
            log.Printf("op=seed fixtures=%s tenants=%d", cfg.FixturesPath, len(f.Tenants))
        }
    }

    if cfg.RedisURL != "" {
        opts, err := redis.ParseURL(cfg.RedisURL)
        if err != nil { return nil, fmt.Errorf("redis url: %w", err) }
        s.redis = redis.NewClient(opts)
        s.closers = append(s.closers, s.redis)
    }

    provider, err := s.distanceProvider()
    if err != nil { return nil, err }
    s.Optimizer = opt.NewOptimizer(provider, cfg.Optimizer.ExactMaxTrips, cfg.Optimizer.MaxIterations)
    s.Scorer = &opt.Scorer{Optimizer: s.Optimizer, Workers: cfg.Optimizer.BatchWorkers}
    s.Batch = &opt.Batch{
        Optimizer:    s.Optimizer,
        Trips:        s.Store,
        Workers:      cfg.Optimizer.BatchWorkers,
        MaxRangeDays: cfg.Optimizer.MaxRangeDays,
    }
    s.Planner = opt.Planner{PickupTolerance: cfg.Capacity.PickupTolerance, DestinationProximityKm: cfg.Capacity.ProximityKm}
    s.Matcher = newMatcher(cfg)

    if s.redis != nil {
        s.Broker = NewRedisBroker(s.redis)
    } else {
        s.Broker = NewBroker()
    }
    s.Webhooks = webhooks.NewWorker(cfg.Webhooks)
    s.Notifier = webhooks.NewNotifier(s.Store, s.Webhooks)
    return s, nil
}

// distanceProvider builds Selector(external, geometric). External results are
// cached in front of the selector so cache hits skip the rate limiter.
func (s *Server) distanceProvider() (distance.Provider, error) {
    dc := s.Config.Distance
    geo := distance.NewGeometricProvider(dc.SpeedKmh)
    if dc.GoogleMapsAPIKey == "" {
        return distance.NewSelector(nil, geo, dc.Timeout, nil), nil
    }
    ext, err := distance.NewExternalMapProvider(dc.GoogleMapsAPIKey)
    if err != nil { return nil, fmt.Errorf("maps client: %w", err) }
    var limiter *rate.Limiter
    if dc.RateRPS > 0 { limiter = rate.NewLimiter(rate.Limit(dc.RateRPS), max(1, dc.RateBurst)) }
    sel := distance.NewSelector(ext, geo, dc.Timeout, limiter)

    switch dc.Cache {
    case "redis":
        if s.redis == nil { return nil, fmt.Errorf("distance cache redis requires REDIS_URL") }
        return &distance.CachedProvider{Inner: sel, Cache: distance.NewRedisCache(s.redis, dc.CacheTTL)}, nil
    case "memory":
        return &distance.CachedProvider{Inner: sel, Cache: distance.NewMemoryCache(dc.CacheTTL)}, nil
    default:
        return sel, nil
    }
}

func newMatcher(cfg config.Config) *opt.Matcher {
    m := opt.NewMatcher(cfg.Capacity.DefaultVehicleCapacity, cfg.Matching.DefaultFare)
    mc := cfg.Matching
    if mc.PickupTolerance > 0 { m.PickupTolerance = mc.PickupTolerance }
    if mc.ProximityKm > 0 { m.ProximityKm = mc.ProximityKm }
    if mc.TimeWeight+mc.DestWeight+mc.HistoryWeight > 0 {
        m.TimeWeight, m.DestWeight, m.HistoryWeight = mc.TimeWeight, mc.DestWeight, mc.HistoryWeight
    }
    if mc.HistorySaturation > 0 { m.HistorySaturation = mc.HistorySaturation }
    if mc.HistoryLookback > 0 { m.HistoryLookback = mc.HistoryLookback }
    if mc.LowUtilization > 0 { m.LowUtilization = mc.LowUtilization }
    return m
}

// Start launches background workers.
func (s *Server) Start() { s.Webhooks.Start() }

// Close stops workers and releases the store and Redis connections.
func (s *Server) Close() error {
    s.Webhooks.Stop()
    var first error
    for _, c := range s.closers {
        if err := c.Close(); err != nil && first == nil { first = err }
    }
    return first
}
