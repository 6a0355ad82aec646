// Package config loads service configuration from defaults, an optional YAML
// file, an optional .env file and the process environment, in that order.
package config

import (
    "errors"
    "fmt"
    "io/fs"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
    "gopkg.in/yaml.v3"
)

// maxExactTrips matches the optimizer's enumeration ceiling.
const maxExactTrips = 10

type Config struct {
    Port         string   `yaml:"port"`
    DatabaseURL  string   `yaml:"databaseUrl"`
    Migrate      bool     `yaml:"migrate"`
    RedisURL     string   `yaml:"redisUrl"`
    FixturesPath string   `yaml:"fixturesPath"`
    AllowOrigins []string `yaml:"allowOrigins"`

    Auth      AuthConfig      `yaml:"auth"`
    Distance  DistanceConfig  `yaml:"distance"`
    Optimizer OptimizerConfig `yaml:"optimizer"`
    Capacity  CapacityConfig  `yaml:"capacity"`
    Matching  MatchingConfig  `yaml:"matching"`
    Webhooks  WebhookConfig   `yaml:"webhooks"`
}

type AuthConfig struct {
    Mode        string `yaml:"mode"` // dev | hmac
    HMACSecret  string `yaml:"hmacSecret"`
    TenantClaim string `yaml:"tenantClaim"`
    RoleClaim   string `yaml:"roleClaim"`
}

type DistanceConfig struct {
    GoogleMapsAPIKey string        `yaml:"googleMapsApiKey"`
    Timeout          time.Duration `yaml:"timeout"`
    RateRPS          float64       `yaml:"rateRps"`
    RateBurst        int           `yaml:"rateBurst"`
    Cache            string        `yaml:"cache"` // memory | redis | off
    CacheTTL         time.Duration `yaml:"cacheTtl"`
    SpeedKmh         float64       `yaml:"speedKmh"`
}

type OptimizerConfig struct {
    ExactMaxTrips int `yaml:"exactMaxTrips"`
    MaxIterations int `yaml:"maxIterations"`
    BatchWorkers  int `yaml:"batchWorkers"`
    MaxRangeDays  int `yaml:"maxRangeDays"`
}

type CapacityConfig struct {
    DefaultVehicleCapacity int           `yaml:"defaultVehicleCapacity"`
    PickupTolerance        time.Duration `yaml:"pickupTolerance"`
    ProximityKm            float64       `yaml:"proximityKm"`
}

type MatchingConfig struct {
    PickupTolerance   time.Duration `yaml:"pickupTolerance"`
    ProximityKm       float64       `yaml:"proximityKm"`
    TimeWeight        float64       `yaml:"timeWeight"`
    DestWeight        float64       `yaml:"destWeight"`
    HistoryWeight     float64       `yaml:"historyWeight"`
    HistorySaturation int           `yaml:"historySaturation"`
    HistoryLookback   time.Duration `yaml:"historyLookback"`
    LowUtilization    float64       `yaml:"lowUtilization"`
    DefaultFare       float64       `yaml:"defaultFare"`
}

type WebhookConfig struct {
    MaxAttempts int           `yaml:"maxAttempts"`
    Timeout     time.Duration `yaml:"timeout"`
    QueueSize   int           `yaml:"queueSize"`
}

func Default() Config {
    return Config{
        Port:    "8080",
        Migrate: true,
        Auth:    AuthConfig{Mode: "dev", TenantClaim: "tenant", RoleClaim: "role"},
        Distance: DistanceConfig{
            Timeout:   5 * time.Second,
            RateRPS:   10,
            RateBurst: 10,
            Cache:     "memory",
            CacheTTL:  6 * time.Hour,
            SpeedKmh:  40,
        },
        Optimizer: OptimizerConfig{ExactMaxTrips: 8, MaxIterations: 50, BatchWorkers: 4, MaxRangeDays: 92},
        Capacity:  CapacityConfig{DefaultVehicleCapacity: 8, PickupTolerance: 15 * time.Minute, ProximityKm: 5},
        Matching: MatchingConfig{
            PickupTolerance:   30 * time.Minute,
            ProximityKm:       5,
            TimeWeight:        0.4,
            DestWeight:        0.4,
            HistoryWeight:     0.2,
            HistorySaturation: 5,
            HistoryLookback:   90 * 24 * time.Hour,
            LowUtilization:    0.5,
            DefaultFare:       15,
        },
        Webhooks: WebhookConfig{MaxAttempts: 10, Timeout: 5 * time.Second, QueueSize: 256},
    }
}

// Load builds the configuration. path is the YAML file; when empty,
// config.yaml is used if present. envFile is a dotenv file; a missing one is
// ignored. Variables already set in the environment win over envFile.
func Load(path, envFile string) (Config, error) {
    cfg := Default()

    explicit := path != ""
    if !explicit { path = "config.yaml" }
    b, err := os.ReadFile(path)
    switch {
    case err == nil:
        if err := yaml.Unmarshal(b, &cfg); err != nil { return Config{}, fmt.Errorf("parse %s: %w", path, err) }
    case errors.Is(err, fs.ErrNotExist) && !explicit:
    default:
        return Config{}, fmt.Errorf("read %s: %w", path, err)
    }

    if envFile != "" {
        if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
            return Config{}, fmt.Errorf("load %s: %w", envFile, err)
        }
    }
    if err := applyEnv(&cfg); err != nil { return Config{}, err }
    return cfg, cfg.Validate()
}

func applyEnv(c *Config) error {
    c.Port = envOr("PORT", c.Port)
    c.DatabaseURL = envOr("DATABASE_URL", c.DatabaseURL)
    c.RedisURL = envOr("REDIS_URL", c.RedisURL)
    c.FixturesPath = envOr("FIXTURES_PATH", c.FixturesPath)
    if v := os.Getenv("ALLOW_ORIGINS"); v != "" { c.AllowOrigins = splitList(v) }
    if v := os.Getenv("DB_MIGRATE"); v != "" { c.Migrate = v != "false" }

    c.Auth.Mode = strings.ToLower(envOr("AUTH_MODE", c.Auth.Mode))
    c.Auth.HMACSecret = envOr("AUTH_HMAC_SECRET", c.Auth.HMACSecret)
    c.Auth.TenantClaim = envOr("AUTH_TENANT_CLAIM", c.Auth.TenantClaim)
    c.Auth.RoleClaim = envOr("AUTH_ROLE_CLAIM", c.Auth.RoleClaim)

    c.Distance.GoogleMapsAPIKey = envOr("GOOGLE_MAPS_API_KEY", c.Distance.GoogleMapsAPIKey)
    c.Distance.Cache = strings.ToLower(envOr("DISTANCE_CACHE", c.Distance.Cache))

    var err error
    if c.Distance.Timeout, err = envDuration("DISTANCE_TIMEOUT", c.Distance.Timeout); err != nil { return err }
    if c.Distance.RateRPS, err = envFloat("DISTANCE_RATE_RPS", c.Distance.RateRPS); err != nil { return err }
    if c.Distance.RateBurst, err = envInt("DISTANCE_RATE_BURST", c.Distance.RateBurst); err != nil { return err }
    if c.Optimizer.BatchWorkers, err = envInt("BATCH_WORKERS", c.Optimizer.BatchWorkers); err != nil { return err }
    if c.Webhooks.MaxAttempts, err = envInt("WEBHOOK_MAX_ATTEMPTS", c.Webhooks.MaxAttempts); err != nil { return err }
    return nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
    var errs []error
    if c.Capacity.DefaultVehicleCapacity <= 0 { errs = append(errs, errors.New("capacity.defaultVehicleCapacity must be > 0")) }
    if c.Distance.SpeedKmh <= 0 { errs = append(errs, errors.New("distance.speedKmh must be > 0")) }
    if c.Distance.Timeout <= 0 { errs = append(errs, errors.New("distance.timeout must be > 0")) }
    if c.Matching.TimeWeight < 0 || c.Matching.DestWeight < 0 || c.Matching.HistoryWeight < 0 {
        errs = append(errs, errors.New("matching weights must be >= 0"))
    }
    if c.Matching.TimeWeight+c.Matching.DestWeight+c.Matching.HistoryWeight == 0 { errs = append(errs, errors.New("matching weights must not all be zero")) }
    if c.Optimizer.BatchWorkers <= 0 { errs = append(errs, errors.New("optimizer.batchWorkers must be > 0")) }
    if c.Optimizer.ExactMaxTrips < 0 || c.Optimizer.ExactMaxTrips > maxExactTrips {
        errs = append(errs, fmt.Errorf("optimizer.exactMaxTrips must be between 0 and %d", maxExactTrips))
    }
    switch c.Distance.Cache {
    case "memory", "redis", "off":
    default:
        errs = append(errs, fmt.Errorf("distance.cache %q must be memory, redis or off", c.Distance.Cache))
    }
    switch c.Auth.Mode {
    case "dev":
    case "hmac":
        if c.Auth.HMACSecret == "" { errs = append(errs, errors.New("auth.hmacSecret required in hmac mode")) }
    default:
        errs = append(errs, fmt.Errorf("auth.mode %q must be dev or hmac", c.Auth.Mode))
    }
    return errors.Join(errs...)
}

// Redacted is the view exposed on the debug endpoint; secrets become presence flags.
func (c Config) Redacted() map[string]any {
    return map[string]any{
        "port":                   c.Port,
        "authMode":               c.Auth.Mode,
        "allowOrigins":           c.AllowOrigins,
        "hasDatabaseUrl":         c.DatabaseURL != "",
        "hasRedisUrl":            c.RedisURL != "",
        "hasGoogleMapsApiKey":    c.Distance.GoogleMapsAPIKey != "",
        "distanceTimeout":        c.Distance.Timeout.String(),
        "distanceRateRps":        c.Distance.RateRPS,
        "distanceCache":          c.Distance.Cache,
        "batchWorkers":           c.Optimizer.BatchWorkers,
        "defaultVehicleCapacity": c.Capacity.DefaultVehicleCapacity,
        "webhookMaxAttempts":     c.Webhooks.MaxAttempts,
    }
}

func envOr(k, d string) string {
    if v := os.Getenv(k); v != "" { return v }
    return d
}

func envInt(k string, d int) (int, error) {
    v := os.Getenv(k)
    if v == "" { return d, nil }
    n, err := strconv.Atoi(v)
    if err != nil { return 0, fmt.Errorf("%s: %w", k, err) }
    return n, nil
}

func envFloat(k string, d float64) (float64, error) {
    v := os.Getenv(k)
    if v == "" { return d, nil }
    f, err := strconv.ParseFloat(v, 64)
    if err != nil { return 0, fmt.Errorf("%s: %w", k, err) }
    return f, nil
}

func envDuration(k string, d time.Duration) (time.Duration, error) {
    v := os.Getenv(k)
    if v == "" { return d, nil }
    dur, err := time.ParseDuration(v)
    if err != nil { return 0, fmt.Errorf("%s: %w", k, err) }
    return dur, nil
}

func splitList(v string) []string {
    var out []string
    for _, p := range strings.Split(v, ",") {
        if p = strings.TrimSpace(p); p != "" { out = append(out, p) }
    }
    return out
}
