package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultUpstreamURL = "https://numberimfo.vishalboss.sbs/api.php"

type Config struct {
	// Server
	Port       string
	Host       string
	ServerName string

	// Auth
	APIKeys  []string
	AdminKey string // empty = admin endpoint disabled

	// Upstream
	UpstreamURL     string
	UpstreamKey     string
	UpstreamTimeout time.Duration
	UpstreamRPS     float64 // 0 = unthrottled
	UpstreamBurst   int

	// Rate limit
	RateLimit  int
	RateWindow time.Duration
	TrustXFF   bool

	// Cache
	CacheTTL             time.Duration
	CacheMaxEntries      int
	CacheKeyPrefix       string
	CacheCleanupInterval time.Duration // 0 = evict inline after each write

	// Stats sink
	StatsBackend       string
	StatsDSN           string
	StatsRedisAddr     string
	StatsRedisPassword string
	StatsRedisDB       int
	StatsPrefix        string
	StatsRetention     time.Duration

	// Local database
	MMDBPath string

	// values present in the environment that failed to parse
	parseErrs []error
}

// Load reads the environment, after merging an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	e := &envReader{}
	cfg := &Config{
		Port:       envOrDefault("PORT", "8080"),
		Host:       envOrDefault("HOST", "0.0.0.0"),
		ServerName: envOrDefault("SERVER_NAME", "number-intel"),

		APIKeys:  splitList(os.Getenv("API_KEYS")),
		AdminKey: os.Getenv("ADMIN_KEY"),

		UpstreamURL:     envOrDefault("UPSTREAM_URL", DefaultUpstreamURL),
		UpstreamKey:     os.Getenv("UPSTREAM_KEY"),
		UpstreamTimeout: e.duration("UPSTREAM_TIMEOUT", 10*time.Second),
		UpstreamRPS:     e.float("UPSTREAM_RPS", 0),
		UpstreamBurst:   e.integer("UPSTREAM_BURST", 5),

		RateLimit:  e.integer("RATE_LIMIT_MAX", 20),
		RateWindow: e.duration("RATE_LIMIT_WINDOW", time.Minute),
		TrustXFF:   e.boolean("TRUST_XFF", true),

		CacheTTL:             e.duration("CACHE_TTL", 5*time.Minute),
		CacheMaxEntries:      e.integer("CACHE_MAX_ENTRIES", 10000),
		CacheKeyPrefix:       os.Getenv("CACHE_KEY_PREFIX"),
		CacheCleanupInterval: e.duration("CACHE_CLEANUP_INTERVAL", 0),

		StatsBackend:       envOrDefault("STATS_BACKEND", "none"),
		StatsDSN:           os.Getenv("STATS_DSN"),
		StatsRedisAddr:     os.Getenv("STATS_REDIS_ADDR"),
		StatsRedisPassword: os.Getenv("STATS_REDIS_PASSWORD"),
		StatsRedisDB:       e.integer("STATS_REDIS_DB", 0),
		StatsPrefix:        envOrDefault("STATS_PREFIX", "numberintel:stats"),
		StatsRetention:     e.duration("STATS_RETENTION", 24*time.Hour),

		MMDBPath: envOrDefault("MMDB_PATH", "data/GeoLite2-ASN.mmdb"),
	}

	cfg.parseErrs = e.errs

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.parseErrs...)
	if c.UpstreamURL == "" {
		errs = append(errs, errors.New("UPSTREAM_URL is required"))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, errors.New("UPSTREAM_TIMEOUT must be > 0"))
	}
	if c.UpstreamRPS < 0 {
		errs = append(errs, errors.New("UPSTREAM_RPS must be >= 0"))
	}
	if c.RateLimit < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX must be >= 1"))
	}
	if c.RateWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be > 0"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be > 0"))
	}
	if c.CacheMaxEntries < 0 {
		errs = append(errs, errors.New("CACHE_MAX_ENTRIES must be >= 0"))
	}
	if c.CacheCleanupInterval < 0 {
		errs = append(errs, errors.New("CACHE_CLEANUP_INTERVAL must be >= 0"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// InlineEviction reports whether expired cache entries are swept on write
// rather than by a background janitor.
func (c *Config) InlineEviction() bool {
	return c.CacheCleanupInterval <= 0
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envReader parses typed settings and remembers the ones it had to
// reject, so Validate can report them instead of silently using defaults.
type envReader struct {
	errs []error
}

func (e *envReader) fail(key, v, kind string) {
	e.errs = append(e.errs, fmt.Errorf("%s: %q is not a valid %s", key, v, kind))
}

func (e *envReader) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, "integer")
		return def
	}
	return n
}

func (e *envReader) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, "number")
		return def
	}
	return f
}

func (e *envReader) boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, "boolean")
		return def
	}
	return b
}

// duration accepts Go durations ("90s") or bare seconds ("90").
func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	e.fail(key, v, "duration")
	return def
}
