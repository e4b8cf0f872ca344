// Package stats records one event per lookup outcome. Sinks are best-effort:
// a failing sink is logged by the caller and never fails a request.
package stats

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Event describes how a single lookup ended.
type Event struct {
	Identity string
	Number   string // masked
	Outcome  string // "hit", "miss" or an error code
	Cached   bool
	ASN      int
	ASNOrg   string
	Hosting  bool
	Latency  time.Duration
	At       time.Time
}

// Store persists lookup events.
type Store interface {
	Record(ctx context.Context, ev Event) error
	Close() error
}

// Counter is implemented by sinks that can report totals per outcome.
type Counter interface {
	Outcomes() map[string]int64
}

// Options selects and configures a sink.
type Options struct {
	Backend       string // none, memory, redis, sqlite, mysql
	DSN           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
	Retention     time.Duration
}

// New builds the sink named by opts.Backend.
func New(opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "none":
		return Nop{}, nil
	case "memory":
		return NewMemory(), nil
	case "redis":
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("stats backend redis: address is required")
		}
		return NewRedis(RedisConfig{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		}, WithPrefix(opts.Prefix), WithTTL(opts.Retention))
	case "sqlite":
		if opts.DSN == "" {
			return nil, fmt.Errorf("stats backend sqlite: path is required")
		}
		return NewSQLite(opts.DSN, opts.Retention)
	case "mysql":
		if opts.DSN == "" {
			return nil, fmt.Errorf("stats backend mysql: dsn is required")
		}
		return NewMySQL(opts.DSN, opts.Retention)
	default:
		return nil, fmt.Errorf("unsupported stats backend: %s", opts.Backend)
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }
func (Nop) Close() error { return nil }
