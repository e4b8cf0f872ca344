package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Redis aggregates outcomes into hashes: a cumulative total, per-minute
// buckets and, for hosting clients, a per-ASN counter.
type Redis struct {
	rdb    *redis.Client
	prefix string
	// ttl applies to minute buckets and ASN hashes; the total never expires.
	ttl time.Duration
}

type RedisOption func(*Redis)

func WithPrefix(prefix string) RedisOption {
	return func(s *Redis) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func WithTTL(d time.Duration) RedisOption {
	return func(s *Redis) { s.ttl = d }
}

func NewRedis(cfg RedisConfig, opts ...RedisOption) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis stats ping failed: %w", err)
	}

	return newRedisWithClient(rdb, opts...), nil
}

func newRedisWithClient(rdb *redis.Client, opts ...RedisOption) *Redis {
	s := &Redis{
		rdb:    rdb,
		prefix: "numberintel:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Redis) Record(ctx context.Context, ev Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", ev.Outcome, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, ev.Outcome, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	if ev.Hosting && ev.ASN != 0 {
		asnKey := fmt.Sprintf("%s:hosting", s.prefix)
		pipe.HIncrBy(ctx, asnKey, fmt.Sprintf("AS%d", ev.ASN), 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, asnKey, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Outcomes reads the cumulative totals hash.
func (s *Redis) Outcomes() map[string]int64 {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	raw, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return nil
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		var n int64
		if _, err := fmt.Sscan(v, &n); err == nil {
			out[k] = n
		}
	}
	return out
}

func (s *Redis) Close() error {
	return s.rdb.Close()
}
