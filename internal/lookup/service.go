package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/akl7777777/number-intel/internal/asn"
	"github.com/akl7777777/number-intel/internal/cache"
	"github.com/akl7777777/number-intel/internal/clock"
	"github.com/akl7777777/number-intel/internal/keystore"
	"github.com/akl7777777/number-intel/internal/ratelimit"
	"github.com/akl7777777/number-intel/internal/stats"
)

var numberPattern = regexp.MustCompile(`^[0-9]{10,15}$`)

// ValidNumber reports whether s is 10 to 15 ASCII digits.
func ValidNumber(s string) bool {
	return numberPattern.MatchString(s)
}

// Mask hides all but the last four digits of a number for logs and stats.
func Mask(number string) string {
	if len(number) <= 4 {
		return strings.Repeat("*", len(number))
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}

// Fetcher performs the upstream call for a validated number.
type Fetcher interface {
	Fetch(ctx context.Context, number string) (json.RawMessage, error)
}

// Request is one inbound lookup.
type Request struct {
	Key      string
	Identity string
	Number   string
}

// Result is a successful lookup.
type Result struct {
	Payload   json.RawMessage
	Cached    bool
	FetchedAt time.Time
	// Remaining is how many more lookups the caller may make in the window.
	Remaining int
}

// Service gates lookups by key, rate and format, then answers them from
// the response cache or the upstream.
type Service struct {
	keys     *keystore.KeyStore
	limiter  *ratelimit.Limiter
	cache    *cache.Cache
	upstream Fetcher

	clock       clock.Clock
	stats       stats.Store
	asn         *asn.Resolver
	keyPrefix   string
	inlineEvict bool
	timeout     time.Duration

	flight singleflight.Group
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithStats(st stats.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.stats = st
		}
	}
}

func WithASN(r *asn.Resolver) Option {
	return func(s *Service) { s.asn = r }
}

// WithKeyPrefix namespaces cache keys, e.g. "num:".
func WithKeyPrefix(p string) Option {
	return func(s *Service) { s.keyPrefix = p }
}

// WithInlineEviction controls whether expired entries are swept after every
// cache write. Turn it off when the cache janitor runs instead.
func WithInlineEviction(on bool) Option {
	return func(s *Service) { s.inlineEvict = on }
}

// WithUpstreamTimeout bounds each upstream call on top of the fetcher's own.
func WithUpstreamTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func NewService(keys *keystore.KeyStore, limiter *ratelimit.Limiter, c *cache.Cache, up Fetcher, opts ...Option) *Service {
	s := &Service{
		keys:        keys,
		limiter:     limiter,
		cache:       c,
		upstream:    up,
		clock:       clock.Real{},
		stats:       stats.Nop{},
		inlineEvict: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Keys() *keystore.KeyStore { return s.keys }
func (s *Service) Limiter() *ratelimit.Limiter { return s.limiter }
func (s *Service) Cache() *cache.Cache { return s.cache }
func (s *Service) Clock() clock.Clock { return s.clock }
func (s *Service) Stats() stats.Store { return s.stats }
func (s *Service) ASN() *asn.Resolver { return s.asn }

// Lookup runs req through the gates in order: key, rate limit, number
// format, cache, upstream. Failures are always *Error.
func (s *Service) Lookup(ctx context.Context, req Request) (res *Result, err error) {
	start := s.clock.Now()
	defer func() { s.record(ctx, req, res, err, start) }()

	if req.Key == "" {
		return nil, errMissingKey
	}
	if !s.keys.Valid(req.Key) {
		return nil, errInvalidKey
	}

	dec := s.limiter.Decide(req.Identity, start)
	if !dec.Allowed {
		return nil, rateLimited(dec.RetryAfter)
	}

	if req.Number == "" {
		return nil, errMissingParameter
	}
	if !ValidNumber(req.Number) {
		return nil, errInvalidFormat
	}

	key := s.keyPrefix + req.Number

	if e, ok := s.cache.Get(key, s.clock.Now()); ok {
		log.Printf("[lookup] %s → cache", Mask(req.Number))
		return &Result{Payload: e.Payload, Cached: true, FetchedAt: e.StoredAt, Remaining: dec.Remaining}, nil
	}

	// Same-key misses share one upstream call. The call is detached from
	// the caller so a disconnect still warms the cache.
	v, ferr, _ := s.flight.Do(key, func() (any, error) {
		return s.fetch(context.WithoutCancel(ctx), key, req.Number)
	})
	if ferr != nil {
		log.Printf("[lookup] %s → upstream failed: %v", Mask(req.Number), ferr)
		return nil, fromFetch(ferr)
	}

	out := *v.(*Result)
	out.Remaining = dec.Remaining
	return &out, nil
}

func (s *Service) fetch(ctx context.Context, key, number string) (*Result, error) {
	// another caller may have filled the entry while we queued
	if e, ok := s.cache.Get(key, s.clock.Now()); ok {
		return &Result{Payload: e.Payload, Cached: true, FetchedAt: e.StoredAt}, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	payload, err := s.upstream.Fetch(ctx, number)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("upstream returned an empty payload")
	}

	at := s.clock.Now()
	s.cache.Put(key, payload, at)
	if s.inlineEvict {
		if n := s.cache.EvictExpired(at); n > 0 {
			log.Printf("[lookup] evicted %d expired cache entries", n)
		}
	}

	log.Printf("[lookup] %s → upstream", Mask(number))
	return &Result{Payload: payload, FetchedAt: at}, nil
}

func (s *Service) record(ctx context.Context, req Request, res *Result, err error, start time.Time) {
	ev := stats.Event{
		Identity: req.Identity,
		Number:   Mask(req.Number),
		At:       start,
		Latency:  s.clock.Now().Sub(start),
	}
	switch {
	case err != nil:
		var le *Error
		if errors.As(err, &le) {
			ev.Outcome = string(le.Code)
		} else {
			ev.Outcome = "internal_error"
		}
	case res.Cached:
		ev.Outcome = "hit"
		ev.Cached = true
	default:
		ev.Outcome = "miss"
	}

	info := s.asn.Lookup(req.Identity)
	ev.ASN, ev.ASNOrg, ev.Hosting = info.Number, info.Org, info.Hosting

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 500*time.Millisecond)
	defer cancel()
	if rerr := s.stats.Record(rctx, ev); rerr != nil {
		log.Printf("[stats] record failed: %v", rerr)
	}
}
