package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/akl7777777/number-intel/internal/asn"
	"github.com/akl7777777/number-intel/internal/cache"
	"github.com/akl7777777/number-intel/internal/clock"
	"github.com/akl7777777/number-intel/internal/config"
	"github.com/akl7777777/number-intel/internal/keystore"
	"github.com/akl7777777/number-intel/internal/lookup"
	"github.com/akl7777777/number-intel/internal/ratelimit"
	"github.com/akl7777777/number-intel/internal/stats"
	"github.com/akl7777777/number-intel/internal/upstream"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	up, err := upstream.New(cfg.UpstreamURL, cfg.UpstreamKey, cfg.UpstreamTimeout,
		upstream.WithRateLimit(cfg.UpstreamRPS, cfg.UpstreamBurst))
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	sink, err := stats.New(stats.Options{
		Backend:       cfg.StatsBackend,
		DSN:           cfg.StatsDSN,
		RedisAddr:     cfg.StatsRedisAddr,
		RedisPassword: cfg.StatsRedisPassword,
		RedisDB:       cfg.StatsRedisDB,
		Prefix:        cfg.StatsPrefix,
		Retention:     cfg.StatsRetention,
	})
	if err != nil {
		log.Printf("[stats] WARNING: Failed to open %s sink: %v, stats disabled", cfg.StatsBackend, err)
		sink = stats.Nop{}
		cfg.StatsBackend = "none"
	}
	defer sink.Close()

	resolver := asn.Open(cfg.MMDBPath)
	defer resolver.Close()

	clk := clock.Real{}
	keys := keystore.New(cfg.APIKeys...)
	limiter := ratelimit.New(cfg.RateLimit, cfg.RateWindow)
	responses := cache.New(cfg.CacheTTL, cache.WithMaxEntries(cfg.CacheMaxEntries))
	defer responses.Stop()

	svc := lookup.NewService(keys, limiter, responses, up,
		lookup.WithClock(clk),
		lookup.WithStats(sink),
		lookup.WithASN(resolver),
		lookup.WithKeyPrefix(cfg.CacheKeyPrefix),
		lookup.WithInlineEviction(cfg.InlineEviction()),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	limiter.StartJanitor(ctx, clk, cfg.RateWindow)
	if !cfg.InlineEviction() {
		responses.StartJanitor(cfg.CacheCleanupInterval, clk.Now)
	}

	srv := NewServer(svc, ServerOptions{
		Name:            cfg.ServerName,
		AdminKey:        cfg.AdminKey,
		TrustXFF:        cfg.TrustXFF,
		StatsBackend:    cfg.StatsBackend,
		CacheMax:        cfg.CacheMaxEntries,
		UpstreamTimeout: up.Timeout(),
	})

	addr := cfg.Host + ":" + cfg.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.UpstreamTimeout + 10*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Println("[main] Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	adminStatus := "disabled"
	if cfg.AdminKey != "" {
		adminStatus = "enabled"
	}
	eviction := "inline"
	if !cfg.InlineEviction() {
		eviction = "every " + cfg.CacheCleanupInterval.String()
	}
	log.Printf("[main] Number Intel service starting on %s -> %s", addr, cfg.UpstreamURL)
	log.Printf("[main] Keys: %d | Admin: %s | Rate: %d/%s (trustXFF=%v) | Cache: ttl=%s max=%d eviction=%s",
		keys.Len(), adminStatus, cfg.RateLimit, cfg.RateWindow, cfg.TrustXFF, cfg.CacheTTL, cfg.CacheMaxEntries, eviction)
	log.Printf("[main] Upstream: timeout=%s rps=%.2f | Stats: %s | Local DB: %v",
		cfg.UpstreamTimeout, cfg.UpstreamRPS, cfg.StatsBackend, resolver.Loaded())
	if keys.Len() == 0 {
		log.Printf("[main] WARNING: no API_KEYS configured, every lookup will be rejected until a key is added")
	}

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[main] Server error: %v", err)
	}

	log.Println("[main] Server stopped")
}
