package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/movinesta/swipe-ingest/internal/auth"
	"github.com/movinesta/swipe-ingest/internal/config"
	"github.com/movinesta/swipe-ingest/internal/fanout"
	"github.com/movinesta/swipe-ingest/internal/handlers"
	"github.com/movinesta/swipe-ingest/internal/httpserver"
	"github.com/movinesta/swipe-ingest/internal/ingest"
	"github.com/movinesta/swipe-ingest/internal/logger"
	"github.com/movinesta/swipe-ingest/internal/ratelimit"
	"github.com/movinesta/swipe-ingest/internal/store"
)

// backend is the persistence surface shared by both store implementations.
type backend interface {
	ingest.EventWriter
	fanout.DiaryStore
	fanout.TasteSink
	fanout.LabelSink
	fanout.RollupStore
	config.SettingsReader
	handlers.HealthReader
	httpserver.Pinger
}

// main boots the service: config → store → schema → pipeline → HTTP server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	lg, err := logger.New(cfg.LogMode, cfg.LogRedact)
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, closeDB := openBackend(ctx, cfg, lg)
	defer closeDB()

	settings := config.NewSettingsProvider(db, cfg.SettingsTTL)

	limiter, closeLimiter := openLimiter(ctx, cfg, lg)
	defer closeLimiter()

	processor := fanout.NewProcessor(fanout.Deps{
		Diary:    db,
		Taste:    fanout.NewBreakerTasteSink(db, fanout.DefaultBreakerConfig(), lg),
		Labels:   db,
		Rollups:  db,
		Settings: settings,
	}, cfg.FanoutTaskTimeout, lg)

	pool := fanout.NewPool(cfg.FanoutQueueSize, cfg.FanoutWorkers, processor.Process, lg)
	// Workers run on their own context so queued batches drain after a signal.
	pool.Start(context.Background())

	var verifier *auth.Verifier
	if cfg.AuthDisabled {
		lg.Warn("authentication disabled, trusting X-User-Id headers")
	} else {
		verifier = auth.NewVerifier(cfg.JWTSecret)
	}

	router := httpserver.NewRouter(httpserver.Deps{
		Log:          lg,
		Store:        db,
		Health:       db,
		Ingestor:     ingest.New(db, limiter, settings, lg),
		Fanout:       pool,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Verifier:     verifier,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("server started", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("http shutdown", "error", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		lg.Error("fanout drain incomplete", "error", err, "pending", pool.Depth())
	}
}

// openBackend connects Postgres and applies the schema, or falls back to the
// in-memory store when DB_URL is unset.
func openBackend(ctx context.Context, cfg config.Config, lg *logger.Logger) (backend, func()) {
	if cfg.DBURL == "" {
		lg.Warn("DB_URL not set, using in-memory store")
		return store.NewMemoryStore(), func() {}
	}

	db, err := store.NewPostgresStore(ctx, cfg.DBURL)
	if err != nil {
		lg.Fatal("connect postgres", "error", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		lg.Fatal("apply schema", "error", err)
	}
	return db, db.Close
}

// openLimiter uses Redis when REDIS_ADDR is set so every replica shares one
// window; otherwise each process limits on its own.
func openLimiter(ctx context.Context, cfg config.Config, lg *logger.Logger) (ratelimit.Limiter, func()) {
	if cfg.RedisAddr == "" {
		mem := ratelimit.NewMemory()
		mem.StartCleanup(5 * time.Minute)
		return mem, mem.Stop
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		lg.Warn("redis unreachable at startup, rate limiting fails open until it recovers", "error", err)
	}
	return ratelimit.NewRedis(rdb, "swipe"), func() { _ = rdb.Close() }
}
