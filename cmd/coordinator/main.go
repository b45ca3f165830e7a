package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-coordinator/internal/broadcast"
	appcfg "github.com/park285/chess-coordinator/internal/config"
	"github.com/park285/chess-coordinator/internal/httpapi"
	"github.com/park285/chess-coordinator/internal/match"
	"github.com/park285/chess-coordinator/internal/msgcat"
	"github.com/park285/chess-coordinator/internal/obslog"
	"github.com/park285/chess-coordinator/internal/rules"
	"github.com/park285/chess-coordinator/internal/store"
	"github.com/park285/chess-coordinator/internal/ws"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.L().Sync()

	cat, err := msgcat.New(cfg.MsgOverrideDir)
	if err != nil {
		obslog.L().Fatal("msgcat_init_error", zap.Error(err))
	}

	ropts, err := store.ParseRedisURL(cfg.RedisURL)
	if err != nil {
		obslog.L().Fatal("redis_url_error", zap.Error(err))
	}
	rdb := redis.NewClient(ropts)
	pctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pctx).Err(); err != nil {
		pcancel()
		obslog.L().Fatal("redis_connect_error", zap.Error(err))
	}
	pcancel()

	var repo *store.Repository
	if cfg.DatabaseURL != "" {
		repo, err = store.NewRepository(cfg.DatabaseURL)
		if err != nil {
			obslog.L().Fatal("postgres_connect_error", zap.Error(err))
		}
	} else {
		obslog.L().Warn("postgres_disabled", zap.String("reason", "DATABASE_URL not set"))
	}

	gateway := store.NewGateway(store.NewSnapshotStore(rdb), repo)
	caster := broadcast.NewRedisBroadcaster(rdb)

	registry := match.NewRegistry(rules.NewValidator(), gateway, caster, match.Options{
		RequestExpiry:       cfg.RequestExpiry,
		SupersedeCooldown:   cfg.SupersedeCooldown,
		StaleRequestTimeout: cfg.StaleRequestTimeout,
		DisconnectGrace:     cfg.DisconnectGrace,
		Retention:           cfg.Retention,
		ClockSyncInterval:   cfg.ClockSyncInterval,
		SnapshotInterval:    cfg.SnapshotInterval,
		UndoAllowance:       cfg.UndoAllowance,
		MinAbortPlies:       cfg.MinAbortPlies,
		DefaultInitialMs:    cfg.DefaultInitialMs,
		DefaultIncrementMs:  cfg.DefaultIncrementMs,
	})

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	go registry.Run(sweepCtx)

	gw := ws.NewGateway(registry, caster)
	go func() {
		obslog.L().Info("ws_listening", zap.String("addr", cfg.WSAddr))
		if err := gw.ListenAndServe(cfg.WSAddr); err != nil {
			obslog.L().Fatal("ws_serve_error", zap.Error(err))
		}
	}()

	api := httpapi.NewServer(registry, cat)
	go func() {
		obslog.L().Info("http_listening", zap.String("addr", cfg.HTTPAddr))
		if err := api.ListenAndServe(cfg.HTTPAddr); err != nil {
			obslog.L().Fatal("http_serve_error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	obslog.L().Info("shutdown_started")

	// Stop intake first, then housekeeping, then flush session outboxes so
	// every event already queued still reaches subscribers.
	_ = api.Shutdown()
	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	_ = gw.Shutdown(sctx)
	scancel()
	sweepCancel()
	registry.Close()

	if repo != nil {
		_ = repo.Close()
	}
	_ = rdb.Close()
	obslog.L().Info("shutdown_complete")
}
