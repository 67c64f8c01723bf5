package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/meterly/datagate/internal/api"
	"github.com/meterly/datagate/internal/config"
	"github.com/meterly/datagate/internal/ledger"
	"github.com/meterly/datagate/internal/logger"
	"github.com/meterly/datagate/internal/metrics"
	"github.com/meterly/datagate/internal/services"
	"github.com/meterly/datagate/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	led, cleanup, err := newLedger(ctx, cfg)
	if err != nil {
		log.Error("ledger init", "backend", cfg.LedgerBackend, "err", err)
		os.Exit(1)
	}
	defer cleanup()

	// The store link must settle into Ready or Unavailable before the first
	// request is accepted; exhausting the bounded retries is fatal.
	mgr := store.NewManager(
		store.Dial(cfg.ClickHouseAddr, cfg.ClickHouseDB, cfg.ClickHouseUser, cfg.ClickHousePassword),
		cfg.ConnectAttempts, cfg.ConnectDelay, log,
	)
	if err := mgr.Connect(ctx); err != nil {
		log.Error("analytics store connect", "err", err)
		os.Exit(1)
	}
	defer mgr.Close()

	if err := mgr.EnsureSchema(ctx); err != nil {
		log.Error("schema bootstrap", "err", err)
		os.Exit(1)
	}

	accountSvc := services.NewAccountService(led)
	gatewaySvc := services.NewGatewayService(led, mgr, log)

	metrics.Init()
	r := api.NewRouter(cfg, accountSvc, gatewaySvc)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func newLedger(ctx context.Context, cfg config.Config) (ledger.Store, func(), error) {
	switch cfg.LedgerBackend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		st := ledger.NewPostgres(pool)
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return st, pool.Close, nil

	case "memory":
		return ledger.NewMemory(), func() {}, nil

	default: // redis
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return ledger.NewRedis(client), func() { _ = client.Close() }, nil
	}
}
