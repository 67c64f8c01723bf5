// Command ingest seeds the analytics store with sample records through the
// store manager's batched insert path.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/meterly/datagate/internal/config"
	"github.com/meterly/datagate/internal/logger"
	"github.com/meterly/datagate/internal/metrics"
	"github.com/meterly/datagate/internal/models"
	"github.com/meterly/datagate/internal/services"
	"github.com/meterly/datagate/internal/store"
	"github.com/meterly/datagate/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	rows := []models.Record{
		{Name: "John Doe", Email: "john@gmail.com", Country: "USA"},
		{Name: "Jane Smith", Email: "jane@yahoo.com", Country: "USA"},
		{Name: "Rahul Sharma", Email: "rahul@live.com", Country: "India"},
		{Name: "Wei Zhang", Email: "wei@qq.com", Country: "China"},
	}

	wp := worker.NewPool(4)
	defer wp.Stop()

	ing := services.NewIngestService(mgr, wp, 1000, log)
	log.Info("inserting records", "count", len(rows))
	if err := ing.Load(ctx, rows); err != nil {
		log.Error("ingest", "err", err)
		os.Exit(1)
	}
	log.Info("ingestion complete")
}
