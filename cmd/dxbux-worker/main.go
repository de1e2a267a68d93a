package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/zlin234/DxBux/internal/config"
	"github.com/zlin234/DxBux/internal/economy"
	"github.com/zlin234/DxBux/internal/store"
	"github.com/zlin234/DxBux/internal/store/memstore"
	"github.com/zlin234/DxBux/internal/store/pgstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	catalog, err := economy.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Error("load catalog failed", "err", err, "path", cfg.CatalogPath)
		os.Exit(1)
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pg.Close()
		st = pg
	} else {
		logger.Warn("DATABASE_URL not set, using in-process store")
		st = memstore.New()
	}

	svc := economy.NewService(st, catalog, logger)
	if err := svc.EnsureMarket(ctx); err != nil {
		logger.Error("market init failed", "err", err)
		os.Exit(1)
	}

	runOnce := strings.EqualFold(strings.TrimSpace(os.Getenv("DXBUX_WORKER_RUN_ONCE")), "true")
	if runOnce {
		if err := svc.Restock(ctx); err != nil {
			logger.Error("restock failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.RestockSpec, func() {
		if err := svc.Restock(ctx); err != nil {
			logger.Error("restock failed", "err", err)
			return
		}
		logger.Info("restock complete")
	}); err != nil {
		logger.Error("invalid restock spec", "err", err, "spec", cfg.RestockSpec)
		os.Exit(1)
	}

	scheduler.Start()
	logger.Info("worker started", "restock_spec", cfg.RestockSpec)

	<-ctx.Done()
	<-scheduler.Stop().Done()
	logger.Info("worker shutdown")
}
