package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zlin234/DxBux/internal/api"
	"github.com/zlin234/DxBux/internal/config"
	"github.com/zlin234/DxBux/internal/economy"
	"github.com/zlin234/DxBux/internal/events"
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

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("redis connect failed", "err", err, "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		defer rdb.Close()
		svc.SetHistoryStore(economy.NewRedisHistory(rdb, catalog.Robbery.RetaliationWindow))
	}

	if cfg.NATSURL != "" {
		pub, err := events.ConnectNATS(cfg.NATSURL, cfg.EventSubjectPrefix)
		if err != nil {
			logger.Error("nats connect failed", "err", err)
			os.Exit(1)
		}
		defer pub.Close()
		svc.SetPublisher(pub)
	}

	if err := svc.EnsureMarket(ctx); err != nil {
		logger.Error("market init failed", "err", err)
		os.Exit(1)
	}

	server := api.New(cfg, logger, svc)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("dxbux api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
