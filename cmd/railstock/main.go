package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"railstock/api/ledger"
	"railstock/infrastructure/audit"
	"railstock/infrastructure/cache"
	"railstock/infrastructure/config"
	httpserver "railstock/infrastructure/http"
	"railstock/infrastructure/logger"
	"railstock/infrastructure/metrics"
	"railstock/infrastructure/sqlite"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lg := logger.New(cfg.LogLevel)
	defer func() { _ = lg.Sync() }()

	db, err := sqlite.OpenDBWithOptions(cfg.Database.Path, sqlite.Options{
		BusyTimeout: cfg.Database.BusyTimeout,
		ReadConns:   cfg.Database.ReadConns,
	})
	if err != nil {
		return fmt.Errorf("open db %s: %w", cfg.Database.Path, err)
	}
	defer db.Close()

	if err := sqlite.ApplyMigrations(context.Background(), db, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	userCache := cache.NewUserCache()
	railCache := cache.NewRailCache()
	auditSvc := audit.NewService()
	m := metrics.New()
	ledgerSvc := ledger.NewService(db, auditSvc, m, lg, railCache)

	httpserver.ShutdownTimeout = cfg.ShutdownTimeout
	server := httpserver.NewServer(cfg.Addr, db, ledgerSvc, userCache, auditSvc, m, lg)
	if err := server.Start(); err != nil {
		return fmt.Errorf("start server on %s: %w", cfg.Addr, err)
	}
	lg.Infow("railstock listening", "addr", cfg.Addr, "db", cfg.Database.Path)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if err := server.Stop(); err != nil {
		lg.Errorw("graceful shutdown error", "err", err)
	}
	return nil
}
