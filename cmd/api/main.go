package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IlyasAtabaev731/bank-ledger/internal/api"
	"github.com/IlyasAtabaev731/bank-ledger/internal/config"
	"github.com/IlyasAtabaev731/bank-ledger/internal/services/auth"
	"github.com/IlyasAtabaev731/bank-ledger/internal/services/ledger"
	"github.com/IlyasAtabaev731/bank-ledger/internal/storage/memory"
	"github.com/IlyasAtabaev731/bank-ledger/internal/storage/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// store is everything the services need from a backend.
type store interface {
	ledger.Store
	auth.UserSaver
	auth.UserProvider
}

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting application",
		slog.String("env", cfg.Env),
		slog.String("host", cfg.ApiHost),
		slog.Int("port", cfg.ApiPort),
		slog.String("storage", cfg.Storage),
	)

	st, stop, err := setupStorage(cfg, log)
	if err != nil {
		log.Error("Failed to set up storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	identity := auth.New(log, st, st, cfg.Auth.BcryptCost)
	engine := ledger.New(log, st, registry)

	apiServer := api.New(cfg, log, identity, engine, registry)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		apiServer.MustStart()
	}()

	<-sigChan
	log.Info("Got signal to shutdown server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Stop(ctx); err != nil {
		log.Error("Stopping server error", slog.Any("error", err))
	}
}

func setupStorage(cfg *config.Config, log *slog.Logger) (store, func(), error) {
	if cfg.Storage == "memory" {
		log.Warn("Using in-memory storage, data is lost on restart")
		return memory.New(), func() {}, nil
	}

	dbUrl := cfg.Postgres.URL()

	if cfg.Postgres.AutoMigrate {
		applied, err := postgres.Migrate(dbUrl, cfg.Postgres.MigrationsPath, "migrations")
		if err != nil {
			return nil, nil, err
		}
		log.Info("Migrations checked", slog.Bool("applied", applied))
	}

	pg, err := postgres.New(dbUrl, postgres.Pool{
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	}, log)
	if err != nil {
		return nil, nil, err
	}

	return pg, func() {
		if err := pg.Stop(); err != nil {
			log.Error("Failed to close database", slog.Any("error", err))
		}
	}, nil
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
