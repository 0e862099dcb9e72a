package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/safar/mute-store/internal/config"
	"github.com/safar/mute-store/internal/database"
	"github.com/safar/mute-store/internal/logger"
	"github.com/safar/mute-store/internal/metrics"
	"github.com/safar/mute-store/internal/server"
	"github.com/safar/mute-store/internal/store"
	"github.com/safar/mute-store/migrations"
)

const shutdownTimeout = 15 * time.Second

func main() {
	migrate := flag.Bool("migrate", false, "apply pending up migrations before serving")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "api"})
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	if err := cfg.ValidateAPI(); err != nil {
		logg.Error(ctx, "invalid config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.Log.Level),
		Format:      cfg.Log.Format,
	})

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		logg.Error(ctx, "failed to connect to database", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()
	logg.Info(ctx, "connected to database")

	if *migrate {
		applied, err := database.Migrate(ctx, db, migrations.FS, database.Up, nil)
		if err != nil {
			logg.Error(ctx, "failed to run migrations", err)
			os.Exit(1)
		}
		logg.Info(logg.WithField(ctx, "count", len(applied)), "migrations applied")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := server.New(store.NewPostgres(db), cfg.JWT,
		server.WithLogger(logg),
		server.WithMetrics(metrics.NewHTTPMetrics(reg), metrics.Handler(reg)),
	)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "port", cfg.Server.Port), "server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "server error", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		logg.Info(ctx, "shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "graceful shutdown failed", err)
	}
}
