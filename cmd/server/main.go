package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"

	"possync/internal/app/server/api"
	"possync/internal/app/server/config"
	"possync/internal/domain/schema"
	"possync/internal/domain/sync"
	"possync/internal/domain/translator"
	"possync/internal/infrastructure/storage/postgres"
	"possync/internal/telemetry"
	"possync/internal/utils/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	conf := config.MustLoad()
	log := logger.NewWithLevel(conf.Env, conf.Logger.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := schema.Default()
	if err != nil {
		return err
	}

	storage, err := postgres.New(ctx, conf, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.Close(); err != nil {
			log.Error("failed to close storage", "error", err)
		}
	}()

	meter, err := telemetry.NewMeterProvider(telemetry.WithMetricsEnabled(conf.Metrics.Enabled))
	if err != nil {
		return err
	}
	syncMetrics, err := telemetry.NewSyncMetrics(meter)
	if err != nil {
		return err
	}
	httpMetrics, err := telemetry.NewHTTPMetrics(meter)
	if err != nil {
		return err
	}

	service := sync.NewService(
		postgres.NewSyncRepository(storage.Pool(), log),
		registry,
		translator.New(registry),
		log,
		sync.WithMetrics(syncMetrics),
	)

	router, err := api.New(api.Deps{
		Sync:           service,
		DB:             storage,
		Tokens:         conf.Auth.Tokens,
		HTTPMetrics:    httpMetrics,
		MetricsHandler: meter.Handler(),
	}, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              conf.Server.RunAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", slog.String("address", conf.Server.RunAddress), slog.Int("schema_version", registry.Version()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return meter.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("server stopped")
	return nil
}
