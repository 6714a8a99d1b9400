package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-core/pkg/config"
	"github.com/angelmondragon/marketplace-core/pkg/db"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
	"github.com/angelmondragon/marketplace-core/pkg/metrics"
	"github.com/angelmondragon/marketplace-core/pkg/migrate"
	"github.com/angelmondragon/marketplace-core/pkg/outbox"
	"github.com/angelmondragon/marketplace-core/pkg/outbox/registry"
)

const serviceName = "outbox-publisher"

func main() {
	replay := flag.String("replay", "", "requeue a dead-lettered outbox event by id and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	if err := run(*replay, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(context.Background(), "outbox publisher stopped", err)
		os.Exit(1)
	}
}

func run(replay string, logg *logger.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = serviceName
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"sink":        cfg.Events.SinkKind(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	dlq := outbox.NewDLQRepository(dbClient.DB())
	if replay != "" {
		return requeue(ctx, logg, dlq, replay)
	}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	sink, topic, err := newSink(ctx, cfg.Events, logg)
	if err != nil {
		return fmt.Errorf("bootstrap event sink: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logg.Error(ctx, "error closing event sink", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(topic)
	if err != nil {
		return fmt.Errorf("build event registry: %w", err)
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Sink:          sink,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: dlq,
		Recorder:      metrics.NewMarketplace(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("create outbox publisher: %w", err)
	}

	ctx = logg.WithField(ctx, "topic", topic)
	logg.Info(ctx, "starting outbox publisher")
	err = service.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logg.Info(ctx, "outbox publisher shutting down gracefully")
		return nil
	}
	return err
}

func requeue(ctx context.Context, logg *logger.Logger, dlq *outbox.DLQRepository, raw string) error {
	eventID, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid -replay event id %q: %w", raw, err)
	}
	if err := dlq.Requeue(ctx, eventID); err != nil {
		return fmt.Errorf("requeue %s: %w", eventID, err)
	}
	logg.Info(logg.WithField(ctx, "outbox_id", eventID.String()), "outbox event requeued")
	return nil
}
