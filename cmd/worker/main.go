package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/mealbridge/dispatch-api/config"
	"github.com/mealbridge/dispatch-api/internal/email"
	"github.com/mealbridge/dispatch-api/internal/model"
	"github.com/mealbridge/dispatch-api/internal/notifier"
	"github.com/mealbridge/dispatch-api/internal/repository/postgres"
	matchingService "github.com/mealbridge/dispatch-api/internal/service/matching"
	telemetryService "github.com/mealbridge/dispatch-api/internal/service/telemetry"
	"github.com/mealbridge/dispatch-api/pkg/logger"
	"github.com/mealbridge/dispatch-api/pkg/messaging"
	"github.com/mealbridge/dispatch-api/pkg/messaging/redis"
	"github.com/mealbridge/dispatch-api/pkg/metrics"
	"github.com/mealbridge/dispatch-api/pkg/worker"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logg := logger.NewLogger(&logger.Config{Level: logger.InfoLevel, Output: os.Stdout})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Redis broker")
	}
	defer broker.Close()

	m := metrics.NewMetrics("dispatch_worker")

	deliveryRepo := postgres.NewDeliveryRepository(db)
	partyRepo := postgres.NewPartyRepository(db)
	containerRepo := postgres.NewContainerRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	push := notifier.NewBrokerNotifier(broker, m)
	mailer := email.NewService(cfg.Email)

	matcher := matchingService.NewService(deliveryRepo, partyRepo, push, cfg.Matching, logg, m)
	monitor := telemetryService.NewService(containerRepo, partyRepo, push, mailer, cfg.Telemetry, logg, m)

	listingListener := worker.NewEventListener(
		broker,
		messaging.ChannelListingCreated,
		func(ctx context.Context, payload []byte) error {
			var evt model.ListingCreatedEvent
			if err := json.Unmarshal(payload, &evt); err != nil {
				logg.Error(err, "Dropping malformed listing event")
				return nil
			}
			_, err := matcher.HandleListingCreated(ctx, &evt)
			return err
		},
		logg,
		m,
	)

	telemetryListener := worker.NewEventListener(
		broker,
		messaging.ChannelTelemetryUpdated,
		func(ctx context.Context, payload []byte) error {
			var evt model.TelemetryEvent
			if err := json.Unmarshal(payload, &evt); err != nil {
				logg.Error(err, "Dropping malformed telemetry event")
				return nil
			}
			return monitor.HandleTelemetryUpdated(ctx, &evt)
		},
		logg,
		m,
	)

	processor := worker.NewOutboxProcessor(outboxRepo, broker, cfg.Outbox.ToProcessorConfig(), logg, m)
	cleanup := worker.NewOutboxCleanupWorker(outboxRepo, cfg.Outbox.RetentionDays, cfg.Outbox.CleanupInterval, logg)

	setupHealthCheck(logg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logg.Info("Shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	start := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				logg.Error(err, fmt.Sprintf("%s stopped", name))
			}
		}()
	}

	start("listing listener", listingListener.Start)
	start("telemetry listener", telemetryListener.Start)
	start("outbox processor", func(ctx context.Context) error {
		processor.Start(ctx)
		return nil
	})
	start("outbox cleanup", func(ctx context.Context) error {
		cleanup.Start(ctx)
		return nil
	})

	wg.Wait()
	logg.Info("Worker exited")
}

func setupHealthCheck(logg *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			logg.ZL.Error().Err(err).Msg("Health check server failed")
			os.Exit(1)
		}
	}()
}
