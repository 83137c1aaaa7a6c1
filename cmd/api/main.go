package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mealbridge/dispatch-api/config"
	"github.com/mealbridge/dispatch-api/internal/handler"
	containerhandler "github.com/mealbridge/dispatch-api/internal/handler/container"
	deliveryhandler "github.com/mealbridge/dispatch-api/internal/handler/delivery"
	"github.com/mealbridge/dispatch-api/internal/middleware"
	"github.com/mealbridge/dispatch-api/internal/notifier"
	"github.com/mealbridge/dispatch-api/internal/repository/postgres"
	"github.com/mealbridge/dispatch-api/internal/router"
	auditService "github.com/mealbridge/dispatch-api/internal/service/audit"
	deliveryService "github.com/mealbridge/dispatch-api/internal/service/delivery"
	handoffService "github.com/mealbridge/dispatch-api/internal/service/handoff"
	telemetryService "github.com/mealbridge/dispatch-api/internal/service/telemetry"
	"github.com/mealbridge/dispatch-api/pkg/logger"
	"github.com/mealbridge/dispatch-api/pkg/messaging/redis"
	"github.com/mealbridge/dispatch-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logg := logger.NewLogger(&logger.Config{Level: logger.InfoLevel, Output: os.Stdout})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	m := metrics.NewMetrics("dispatch_api")

	deliveryRepo := postgres.NewDeliveryRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)
	containerRepo := postgres.NewContainerRepository(db)
	partyRepo := postgres.NewPartyRepository(db)

	auditor := auditService.NewService(auditRepo, logg)
	push := notifier.NewBrokerNotifier(broker, m)

	lifecycleSvc := deliveryService.NewService(deliveryRepo, outboxRepo, auditor, logg)
	handoffSvc := handoffService.NewService(deliveryRepo, auditor, lifecycleSvc, push, cfg.OTP, logg, m)

	// The API only reads telemetry; alert fan-out runs in the worker, so
	// no mailer is attached here.
	telemetrySvc := telemetryService.NewService(containerRepo, partyRepo, push, nil, cfg.Telemetry, logg, m)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT)
	deliveryH := deliveryhandler.NewHandler(lifecycleSvc, handoffSvc, auditor)
	containerH := containerhandler.NewHandler(telemetrySvc)
	healthH := handler.NewHealthHandler(db)

	r := router.NewRouter(authMiddleware, deliveryH, containerH, healthH, router.RouterConfig{
		RateLimit:     rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:     cfg.RateLimit.Burst,
		OTPRateLimit:  rate.Limit(cfg.RateLimit.OTPRequestsPerSecond),
		OTPRateBurst:  cfg.RateLimit.OTPBurst,
		CORSConfig:    middleware.DefaultCORSConfig(),
		MetricsPrefix: "dispatch_api",
	})
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
