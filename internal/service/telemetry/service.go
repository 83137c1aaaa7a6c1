package telemetry

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/mealbridge/dispatch-api/config"
	"github.com/mealbridge/dispatch-api/internal/email"
	"github.com/mealbridge/dispatch-api/internal/model"
	"github.com/mealbridge/dispatch-api/internal/notifier"
	"github.com/mealbridge/dispatch-api/internal/repository"
	apperrors "github.com/mealbridge/dispatch-api/pkg/errors"
	"github.com/mealbridge/dispatch-api/pkg/logger"
	"github.com/mealbridge/dispatch-api/pkg/metrics"
)

// Alert kinds reported to metrics.
const (
	AlertStale    = "stale"
	AlertTempHigh = "temp_high"
	AlertTempLow  = "temp_low"
)

// Service watches container telemetry and alerts the assigned volunteer
// when a reading is stale or breaches the container's temperature band.
// It is driven by broker events and never fails the event handler for
// anything short of a store outage: a sample we cannot interpret is
// recorded and otherwise ignored.
type Service struct {
	containers  repository.ContainerRepository
	volunteers  repository.PartyRepository
	notifier    notifier.Notifier
	email       email.Service
	staleness   time.Duration
	configCache *gocache.Cache
	logger      *logger.Logger
	metrics     *metrics.Metrics
}

func NewService(
	containers repository.ContainerRepository,
	volunteers repository.PartyRepository,
	notifier notifier.Notifier,
	email email.Service,
	cfg config.TelemetryConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		containers:  containers,
		volunteers:  volunteers,
		notifier:    notifier,
		email:       email,
		staleness:   cfg.StalenessThreshold,
		configCache: gocache.New(cfg.ConfigCacheTTL, 2*cfg.ConfigCacheTTL),
		logger:      logger,
		metrics:     metrics,
	}
}

// HandleTelemetryUpdated ingests one reading. Staleness is checked before
// thresholds: a reading old enough to be stale tells us nothing reliable
// about the current temperature, so it raises exactly one alert.
func (s *Service) HandleTelemetryUpdated(ctx context.Context, event *model.TelemetryEvent) error {
	if event == nil || event.ContainerID == "" {
		return nil
	}

	sample := &model.TelemetrySample{
		ContainerID: event.ContainerID,
		Temperature: event.Temperature,
		Humidity:    event.Humidity,
		RecordedAt:  event.RecordedAt,
	}
	if err := s.containers.UpsertLatestSample(ctx, sample); err != nil {
		return fmt.Errorf("recording telemetry sample: %w", err)
	}
	s.metrics.TelemetrySamples.Inc()

	if s.staleness > 0 && time.Since(event.RecordedAt) > s.staleness {
		s.alert(ctx, event.ContainerID, AlertStale,
			"Stale Telemetry Alert!",
			fmt.Sprintf("Container %s has not reported fresh telemetry since %s.",
				event.ContainerID, event.RecordedAt.UTC().Format(time.RFC3339)))
		return nil
	}

	container, err := s.containerConfig(ctx, event.ContainerID)
	if err != nil {
		s.logger.Error(err, "Failed to load container config", "container_id", event.ContainerID)
		return nil
	}
	if container == nil {
		return nil
	}

	minTemp, maxTemp, ok := container.Thresholds()
	if !ok {
		return nil
	}

	switch {
	case event.Temperature > maxTemp:
		s.alert(ctx, event.ContainerID, AlertTempHigh,
			"High Temperature Alert!",
			fmt.Sprintf("Container %s reported %.1f°C, above the %.1f°C ceiling.",
				event.ContainerID, event.Temperature, maxTemp))
	case event.Temperature < minTemp:
		s.alert(ctx, event.ContainerID, AlertTempLow,
			"Low Temperature Alert!",
			fmt.Sprintf("Container %s reported %.1f°C, below the %.1f°C floor.",
				event.ContainerID, event.Temperature, minTemp))
	}
	return nil
}

// LatestSample returns the most recent reading recorded for a container.
func (s *Service) LatestSample(ctx context.Context, containerID string) (*model.TelemetrySample, error) {
	sample, err := s.containers.LatestSample(ctx, containerID)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("container telemetry", err)
		}
		return nil, apperrors.Internal(err)
	}
	return sample, nil
}

// containerConfig resolves the container record through a short-lived
// cache so a chatty sensor does not hammer the store.
func (s *Service) containerConfig(ctx context.Context, id string) (*model.Container, error) {
	if cached, found := s.configCache.Get(id); found {
		return cached.(*model.Container), nil
	}
	container, err := s.containers.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			s.configCache.SetDefault(id, (*model.Container)(nil))
			return nil, nil
		}
		return nil, err
	}
	s.configCache.SetDefault(id, container)
	return container, nil
}

// alert fans out to the assigned volunteer on a best-effort basis. A
// container nobody is assigned to alerts no one.
func (s *Service) alert(ctx context.Context, containerID, kind, title, body string) {
	s.metrics.TelemetryAlerts.WithLabelValues(kind).Inc()

	container, err := s.containerConfig(ctx, containerID)
	if err != nil || container == nil || container.AssignedVolunteerID == nil {
		return
	}

	volunteer, err := s.volunteers.GetVolunteer(ctx, *container.AssignedVolunteerID)
	if err != nil {
		s.logger.Error(err, "Failed to load volunteer for telemetry alert",
			"container_id", containerID,
			"volunteer_id", container.AssignedVolunteerID.String())
		return
	}

	if volunteer.DeviceToken != nil && *volunteer.DeviceToken != "" {
		note := notifier.Note{
			Title: title,
			Body:  body,
			Data:  map[string]string{"container_id": containerID, "kind": kind},
		}
		if err := s.notifier.Push(ctx, *volunteer.DeviceToken, note); err != nil {
			s.logger.Error(err, "Failed to push telemetry alert",
				"container_id", containerID)
		}
	}

	if s.email != nil && volunteer.Email != nil && *volunteer.Email != "" {
		if err := s.email.SendAlert(ctx, *volunteer.Email, title, body); err != nil {
			s.logger.Error(err, "Failed to email telemetry alert",
				"container_id", containerID)
		}
	}
}
