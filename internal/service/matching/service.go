package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mealbridge/dispatch-api/config"
	"github.com/mealbridge/dispatch-api/internal/model"
	"github.com/mealbridge/dispatch-api/internal/notifier"
	"github.com/mealbridge/dispatch-api/internal/repository"
	"github.com/mealbridge/dispatch-api/pkg/geo"
	"github.com/mealbridge/dispatch-api/pkg/logger"
	"github.com/mealbridge/dispatch-api/pkg/metrics"
)

// Outcome classifies one matching run. Only transient store failures
// surface as errors; everything else is a terminal outcome the event source
// must not redeliver for.
type Outcome string

const (
	OutcomeMatched         Outcome = "matched"
	OutcomeAlreadyMatched  Outcome = "already_matched"
	OutcomeInvalidLocation Outcome = "invalid_location"
	OutcomeNoReceiver      Outcome = "no_receiver"
	OutcomeNoVolunteer     Outcome = "no_volunteer"
)

type Service struct {
	deliveries repository.DeliveryRepository
	parties    repository.PartyRepository
	notifier   notifier.Notifier
	cfg        config.MatchingConfig
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func NewService(
	deliveries repository.DeliveryRepository,
	parties repository.PartyRepository,
	notifier notifier.Notifier,
	cfg config.MatchingConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		deliveries: deliveries,
		parties:    parties,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
	}
}

// HandleListingCreated runs the matching pipeline for one listing-created
// event. Safe to re-run for the same listing: the existence check plus the
// store's unique listing constraint make redelivery a no-op.
func (s *Service) HandleListingCreated(ctx context.Context, evt *model.ListingCreatedEvent) (Outcome, error) {
	timer := prometheus.NewTimer(s.metrics.MatchLatency)
	defer timer.ObserveDuration()

	outcome, err := s.match(ctx, evt)
	if err == nil {
		s.metrics.MatchAttempts.WithLabelValues(string(outcome)).Inc()
	}
	return outcome, err
}

func (s *Service) match(ctx context.Context, evt *model.ListingCreatedEvent) (Outcome, error) {
	log := s.logger.WithFields(map[string]interface{}{"listing_id": evt.ID.String()})

	exists, err := s.deliveries.ExistsForListing(ctx, evt.ID)
	if err != nil {
		return "", fmt.Errorf("failed to check existing delivery: %w", err)
	}
	if exists {
		log.Warn("Delivery already exists for listing, skipping")
		return OutcomeAlreadyMatched, nil
	}

	listing := &model.Listing{ID: evt.ID, DonorID: evt.DonorID, Lat: evt.Lat, Lng: evt.Lng, Title: evt.Title}
	center, ok := listing.Location()
	if !ok {
		// Malformed input will not self-correct; abort without retry.
		log.Error(nil, "Listing has no valid location")
		return OutcomeInvalidLocation, nil
	}

	receivers, err := s.parties.ListVerifiedReceivers(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list receivers: %w", err)
	}
	receiverCandidates := make([]geo.Candidate, 0, len(receivers))
	receiversByID := make(map[string]*model.Receiver, len(receivers))
	for _, r := range receivers {
		receiverCandidates = append(receiverCandidates, geo.Candidate{ID: r.ID.String(), Location: r.Location()})
		receiversByID[r.ID.String()] = r
	}

	nearestReceiver, found := geo.NearestWithin(center, receiverCandidates, s.cfg.SearchRadiusKm)
	if !found {
		// Left for manual or periodic re-processing.
		log.Warn("No verified receiver within radius", "radius_km", s.cfg.SearchRadiusKm)
		return OutcomeNoReceiver, nil
	}

	volunteers, err := s.parties.ListAvailableVolunteers(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list volunteers: %w", err)
	}
	volunteerCandidates := make([]geo.Candidate, 0, len(volunteers))
	volunteersByID := make(map[string]*model.Volunteer, len(volunteers))
	for _, v := range volunteers {
		volunteerCandidates = append(volunteerCandidates, geo.Candidate{ID: v.ID.String(), Location: v.Location()})
		volunteersByID[v.ID.String()] = v
	}

	// Volunteers are matched without a radius cap.
	nearestVolunteer, found := geo.NearestWithin(center, volunteerCandidates, 0)
	if !found {
		log.Warn("No available volunteer")
		return OutcomeNoVolunteer, nil
	}
	volunteer := volunteersByID[nearestVolunteer.ID]

	receiver := receiversByID[nearestReceiver.ID]

	delivery := &model.Delivery{
		ListingID:   evt.ID,
		DonorID:     evt.DonorID,
		ReceiverID:  receiver.ID,
		VolunteerID: volunteer.ID,
		Status:      model.DeliveryStatusAssigned,
	}

	event, err := model.NewOutboxEvent(model.EventDeliveryAssigned, delivery)
	if err != nil {
		return "", fmt.Errorf("failed to stage assigned event: %w", err)
	}

	// Persisting the delivery is the commit point; the match is final once
	// this succeeds.
	if err := s.deliveries.Create(ctx, delivery, event); err != nil {
		if errors.Is(err, repository.ErrDuplicateListing) {
			log.Warn("Lost creation race, delivery already exists")
			return OutcomeAlreadyMatched, nil
		}
		return "", fmt.Errorf("failed to create delivery: %w", err)
	}

	log.Info("Created delivery",
		"delivery_id", delivery.ID.String(),
		"receiver_id", delivery.ReceiverID.String(),
		"volunteer_id", delivery.VolunteerID.String())

	s.notifyVolunteer(ctx, volunteer, listing, delivery)

	return OutcomeMatched, nil
}

// notifyVolunteer sends the assignment push. Failures never roll back or
// fail the match.
func (s *Service) notifyVolunteer(ctx context.Context, volunteer *model.Volunteer, listing *model.Listing, delivery *model.Delivery) {
	if volunteer.DeviceToken == nil || *volunteer.DeviceToken == "" {
		s.logger.Warn("Volunteer has no device token, skipping notification",
			"volunteer_id", volunteer.ID.String())
		return
	}

	note := notifier.Note{
		Title: "New Delivery Assignment!",
		Body:  fmt.Sprintf("You have a new pickup from %s. Please check the app for details.", listing.Title),
		Data:  map[string]string{"delivery_id": delivery.ID.String()},
	}

	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.notifier.Push(sendCtx, *volunteer.DeviceToken, note); err != nil {
		s.logger.Error(err, "Failed to notify volunteer",
			"volunteer_id", volunteer.ID.String())
	}
}
