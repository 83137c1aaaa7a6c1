package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mealbridge/dispatch-api/internal/model"
)

// ErrDuplicateListing is returned by DeliveryRepository.Create when a
// delivery already exists for the listing. The matching engine treats it as
// an already-matched no-op, not a failure.
var ErrDuplicateListing = errors.New("delivery already exists for listing")

// ErrStaleStatus is returned by guarded status updates when the row was not
// in the expected state. Callers surface it as an invalid transition.
var ErrStaleStatus = errors.New("delivery not in expected status")

// All repository interfaces in one file
type (
	// DeliveryRepository tracks deliveries through their lifecycle.
	DeliveryRepository interface {
		// Create inserts the delivery and stages the assigned event in one
		// transaction. Returns ErrDuplicateListing when the listing is
		// already matched.
		Create(ctx context.Context, delivery *model.Delivery, event *model.OutboxEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.Delivery, error)
		ExistsForListing(ctx context.Context, listingID uuid.UUID) (bool, error)
		// UpdateStatus transitions from → to, guarded on the current status.
		// Returns ErrStaleStatus when the row is no longer in from.
		UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.DeliveryStatus) error
		// SetChallenge overwrites any outstanding OTP commitment and expiry.
		SetChallenge(ctx context.Context, id uuid.UUID, commitment string, expiry time.Time) error
		// ConfirmDelivered atomically marks the delivery delivered, clears
		// the OTP pair, appends the audit entry and stages the delivered
		// event. All-or-nothing. Returns ErrStaleStatus when the delivery
		// is no longer in a confirmable state.
		ConfirmDelivered(ctx context.Context, id uuid.UUID, entry *model.AuditLog, event *model.OutboxEvent) error
		ListForVolunteer(ctx context.Context, volunteerID uuid.UUID) ([]*model.Delivery, error)
	}

	// PartyRepository reads the externally-owned receiver and volunteer
	// directories. The engine never writes them.
	PartyRepository interface {
		ListVerifiedReceivers(ctx context.Context) ([]*model.Receiver, error)
		ListAvailableVolunteers(ctx context.Context) ([]*model.Volunteer, error)
		GetVolunteer(ctx context.Context, id uuid.UUID) (*model.Volunteer, error)
	}

	// ContainerRepository reads cold-chain configuration and keeps the
	// latest telemetry sample per container.
	ContainerRepository interface {
		Get(ctx context.Context, id string) (*model.Container, error)
		UpsertLatestSample(ctx context.Context, sample *model.TelemetrySample) error
		LatestSample(ctx context.Context, containerID string) (*model.TelemetrySample, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, entry *model.AuditLog) error
		ListForDelivery(ctx context.Context, deliveryID uuid.UUID) ([]*model.AuditLog, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
