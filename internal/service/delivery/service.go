package delivery

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mealbridge/dispatch-api/internal/model"
	"github.com/mealbridge/dispatch-api/internal/repository"
	"github.com/mealbridge/dispatch-api/internal/service/audit"
	"github.com/mealbridge/dispatch-api/pkg/errors"
	"github.com/mealbridge/dispatch-api/pkg/logger"
)

// Service is the delivery lifecycle state machine:
//
//	assigned → in_transit → delivered
//	assigned | in_transit → cancelled
//
// delivered and cancelled are terminal. MarkPickedUp and Cancel are the
// caller-facing transitions; ConfirmDelivered is only reachable through the
// handoff confirmation protocol.
type Service struct {
	repo    repository.DeliveryRepository
	outbox  repository.OutboxRepository
	auditor *audit.Service
	logger  *logger.Logger
}

func NewService(repo repository.DeliveryRepository, outbox repository.OutboxRepository, auditor *audit.Service, logger *logger.Logger) *Service {
	return &Service{repo: repo, outbox: outbox, auditor: auditor, logger: logger}
}

// Get returns a delivery to one of its participants.
func (s *Service) Get(ctx context.Context, id, callerID uuid.UUID) (*model.Delivery, error) {
	if callerID == uuid.Nil {
		return nil, errors.Unauthenticated("you must be logged in")
	}

	d, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID != d.VolunteerID && callerID != d.DonorID && callerID != d.ReceiverID {
		return nil, errors.PermissionDenied("you are not a participant of this delivery")
	}
	return d, nil
}

// ListForVolunteer returns the caller's own deliveries, newest first.
func (s *Service) ListForVolunteer(ctx context.Context, callerID uuid.UUID) ([]*model.Delivery, error) {
	if callerID == uuid.Nil {
		return nil, errors.Unauthenticated("you must be logged in")
	}
	deliveries, err := s.repo.ListForVolunteer(ctx, callerID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return deliveries, nil
}

// MarkPickedUp transitions assigned → in_transit.
func (s *Service) MarkPickedUp(ctx context.Context, id, callerID uuid.UUID) (*model.Delivery, error) {
	return s.transition(ctx, id, callerID,
		model.DeliveryStatusAssigned, model.DeliveryStatusInTransit,
		model.AuditActionPickup, "")
}

// Cancel transitions any non-terminal state to cancelled and discards any
// outstanding OTP challenge.
func (s *Service) Cancel(ctx context.Context, id, callerID uuid.UUID) (*model.Delivery, error) {
	return s.transition(ctx, id, callerID,
		"", model.DeliveryStatusCancelled,
		model.AuditActionCancel, model.EventDeliveryCancelled)
}

// ConfirmDelivered applies the terminal handoff commit. Only the handoff
// confirmation service calls this, after OTP verification; the status
// update, commitment erasure, audit entry and delivered event are
// all-or-nothing in the store.
func (s *Service) ConfirmDelivered(ctx context.Context, d *model.Delivery, entry *model.AuditLog) error {
	if d.Status.Terminal() {
		return errors.InvalidStateTransition(fmt.Sprintf("cannot deliver from %s", d.Status))
	}

	event, err := model.NewOutboxEvent(model.EventDeliveryDelivered, d)
	if err != nil {
		return errors.Internal(err)
	}

	if err := s.repo.ConfirmDelivered(ctx, d.ID, entry, event); err != nil {
		if stderrors.Is(err, repository.ErrStaleStatus) {
			// A concurrent confirmation or cancellation got there first.
			return errors.FailedPrecondition("delivery is no longer confirmable")
		}
		return errors.Internal(err)
	}
	return nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*model.Delivery, error) {
	d, err := s.repo.Get(ctx, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("delivery", err)
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	return d, nil
}

// transition applies one guarded status change. An empty from means "any
// non-terminal state" (used by Cancel).
func (s *Service) transition(ctx context.Context, id, callerID uuid.UUID, from, to model.DeliveryStatus, action, eventType string) (*model.Delivery, error) {
	if callerID == uuid.Nil {
		return nil, errors.Unauthenticated("you must be logged in")
	}

	d, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if callerID != d.VolunteerID {
		s.auditor.Record(ctx, callerID, id, action, model.AuditOutcomeDenied, nil)
		return nil, errors.PermissionDenied("only the assigned volunteer may update this delivery")
	}

	expected := from
	if expected == "" {
		if d.Status.Terminal() {
			s.auditor.Record(ctx, callerID, id, action, model.AuditOutcomeRejected, map[string]string{"status": string(d.Status)})
			return nil, errors.InvalidStateTransition(fmt.Sprintf("cannot %s a %s delivery", to, d.Status))
		}
		expected = d.Status
	} else if d.Status != expected {
		s.auditor.Record(ctx, callerID, id, action, model.AuditOutcomeRejected, map[string]string{"status": string(d.Status)})
		return nil, errors.InvalidStateTransition(fmt.Sprintf("cannot move to %s from %s", to, d.Status))
	}

	if err := s.repo.UpdateStatus(ctx, id, expected, to); err != nil {
		if stderrors.Is(err, repository.ErrStaleStatus) {
			// Raced with another transition between read and write.
			return nil, errors.InvalidStateTransition("delivery state changed concurrently")
		}
		return nil, errors.Internal(err)
	}
	d.Status = to
	if to == model.DeliveryStatusCancelled {
		d.OtpCommitment = nil
		d.OtpExpiry = nil
	}

	s.auditor.Record(ctx, callerID, id, action, model.AuditOutcomeSuccess, nil)
	s.publishEvent(ctx, eventType, d)

	return d, nil
}

// publishEvent stages a lifecycle event. Best-effort: the transition has
// already committed, so a staging failure is only logged.
func (s *Service) publishEvent(ctx context.Context, eventType string, d *model.Delivery) {
	if eventType == "" {
		return
	}
	event, err := model.NewOutboxEvent(eventType, d)
	if err == nil {
		err = s.outbox.Create(ctx, event)
	}
	if err != nil {
		s.logger.Error(err, "Failed to stage lifecycle event",
			"event_type", eventType,
			"delivery_id", d.ID.String())
	}
}
