package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mealbridge/dispatch-api/internal/model"
	"github.com/mealbridge/dispatch-api/internal/repository"
	"github.com/mealbridge/dispatch-api/pkg/logger"
)

// Service appends entries to the handoff audit trail. Recording is
// best-effort for non-commit paths: a failed append is logged, never
// surfaced to the caller. The handoff commit path writes its entry inside
// the store transaction instead and does not go through here.
type Service struct {
	repo   repository.AuditRepository
	logger *logger.Logger
}

func NewService(repo repository.AuditRepository, logger *logger.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// NewEntry builds an audit entry without persisting it, for callers that
// commit the entry transactionally.
func NewEntry(actorID, deliveryID uuid.UUID, action, outcome string, metadata interface{}) *model.AuditLog {
	var raw json.RawMessage
	if metadata != nil {
		raw, _ = json.Marshal(metadata)
	}
	return &model.AuditLog{
		ID:         uuid.New(),
		ActorID:    actorID,
		DeliveryID: deliveryID,
		Action:     action,
		Outcome:    outcome,
		Metadata:   raw,
		CreatedAt:  time.Now(),
	}
}

// Record appends an entry, swallowing persistence failures.
func (s *Service) Record(ctx context.Context, actorID, deliveryID uuid.UUID, action, outcome string, metadata interface{}) {
	entry := NewEntry(actorID, deliveryID, action, outcome, metadata)
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error(err, "Failed to append audit entry",
			"action", action,
			"outcome", outcome,
			"delivery_id", deliveryID.String())
	}
}

// ListForDelivery returns the trail for one delivery, oldest first.
func (s *Service) ListForDelivery(ctx context.Context, deliveryID uuid.UUID) ([]*model.AuditLog, error) {
	return s.repo.ListForDelivery(ctx, deliveryID)
}
