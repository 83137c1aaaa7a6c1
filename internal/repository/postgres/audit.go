package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mealbridge/dispatch-api/internal/model"
	"github.com/mealbridge/dispatch-api/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(db *sqlx.DB) repository.AuditRepository {
	return &auditRepository{NewBaseRepository(db)}
}

const insertAuditQuery = `
	INSERT INTO audit_logs (
		id, actor_id, delivery_id, action, outcome, metadata, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
`

func (r *auditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	_, err := r.db.ExecContext(ctx, insertAuditQuery,
		entry.ID,
		entry.ActorID,
		entry.DeliveryID,
		entry.Action,
		entry.Outcome,
		entry.Metadata,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// insertAuditLogTx appends an audit entry inside an already-open transaction,
// used by the handoff commit path.
func insertAuditLogTx(ctx context.Context, tx *sqlx.Tx, entry *model.AuditLog) error {
	_, err := tx.ExecContext(ctx, insertAuditQuery,
		entry.ID,
		entry.ActorID,
		entry.DeliveryID,
		entry.Action,
		entry.Outcome,
		entry.Metadata,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (r *auditRepository) ListForDelivery(ctx context.Context, deliveryID uuid.UUID) ([]*model.AuditLog, error) {
	query := `
		SELECT id, actor_id, delivery_id, action, outcome, metadata, created_at
		FROM audit_logs
		WHERE delivery_id = $1
		ORDER BY created_at ASC
	`
	var entries []*model.AuditLog
	err := r.db.SelectContext(ctx, &entries, query, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return entries, nil
}
