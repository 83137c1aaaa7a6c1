package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mealbridge/dispatch-api/internal/model"
	"github.com/mealbridge/dispatch-api/internal/repository"
)

const deliveryColumns = `
	id, listing_id, donor_id, receiver_id, volunteer_id,
	status, otp_commitment, otp_expiry, created_at, updated_at
`

func (r *deliveryRepository) Create(ctx context.Context, delivery *model.Delivery, event *model.OutboxEvent) error {
	query := `
		INSERT INTO deliveries (
			id, listing_id, donor_id, receiver_id, volunteer_id,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (listing_id) DO NOTHING
	`
	delivery.ID = uuid.New()
	delivery.CreatedAt = time.Now()
	delivery.UpdatedAt = time.Now()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, query,
			delivery.ID,
			delivery.ListingID,
			delivery.DonorID,
			delivery.ReceiverID,
			delivery.VolunteerID,
			delivery.Status,
			delivery.CreatedAt,
			delivery.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create delivery: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			// Lost a race with a concurrent match for the same listing.
			return repository.ErrDuplicateListing
		}

		if event != nil {
			if err := insertOutboxEventTx(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *deliveryRepository) Get(ctx context.Context, id uuid.UUID) (*model.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id = $1`

	var delivery model.Delivery
	err := r.db.GetContext(ctx, &delivery, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}
	return &delivery, nil
}

func (r *deliveryRepository) ExistsForListing(ctx context.Context, listingID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM deliveries WHERE listing_id = $1)`

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, listingID)
	if err != nil {
		return false, fmt.Errorf("failed to check delivery existence: %w", err)
	}
	return exists, nil
}

func (r *deliveryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.DeliveryStatus) error {
	// Cancellation clears any outstanding challenge: the commitment may
	// only live on an assigned or in-transit delivery.
	query := `
		UPDATE deliveries
		SET status = $1,
			otp_commitment = CASE WHEN $1 = 'cancelled' THEN NULL ELSE otp_commitment END,
			otp_expiry = CASE WHEN $1 = 'cancelled' THEN NULL ELSE otp_expiry END,
			updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, to, time.Now(), id, from)
	if err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrStaleStatus
	}
	return nil
}

func (r *deliveryRepository) SetChallenge(ctx context.Context, id uuid.UUID, commitment string, expiry time.Time) error {
	query := `
		UPDATE deliveries
		SET otp_commitment = $1, otp_expiry = $2, updated_at = $3
		WHERE id = $4
	`
	result, err := r.db.ExecContext(ctx, query, commitment, expiry, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set challenge: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ConfirmDelivered performs the terminal handoff commit: status to delivered,
// OTP pair cleared, audit entry appended and the delivered event staged, all
// in one transaction. The status guard keeps a concurrent confirmation from
// applying twice.
func (r *deliveryRepository) ConfirmDelivered(ctx context.Context, id uuid.UUID, entry *model.AuditLog, event *model.OutboxEvent) error {
	query := `
		UPDATE deliveries
		SET status = $1, otp_commitment = NULL, otp_expiry = NULL, updated_at = $2
		WHERE id = $3 AND status IN ($4, $5)
	`
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, query,
			model.DeliveryStatusDelivered, time.Now(), id,
			model.DeliveryStatusAssigned, model.DeliveryStatusInTransit)
		if err != nil {
			return fmt.Errorf("failed to confirm delivery: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return repository.ErrStaleStatus
		}

		if err := insertAuditLogTx(ctx, tx, entry); err != nil {
			return err
		}
		if event != nil {
			if err := insertOutboxEventTx(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *deliveryRepository) ListForVolunteer(ctx context.Context, volunteerID uuid.UUID) ([]*model.Delivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM deliveries
		WHERE volunteer_id = $1
		ORDER BY created_at DESC
	`
	var deliveries []*model.Delivery
	err := r.db.SelectContext(ctx, &deliveries, query, volunteerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return deliveries, nil
}
