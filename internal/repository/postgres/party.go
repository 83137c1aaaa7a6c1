package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mealbridge/dispatch-api/internal/model"
)

func (r *partyRepository) ListVerifiedReceivers(ctx context.Context) ([]*model.Receiver, error) {
	query := `
		SELECT id, lat, lng, verification_status
		FROM receivers
		WHERE verification_status = $1
	`
	var receivers []*model.Receiver
	err := r.db.SelectContext(ctx, &receivers, query, model.ReceiverStatusVerified)
	if err != nil {
		return nil, fmt.Errorf("failed to list verified receivers: %w", err)
	}
	return receivers, nil
}

func (r *partyRepository) ListAvailableVolunteers(ctx context.Context) ([]*model.Volunteer, error) {
	query := `
		SELECT id, lat, lng, availability_status, device_token, email
		FROM volunteers
		WHERE availability_status = $1
	`
	var volunteers []*model.Volunteer
	err := r.db.SelectContext(ctx, &volunteers, query, model.VolunteerStatusAvailable)
	if err != nil {
		return nil, fmt.Errorf("failed to list available volunteers: %w", err)
	}
	return volunteers, nil
}

func (r *partyRepository) GetVolunteer(ctx context.Context, id uuid.UUID) (*model.Volunteer, error) {
	query := `
		SELECT id, lat, lng, availability_status, device_token, email
		FROM volunteers
		WHERE id = $1
	`
	var volunteer model.Volunteer
	err := r.db.GetContext(ctx, &volunteer, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get volunteer: %w", err)
	}
	return &volunteer, nil
}
