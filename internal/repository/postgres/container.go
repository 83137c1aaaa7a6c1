package postgres

import (
	"context"
	"fmt"

	"github.com/mealbridge/dispatch-api/internal/model"
)

func (r *containerRepository) Get(ctx context.Context, id string) (*model.Container, error) {
	query := `
		SELECT id, min_temp, max_temp, assigned_volunteer_id
		FROM containers
		WHERE id = $1
	`
	var container model.Container
	err := r.db.GetContext(ctx, &container, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get container: %w", err)
	}
	return &container, nil
}

// UpsertLatestSample keeps most-recent-value semantics: one row per
// container, overwritten on every write.
func (r *containerRepository) UpsertLatestSample(ctx context.Context, sample *model.TelemetrySample) error {
	query := `
		INSERT INTO container_telemetry (container_id, temperature, humidity, recorded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (container_id) DO UPDATE
		SET temperature = EXCLUDED.temperature,
			humidity = EXCLUDED.humidity,
			recorded_at = EXCLUDED.recorded_at
	`
	_, err := r.db.ExecContext(ctx, query,
		sample.ContainerID,
		sample.Temperature,
		sample.Humidity,
		sample.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert telemetry sample: %w", err)
	}
	return nil
}

func (r *containerRepository) LatestSample(ctx context.Context, containerID string) (*model.TelemetrySample, error) {
	query := `
		SELECT container_id, temperature, humidity, recorded_at
		FROM container_telemetry
		WHERE container_id = $1
	`
	var sample model.TelemetrySample
	err := r.db.GetContext(ctx, &sample, query, containerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sample: %w", err)
	}
	return &sample, nil
}
