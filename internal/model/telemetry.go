package model

import (
	"time"

	"github.com/google/uuid"
)

// Container holds the cold-chain configuration for one shipment container.
// Thresholds and volunteer assignment are both optional; without either the
// monitor has nothing actionable.
type Container struct {
	ID                  string     `json:"id" db:"id"`
	MinTemp             *float64   `json:"min_temp" db:"min_temp"`
	MaxTemp             *float64   `json:"max_temp" db:"max_temp"`
	AssignedVolunteerID *uuid.UUID `json:"assigned_volunteer_id" db:"assigned_volunteer_id"`
}

// Thresholds reports the configured band, if any.
func (c *Container) Thresholds() (min, max float64, ok bool) {
	if c.MinTemp == nil || c.MaxTemp == nil {
		return 0, 0, false
	}
	return *c.MinTemp, *c.MaxTemp, true
}

// TelemetrySample is the most recent sensor reading for a container.
type TelemetrySample struct {
	ContainerID string    `json:"container_id" db:"container_id"`
	Temperature float64   `json:"temp" db:"temperature"`
	Humidity    float64   `json:"humidity" db:"humidity"`
	RecordedAt  time.Time `json:"ts" db:"recorded_at"`
}

// TelemetryEvent is the broker payload for a telemetry write.
type TelemetryEvent struct {
	ContainerID string    `json:"container_id"`
	Temperature float64   `json:"temp"`
	Humidity    float64   `json:"humidity"`
	RecordedAt  time.Time `json:"ts"`
}
