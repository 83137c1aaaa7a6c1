package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Channels carried over the broker. listings.created and telemetry.updated
// are produced by external collaborators; the delivery.* channels are
// published by the outbox processor.
const (
	ChannelListingCreated   = "listings.created"
	ChannelTelemetryUpdated = "telemetry.updated"
	ChannelPushNotification = "notifications.push"
)

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
