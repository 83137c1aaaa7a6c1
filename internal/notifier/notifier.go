// Package notifier models the best-effort side channels (push, SMS) the
// engine emits into. Failures are always the caller's to swallow; no
// primary operation may fail because a notification did.
package notifier

import (
	"context"

	"github.com/mealbridge/dispatch-api/pkg/messaging"
	"github.com/mealbridge/dispatch-api/pkg/metrics"
)

// Note is a user-facing notification payload.
type Note struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notifier delivers a note to an opaque target: a device token for pushes,
// a receiver id for out-of-band OTP delivery. The transport behind the
// broker resolves the target.
type Notifier interface {
	Push(ctx context.Context, target string, note Note) error
}

type pushMessage struct {
	Target string `json:"target"`
	Note   Note   `json:"note"`
}

// brokerNotifier hands notes to the external push/SMS transport over the
// message broker.
type brokerNotifier struct {
	broker  messaging.Broker
	metrics *metrics.Metrics
}

func NewBrokerNotifier(broker messaging.Broker, metrics *metrics.Metrics) Notifier {
	return &brokerNotifier{broker: broker, metrics: metrics}
}

func (n *brokerNotifier) Push(ctx context.Context, target string, note Note) error {
	err := n.broker.Publish(ctx, messaging.ChannelPushNotification, pushMessage{
		Target: target,
		Note:   note,
	})
	if err != nil {
		n.metrics.NotificationsFailed.WithLabelValues("push").Inc()
		return err
	}
	n.metrics.NotificationsSent.WithLabelValues("push").Inc()
	return nil
}
