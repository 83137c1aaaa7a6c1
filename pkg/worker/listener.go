package worker

import (
	"context"
	"time"

	"github.com/mealbridge/dispatch-api/pkg/logger"
	"github.com/mealbridge/dispatch-api/pkg/messaging"
	"github.com/mealbridge/dispatch-api/pkg/metrics"
)

// HandlerFunc processes one decoded broker payload. Errors are retried a
// bounded number of times and then dropped; handlers must therefore be
// idempotent or side-effect-tolerant.
type HandlerFunc func(ctx context.Context, payload []byte) error

// EventListener subscribes to a broker channel and dispatches each message
// to its handler.
type EventListener struct {
	broker  messaging.Broker
	channel string
	handler HandlerFunc
	logger  *logger.Logger
	metrics *metrics.Metrics

	retryAttempts int
	retryDelay    time.Duration
}

func NewEventListener(
	broker messaging.Broker,
	channel string,
	handler HandlerFunc,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *EventListener {
	return &EventListener{
		broker:        broker,
		channel:       channel,
		handler:       handler,
		logger:        logger.WithFields(map[string]interface{}{"channel": channel}),
		metrics:       metrics,
		retryAttempts: 3,
		retryDelay:    time.Second,
	}
}

// Start blocks until ctx is cancelled or the subscription closes.
func (l *EventListener) Start(ctx context.Context) error {
	msgChan, err := l.broker.Subscribe(ctx, l.channel)
	if err != nil {
		return err
	}

	l.logger.Info("Listener started")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Listener shutting down")
			return nil
		case payload, ok := <-msgChan:
			if !ok {
				l.logger.Info("Subscription closed")
				return nil
			}
			l.metrics.EventsConsumed.WithLabelValues(l.channel).Inc()
			l.dispatch(ctx, payload)
		}
	}
}

func (l *EventListener) dispatch(ctx context.Context, payload []byte) {
	err := retry(l.retryAttempts, l.retryDelay, func() error {
		return l.handler(ctx, payload)
	})
	if err != nil {
		// Dropped after retries. The upstream source redelivers and the
		// handlers are idempotent, so this is safe.
		l.metrics.EventsFailed.WithLabelValues(l.channel).Inc()
		l.logger.Error(err, "Handler failed after retries")
	}
}
