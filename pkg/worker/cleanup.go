package worker

import (
	"context"
	"time"

	"github.com/mealbridge/dispatch-api/internal/repository"
	"github.com/mealbridge/dispatch-api/pkg/logger"
)

// OutboxCleanupWorker prunes processed outbox events past retention.
type OutboxCleanupWorker struct {
	repo          repository.OutboxRepository
	retentionDays int
	interval      time.Duration
	logger        *logger.Logger
}

func NewOutboxCleanupWorker(repo repository.OutboxRepository, retentionDays int, interval time.Duration, logger *logger.Logger) *OutboxCleanupWorker {
	return &OutboxCleanupWorker{
		repo:          repo,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger,
	}
}

func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -w.retentionDays)
			rows, err := w.repo.DeleteProcessedBefore(ctx, cutoff)
			if err != nil {
				w.logger.Error(err, "Failed to prune outbox events")
				continue
			}
			if rows > 0 {
				w.logger.Info("Pruned processed outbox events", "rows", rows)
			}
		}
	}
}
