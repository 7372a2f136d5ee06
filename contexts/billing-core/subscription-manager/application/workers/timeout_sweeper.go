package workers

import (
	"context"
	"log/slog"
	"time"

	application "tollgate/contexts/billing-core/subscription-manager/application"
)

// TimeoutSweeper fails verification requests whose oracle never answered.
type TimeoutSweeper struct {
	Service   *application.Service
	TTL       time.Duration
	BatchSize int
	Logger    *slog.Logger
}

func (j TimeoutSweeper) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(j.Logger)
	limit := j.BatchSize
	if limit <= 0 {
		limit = 100
	}

	expired, err := j.Service.ExpireStaleRequests(ctx, j.TTL, limit)
	if err != nil {
		logger.Error("verification timeout sweep failed",
			"event", "manager_timeout_sweep_failed",
			"module", "billing-core/subscription-manager",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if expired > 0 {
		logger.Info("verification timeout sweep completed",
			"event", "manager_timeout_sweep_completed",
			"module", "billing-core/subscription-manager",
			"layer", "worker",
			"expired_count", expired,
		)
	}
	return nil
}
