package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "tollgate/contexts/billing-core/subscription-manager/application"
	"tollgate/contexts/billing-core/subscription-manager/ports"
)

// OutboxRelay publishes pending manager outbox rows to the event bus.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("manager outbox list failed",
			"event", "manager_outbox_list_failed",
			"module", "billing-core/subscription-manager",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}

	for _, row := range pending {
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			logger.Error("manager outbox decode failed",
				"event", "manager_outbox_decode_failed",
				"module", "billing-core/subscription-manager",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return err
		}

		topic := event.EventType
		if topic == "" {
			topic = row.EventType
		}
		if err := r.Publisher.Publish(ctx, topic, event); err != nil {
			logger.Error("manager outbox publish failed",
				"event", "manager_outbox_publish_failed",
				"module", "billing-core/subscription-manager",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_id", event.EventID,
				"event_type", event.EventType,
				"topic", topic,
				"error", err.Error(),
			)
			return err
		}
		if err := r.Outbox.MarkOutboxSent(ctx, row.OutboxID, now); err != nil {
			logger.Error("manager outbox mark sent failed",
				"event", "manager_outbox_mark_sent_failed",
				"module", "billing-core/subscription-manager",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return err
		}
	}

	if len(pending) > 0 {
		logger.Info("manager outbox relay cycle completed",
			"event", "manager_outbox_relay_completed",
			"module", "billing-core/subscription-manager",
			"layer", "worker",
			"published_count", len(pending),
		)
	}
	return nil
}
