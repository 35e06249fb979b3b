// Package outboxevents turns an applied plan update into outbox rows. Both
// stores call it inside their write transaction.
package outboxevents

import (
	"context"
	"fmt"
	"time"

	"github.com/wms-platform/verification-service/internal/domain"
	"github.com/wms-platform/verification-service/pkg/cloudevents"
	"github.com/wms-platform/verification-service/pkg/kafka"
	"github.com/wms-platform/verification-service/pkg/outbox"
)

// Build derives the domain events of update, committed at the store time at,
// and wraps each one as a CloudEvent outbox row.
func Build(ctx context.Context, factory *cloudevents.EventFactory, update *domain.PlanUpdate, plan *domain.Plan, at time.Time) ([]*outbox.OutboxEvent, error) {
	events := domain.EventsFor(update, plan, at)
	rows := make([]*outbox.OutboxEvent, 0, len(events))

	for _, event := range events {
		ce := factory.CreatePlanEvent(ctx, event.EventType(), update.PlanID, update.UpdatedBy.Code, event, event.OccurredAt())
		row, err := outbox.NewOutboxEvent(update.PlanID, kafka.Topics.VerificationEvents, ce)
		if err != nil {
			return nil, fmt.Errorf("failed to create outbox event: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
