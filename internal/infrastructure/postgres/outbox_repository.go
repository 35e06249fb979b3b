package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wms-platform/verification-service/pkg/outbox"
)

// OutboxRepository implements outbox.Repository on the outbox_events table.
// Rows are written by PlanRepository inside its update transaction.
type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// FindUnpublished returns pending events, oldest first
func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, aggregate_id, event_type, topic, payload, created_at, retry_count, last_error, max_retries
		FROM outbox_events
		WHERE published_at IS NULL AND retry_count < max_retries
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find unpublished events: %w", err)
	}
	defer rows.Close()

	var events []*outbox.OutboxEvent
	for rows.Next() {
		var (
			e       outbox.OutboxEvent
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Topic, &payload, &e.CreatedAt, &e.RetryCount, &e.LastError, &e.MaxRetries); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		e.Payload = payload
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET published_at = NOW() WHERE id = $1`, eventID); err != nil {
		return fmt.Errorf("failed to mark event as published: %w", err)
	}
	return nil
}

func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET retry_count = retry_count + 1, last_error = $2 WHERE id = $1`,
		eventID, errorMsg)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	return nil
}

func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM outbox_events WHERE published_at IS NOT NULL AND published_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete published events: %w", err)
	}
	return result.RowsAffected()
}

func (r *OutboxRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE published_at IS NULL AND retry_count < max_retries`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", err)
	}
	return n, nil
}
