package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wms-platform/verification-service/pkg/cloudevents"
)

// DefaultMaxRetries bounds delivery attempts of a single event
const DefaultMaxRetries = 10

// OutboxEvent is an event written in the same transaction as the state
// change it describes and delivered to Kafka afterwards.
type OutboxEvent struct {
	ID          string          `bson:"_id" json:"id"`
	AggregateID string          `bson:"aggregateId" json:"aggregateId"`
	EventType   string          `bson:"eventType" json:"eventType"`
	Topic       string          `bson:"topic" json:"topic"`
	Payload     json.RawMessage `bson:"payload" json:"payload"`
	CreatedAt   time.Time       `bson:"createdAt" json:"createdAt"`
	PublishedAt *time.Time      `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	RetryCount  int             `bson:"retryCount" json:"retryCount"`
	LastError   string          `bson:"lastError,omitempty" json:"lastError,omitempty"`
	MaxRetries  int             `bson:"maxRetries" json:"maxRetries"`
}

// NewOutboxEvent wraps a CloudEvent for the outbox. The CloudEvent id is
// reused so consumers can deduplicate redeliveries.
func NewOutboxEvent(aggregateID, topic string, event *cloudevents.WMSCloudEvent) (*OutboxEvent, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		ID:          event.ID,
		AggregateID: aggregateID,
		EventType:   event.Type,
		Topic:       topic,
		Payload:     payload,
		CreatedAt:   event.Time,
		MaxRetries:  DefaultMaxRetries,
	}, nil
}

// IsPublished checks if the event has been published
func (e *OutboxEvent) IsPublished() bool {
	return e.PublishedAt != nil
}

// ShouldRetry checks if the event should be retried
func (e *OutboxEvent) ShouldRetry() bool {
	return !e.IsPublished() && e.RetryCount < e.MaxRetries
}

// ToCloudEvent decodes the payload
func (e *OutboxEvent) ToCloudEvent() (*cloudevents.WMSCloudEvent, error) {
	var cloudEvent cloudevents.WMSCloudEvent
	if err := json.Unmarshal(e.Payload, &cloudEvent); err != nil {
		return nil, err
	}
	return &cloudEvent, nil
}

// Repository is the delivery side of the outbox. Writes happen inside the
// owning store's transaction and are not part of this interface.
type Repository interface {
	// FindUnpublished returns retryable events, oldest first
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkPublished(ctx context.Context, eventID string) error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error
	// DeletePublished removes events published before the cutoff
	DeletePublished(ctx context.Context, before time.Time) (int64, error)
	CountPending(ctx context.Context) (int64, error)
}
