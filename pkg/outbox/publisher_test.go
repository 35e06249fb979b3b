package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/verification-service/pkg/cloudevents"
	"github.com/wms-platform/verification-service/pkg/logging"
)

type memoryRepository struct {
	events  []*OutboxEvent
	retries map[string]string
}

func (r *memoryRepository) FindUnpublished(_ context.Context, limit int) ([]*OutboxEvent, error) {
	var out []*OutboxEvent
	for _, e := range r.events {
		if e.ShouldRetry() && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryRepository) MarkPublished(_ context.Context, id string) error {
	for _, e := range r.events {
		if e.ID == id {
			now := time.Now()
			e.PublishedAt = &now
		}
	}
	return nil
}

func (r *memoryRepository) IncrementRetry(_ context.Context, id, msg string) error {
	for _, e := range r.events {
		if e.ID == id {
			e.RetryCount++
			e.LastError = msg
		}
	}
	r.retries[id] = msg
	return nil
}

func (r *memoryRepository) DeletePublished(context.Context, time.Time) (int64, error) { return 0, nil }

func (r *memoryRepository) CountPending(context.Context) (int64, error) {
	return int64(len(r.events)), nil
}

type stubProducer struct {
	fail   map[string]bool
	topics []string
	types  []string
}

func (p *stubProducer) PublishEvent(_ context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	if p.fail[event.ID] {
		return errors.New("broker down")
	}
	p.topics = append(p.topics, topic)
	p.types = append(p.types, event.Type)
	return nil
}

func newEvent(t *testing.T, eventType string) *OutboxEvent {
	factory := cloudevents.NewEventFactory(cloudevents.SourceVerification)
	ce := factory.CreatePlanEvent(context.Background(), eventType, "1001", "T001", nil, time.Time{})
	event, err := NewOutboxEvent("1001", "wms.verification.events", ce)
	require.NoError(t, err)
	return event
}

func TestPublisher_PublishPending(t *testing.T) {
	ok := newEvent(t, "wms.verification.line-verified")
	failing := newEvent(t, "wms.verification.plan-completed")
	repo := &memoryRepository{events: []*OutboxEvent{ok, failing}, retries: map[string]string{}}
	producer := &stubProducer{fail: map[string]bool{failing.ID: true}}

	p := NewPublisher(repo, producer, logging.Nop(), nil, nil)
	sent := p.PublishPending(context.Background())

	assert.Equal(t, 1, sent)
	assert.True(t, ok.IsPublished())
	assert.False(t, failing.IsPublished())
	assert.Equal(t, 1, failing.RetryCount)
	assert.Contains(t, repo.retries[failing.ID], "broker down")
	assert.Equal(t, []string{"wms.verification.events"}, producer.topics)
	assert.Equal(t, map[string]int{"published": 1, "failed": 1}, p.Stats())

	// published events are not sent twice
	delete(producer.fail, failing.ID)
	sent = p.PublishPending(context.Background())
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"wms.verification.line-verified", "wms.verification.plan-completed"}, producer.types)
}

func TestPublisher_StartStop(t *testing.T) {
	repo := &memoryRepository{retries: map[string]string{}}
	p := NewPublisher(repo, &stubProducer{}, logging.Nop(), nil, &PublisherConfig{PollInterval: time.Millisecond, BatchSize: 10})

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(context.Background()))

	require.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())
	assert.Error(t, p.Stop())
}

func TestOutboxEvent_RoundTrip(t *testing.T) {
	event := newEvent(t, "wms.verification.plan-started")
	ce, err := event.ToCloudEvent()
	require.NoError(t, err)
	assert.Equal(t, event.ID, ce.ID)
	assert.Equal(t, "plan/1001", ce.Subject)
	assert.Equal(t, DefaultMaxRetries, event.MaxRetries)
}
