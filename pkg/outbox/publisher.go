package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wms-platform/verification-service/pkg/kafka"
	"github.com/wms-platform/verification-service/pkg/logging"
	"github.com/wms-platform/verification-service/pkg/metrics"
)

// Publisher relays outbox events to Kafka
type Publisher struct {
	repo      Repository
	producer  kafka.EventPublisher
	logger    *logging.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
	retention time.Duration

	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	stoppedCh    chan struct{}
	publishedCnt int
	failedCnt    int
}

// PublisherConfig holds configuration for the outbox publisher
type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// Retention is how long published events are kept. Zero keeps them.
	Retention time.Duration
}

// DefaultPublisherConfig returns default configuration
func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		PollInterval: time.Second,
		BatchSize:    100,
		Retention:    7 * 24 * time.Hour,
	}
}

// NewPublisher creates a new outbox publisher. m may be nil.
func NewPublisher(repo Repository, producer kafka.EventPublisher, logger *logging.Logger, m *metrics.Metrics, config *PublisherConfig) *Publisher {
	if config == nil {
		config = DefaultPublisherConfig()
	}

	return &Publisher{
		repo:      repo,
		producer:  producer,
		logger:    logger.WithComponent("outbox-publisher"),
		metrics:   m,
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
		retention: config.Retention,
	}
}

// Start launches the polling loop
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("publisher already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.stoppedCh = make(chan struct{})

	p.logger.Info("Starting outbox publisher", "interval", p.interval, "batchSize", p.batchSize)
	go p.run(ctx, p.stopCh, p.stoppedCh)
	return nil
}

// Stop stops the polling loop and waits for the current batch
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return errors.New("publisher not running")
	}
	stopCh, stoppedCh := p.stopCh, p.stoppedCh
	p.mu.Unlock()

	close(stopCh)
	<-stoppedCh

	p.mu.Lock()
	p.running = false
	published, failed := p.publishedCnt, p.failedCnt
	p.mu.Unlock()

	p.logger.Info("Outbox publisher stopped", "published", published, "failed", failed)
	return nil
}

func (p *Publisher) run(ctx context.Context, stopCh <-chan struct{}, stoppedCh chan<- struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	lastCleanup := time.Now()
	for {
		select {
		case <-ticker.C:
			p.PublishPending(ctx)
			if p.retention > 0 && time.Since(lastCleanup) > time.Hour {
				p.cleanup(ctx)
				lastCleanup = time.Now()
			}
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// PublishPending delivers one batch and returns how many events were sent
func (p *Publisher) PublishPending(ctx context.Context) int {
	events, err := p.repo.FindUnpublished(ctx, p.batchSize)
	if err != nil {
		p.logger.WithError(err).Error("Failed to find unpublished events")
		return 0
	}

	if p.metrics != nil {
		if pending, err := p.repo.CountPending(ctx); err == nil {
			p.metrics.SetOutboxPending(pending)
		}
	}

	sent := 0
	for _, event := range events {
		if err := p.publishEvent(ctx, event); err != nil {
			p.logger.WithError(err).Error("Failed to publish event",
				"eventId", event.ID,
				"eventType", event.EventType,
				"planId", event.AggregateID,
			)
			p.count(false)
			if err := p.repo.IncrementRetry(ctx, event.ID, err.Error()); err != nil {
				p.logger.WithError(err).Error("Failed to increment retry count", "eventId", event.ID)
			}
			continue
		}

		p.count(true)
		sent++
		if err := p.repo.MarkPublished(ctx, event.ID); err != nil {
			p.logger.WithError(err).Error("Failed to mark event as published", "eventId", event.ID)
		}
	}
	return sent
}

func (p *Publisher) publishEvent(ctx context.Context, event *OutboxEvent) error {
	cloudEvent, err := event.ToCloudEvent()
	if err != nil {
		return fmt.Errorf("failed to decode outbox payload: %w", err)
	}
	if err := p.producer.PublishEvent(ctx, event.Topic, cloudEvent); err != nil {
		return fmt.Errorf("failed to publish to Kafka: %w", err)
	}
	return nil
}

func (p *Publisher) cleanup(ctx context.Context) {
	deleted, err := p.repo.DeletePublished(ctx, time.Now().Add(-p.retention))
	if err != nil {
		p.logger.WithError(err).Warn("Failed to delete published outbox events")
		return
	}
	if deleted > 0 {
		p.logger.Info("Deleted published outbox events", "count", deleted)
	}
}

func (p *Publisher) count(success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if success {
		p.publishedCnt++
	} else {
		p.failedCnt++
	}
}

// IsRunning returns whether the publisher is running
func (p *Publisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats returns publisher statistics
func (p *Publisher) Stats() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]int{
		"published": p.publishedCnt,
		"failed":    p.failedCnt,
	}
}
