package kafka

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/verification-service/pkg/cloudevents"
	"github.com/wms-platform/verification-service/pkg/logging"
	"github.com/wms-platform/verification-service/pkg/metrics"
	"github.com/wms-platform/verification-service/pkg/resilience"
	"github.com/wms-platform/verification-service/pkg/tracing"
)

// InstrumentedProducer wraps a publisher with a circuit breaker, metrics and
// tracing. Metrics and logger may be nil.
type InstrumentedProducer struct {
	publisher EventPublisher
	breaker   *resilience.CircuitBreaker
	metrics   *metrics.Metrics
	logger    *logging.Logger
	tracer    trace.Tracer
}

// NewInstrumentedProducer creates a new instrumented producer
func NewInstrumentedProducer(publisher EventPublisher, m *metrics.Metrics, logger *logging.Logger) *InstrumentedProducer {
	config := resilience.DefaultCircuitBreakerConfig("kafka-producer")
	config.MaxRequests = 5
	if m != nil {
		config.OnStateChange = func(name string, _, to gobreaker.State) {
			m.SetCircuitBreakerState(name, int(to))
			if to == gobreaker.StateOpen {
				m.RecordCircuitBreakerTrip(name)
			}
		}
	}

	var breakerLogger = logging.Nop()
	if logger != nil {
		breakerLogger = logger
	}

	return &InstrumentedProducer{
		publisher: publisher,
		breaker:   resilience.NewCircuitBreaker(config, breakerLogger.Logger),
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("kafka-producer"),
	}
}

// PublishEvent publishes a CloudEvent with circuit breaker protection,
// metrics and tracing
func (p *InstrumentedProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	start := time.Now()

	attrs := append(tracing.MessagingSpanAttributes("kafka", topic, "publish"),
		attribute.String("messaging.kafka.event_type", event.Type),
		attribute.String("messaging.message_id", event.ID),
	)
	if event.PlanID != "" {
		attrs = append(attrs, attribute.String("wms.plan_id", event.PlanID))
	}
	ctx, span := p.tracer.Start(ctx, "kafka.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.publisher.PublishEvent(ctx, topic, event)
	})
	duration := time.Since(start)
	success := err == nil

	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(topic, event.Type, success, duration)
	}
	if p.logger != nil {
		p.logger.KafkaPublish(ctx, topic, event.Type, success, duration)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}
