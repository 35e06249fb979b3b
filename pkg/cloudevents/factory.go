package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"

	"github.com/wms-platform/verification-service/pkg/logging"
)

// EventFactory creates CloudEvents for a single source
type EventFactory struct {
	source     string
	propagator propagation.TextMapPropagator
	now        func() time.Time
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{
		source:     source,
		propagator: propagation.TraceContext{},
		now:        time.Now,
	}
}

// CreateEvent creates a new event. A zero occurredAt uses the current time.
// Correlation and trace context are taken from ctx.
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data interface{}, occurredAt time.Time) *WMSCloudEvent {
	if occurredAt.IsZero() {
		occurredAt = f.now()
	}

	event := &WMSCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            occurredAt.UTC(),
		DataContentType: "application/json",
		Data:            data,
	}

	if v, ok := ctx.Value(logging.CorrelationIDKey).(string); ok {
		event.CorrelationID = v
	}

	carrier := propagation.MapCarrier{}
	f.propagator.Inject(ctx, carrier)
	event.TraceParent = carrier.Get(ExtTraceParent)
	event.TraceState = carrier.Get(ExtTraceState)

	return event
}

// CreatePlanEvent creates an event about a verification plan
func (f *EventFactory) CreatePlanEvent(ctx context.Context, eventType, planID, staffCode string, data interface{}, occurredAt time.Time) *WMSCloudEvent {
	event := f.CreateEvent(ctx, eventType, "plan/"+planID, data, occurredAt)
	event.PlanID = planID
	event.StaffCode = staffCode
	return event
}
