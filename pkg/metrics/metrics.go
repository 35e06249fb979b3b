package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors exported by the verification service
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	// Store metrics, labelled by backend (mongodb, postgres, redis)
	StoreOperations        *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	// Verification metrics
	ScansTotal          *prometheus.CounterVec
	PlanTransitions     *prometheus.CounterVec
	PersistenceFailures *prometheus.CounterVec
	CodesDecoded        *prometheus.CounterVec
	OutboxPending       prometheus.Gauge

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "wms",
	}
}

// New creates a new Metrics instance on a private registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ns := config.Namespace
	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total", Help: "Total number of HTTP requests"},
		[]string{"service", "method", "path", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)
	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being processed",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	m.KafkaEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "kafka_events_published_total", Help: "Total number of Kafka events published"},
		[]string{"service", "topic", "event_type", "status"},
	)
	m.KafkaPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "kafka_publish_duration_seconds",
			Help:      "Kafka publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "topic"},
	)

	m.StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "store_operations_total", Help: "Total number of store operations"},
		[]string{"service", "store", "operation", "status"},
	)
	m.StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "store_operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "store", "operation"},
	)

	m.ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "verification_scans_total", Help: "Scans by outcome (accepted or a rejection reason)"},
		[]string{"service", "outcome"},
	)
	m.PlanTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "verification_plan_transitions_total", Help: "Plan status transitions"},
		[]string{"service", "from", "to"},
	)
	m.PersistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "verification_persistence_failures_total", Help: "Rolled back plan updates by cause"},
		[]string{"service", "cause"},
	)
	m.CodesDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "verification_codes_decoded_total", Help: "Decoded payloads by whether the primary identifier was present"},
		[]string{"service", "primary"},
	)
	m.OutboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "outbox_pending_events",
			Help:        "Events waiting in the outbox",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)"},
		[]string{"service", "name"},
	)
	m.CircuitBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "circuit_breaker_trips_total", Help: "Total number of circuit breaker trips"},
		[]string{"service", "name"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.KafkaEventsPublished,
		m.KafkaPublishDuration,
		m.StoreOperations,
		m.StoreOperationDuration,
		m.ScansTotal,
		m.PlanTransitions,
		m.PersistenceFailures,
		m.CodesDecoded,
		m.OutboxPending,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
	)

	return m
}

// Handler returns an HTTP handler for metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, code int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// RecordKafkaPublish records a Kafka publish event
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, status(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordStoreOperation records a round trip to a backing store
func (m *Metrics) RecordStoreOperation(store, operation string, success bool, duration time.Duration) {
	m.StoreOperations.WithLabelValues(m.serviceName, store, operation, status(success)).Inc()
	m.StoreOperationDuration.WithLabelValues(m.serviceName, store, operation).Observe(duration.Seconds())
}

// RecordScan records a scan outcome
func (m *Metrics) RecordScan(outcome string) {
	m.ScansTotal.WithLabelValues(m.serviceName, outcome).Inc()
}

// RecordPlanTransition records a status change
func (m *Metrics) RecordPlanTransition(from, to string) {
	if from == to {
		return
	}
	m.PlanTransitions.WithLabelValues(m.serviceName, from, to).Inc()
}

// RecordPersistenceFailure records a rolled back update
func (m *Metrics) RecordPersistenceFailure(cause string) {
	m.PersistenceFailures.WithLabelValues(m.serviceName, cause).Inc()
}

// RecordDecode records a decoded payload
func (m *Metrics) RecordDecode(primaryFound bool) {
	m.CodesDecoded.WithLabelValues(m.serviceName, strconv.FormatBool(primaryFound)).Inc()
}

// SetOutboxPending sets the number of unpublished outbox events
func (m *Metrics) SetOutboxPending(count int64) {
	m.OutboxPending.Set(float64(count))
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}
