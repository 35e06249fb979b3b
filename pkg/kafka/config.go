package kafka

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the producer side of the outbox relay; the service consumes nothing.
type Config struct {
	Brokers  []string
	ClientID string

	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	// RequiredAcks follows kafka-go: -1 all in-sync replicas, 1 leader, 0 none.
	RequiredAcks int
}

// DefaultConfig waits for every in-sync replica. A verified line is only
// reported once its event is durable.
func DefaultConfig() *Config {
	return &Config{
		Brokers:      []string{"localhost:9092"},
		ClientID:     "verification-service",
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: -1,
	}
}

// ParseAcks maps the KAFKA_ACKS names to kafka-go values.
func ParseAcks(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "-1":
		return -1, nil
	case "leader", "1":
		return 1, nil
	case "none", "0":
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown kafka acks %q (want all, leader or none)", s)
	}
}

// Validate rejects settings the writer would only fail on at first publish.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Brokers) == 0 {
		errs = append(errs, errors.New("kafka: at least one broker is required"))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("kafka: batch size must be positive, got %d", c.BatchSize))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("kafka: write timeout must be positive"))
	}
	if c.RequiredAcks < -1 || c.RequiredAcks > 1 {
		errs = append(errs, fmt.Errorf("kafka: required acks must be -1, 0 or 1, got %d", c.RequiredAcks))
	}
	return errors.Join(errs...)
}

// Topics contains the Kafka topics this service writes to
var Topics = struct {
	VerificationEvents string
}{
	VerificationEvents: "wms.verification.events",
}
