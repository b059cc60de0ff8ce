// Package events publishes booking lifecycle events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event types.
const (
	BookingProposed        = "booking.proposed"
	BookingAccepted        = "booking.accepted"
	BookingDatesSuggested  = "booking.dates_suggested"
	BookingSuggestAccepted = "booking.suggestion_accepted"
	BookingRescheduled     = "booking.rescheduled"
	BookingCancelled       = "booking.cancelled"
	AccountDeleted         = "account.deleted"
)

// Event is one lifecycle fact. Key orders events of the same entity onto one partition.
type Event struct {
	Type       string            `json:"type"`
	Key        string            `json:"key"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Publisher emits events. Publishing never blocks a business operation on the broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// KafkaPublisher writes JSON encoded events to one topic.
type KafkaPublisher struct {
	writer *kafka.Writer
	mu     sync.RWMutex
	closed bool
}

// NewKafkaPublisher creates an asynchronous writer for topic.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Logger:       kafka.LoggerFunc(func(msg string, args ...any) {}),
		ErrorLogger:  kafka.LoggerFunc(log.Printf),
	}
	return &KafkaPublisher{writer: writer}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("publisher closed")
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", e.Type, err)
	}
	msg := kafka.Message{
		Key:     []byte(e.Key),
		Value:   value,
		Time:    e.OccurredAt,
		Headers: []kafka.Header{{Key: "event-type", Value: []byte(e.Type)}},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

// NoopPublisher discards events. Used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, e Event) error { return nil }
func (NoopPublisher) Close() error                               { return nil }

// New returns a KafkaPublisher, or a NoopPublisher without brokers.
func New(brokers []string, topic string) (Publisher, error) {
	if len(brokers) == 0 {
		log.Println("KAFKA_BROKERS not set, booking events are discarded.")
		return NoopPublisher{}, nil
	}
	return NewKafkaPublisher(brokers, topic)
}
