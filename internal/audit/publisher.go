// Package audit publishes registration and verification outcomes.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	EventRegistered EventType = "prescription.registered"
	EventVerified   EventType = "prescription.verified"
)

const source = "rxverify"

// Event is the JSON payload written to the audit topic.
type Event struct {
	ID              string    `json:"id"`
	Type            EventType `json:"type"`
	Source          string    `json:"source"`
	Fingerprint     string    `json:"fingerprint"`
	Status          string    `json:"status,omitempty"`
	ConfidenceScore float64   `json:"confidence_score,omitempty"`
	Anomalies       []string  `json:"anomalies,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopPublisher drops every event; used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	msg, err := newMessage(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish audit event", "event_id", string(msg.Key), "event_type", ev.Type, "error", err)
		return err
	}
	p.logger.Debug("audit event published", "event_id", string(msg.Key), "event_type", ev.Type, "topic", p.topic)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// newMessage stamps ID, source and timestamp when missing and keys the
// message by event ID.
func newMessage(ev Event) (kafka.Message, error) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Source == "" {
		ev.Source = source
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal audit event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.ID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
			{Key: "source", Value: []byte(ev.Source)},
		},
	}, nil
}
