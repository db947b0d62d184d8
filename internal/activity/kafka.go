package activity

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/triagestack/triage-engine/internal/models"
)

// KafkaConfig holds producer settings for the activity stream topic.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaSink publishes activity events to a Kafka topic keyed by session id,
// so one session's events land on one partition in order.
type KafkaSink struct {
	writer  *kafka.Writer
	logger  *slog.Logger
	timeout time.Duration
}

type kafkaEnvelope struct {
	SessionID string               `json:"session_id"`
	Event     models.ActivityEvent `json:"event"`
}

// NewKafkaSink constructs a sink writing to the configured topic.
func NewKafkaSink(cfg KafkaConfig, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.WriteTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: timeout,
		Async:        false,
	})
	return &KafkaSink{writer: writer, logger: logger, timeout: timeout}
}

// Publish delivers one event. Failures are logged and dropped; the activity
// stream is observability, not the source of truth.
func (s *KafkaSink) Publish(sessionID string, event models.ActivityEvent) {
	payload, err := json.Marshal(kafkaEnvelope{SessionID: sessionID, Event: event})
	if err != nil {
		s.logger.Warn("marshal activity event", slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	msg := kafka.Message{Key: []byte(sessionID), Value: payload}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Warn("publish activity event",
			slog.String("session_id", sessionID),
			slog.String("event_type", event.EventType),
			slog.Any("error", err))
	}
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
