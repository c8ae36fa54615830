// Package kafkasink publishes authcore audit events to a Kafka topic, one JSON
// message per event keyed by user id.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Writer is the subset of *kafka.Writer the sink uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config describes the producer built by [New].
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Sink implements the audit sink contract on top of a Kafka writer.
type Sink struct {
	writer  Writer
	timeout time.Duration
	logger  *zap.Logger
}

// New builds a Sink with its own *kafka.Writer.
func New(cfg Config, logger *zap.Logger) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafkasink: no brokers")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafkasink: empty topic")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
	}
	return NewWithWriter(w, cfg.WriteTimeout, logger), nil
}

// NewWithWriter wraps an existing writer. A zero timeout selects five seconds.
func NewWithWriter(w Writer, timeout time.Duration, logger *zap.Logger) *Sink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{writer: w, timeout: timeout, logger: logger}
}

// Emit publishes event. Failures are logged and otherwise ignored.
func (s *Sink) Emit(ctx context.Context, event audit.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("kafkasink: marshal event", zap.String("event_type", event.EventType), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Warn("kafkasink: publish failed",
			zap.String("event_type", event.EventType),
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
	}
}

// Close flushes and closes the writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
