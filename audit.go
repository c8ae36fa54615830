package authcore

import (
	"io"

	"github.com/MrEthical07/authcore/audit/kafkasink"
	"github.com/MrEthical07/authcore/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one security-relevant action recorded by the Engine.
type AuditEvent = audit.Event

// AuditSink receives audit events from the Engine's dispatcher goroutine.
// Emit must not block for long; slow sinks cause drops when the buffer is
// configured to drop.
type AuditSink = audit.Sink

// NoOpAuditSink discards events.
type NoOpAuditSink = audit.NoOpSink

// NewChannelAuditSink buffers events in a channel, mostly for tests.
func NewChannelAuditSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONAuditSink writes one JSON document per event to w.
func NewJSONAuditSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewZapAuditSink logs each event through logger under the "audit" name.
func NewZapAuditSink(logger *zap.Logger) *audit.ZapSink {
	return audit.NewZapSink(logger)
}

// NewKafkaAuditSink publishes events to topic on brokers.
func NewKafkaAuditSink(brokers []string, topic string, logger *zap.Logger) (*kafkasink.Sink, error) {
	return kafkasink.New(kafkasink.Config{Brokers: brokers, Topic: topic}, logger)
}
