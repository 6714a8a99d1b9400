package outbox

import (
	"context"

	"github.com/angelmondragon/marketplace-core/pkg/logger"
)

// Message is the transport-neutral form of a published outbox row.
type Message struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Sink delivers messages to a broker topic. Publish blocks until the broker
// acknowledges the message.
type Sink interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Ping(ctx context.Context) error
	Close() error
}

// LogSink writes every message to the logger instead of a broker. Used for
// local development.
type LogSink struct {
	logg *logger.Logger
}

func NewLogSink(logg *logger.Logger) *LogSink {
	return &LogSink{logg: logg}
}

func (s *LogSink) Publish(ctx context.Context, topic string, msg Message) error {
	if s.logg == nil {
		return nil
	}
	fields := map[string]any{"topic": topic, "key": msg.Key, "payload": string(msg.Data)}
	for k, v := range msg.Attributes {
		fields["attr_"+k] = v
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "outbox message")
	return nil
}

func (s *LogSink) Ping(context.Context) error { return nil }

func (s *LogSink) Close() error { return nil }
