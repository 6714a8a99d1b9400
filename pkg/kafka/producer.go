package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-core/pkg/config"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
	"github.com/angelmondragon/marketplace-core/pkg/outbox"
)

const (
	defaultWriteTimeout = 10 * time.Second
	dialTimeout         = 5 * time.Second
)

var errNoBrokers = errors.New("kafka brokers are required")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes outbox messages to Kafka. Writes are synchronous and wait
// for every in-sync replica so a returned nil means the event is durable.
type Producer struct {
	brokers []string
	writer  messageWriter
	dial    func(ctx context.Context, network, address string) (net.Conn, error)
}

var _ outbox.Sink = (*Producer)(nil)

func NewProducer(cfg config.EventsConfig, logg *logger.Logger) (*Producer, error) {
	brokers := normalizeBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		return nil, errNoBrokers
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           defaultWriteTimeout,
		AllowAutoTopicCreation: false,
	}
	if logg != nil {
		logg.Info(logg.WithField(context.Background(), "brokers", strings.Join(brokers, ",")), "kafka producer initialized")
	}
	dialer := &net.Dialer{Timeout: dialTimeout}
	return &Producer{brokers: brokers, writer: writer, dial: dialer.DialContext}, nil
}

// Publish writes msg to topic keyed by the aggregate so one aggregate's
// events land on one partition in order.
func (p *Producer) Publish(ctx context.Context, topic string, msg outbox.Message) error {
	if strings.TrimSpace(topic) == "" {
		return errors.New("kafka topic is required")
	}
	record := kafka.Message{
		Topic:   topic,
		Value:   msg.Data,
		Time:    time.Now().UTC(),
		Headers: headers(msg.Attributes),
	}
	if msg.Key != "" {
		record.Key = []byte(msg.Key)
	}
	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("write to %s: %w", topic, err)
	}
	return nil
}

// Ping dials the first reachable broker.
func (p *Producer) Ping(ctx context.Context) error {
	var errs error
	for _, broker := range p.brokers {
		conn, err := p.dial(ctx, "tcp", broker)
		if err == nil {
			return conn.Close()
		}
		errs = multierr.Append(errs, fmt.Errorf("dial %s: %w", broker, err))
	}
	return errs
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func headers(attrs map[string]string) []kafka.Header {
	if len(attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		out = append(out, kafka.Header{Key: k, Value: []byte(attrs[k])})
	}
	return out
}

func normalizeBrokers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, b := range in {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
