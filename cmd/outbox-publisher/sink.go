package main

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketplace-core/pkg/config"
	"github.com/angelmondragon/marketplace-core/pkg/kafka"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
	"github.com/angelmondragon/marketplace-core/pkg/outbox"
	"github.com/angelmondragon/marketplace-core/pkg/pubsub"
)

// newSink builds the configured event sink and returns it with the topic
// every event is routed to.
func newSink(ctx context.Context, cfg config.EventsConfig, logg *logger.Logger) (outbox.Sink, string, error) {
	switch kind := cfg.SinkKind(); kind {
	case config.EventSinkPubSub:
		client, err := pubsub.NewClient(ctx, cfg, logg)
		if err != nil {
			return nil, "", err
		}
		return client, cfg.PubSubTopic, nil
	case config.EventSinkKafka:
		producer, err := kafka.NewProducer(cfg, logg)
		if err != nil {
			return nil, "", err
		}
		return producer, cfg.KafkaTopic, nil
	case config.EventSinkLog:
		return outbox.NewLogSink(logg), "log", nil
	default:
		return nil, "", fmt.Errorf("unknown event sink %q", kind)
	}
}
