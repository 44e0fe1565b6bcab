package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/racedraft/go/internal/draft/events"
	"github.com/mcdev12/racedraft/go/internal/draft/outbox"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConsumerConfig says which stream and subjects the gateway reads.
type JetStreamConsumerConfig struct {
	StreamName    string
	SubjectFilter string // e.g. "racedraft.events.>"
}

func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	js := outbox.DefaultJetStreamConfig()
	return JetStreamConsumerConfig{
		StreamName:    js.StreamName,
		SubjectFilter: js.SubjectPrefix + ".>",
	}
}

// EventConsumer feeds draft events from JetStream to a handler. Every
// gateway instance holds its own sockets, so each one reads the whole
// stream through an ephemeral ordered consumer starting at new messages.
type EventConsumer struct {
	handler  outbox.HandlerFunc
	consumer jetstream.Consumer
	config   JetStreamConsumerConfig
}

// NewEventConsumer attaches to an existing stream; the outbox publisher
// creates it.
func NewEventConsumer(ctx context.Context, nc *nats.Conn, handler outbox.HandlerFunc, config JetStreamConsumerConfig) (*EventConsumer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	consumer, err := js.OrderedConsumer(ctx, config.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{config.SubjectFilter},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create ordered consumer on %s: %w", config.StreamName, err)
	}

	log.Info().
		Str("stream", config.StreamName).
		Str("filter", config.SubjectFilter).
		Msg("JetStream consumer ready")

	return &EventConsumer{handler: handler, consumer: consumer, config: config}, nil
}

// Start handles messages one at a time, in stream order, until ctx is
// cancelled.
func (ec *EventConsumer) Start(ctx context.Context) error {
	it, err := ec.consumer.Messages()
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	go func() {
		<-ctx.Done()
		it.Stop()
	}()

	log.Info().Str("stream", ec.config.StreamName).Msg("consuming draft events")
	for {
		msg, err := it.Next()
		if errors.Is(err, jetstream.ErrMsgIteratorClosed) {
			log.Info().Msg("event consumer shutting down")
			return nil
		}
		if err != nil {
			log.Warn().Err(err).Msg("failed to fetch draft event")
			continue
		}

		if err := ec.processMessage(ctx, msg.Data()); err != nil {
			// Clients resync from a snapshot on reconnect, so a lost
			// event is not redelivered.
			log.Error().
				Err(err).
				Str("subject", msg.Subject()).
				Msg("failed to process draft event")
		}
	}
}

func (ec *EventConsumer) processMessage(ctx context.Context, data []byte) error {
	var envelope events.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}

	log.Debug().
		Str("event_id", envelope.EventID).
		Str("draft_id", envelope.DraftID).
		Str("event_type", envelope.EventType).
		Msg("processing JetStream event")

	return ec.handler(ctx, envelope)
}
