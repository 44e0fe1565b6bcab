package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/racedraft/go/internal/draft/events"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Service is the draft gateway: it holds the websocket connections and
// pushes draft events to them.
type Service struct {
	connectionManager *ConnectionManager
	dispatcher        *Dispatcher
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	eventConsumer     *EventConsumer
}

// Config holds configuration for the draft gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
}

// DefaultConfig returns default configuration for the draft gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

// NewService creates a new draft gateway service. With a NATS connection
// the gateway consumes events from JetStream; without one, events must be
// fed to HandleEvent directly.
func NewService(ctx context.Context, config Config, app DraftApp, nc *nats.Conn, clock clockwork.Clock) (*Service, error) {
	cm := NewConnectionManager(config.ConnectionConfig, app, clock)
	dispatcher := NewDispatcher(app, cm, clock)

	s := &Service{
		connectionManager: cm,
		dispatcher:        dispatcher,
		wsHandler:         NewWebSocketHandler(cm, dispatcher),
		stateHandler:      NewStateHandler(app),
	}

	if nc != nil {
		consumer, err := NewEventConsumer(ctx, nc, dispatcher.Handle, config.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = consumer
	}
	return s, nil
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("jetstream", s.eventConsumer != nil).Msg("starting draft gateway service")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("draft gateway service stopped")
	return nil
}

// HandleEvent delivers one event to connected clients. It is the
// in-process alternative to the JetStream consumer.
func (s *Service) HandleEvent(ctx context.Context, env events.Envelope) error {
	return s.dispatcher.Handle(ctx, env)
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("draft gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
