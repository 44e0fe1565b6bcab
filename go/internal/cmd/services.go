package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"

	"github.com/mcdev12/racedraft/go/internal/catalog"
	"github.com/mcdev12/racedraft/go/internal/dbconfig"
	"github.com/mcdev12/racedraft/go/internal/draft/draft"
	"github.com/mcdev12/racedraft/go/internal/draft/engine"
	"github.com/mcdev12/racedraft/go/internal/draft/gateway"
	"github.com/mcdev12/racedraft/go/internal/draft/outbox"
	"github.com/mcdev12/racedraft/go/internal/draft/repository"
)

const outboxStallThreshold = 5 * time.Minute

type Services struct {
	Draft   *draft.Service
	Gateway *gateway.Service

	// Relay and Health are nil when the outbox relay runs out of process.
	Relay  *outbox.Listener
	Health *outbox.HealthChecker

	closers []io.Closer
}

// Close releases broker and notifier connections in reverse order.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
}

type draftStore interface {
	draft.DraftRepository
	outbox.OutboxRepository
}

func setupServices(ctx context.Context, config *Config, database *sql.DB, dbConfig dbconfig.Config, cat *catalog.Catalog, clock clockwork.Clock) (*Services, error) {
	// Wire up dependency injection chain
	// Store → App → Service, with the outbox relay feeding the gateway
	s := &Services{}

	var (
		store    draftStore
		notifier outbox.Notifier
		pinger   outbox.Pinger
	)
	listenerCfg := outbox.DefaultListenerConfig()

	switch config.Store.Driver {
	case storePostgres:
		store = repository.NewPostgres(database, clock)
		pinger = database
		if config.Outbox.Embedded {
			pq, err := outbox.NewPQNotifier(dbConfig.DSN(), listenerCfg.NotifyChannel)
			if err != nil {
				return nil, err
			}
			notifier = pq
		}
	default:
		mem := repository.NewMemory(clock)
		store = mem
		notifier = mem
	}
	if notifier != nil {
		s.closers = append(s.closers, notifier)
	}

	rng := engine.DefaultSource
	if config.Draft.Seed != 0 {
		rng = engine.NewSeededSource(config.Draft.Seed)
	}

	// Draft
	draftApp := draft.NewApp(store, cat, clock, rng, draft.Config{
		MaxParticipants: config.Draft.MaxParticipants,
		OptionsPerTurn:  config.Draft.OptionsPerTurn,
	})
	s.Draft = draft.NewService(draftApp)

	// Event bus
	jsCfg := outbox.DefaultJetStreamConfig()
	if config.NATS.Stream != "" {
		jsCfg.StreamName = config.NATS.Stream
	}
	if config.NATS.SubjectPrefix != "" {
		jsCfg.SubjectPrefix = config.NATS.SubjectPrefix
	}

	var (
		nc        *nats.Conn
		publisher outbox.Publisher
	)
	if config.NATS.URL != "" {
		jsCfg.URL = config.NATS.URL
		if config.Outbox.Embedded {
			jsPublisher, err := outbox.NewJetStreamPublisher(jsCfg)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
			}
			s.closers = append(s.closers, jsPublisher)
			nc = jsPublisher.Conn()
			publisher = jsPublisher
		} else {
			conn, err := outbox.Connect(jsCfg.URL, jsCfg.MaxReconnects, jsCfg.ReconnectWait)
			if err != nil {
				s.Close()
				return nil, err
			}
			s.closers = append(s.closers, closerFunc(func() error { conn.Close(); return nil }))
			nc = conn
		}
	}

	// Gateway
	gwCfg := gateway.DefaultConfig()
	gwCfg.JetStreamConfig.StreamName = jsCfg.StreamName
	gwCfg.JetStreamConfig.SubjectFilter = jsCfg.SubjectPrefix + ".>"
	gw, err := gateway.NewService(ctx, gwCfg, draftApp, nc, clock)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Gateway = gw

	// Outbox relay
	if config.Outbox.Embedded {
		if publisher == nil {
			publisher = outbox.NewLocalPublisher(gw.HandleEvent)
		}
		outboxApp := outbox.NewApp(store)
		s.Relay = outbox.NewListener(outboxApp, notifier, outbox.MultiPublisher{outbox.LogPublisher{}, publisher}, listenerCfg, clock)
		s.Health = outbox.NewHealthChecker(s.Relay, outboxApp, pinger, nc, clock, outboxStallThreshold)
	}

	return s, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
