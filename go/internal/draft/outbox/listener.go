package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrEventNotFound is returned by repositories when an event id is unknown
// or the event was already published.
var ErrEventNotFound = errors.New("outbox event not found or already sent")

type ListenerConfig struct {
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to poll for missed events
	MaxRetries       int
	RetryDelay       time.Duration
	PingInterval     time.Duration
	BatchSize        int32 // Max events to fetch per batch
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    "draft_outbox_events",
		FallbackInterval: 30 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

// Listener relays outbox rows to a Publisher as soon as they are notified,
// with a periodic sweep for anything a notification missed.
type Listener struct {
	app       *App
	notifier  Notifier
	publisher Publisher
	cfg       ListenerConfig
	clock     clockwork.Clock

	mu        sync.Mutex
	running   bool
	processed uint64
	lastEvent time.Time
}

func NewListener(app *App, notifier Notifier, publisher Publisher, cfg ListenerConfig, clock clockwork.Clock) *Listener {
	return &Listener{
		app:       app,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		clock:     clock,
	}
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	l.setRunning(true)
	defer l.setRunning(false)

	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	fallbackTicker := l.clock.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	// Catch up on anything written while we were down.
	if err := l.processUnsent(ctx); err != nil {
		log.Error().Err(err).Msg("failed to process unsent events")
	}

	notify := l.notifier.Notify()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.Stop()
		case extra, ok := <-notify:
			if !ok {
				log.Warn().Msg("notification channel closed")
				return nil
			}
			if extra == "" {
				// Empty notification means the connection was re-established; sweep.
				if err := l.processUnsent(ctx); err != nil {
					log.Error().Err(err).Msg("failed to process unsent events")
				}
				continue
			}
			if err := l.handleNotification(ctx, extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.Chan():
			if err := l.processUnsent(ctx); err != nil {
				log.Error().Err(err).Msg("failed to process unsent events")
			}
		case <-pingTicker.Chan():
			if err := l.notifier.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.notifier.Close()
}

// Stats reports how many events were published and when the last one went out.
func (l *Listener) Stats() (processed uint64, last time.Time, running bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processed, l.lastEvent, l.running
}

func (l *Listener) setRunning(v bool) {
	l.mu.Lock()
	l.running = v
	l.mu.Unlock()
}

func (l *Listener) recordPublished() {
	l.mu.Lock()
	l.processed++
	l.lastEvent = l.clock.Now()
	l.mu.Unlock()
}

// handleNotification handles a notification whose payload is the outbox event id.
// The notified row is relayed through the ordered drain so an older unsent
// row is never overtaken.
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	if _, err := l.app.GetEventByID(ctx, id); err != nil {
		if errors.Is(err, ErrEventNotFound) {
			// Already picked up by a sweep.
			log.Debug().Str("event_id", id.String()).Msg("notified event already sent")
			return nil
		}
		return err
	}

	if err := l.processUnsent(ctx); err != nil {
		return fmt.Errorf("failed to relay notified event %s: %w", id, err)
	}
	return nil
}

// processUnsent drains the outbox in batches.
func (l *Listener) processUnsent(ctx context.Context) error {
	for {
		n, err := l.app.ProcessUnsentEvents(ctx, l.cfg.BatchSize, func(event OutboxEvent) error {
			return l.publishWithRetry(ctx, event)
		})
		if err != nil {
			return err
		}
		if n < int(l.cfg.BatchSize) {
			return nil
		}
	}
}

// publishWithRetry attempts to publish an outbox event with a linear backoff.
func (l *Listener) publishWithRetry(ctx context.Context, event OutboxEvent) error {
	var lastErr error

	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := l.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.clock.After(delay):
			}
		}

		if err := l.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		l.recordPublished()
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", l.cfg.MaxRetries+1, lastErr)
}
