// Command outbox relays draft events from the Postgres outbox to JetStream.
// Run it when the API server is started with the embedded relay disabled.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/mcdev12/racedraft/go/internal/dbconfig"
	"github.com/mcdev12/racedraft/go/internal/draft/outbox"
	"github.com/mcdev12/racedraft/go/internal/draft/repository"
)

type relayFlags struct {
	natsURL          string
	stream           string
	subjectPrefix    string
	fallbackInterval time.Duration
	healthAddr       string
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	defaults := outbox.DefaultJetStreamConfig()
	var f relayFlags
	pflag.StringVar(&f.natsURL, "nats-url", envOr("NATS_URL", defaults.URL), "NATS server url")
	pflag.StringVar(&f.stream, "stream", defaults.StreamName, "JetStream stream name")
	pflag.StringVar(&f.subjectPrefix, "subject-prefix", defaults.SubjectPrefix, "subject prefix for draft events")
	pflag.DurationVar(&f.fallbackInterval, "fallback-interval", outbox.DefaultListenerConfig().FallbackInterval, "how often to sweep for missed events")
	pflag.StringVar(&f.healthAddr, "health-addr", ":"+envOr("HEALTH_PORT", "8081"), "address for the health endpoint")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f); err != nil {
		log.Fatal().Err(err).Msg("outbox relay failed")
	}
	log.Info().Msg("graceful shutdown complete")
}

func run(ctx context.Context, f relayFlags) error {
	clock := clockwork.NewRealClock()

	cfg := dbconfig.NewConfigFromEnv()
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	log.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("connected to database")

	jsCfg := outbox.DefaultJetStreamConfig()
	jsCfg.URL = f.natsURL
	jsCfg.StreamName = f.stream
	jsCfg.SubjectPrefix = f.subjectPrefix
	publisher, err := outbox.NewJetStreamPublisher(jsCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("close publisher")
		}
	}()

	ltCfg := outbox.DefaultListenerConfig()
	ltCfg.FallbackInterval = f.fallbackInterval
	notifier, err := outbox.NewPQNotifier(cfg.DSN(), ltCfg.NotifyChannel)
	if err != nil {
		return err
	}

	app := outbox.NewApp(repository.NewPostgres(db, clock))
	listener := outbox.NewListener(app, notifier, publisher, ltCfg, clock)

	health := &http.Server{
		Addr:    f.healthAddr,
		Handler: outbox.NewHealthChecker(listener, app, db, publisher.Conn(), clock, 5*time.Minute),
	}
	go func() {
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server exited")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = health.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("stream", jsCfg.StreamName).
		Str("health", f.healthAddr).
		Msg("starting outbox relay")
	err = listener.Start(ctx)
	switch {
	case ctx.Err() != nil:
		return nil
	case err != nil:
		return fmt.Errorf("listener: %w", err)
	default:
		return errors.New("notification channel closed")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
