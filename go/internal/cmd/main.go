package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/mcdev12/racedraft/go/internal/catalog"
	"github.com/mcdev12/racedraft/go/internal/dbconfig"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the server config file")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	cat := catalog.Default()

	var database *sql.DB
	dbConfig := dbconfig.NewConfigFromEnv()
	if config.Store.Driver == storePostgres {
		database, err = setupDatabase(ctx, dbConfig, cat)
		if err != nil {
			log.Fatal().Err(err).Msg("setup database")
		}
		defer database.Close()
	}

	services, err := setupServices(ctx, config, database, dbConfig, cat, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("setup services")
	}
	defer services.Close()

	go func() {
		if err := services.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway exited")
		}
	}()
	if services.Relay != nil {
		go func() {
			if err := services.Relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("outbox relay exited")
			}
		}()
	}

	server := setupServer(config, services)
	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("store", config.Store.Driver).
			Bool("embedded_relay", services.Relay != nil).
			Msg("starting race draft server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server exited unexpectedly")
		}
	}

	stats := services.Gateway.GetStats()
	log.Info().
		Int("connections", stats.TotalConnections).
		Int("drafts", stats.ActiveDrafts).
		Msg("closing websocket connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("graceful shutdown complete")
}
