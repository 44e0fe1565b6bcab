package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/racedraft/go/internal/catalog"
	"github.com/mcdev12/racedraft/go/internal/dbconfig"
	"github.com/mcdev12/racedraft/go/internal/draft/db"
)

func setupDatabase(ctx context.Context, dbConfig dbconfig.Config, cat *catalog.Catalog) (*sql.DB, error) {
	database, err := sql.Open("postgres", dbConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.Migrate(ctx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	// Selections reference the races table, so every catalog race must exist
	// before the first pick.
	queries := db.New(database)
	for _, r := range cat.Races() {
		info := cat.Info(r)
		if err := queries.UpsertRace(ctx, db.UpsertRaceParams{
			Name:  r.String(),
			Emoji: info.Emoji,
			Blurb: info.Blurb,
		}); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to seed race %s: %w", r, err)
		}
	}

	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Int("races", cat.Len()).
		Msg("connected to database")
	return database, nil
}
