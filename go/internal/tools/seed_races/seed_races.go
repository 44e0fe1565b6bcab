package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/racedraft/go/internal/catalog"
	"github.com/mcdev12/racedraft/go/internal/dbconfig"
)

// Upserts every catalog race into the races table. The server does the same
// on startup; this is for databases migrated by hand.
func main() {
	ctx := context.Background()
	cat := catalog.Default()

	// 1) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 2) Upsert and count
	var (
		total    = cat.Len()
		inserted int
		updated  int
		errs     int
	)

	for _, r := range cat.Races() {
		info := cat.Info(r)
		var isInsert bool
		err := pool.QueryRow(ctx, `
            INSERT INTO races (name, emoji, blurb)
            VALUES ($1, $2, $3)
            ON CONFLICT (name) DO UPDATE
              SET emoji = EXCLUDED.emoji, blurb = EXCLUDED.blurb
            RETURNING (xmax = 0)
        `,
			r.String(), info.Emoji, info.Blurb,
		).Scan(&isInsert)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error upserting race %s: %v\n", r, err)
			errs++
			continue
		}
		if isInsert {
			inserted++
		} else {
			updated++
		}
	}

	// 3) Print summary
	fmt.Printf(
		"Races seed complete: %d total, %d inserted, %d updated, %d errors\n",
		total, inserted, updated, errs,
	)
	if errs > 0 {
		os.Exit(1)
	}
}
