// Command migrate manages the database schema and moves subscription state
// between the database and the snapshot directory.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"sale_bot/internal/snapshot"
	"sale_bot/internal/storage"
	"sale_bot/migrations"
)

const usage = `Usage: migrate [-db path] [-state dir] <command>

Schema commands:
  up          Migrate to the latest version
  up-one      Migrate one version up
  down        Roll back one version
  status      Show migration status
  version     Show current version
  reset       Roll back all migrations

State commands:
  export      Write subscriptions and chat filters to the state directory
  restore     Load the state directory into the database`

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/bot.db"), "path to sqlite database")
	stateDir := flag.String("state", envOrDefault("STATE_DIR", "./state"), "snapshot directory")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := args[0]
	var err error
	switch cmd {
	case "export", "restore":
		err = runState(cmd, *dbPath, *stateDir)
	default:
		err = runSchema(cmd, *dbPath)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func runSchema(cmd, dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Prepare(); err != nil {
		return err
	}

	switch cmd {
	case "up":
		return goose.Up(db, ".")
	case "up-one":
		return goose.UpByOne(db, ".")
	case "down":
		return goose.Down(db, ".")
	case "status":
		return goose.Status(db, ".")
	case "version":
		return goose.Version(db, ".")
	case "reset":
		return goose.Reset(db, ".")
	}
	return fmt.Errorf("unknown command: %s", cmd)
}

func runState(cmd, dbPath, stateDir string) error {
	ctx := context.Background()
	store, err := storage.NewSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	snap := snapshot.New(stateDir, store, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if cmd == "export" {
		return snap.Flush(ctx)
	}

	st, err := snap.Restore(ctx)
	if err != nil {
		return err
	}
	log.Printf("restored %d subscriptions and %d chat filters", len(st.Subscriptions), len(st.Preferences))
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
