package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/Strob0t/HomeMonitor/internal/adapter/postgres"
	"github.com/Strob0t/HomeMonitor/internal/config"
)

// runMigrate dispatches migrate subcommands (up, down, status).
func runMigrate(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printMigrateHelp()
		return nil
	}

	fs := flag.NewFlagSet("migrate "+args[0], flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigFile, "YAML config file")
	steps := fs.Int("steps", 1, "number of migrations to roll back (down only)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()

	switch args[0] {
	case "up":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if *steps < 1 {
			return fmt.Errorf("--steps must be >= 1")
		}
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	case "status":
	default:
		printMigrateHelp()
		return fmt.Errorf("unknown migrate command: %s", args[0])
	}

	version, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Schema version: %d\n", version)
	return nil
}

func printMigrateHelp() {
	fmt.Fprintf(os.Stderr, `Usage: homemonitor migrate <command> [options]

Commands:
  up       Apply all pending migrations
  down     Roll back migrations (--steps N, default 1)
  status   Print the current schema version
`)
}
