// Command homemonitor runs the motion alert server (serve), the terminal
// subscriber (watch) and schema maintenance (migrate).
package main

import (
	"fmt"
	"log/slog"
	"os"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := dispatch(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// dispatch runs the subcommand named by args[0]. No argument means serve.
func dispatch(args []string) error {
	if len(args) == 0 {
		return runServe(nil)
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:])
	case "watch":
		return runWatch(args[1:])
	case "migrate":
		return runMigrate(args[1:])
	case "help", "-h", "--help":
		printHelp()
		return nil
	default:
		printHelp()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `Usage: homemonitor <command> [options]

Commands:
  serve     Run the HTTP API, websocket broadcaster and sensor ingest (default)
  watch     Subscribe to a server and print the activity log
  migrate   Apply, roll back or inspect database migrations
  help      Show this help message

Examples:
  homemonitor serve --config /etc/homemonitor.yaml
  homemonitor watch --url ws://pi.local:5000/ws
  homemonitor migrate status
  homemonitor migrate down --steps 1
`)
}
