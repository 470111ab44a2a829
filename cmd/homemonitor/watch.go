package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Strob0t/HomeMonitor/internal/adapter/homeapi"
	"github.com/Strob0t/HomeMonitor/internal/adapter/wsclient"
	"github.com/Strob0t/HomeMonitor/internal/config"
	"github.com/Strob0t/HomeMonitor/internal/domain"
	"github.com/Strob0t/HomeMonitor/internal/logger"
	"github.com/Strob0t/HomeMonitor/internal/resilience"
	"github.com/Strob0t/HomeMonitor/internal/service"
)

// runWatch connects a Monitor to a server and prints its activity log until
// interrupted. On a terminal it also reads commands from stdin.
func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigFile, "YAML config file")
	url := fs.String("url", "", "websocket URL (default client.url)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if *url == "" {
		*url = cfg.Client.URL
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) //nolint:gosec // fd fits in int
	var (
		log    *slog.Logger
		closer logger.Closer
	)
	if interactive {
		log, closer = logger.NewText(os.Stderr, cfg.Logging)
	} else {
		log, closer = logger.New(cfg.Logging)
	}
	defer closer.Close()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := wsclient.New(
		wsclient.NewDialer(wsclient.DialerOptions{}),
		wsclient.WithBackoff(cfg.Client.InitialBackoff, cfg.Client.MaxBackoff),
		wsclient.WithHandshakeTimeout(cfg.Client.HandshakeTimeout),
		wsclient.WithKeepAlive(cfg.Client.KeepAlive),
		wsclient.WithLogger(log),
	)

	printEntry := entryPrinter(os.Stdout, interactive)
	mon := service.NewMonitor(client, service.MonitorOptions{
		StatsInterval: cfg.Client.StatsInterval,
		NewFetcher: func(baseURL string) service.StatsFetcher {
			return homeapi.NewClient(baseURL,
				homeapi.WithTimeout(cfg.Client.StatsTimeout),
				homeapi.WithBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)),
			)
		},
		OnEntry: printEntry,
	})

	runErr := make(chan error, 1)
	go func() { runErr <- mon.Run(ctx) }()

	if err := mon.Connect(ctx, *url); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			_ = client.Close()
			return err
		}
		// The client keeps retrying in the background.
		slog.Warn("initial connect failed", "url", *url, "error", err)
	}

	if interactive {
		go readCommands(ctx, os.Stdin, mon, *url, stop)
	}

	<-ctx.Done()

	if err := client.Close(); err != nil {
		slog.Warn("close client", "error", err)
	}
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	snap := mon.Snapshot()
	fmt.Fprintf(os.Stderr, "Messages: %d | Motion events: %d\n", snap.TotalMessages, snap.MotionEvents)
	return nil
}

// entryPrinter renders log entries as text lines on a terminal and as
// structured records otherwise.
func entryPrinter(w io.Writer, text bool) func(service.LogEntry) {
	if !text {
		return func(e service.LogEntry) {
			attrs := []any{"level", e.Level.String()}
			if e.IsMotionEvent {
				attrs = append(attrs, "sensor_id", e.SensorID, "location", e.Location)
			}
			slog.Info(e.Message, attrs...)
		}
	}
	return func(e service.LogEntry) {
		_, _ = fmt.Fprintf(w, "[%s] %-7s %s\n", e.Timestamp.Local().Format("15:04:05"), strings.ToUpper(e.Level.String()), e.Message)
	}
}

// readCommands handles interactive commands until ctx ends or input closes.
func readCommands(ctx context.Context, r io.Reader, mon *service.Monitor, defaultURL string, quit func()) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "connect", "c":
			target := defaultURL
			if len(fields) > 1 {
				target = fields[1]
			}
			_ = mon.Connect(ctx, target)
		case "disconnect", "d":
			_ = mon.Disconnect(ctx)
		case "refresh", "r":
			_ = mon.RefreshStats(ctx)
		case "clear", "l":
			mon.ClearLogs()
		case "status", "s":
			snap := mon.Snapshot()
			fmt.Printf("Status: %s | Messages: %d | Motion events: %d\n", snap.Status, snap.TotalMessages, snap.MotionEvents)
			if snap.HasStats {
				fmt.Printf("Server: total %d | last 24h %d | last hour %d | sensors %d | clients %d\n",
					snap.Stats.TotalEvents, snap.Stats.EventsLast24h, snap.Stats.EventsLastHour,
					snap.Stats.ActiveSensors, snap.Stats.ConnectedClients)
			}
		case "quit", "q", "exit":
			quit()
			return
		default:
			fmt.Println("commands: connect [url], disconnect, refresh, clear, status, quit")
		}
	}
}
