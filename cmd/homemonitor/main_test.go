package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/HomeMonitor/internal/adapter/wsclient"
	"github.com/Strob0t/HomeMonitor/internal/service"
)

func TestDispatchUnknownCommand(t *testing.T) {
	err := dispatch([]string{"frobnicate"})
	if err == nil || !strings.Contains(err.Error(), "unknown command: frobnicate") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestDispatchHelp(t *testing.T) {
	if err := dispatch([]string{"help"}); err != nil {
		t.Fatalf("help: %v", err)
	}
	if err := runMigrate(nil); err != nil {
		t.Fatalf("migrate help: %v", err)
	}
}

func TestMigrateUnknownCommand(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:1/none")
	err := runMigrate([]string{"sideways", "--config", "/nonexistent.yaml"})
	if err == nil || !strings.Contains(err.Error(), "unknown migrate command") {
		t.Fatalf("expected unknown migrate command, got %v", err)
	}
}

func TestEntryPrinterText(t *testing.T) {
	var buf bytes.Buffer
	emit := entryPrinter(&buf, true)
	emit(service.LogEntry{
		Timestamp: time.Date(2024, 5, 1, 12, 30, 45, 0, time.Local),
		Message:   "Motion detected! Sensor: S1",
		Level:     service.LevelMotion,
	})
	got := buf.String()
	if !strings.HasPrefix(got, "[12:30:45] MOTION") || !strings.HasSuffix(got, "Motion detected! Sensor: S1\n") {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestReadCommandsQuit(t *testing.T) {
	quit := make(chan struct{})
	readCommands(t.Context(), strings.NewReader("\nquit\nclear\n"), nil, "", func() { close(quit) })
	select {
	case <-quit:
	default:
		t.Fatal("expected quit to be called")
	}
}

func TestReadCommandsRefreshBeforeConnect(t *testing.T) {
	c := wsclient.New(wsclient.NewDialer(wsclient.DialerOptions{}))
	defer func() { _ = c.Close() }()

	var lines []string
	mon := service.NewMonitor(c, service.MonitorOptions{
		OnEntry: func(e service.LogEntry) { lines = append(lines, e.Message) },
	})

	readCommands(t.Context(), strings.NewReader("refresh\n"), mon, "", func() {})

	if len(lines) != 1 || lines[0] != "Not connected!" {
		t.Fatalf("expected refresh to report not connected, got %v", lines)
	}
}
