package natskv_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/HomeMonitor/internal/adapter/natskv"
	"github.com/Strob0t/HomeMonitor/internal/port/cache/cachetest"
)

func TestCompliance(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("nats connect: %v", err)
	}
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("jetstream: %v", err)
	}

	c, err := natskv.Open(context.Background(), js, "HOMEMONITOR_TEST_CACHE", time.Minute)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cachetest.Run(t, c)
}
