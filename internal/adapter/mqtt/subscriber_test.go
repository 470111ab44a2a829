package mqtt

import (
	"context"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Strob0t/HomeMonitor/internal/config"
)

func TestSubscriberReceivesPublishedMessage(t *testing.T) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		t.Skip("requires MQTT_BROKER")
	}

	cfg := config.MQTT{
		Broker:   broker,
		ClientID: "homemonitor-test-sub",
		Topic:    "homemonitor/test/" + t.Name() + "/#",
		QoS:      1,
	}

	got := make(chan string, 1)
	sub := NewSubscriber(cfg, func(_ context.Context, topic string, payload []byte) error {
		select {
		case got <- topic + " " + string(payload):
		default:
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sub.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sub.Stop()

	pubOpts := paho.NewClientOptions().AddBroker(broker).SetClientID("homemonitor-test-pub")
	pub := paho.NewClient(pubOpts)
	if err := wait(ctx, pub.Connect()); err != nil {
		t.Fatalf("publisher connect: %v", err)
	}
	defer pub.Disconnect(100)

	topic := "homemonitor/test/" + t.Name() + "/S1"
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		// The subscription is set up asynchronously in the connect handler.
		pub.Publish(topic, 1, false, []byte(`{"location":"Kitchen"}`))
		select {
		case msg := <-got:
			if msg != topic+` {"location":"Kitchen"}` {
				t.Fatalf("unexpected message %q", msg)
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("no message received")
		}
	}
}

func unreachableSubscriber(t *testing.T) *Subscriber {
	t.Helper()
	sub := NewSubscriber(config.MQTT{
		Broker:   "tcp://127.0.0.1:1",
		ClientID: "homemonitor-test-unreachable",
		Topic:    "homemonitor/motion/#",
	}, func(context.Context, string, []byte) error { return nil })
	sub.startupWait = 100 * time.Millisecond
	t.Cleanup(sub.Stop)
	return sub
}

func TestStartReturnsPromptlyWhenBrokerDown(t *testing.T) {
	sub := unreachableSubscriber(t)

	done := make(chan error, 1)
	go func() { done <- sub.Start(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected Start to leave the client retrying, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start blocked on an unreachable broker")
	}
}

func TestStartFailsWhenContextEnds(t *testing.T) {
	sub := unreachableSubscriber(t)
	sub.startupWait = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := sub.Start(ctx); err == nil {
		t.Fatal("expected error when ctx ends before the broker is reachable")
	}
}
