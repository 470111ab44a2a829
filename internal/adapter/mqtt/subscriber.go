// Package mqtt subscribes to sensor detections published on an MQTT broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Strob0t/HomeMonitor/internal/config"
)

// Handler processes one MQTT message.
type Handler func(ctx context.Context, topic string, payload []byte) error

const (
	handleTimeout   = 5 * time.Second
	disconnectQuiet = 250 // ms

	// DefaultStartupWait bounds how long Start waits for the first connect.
	DefaultStartupWait = 5 * time.Second
)

// Subscriber delivers every message on the configured topic filter to a
// Handler. The subscription is re-established after each reconnect.
type Subscriber struct {
	cfg         config.MQTT
	handler     Handler
	client      paho.Client
	startupWait time.Duration
}

// NewSubscriber builds a subscriber. It does not connect until Start.
func NewSubscriber(cfg config.MQTT, handler Handler) *Subscriber {
	s := &Subscriber{cfg: cfg, handler: handler, startupWait: DefaultStartupWait}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		slog.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	})

	s.client = paho.NewClient(opts)
	return s
}

// Start connects to the broker. The connect token of a retrying client only
// completes once the broker is up, so Start waits at most the startup wait
// and then leaves the client retrying in the background; onConnect
// subscribes whenever the connection comes up. Start fails only when ctx
// ends first or the connect attempt itself reports an error.
func (s *Subscriber) Start(ctx context.Context) error {
	tok := s.client.Connect()

	wctx, cancel := context.WithTimeout(ctx, s.startupWait)
	defer cancel()

	err := wait(wctx, tok)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("mqtt connect %s: %w", s.cfg.Broker, err)
	case wctx.Err() != nil:
		slog.Warn("mqtt broker not reachable yet, retrying in background",
			"broker", s.cfg.Broker, "waited", s.startupWait)
		return nil
	default:
		return fmt.Errorf("mqtt connect %s: %w", s.cfg.Broker, err)
	}
}

// Stop unsubscribes and disconnects.
func (s *Subscriber) Stop() {
	if s.client.IsConnected() {
		s.client.Unsubscribe(s.cfg.Topic).WaitTimeout(time.Second)
	}
	s.client.Disconnect(disconnectQuiet)
	slog.Info("mqtt disconnected", "broker", s.cfg.Broker)
}

func (s *Subscriber) onConnect(c paho.Client) {
	tok := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage)
	if !tok.WaitTimeout(10*time.Second) || tok.Error() != nil {
		slog.Error("mqtt subscribe failed", "topic", s.cfg.Topic, "error", tok.Error())
		return
	}
	slog.Info("mqtt subscribed", "broker", s.cfg.Broker, "topic", s.cfg.Topic, "qos", s.cfg.QoS)
}

func (s *Subscriber) onMessage(_ paho.Client, msg paho.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	if err := s.handler(ctx, msg.Topic(), msg.Payload()); err != nil {
		slog.Warn("mqtt message rejected", "topic", msg.Topic(), "error", err)
	}
}

// wait blocks until tok completes or ctx ends.
func wait(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return errors.Join(errors.New("mqtt token not completed"), ctx.Err())
	}
}
