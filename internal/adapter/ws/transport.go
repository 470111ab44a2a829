package ws

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
)

// Transport is one subscriber's outbound side as the registry sees it.
// IsOpen must reflect the live state of the underlying socket.
type Transport interface {
	SendText(ctx context.Context, data []byte) error
	IsOpen() bool
	Close() error
}

// maxInboundMessage bounds what a subscriber may send us; the server only
// reads to detect closure.
const maxInboundMessage = 4096

// socket adapts a *websocket.Conn to Transport.
type socket struct {
	c         *websocket.Conn
	open      atomic.Bool
	closeOnce sync.Once
}

func newSocket(c *websocket.Conn) *socket {
	c.SetReadLimit(maxInboundMessage)
	s := &socket{c: c}
	s.open.Store(true)
	return s
}

// SendText writes one text frame. On a write timeout coder/websocket closes
// the connection, which in turn ends the read loop that owns removal.
func (s *socket) SendText(ctx context.Context, data []byte) error {
	if err := s.c.Write(ctx, websocket.MessageText, data); err != nil {
		s.open.Store(false)
		return err
	}
	return nil
}

func (s *socket) IsOpen() bool { return s.open.Load() }

// drain reads and discards inbound frames until the peer closes or ctx ends.
func (s *socket) drain(ctx context.Context) error {
	for {
		if _, _, err := s.c.Read(ctx); err != nil {
			s.open.Store(false)
			return err
		}
	}
}

// Close performs a graceful close once; later calls are no-ops.
func (s *socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.open.Store(false)
		err = s.c.Close(websocket.StatusNormalClosure, "")
	})
	return err
}
