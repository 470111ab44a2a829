package wsclient

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/coder/websocket"
)

// DefaultBufferSize is the size of each inbound fragment.
const DefaultBufferSize = 4096

// DialerOptions configures the coder/websocket dialer.
type DialerOptions struct {
	BufferSize int   // fragment size, default DefaultBufferSize
	ReadLimit  int64 // max message size, 0 keeps the library default, -1 disables
	Dial       *websocket.DialOptions
}

type wsDialer struct {
	opts DialerOptions
}

// NewDialer returns a Dialer backed by coder/websocket.
func NewDialer(opts DialerOptions) Dialer {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	return &wsDialer{opts: opts}
}

func (d *wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, resp, err := websocket.Dial(ctx, url, d.opts.Dial)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if d.opts.ReadLimit != 0 {
		c.SetReadLimit(d.opts.ReadLimit)
	}
	return &wsConn{c: c, buf: make([]byte, d.opts.BufferSize)}, nil
}

// wsConn streams each message through a fixed buffer so callers see it as
// a series of fragments.
type wsConn struct {
	c   *websocket.Conn
	r   io.Reader
	typ MessageType
	buf []byte
}

func (w *wsConn) Read(ctx context.Context) (Fragment, error) {
	if w.r == nil {
		typ, r, err := w.c.Reader(ctx)
		if err != nil {
			return Fragment{}, w.readErr(err)
		}
		w.r = r
		w.typ = MessageText
		if typ == websocket.MessageBinary {
			w.typ = MessageBinary
		}
	}

	n, err := w.r.Read(w.buf)
	data := make([]byte, n)
	copy(data, w.buf[:n])

	switch {
	case errors.Is(err, io.EOF):
		w.r = nil
		return Fragment{Type: w.typ, Data: data, Final: true}, nil
	case err != nil:
		w.r = nil
		return Fragment{}, w.readErr(err)
	}
	return Fragment{Type: w.typ, Data: data}, nil
}

func (w *wsConn) readErr(err error) error {
	if websocket.CloseStatus(err) != -1 {
		return fmt.Errorf("%w: %v", ErrPeerClosed, err)
	}
	return err
}

func (w *wsConn) Ping(ctx context.Context) error { return w.c.Ping(ctx) }

func (w *wsConn) Close() error { return w.c.Close(websocket.StatusNormalClosure, "") }

func (w *wsConn) CloseNow() error { return w.c.CloseNow() }
