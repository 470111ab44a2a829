// Package wsclient implements the subscriber side of the alert channel: a
// websocket client that reports its connection status and reconnects with
// exponential backoff until it is disconnected on purpose.
package wsclient

import (
	"context"
	"errors"
	"fmt"
)

// MessageType is the frame type of an inbound message.
type MessageType int

const (
	MessageText MessageType = iota + 1
	MessageBinary
)

// Fragment is one chunk of an inbound message. Final marks the last chunk.
type Fragment struct {
	Type  MessageType
	Data  []byte
	Final bool
}

// Conn is an established connection.
type Conn interface {
	// Read returns the next fragment. A close frame from the peer yields an
	// error wrapping ErrPeerClosed.
	Read(ctx context.Context) (Fragment, error)
	Ping(ctx context.Context) error
	// Close performs the closing handshake.
	Close() error
	// CloseNow drops the connection without a handshake.
	CloseNow() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

var (
	// ErrPeerClosed is returned by Conn.Read when the peer sent a close frame.
	ErrPeerClosed = errors.New("connection closed by peer")
	// ErrClientClosed is returned by operations on a closed Client.
	ErrClientClosed = errors.New("client closed")
	// ErrAborted is returned when a disconnect overtook an in-flight connect.
	ErrAborted = errors.New("connect aborted by disconnect")
)

// EstablishError reports a failed connect attempt.
type EstablishError struct {
	URL string
	Err error
}

func (e *EstablishError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *EstablishError) Unwrap() error { return e.Err }

// ReceiveError reports a transport failure while reading.
type ReceiveError struct {
	Err error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("receive: %v", e.Err)
}

func (e *ReceiveError) Unwrap() error { return e.Err }
