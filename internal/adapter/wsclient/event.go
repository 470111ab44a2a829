package wsclient

import (
	"github.com/Strob0t/HomeMonitor/internal/adapter/ws"
	"github.com/Strob0t/HomeMonitor/internal/domain/connection"
)

// EventKind discriminates Event.
type EventKind int

const (
	// EventMessage carries a received frame in Event.Message.
	EventMessage EventKind = iota
	// EventNotice carries a human-readable status line in Event.Notice.
	EventNotice
	// EventStatus carries a status transition in Event.Status.
	EventStatus
)

// NoticeLevel grades a notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarning
	NoticeError
	NoticeSuccess
)

// Event is one item on the client's ordered event stream.
type Event struct {
	Kind EventKind

	Message ws.Message // EventMessage

	Notice string      // EventNotice
	Level  NoticeLevel // EventNotice

	Status   connection.Status // EventStatus
	Previous connection.Status // EventStatus

	// Err is the decode error of an EventMessage or the cause of an
	// error notice.
	Err error
}
