// Package connection defines the connectivity states a subscriber moves
// through while it keeps its link to the broadcast endpoint alive.
package connection

// Status is the client-observed connectivity state. Exactly one value is
// current at any instant.
type Status int

const (
	StatusDisconnected Status = iota // initial and re-enterable
	StatusConnecting
	StatusConnected
	StatusError
)

// String returns the lower-case state name used in logs.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// IsConnected reports whether s is StatusConnected.
func (s Status) IsConnected() bool { return s == StatusConnected }
