package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/HomeMonitor/internal/domain/motion"
)

// TypeMotionAlert is the discriminator of a motion alert frame.
const TypeMotionAlert = "motion_alert"

// Kind classifies a decoded frame.
type Kind int

const (
	// KindUnclassified is any well-formed frame that is not a motion alert.
	KindUnclassified Kind = iota
	// KindMotionAlert carries a motion.Event in Message.Alert.
	KindMotionAlert
)

func (k Kind) String() string {
	if k == KindMotionAlert {
		return TypeMotionAlert
	}
	return "unclassified"
}

// Message is a decoded server-to-client frame.
type Message struct {
	Kind  Kind
	Type  string        // discriminator as received, may be empty
	Alert *motion.Event // set only for KindMotionAlert
	Raw   string        // original frame text
	Err   error         // set when the frame could not be decoded at all
}

// DecodeError reports a frame that is not a JSON object.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type alertPayload struct {
	ID         int64     `json:"id"`
	SensorID   string    `json:"sensorId"`
	EventType  string    `json:"eventType"`
	DetectedAt time.Time `json:"detectedAt"`
	Location   string    `json:"location"`
}

// Encode renders ev as a motion_alert frame. DetectedAt is always written in UTC.
func Encode(ev motion.Event) ([]byte, error) {
	data, err := json.Marshal(alertPayload{
		ID:         ev.ID,
		SensorID:   ev.SensorID,
		EventType:  ev.EventType,
		DetectedAt: ev.DetectedAt.UTC(),
		Location:   ev.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("encode motion alert: %w", err)
	}
	frame, err := json.Marshal(envelope{Type: TypeMotionAlert, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return frame, nil
}

// Decode classifies a frame by its "type" discriminator. Unknown types and
// motion alerts with a missing or malformed payload decode to
// KindUnclassified without error; only bytes that are not a JSON object
// yield a *DecodeError.
func Decode(frame []byte) (Message, error) {
	msg := Message{Kind: KindUnclassified, Raw: string(frame)}

	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return msg, &DecodeError{Raw: msg.Raw, Err: err}
	}
	msg.Type = env.Type

	if env.Type != TypeMotionAlert {
		return msg, nil
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return msg, nil
	}

	var p alertPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return msg, nil
	}
	if p.Location == "" {
		p.Location = motion.DefaultLocation
	}
	msg.Kind = KindMotionAlert
	msg.Alert = &motion.Event{
		ID:         p.ID,
		SensorID:   p.SensorID,
		EventType:  p.EventType,
		DetectedAt: p.DetectedAt.UTC(),
		Location:   p.Location,
	}
	return msg, nil
}
