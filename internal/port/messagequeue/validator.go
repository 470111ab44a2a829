package messagequeue

import (
	"encoding/json"
	"fmt"

	"github.com/Strob0t/HomeMonitor/internal/domain/motion"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects only need to be
// valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	var target any
	switch subject {
	case SubjectMotionDetected:
		target = &motion.CreateRequest{}
	case SubjectMotionRecorded:
		target = &motion.Event{}
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
