package service

import (
	"sync"
	"time"
)

// DefaultLogBookSize is the number of entries a LogBook keeps.
const DefaultLogBookSize = 100

// LogLevel grades a LogBook entry.
type LogLevel int

const (
	LevelInfo LogLevel = iota
	LevelWarning
	LevelError
	LevelMotion
	LevelSuccess
)

func (l LogLevel) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelMotion:
		return "motion"
	case LevelSuccess:
		return "success"
	default:
		return "info"
	}
}

// LogEntry is one line of subscriber activity.
type LogEntry struct {
	Timestamp     time.Time
	Message       string
	Level         LogLevel
	IsMotionEvent bool
	SensorID      string
	Location      string
}

// LogBook is a bounded, ordered activity log. The oldest entries are
// dropped once it is full.
type LogBook struct {
	mu      sync.Mutex
	entries []LogEntry
	max     int
	now     func() time.Time
	sink    func(LogEntry)
}

// NewLogBook creates a LogBook holding at most size entries. sink, if not
// nil, is called with every entry in order, under the LogBook's lock; it
// must not call back into the LogBook.
func NewLogBook(size int, sink func(LogEntry)) *LogBook {
	if size <= 0 {
		size = DefaultLogBookSize
	}
	return &LogBook{max: size, now: time.Now, sink: sink}
}

// Add appends a plain entry.
func (b *LogBook) Add(message string, level LogLevel) LogEntry {
	return b.add(LogEntry{Message: message, Level: level})
}

// AddMotion appends a motion entry.
func (b *LogBook) AddMotion(message, sensorID, location string) LogEntry {
	return b.add(LogEntry{
		Message:       message,
		Level:         LevelMotion,
		IsMotionEvent: true,
		SensorID:      sensorID,
		Location:      location,
	})
}

func (b *LogBook) add(e LogEntry) LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	e.Timestamp = b.now().UTC()
	b.entries = append(b.entries, e)
	if over := len(b.entries) - b.max; over > 0 {
		b.entries = append(b.entries[:0], b.entries[over:]...)
	}
	if b.sink != nil {
		b.sink(e)
	}
	return e
}

// Entries returns a copy of the entries, oldest first.
func (b *LogBook) Entries() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// MotionCount returns the number of retained motion entries.
func (b *LogBook) MotionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for i := range b.entries {
		if b.entries[i].IsMotionEvent {
			n++
		}
	}
	return n
}

// TotalCount returns the number of retained entries.
func (b *LogBook) TotalCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Clear removes every entry.
func (b *LogBook) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
}
