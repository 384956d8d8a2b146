package event

import "time"

// Event represents a typed event with an occurrence timestamp.
type Event interface {
	Type() string
	Timestamp() time.Time
}

// FileEvent represents a raw filesystem notification from a watching
// backend, before the Core has re-derived whether it actually changes any
// watched file's resolved configuration.
type FileEvent struct {
	EventType  string
	Path       string
	Operation  string
	OccurredAt time.Time
}

func NewFileEvent(path, operation string) FileEvent {
	return FileEvent{
		EventType:  "file_changed",
		Path:       path,
		Operation:  operation,
		OccurredAt: time.Now().UTC(),
	}
}

func (e FileEvent) Type() string {
	return e.EventType
}

func (e FileEvent) Timestamp() time.Time {
	return e.OccurredAt
}
