package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventLaunch       EventType = "launch"
	EventReady        EventType = "ready"
	EventProbeTimeout EventType = "probe_timeout"
	EventCleanup      EventType = "cleanup"
	EventTerminated   EventType = "terminated"
)

// Event records one orchestration lifecycle transition for a service
// (or for the whole stack, when Service is empty).
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Service    string    `json:"service"`
	PID        int       `json:"pid"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for lifecycle events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
