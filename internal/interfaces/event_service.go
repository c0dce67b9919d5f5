package interfaces

import "context"

// EventType names a run lifecycle event
type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventStepCompleted EventType = "step_completed"
	EventRunCompleted  EventType = "run_completed"
	EventSignal        EventType = "signal"
	EventStateWarning  EventType = "state_warning"
)

// AllEventTypes lists every event type published by the engine
var AllEventTypes = []EventType{
	EventRunStarted,
	EventStepCompleted,
	EventRunCompleted,
	EventSignal,
	EventStateWarning,
}

// Event is one published occurrence. Engine payloads are map[string]interface{}
// keyed by run_id, scenario and event specific fields.
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler receives events of the types it subscribed to
type EventHandler func(ctx context.Context, event Event) error

// EventService is the bus between the executor and its observers (logs, /ws clients)
type EventService interface {
	// Subscribe registers handler for eventType. Each handler sees events in publish order.
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish hands the event to subscribers without waiting for them
	Publish(ctx context.Context, event Event) error

	// PublishSync calls every subscriber before returning and joins their errors
	PublishSync(ctx context.Context, event Event) error

	// Close delivers queued events and removes all subscribers
	Close() error
}
