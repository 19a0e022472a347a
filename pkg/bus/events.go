package bus

import (
	"time"
)

// Event types emitted by the registry.
const (
	// EventServiceRegistered is emitted when a service registers or re-registers.
	EventServiceRegistered = "service_registered"

	// EventServiceUnregistered is emitted when a service deliberately unregisters.
	EventServiceUnregistered = "service_unregistered"

	// EventHeartbeatMissed is emitted when a heartbeat send fails on every tier.
	EventHeartbeatMissed = "heartbeat_missed"

	// EventServicesPruned is emitted after stale registrations are removed.
	EventServicesPruned = "services_pruned"
)

// Event is the envelope for all registry lifecycle events. It is serialized
// to JSON on the wire. Fields that don't apply to an event type are omitted.
type Event struct {
	Type        string    `json:"type"`
	ServiceName string    `json:"serviceName,omitempty"`
	Environment string    `json:"environment,omitempty"`
	Endpoint    string    `json:"endpoint,omitempty"`
	Count       int64     `json:"count,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// NewServiceRegistered creates a service_registered event.
func NewServiceRegistered(serviceName, environment, endpoint string) *Event {
	return &Event{
		Type:        EventServiceRegistered,
		ServiceName: serviceName,
		Environment: environment,
		Endpoint:    endpoint,
		OccurredAt:  time.Now().UTC(),
	}
}

// NewServiceUnregistered creates a service_unregistered event.
func NewServiceUnregistered(serviceName, environment string) *Event {
	return &Event{
		Type:        EventServiceUnregistered,
		ServiceName: serviceName,
		Environment: environment,
		OccurredAt:  time.Now().UTC(),
	}
}

// NewHeartbeatMissed creates a heartbeat_missed event.
func NewHeartbeatMissed(serviceName, environment string) *Event {
	return &Event{
		Type:        EventHeartbeatMissed,
		ServiceName: serviceName,
		Environment: environment,
		OccurredAt:  time.Now().UTC(),
	}
}

// NewServicesPruned creates a services_pruned event carrying the number of
// registrations removed.
func NewServicesPruned(count int64) *Event {
	return &Event{
		Type:       EventServicesPruned,
		Count:      count,
		OccurredAt: time.Now().UTC(),
	}
}
