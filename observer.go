package installer

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer defines the interface for subscribers to lifecycle events.
// Observers register with a Subject and are invoked for each published
// event. Observers should return quickly to avoid delaying other
// observers; event delivery is best-effort and never transactional.
type Observer interface {
	// OnEvent is called for each event the observer is subscribed to.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer, used for
	// registration tracking and debugging.
	ObserverID() string
}

// Subject defines the interface for event sources that observers can
// subscribe to.
type Subject interface {
	// RegisterObserver adds an observer, optionally filtered to specific
	// event types. An empty filter receives all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. It is idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers delivers an event to all matching observers.
	// Observer errors are collected but do not stop delivery to the
	// remaining observers.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers returns information about registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer for debugging and
// administrative interfaces.
type ObserverInfo struct {
	// ID is the unique identifier of the observer
	ID string `json:"id"`

	// EventTypes are the event types this observer is subscribed to.
	// Empty means all events.
	EventTypes []string `json:"eventTypes"`

	// RegisteredAt indicates when the observer was registered
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event type constants for installation lifecycle events, in CloudEvents
// reverse domain notation.
const (
	// Module lifecycle events
	EventTypeModuleLoaded   = "com.modworks.installer.module.loaded"
	EventTypeModuleUnloaded = "com.modworks.installer.module.unloaded"
	EventTypeModuleStarted  = "com.modworks.installer.module.started"
	EventTypeModuleFailed   = "com.modworks.installer.module.failed"

	// Configuration events
	EventTypeModuleConfigured = "com.modworks.installer.module.configured"

	// Health events
	EventTypeHealthEvaluated = "com.modworks.installer.health.evaluated"
)

// FunctionalObserver adapts a function to the Observer interface, for
// quick observer creation without a dedicated struct.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer that delegates to the given
// handler function.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

// OnEvent implements Observer by calling the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements Observer.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
