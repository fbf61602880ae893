package installer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Subject errors
var (
	ErrObserverNil = errors.New("observer cannot be nil")
)

// ObserverRegistry is the standard Subject implementation: a thread-safe
// observer list with optional per-observer event type filtering.
type ObserverRegistry struct {
	mu        sync.RWMutex
	observers map[string]*registeredObserver
	logger    Logger
}

type registeredObserver struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

func (r *registeredObserver) wants(eventType string) bool {
	return len(r.eventTypes) == 0 || r.eventTypes[eventType]
}

// NewObserverRegistry creates an empty observer registry.
func NewObserverRegistry(logger Logger) *ObserverRegistry {
	return &ObserverRegistry{
		observers: make(map[string]*registeredObserver),
		logger:    logger,
	}
}

// RegisterObserver implements Subject. Registering an observer id twice
// replaces the earlier registration.
func (r *ObserverRegistry) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrObserverNil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	filter := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		filter[t] = true
	}
	r.observers[observer.ObserverID()] = &registeredObserver{
		observer:     observer,
		eventTypes:   filter,
		registeredAt: time.Now(),
	}
	return nil
}

// UnregisterObserver implements Subject. It does not error when the
// observer was never registered.
func (r *ObserverRegistry) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return ErrObserverNil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.observers, observer.ObserverID())
	return nil
}

// NotifyObservers implements Subject. All matching observers are invoked
// synchronously in unspecified order; individual observer errors are
// joined into the returned error but do not prevent delivery to the rest.
func (r *ObserverRegistry) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	r.mu.RLock()
	matching := make([]*registeredObserver, 0, len(r.observers))
	for _, reg := range r.observers {
		if reg.wants(event.Type()) {
			matching = append(matching, reg)
		}
	}
	r.mu.RUnlock()

	var errs []error
	for _, reg := range matching {
		if err := reg.observer.OnEvent(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("observer %s: %w", reg.observer.ObserverID(), err))
		}
	}
	return errors.Join(errs...)
}

// GetObservers implements Subject.
func (r *ObserverRegistry) GetObservers() []ObserverInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ObserverInfo, 0, len(r.observers))
	for id, reg := range r.observers {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		out = append(out, ObserverInfo{
			ID:           id,
			EventTypes:   types,
			RegisteredAt: reg.registeredAt,
		})
	}
	return out
}
