// Package desktopagent provides Observer pattern interfaces for event-driven communication.
// Events use the CloudEvents specification so they can be journaled or forwarded
// to external systems without translation.
package desktopagent

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer defines the interface for objects that want to be notified of events.
type Observer interface {
	// OnEvent is called when an event occurs that the observer is interested in.
	// Observers should handle events quickly to avoid blocking other observers.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// Subject defines the interface for objects that can be observed.
type Subject interface {
	// RegisterObserver adds an observer. If eventTypes is empty, the observer
	// receives all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. It is idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers sends an event to all interested observers without
	// blocking the caller.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers returns information about currently registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo provides information about a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// EventType constants for application events, in reverse domain notation.
const (
	// Module lifecycle events
	EventTypeModuleRegistered  = "com.desktopagent.module.registered"
	EventTypeModuleInitialized = "com.desktopagent.module.initialized"

	// Service lifecycle events
	EventTypeServiceRegistered = "com.desktopagent.service.registered"

	// Configuration events
	EventTypeConfigLoaded = "com.desktopagent.config.loaded"

	// Application lifecycle events
	EventTypeApplicationStarted = "com.desktopagent.application.started"
	EventTypeApplicationStopped = "com.desktopagent.application.stopped"
	EventTypeApplicationFailed  = "com.desktopagent.application.failed"
)

// ObservableModule is implemented by modules that emit events or observe other
// modules' events. RegisterObservers is called after the application has been
// initialized, with the application as subject.
type ObservableModule interface {
	Module

	RegisterObservers(subject Subject) error

	// EmitEvent typically delegates to the subject's NotifyObservers.
	EmitEvent(ctx context.Context, event cloudevents.Event) error
}

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates a new observer that uses the provided function
// to handle events.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent implements the Observer interface by calling the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements the Observer interface by returning the observer ID.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
