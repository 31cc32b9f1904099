package desktopagent

import (
	"context"
	"fmt"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// observerRegistration holds information about a registered observer
type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// ObservableApplication extends StdApplication with observer pattern capabilities.
// Modules implementing ObservableModule are registered against it after Init.
type ObservableApplication struct {
	*StdApplication
	observers     map[string]*observerRegistration
	observerMutex sync.RWMutex
}

// NewObservableApplication creates a new application instance with observer pattern support.
func NewObservableApplication(cp ConfigProvider, logger Logger) *ObservableApplication {
	return &ObservableApplication{
		StdApplication: NewStdApplication(cp, logger),
		observers:      make(map[string]*observerRegistration),
	}
}

// RegisterObserver adds an observer to receive notifications from the application.
func (app *ObservableApplication) RegisterObserver(observer Observer, eventTypes ...string) error {
	app.observerMutex.Lock()
	defer app.observerMutex.Unlock()

	eventTypeMap := make(map[string]bool, len(eventTypes))
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}

	app.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
	}

	app.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer from receiving notifications.
func (app *ObservableApplication) UnregisterObserver(observer Observer) error {
	app.observerMutex.Lock()
	defer app.observerMutex.Unlock()

	if _, exists := app.observers[observer.ObserverID()]; exists {
		delete(app.observers, observer.ObserverID())
		app.logger.Debug("Observer unregistered", "observerID", observer.ObserverID())
	}
	return nil
}

// NotifyObservers sends a CloudEvent to all registered observers. Each observer
// runs in its own goroutine; panics and errors are logged.
func (app *ObservableApplication) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	app.observerMutex.RLock()
	defer app.observerMutex.RUnlock()

	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}

	if err := ValidateCloudEvent(event); err != nil {
		app.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	for _, registration := range app.observers {
		if len(registration.eventTypes) > 0 && !registration.eventTypes[event.Type()] {
			continue
		}

		go func() {
			defer func() {
				if r := recover(); r != nil {
					app.logger.Error("Observer panicked", "observerID", registration.observer.ObserverID(), "event", event.Type(), "panic", r)
				}
			}()

			if err := registration.observer.OnEvent(ctx, event); err != nil {
				app.logger.Error("Observer error", "observerID", registration.observer.ObserverID(), "event", event.Type(), "error", err)
			}
		}()
	}

	return nil
}

func (app *ObservableApplication) emitEvent(ctx context.Context, eventType string, data any) {
	event := NewCloudEvent(eventType, "application", data, nil)
	if err := app.NotifyObservers(ctx, event); err != nil {
		app.logger.Error("Failed to notify observers", "event", eventType, "error", err)
	}
}

// GetObservers returns information about currently registered observers.
func (app *ObservableApplication) GetObservers() []ObserverInfo {
	app.observerMutex.RLock()
	defer app.observerMutex.RUnlock()

	info := make([]ObserverInfo, 0, len(app.observers))
	for _, registration := range app.observers {
		eventTypes := make([]string, 0, len(registration.eventTypes))
		for eventType := range registration.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}
		info = append(info, ObserverInfo{
			ID:           registration.observer.ObserverID(),
			EventTypes:   eventTypes,
			RegisteredAt: registration.registeredAt,
		})
	}
	return info
}

// RegisterModule registers a module and emits CloudEvent
func (app *ObservableApplication) RegisterModule(module Module) {
	app.StdApplication.RegisterModule(module)
	app.emitEvent(context.Background(), EventTypeModuleRegistered, map[string]any{
		"moduleName": module.Name(),
		"moduleType": fmt.Sprintf("%T", module),
	})
}

// RegisterService registers a service and emits CloudEvent
func (app *ObservableApplication) RegisterService(name string, service any) error {
	if err := app.StdApplication.RegisterService(name, service); err != nil {
		return err
	}
	app.emitEvent(context.Background(), EventTypeServiceRegistered, map[string]any{
		"serviceName": name,
		"serviceType": fmt.Sprintf("%T", service),
	})
	return nil
}

// Init initializes the application and registers observable modules.
func (app *ObservableApplication) Init() error {
	ctx := context.Background()

	if err := app.StdApplication.Init(); err != nil {
		app.emitEvent(ctx, EventTypeApplicationFailed, map[string]any{"phase": "init", "error": err.Error()})
		return err
	}
	app.emitEvent(ctx, EventTypeConfigLoaded, map[string]any{"sections": len(app.cfgSections)})

	for _, module := range app.moduleRegistry {
		app.emitEvent(ctx, EventTypeModuleInitialized, map[string]any{"moduleName": module.Name()})
		if observableModule, ok := module.(ObservableModule); ok {
			if err := observableModule.RegisterObservers(app); err != nil {
				app.logger.Error("Failed to register observers for module", "module", module.Name(), "error", err)
			}
		}
	}

	return nil
}

// Start starts the application and emits lifecycle events
func (app *ObservableApplication) Start() error {
	ctx := context.Background()
	if err := app.StdApplication.Start(); err != nil {
		app.emitEvent(ctx, EventTypeApplicationFailed, map[string]any{"phase": "start", "error": err.Error()})
		return err
	}
	app.emitEvent(ctx, EventTypeApplicationStarted, nil)
	return nil
}

// Stop stops the application and emits lifecycle events
func (app *ObservableApplication) Stop() error {
	ctx := context.Background()
	if err := app.StdApplication.Stop(); err != nil {
		app.emitEvent(ctx, EventTypeApplicationFailed, map[string]any{"phase": "stop", "error": err.Error()})
		return err
	}
	app.emitEvent(ctx, EventTypeApplicationStopped, nil)
	return nil
}

// Run initializes, starts and blocks until a termination signal, going through
// the observable lifecycle methods.
func (app *ObservableApplication) Run() error {
	if err := app.Init(); err != nil {
		return err
	}
	if err := app.Start(); err != nil {
		return err
	}
	waitForSignal(app.logger)
	return app.Stop()
}
