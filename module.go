// Package desktopagent is the application kernel of the FDC3 desktop agent.
//
// The agent is assembled from independent modules (messaging fabric, app directory,
// launcher, resolver UI, the desktop agent itself, journal and admin API). Each module
// implements Module and optionally Configurable, DependencyAware, ServiceAware,
// Startable, Stoppable or ObservableModule. The application loads configuration for
// every module, initializes them in dependency order, wires services between them and
// drives their start/stop lifecycle.
//
// Basic usage:
//
//	app := desktopagent.NewObservableApplication(desktopagent.NewStdConfigProvider(&AppConfig{}), logger)
//	app.RegisterModule(messaging.NewModule())
//	app.RegisterModule(interop.NewModule())
//	if err := app.Run(); err != nil {
//		log.Fatal(err)
//	}
package desktopagent

import (
	"context"
	"reflect"
)

// Module represents a registrable component in the application.
// All modules must implement this interface to be managed by the application.
type Module interface {
	// Name returns the unique identifier for this module.
	// The name is used for dependency resolution, config section lookup
	// and logging, so it must be unique within the application.
	Name() string

	// Init initializes the module with the application context.
	// It is called after all configuration has been fed, in dependency order,
	// and after any required services have been injected.
	Init(app Application) error
}

// Configurable is implemented by modules that own a configuration section.
//
// Example:
//
//	func (m *MyModule) RegisterConfig(app Application) error {
//	    app.RegisterConfigSection(m.Name(), desktopagent.NewStdConfigProvider(&MyConfig{}))
//	    return nil
//	}
type Configurable interface {
	// RegisterConfig registers the module's configuration section.
	// It is called before configuration is loaded, so the registered structure
	// should hold defaults that feeders may override.
	RegisterConfig(app Application) error
}

// DependencyAware is implemented by modules that must be initialized after
// other modules. Dependencies are module names; a missing dependency or a cycle
// fails application initialization.
type DependencyAware interface {
	Dependencies() []string
}

// ServiceAware is implemented by modules that provide or consume services.
type ServiceAware interface {
	// ProvidesServices returns the services this module registers after Init.
	ProvidesServices() []ServiceProvider

	// RequiresServices returns the services this module needs. Services can be
	// matched by name or by interface; required services that cannot be found
	// fail initialization.
	RequiresServices() []ServiceDependency
}

// Startable is implemented by modules with runtime work (listeners, workers,
// subscriptions). Start is called in dependency order after every module has
// been initialized. The context is the application's lifecycle context.
type Startable interface {
	Start(ctx context.Context) error
}

// Stoppable is implemented by modules that release resources on shutdown.
// Stop is called in reverse dependency order with a context carrying the
// shutdown deadline.
type Stoppable interface {
	Stop(ctx context.Context) error
}

// Constructable is implemented by modules that want their required services
// handed to a constructor instead of looking them up in Init.
type Constructable interface {
	Constructor() ModuleConstructor
}

// ModuleConstructor creates a module instance from the resolved services the
// module declared in RequiresServices, keyed by service name.
type ModuleConstructor func(app Application, services map[string]any) (Module, error)

// ModuleRegistry holds registered modules keyed by name.
type ModuleRegistry map[string]Module

// ServiceProvider describes a service offered by a module.
type ServiceProvider struct {
	Name        string
	Description string
	Instance    any
}

// ServiceDependency describes a service a module requires.
//
// When MatchByInterface is set, the first registered service implementing
// SatisfiesInterface is injected regardless of its name.
type ServiceDependency struct {
	Name               string
	Required           bool
	Type               reflect.Type
	SatisfiesInterface reflect.Type
	MatchByInterface   bool
}
