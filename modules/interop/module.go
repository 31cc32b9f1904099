// Package interop provides the desktop agent module. It builds the agent
// from the fabric, app directory, launcher and resolver services, exposes
// every agent operation as a fabric service and runs housekeeping.
//
// Example YAML configuration:
//
//	fdc3:
//	  topicRoot: fdc3/v2.0/
//	  defaultUserChannel: fdc3.channel.1
//	  housekeepingSchedule: "@every 30s"
package interop

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/agent"
	"github.com/GoCodeAlone/desktopagent/modules/appdirectory"
	"github.com/GoCodeAlone/desktopagent/modules/launcher"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
	"github.com/GoCodeAlone/desktopagent/modules/resolverui"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// ModuleName is the name of this module and of its config section.
const ModuleName = "fdc3"

// Service names provided by this module
const (
	ServiceName        = "fdc3.desktopagent"
	MetricsServiceName = "fdc3.metrics"
)

// Module owns the desktop agent.
type Module struct {
	name     string
	config   *agent.Config
	logger   desktopagent.Logger
	subject  desktopagent.Subject
	fabric   messaging.Fabric
	dir      agent.AppDirectory
	launch   agent.Launcher
	resolver agent.ResolverUI

	agent       *agent.DesktopAgent
	server      *Server
	housekeeper *housekeeper
	mutex       sync.Mutex
	isStarted   bool
}

// NewModule creates a new desktop agent module.
func NewModule() desktopagent.Module {
	return &Module{name: ModuleName}
}

// Name returns the name of the module
func (m *Module) Name() string {
	return m.name
}

// RegisterConfig registers the "fdc3" configuration section.
func (m *Module) RegisterConfig(app desktopagent.Application) error {
	app.RegisterConfigSection(m.Name(), desktopagent.NewStdConfigProvider(&agent.Config{}))
	return nil
}

// Constructor takes the collaborators from the resolved services.
func (m *Module) Constructor() desktopagent.ModuleConstructor {
	return func(_ desktopagent.Application, services map[string]any) (desktopagent.Module, error) {
		var ok bool
		if m.fabric, ok = services[messaging.ServiceName].(messaging.Fabric); !ok {
			return nil, fmt.Errorf("service %s does not implement messaging.Fabric", messaging.ServiceName)
		}
		if m.dir, ok = services[appdirectory.ServiceName].(agent.AppDirectory); !ok {
			return nil, fmt.Errorf("service %s does not implement agent.AppDirectory", appdirectory.ServiceName)
		}
		if m.launch, ok = services[launcher.ServiceName].(agent.Launcher); !ok {
			return nil, fmt.Errorf("service %s does not implement agent.Launcher", launcher.ServiceName)
		}
		if resolver, ok := services[resolverui.ServiceName].(agent.ResolverUI); ok {
			m.resolver = resolver
		}
		return m, nil
	}
}

// Init builds the agent.
func (m *Module) Init(app desktopagent.Application) error {
	cfg, err := app.GetConfigSection(m.name)
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.name, err)
	}
	m.config = cfg.GetConfig().(*agent.Config)
	m.logger = app.Logger()

	m.agent, err = agent.New(agent.Options{
		Config:    *m.config,
		Fabric:    m.fabric,
		Directory: m.dir,
		Launcher:  m.launch,
		Resolver:  m.resolver,
		Logger:    m.logger,
		Emitter:   m.emit,
	})
	if err != nil {
		return err
	}
	m.server = NewServer(m.agent, m.fabric, m.logger)
	m.housekeeper = newHousekeeper(m.agent, m.config.HousekeepingSchedule, m.logger, m.emit)

	if m.resolver == nil {
		m.logger.Warn("No resolver UI service; ambiguous raises fail with ResolverUnavailable")
	}
	m.logger.Info("Desktop agent module initialized", "topicRoot", m.config.TopicRoot)
	return nil
}

// Start starts the agent, registers its services and schedules
// housekeeping.
func (m *Module) Start(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.isStarted {
		return nil
	}
	if err := m.agent.Start(ctx); err != nil {
		return err
	}
	if err := m.server.Start(ctx); err != nil {
		_ = m.agent.Stop(ctx)
		return err
	}
	if err := m.housekeeper.Start(ctx); err != nil {
		m.server.Stop()
		_ = m.agent.Stop(ctx)
		return fmt.Errorf("failed to schedule housekeeping: %w", err)
	}

	m.isStarted = true
	m.emit(ctx, EventTypeServicesRegistered, map[string]any{
		"services":  m.server.Registered(),
		"topicRoot": m.config.TopicRoot,
	})
	m.logger.Info("Desktop agent started")
	return nil
}

// Stop stops housekeeping, unregisters the services and stops the agent.
func (m *Module) Stop(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.isStarted {
		return nil
	}
	m.housekeeper.Stop(ctx)
	m.server.Stop()
	if err := m.agent.Stop(ctx); err != nil {
		return err
	}

	m.isStarted = false
	m.emit(ctx, EventTypeServicesUnregistered, map[string]any{"topicRoot": m.config.TopicRoot})
	m.logger.Info("Desktop agent stopped")
	return nil
}

// Agent returns the desktop agent.
func (m *Module) Agent() *agent.DesktopAgent {
	return m.agent
}

// ProvidesServices declares the agent and its metrics collector.
func (m *Module) ProvidesServices() []desktopagent.ServiceProvider {
	services := []desktopagent.ServiceProvider{
		{
			Name:        ServiceName,
			Description: "FDC3 desktop agent",
			Instance:    m.agent,
		},
	}
	if m.agent != nil {
		services = append(services, desktopagent.ServiceProvider{
			Name:        MetricsServiceName,
			Description: "Prometheus collector for desktop agent operations",
			Instance:    m.agent.Collector(),
		})
	}
	return services
}

// RequiresServices declares the fabric, directory and launcher, and the
// optional resolver UI.
func (m *Module) RequiresServices() []desktopagent.ServiceDependency {
	return []desktopagent.ServiceDependency{
		{
			Name:               messaging.ServiceName,
			Required:           true,
			MatchByInterface:   true,
			SatisfiesInterface: reflect.TypeOf((*messaging.Fabric)(nil)).Elem(),
		},
		{
			Name:               appdirectory.ServiceName,
			Required:           true,
			MatchByInterface:   true,
			SatisfiesInterface: reflect.TypeOf((*agent.AppDirectory)(nil)).Elem(),
		},
		{
			Name:               launcher.ServiceName,
			Required:           true,
			MatchByInterface:   true,
			SatisfiesInterface: reflect.TypeOf((*agent.Launcher)(nil)).Elem(),
		},
		{
			Name:               resolverui.ServiceName,
			Required:           false,
			MatchByInterface:   true,
			SatisfiesInterface: reflect.TypeOf((*agent.ResolverUI)(nil)).Elem(),
		},
	}
}

// RegisterObservers keeps the subject used to emit agent events.
func (m *Module) RegisterObservers(subject desktopagent.Subject) error {
	m.subject = subject
	return nil
}

// EmitEvent forwards event to the subject.
func (m *Module) EmitEvent(ctx context.Context, event cloudevents.Event) error {
	if m.subject == nil {
		return desktopagent.ErrNoSubjectForEventEmission
	}
	return m.subject.NotifyObservers(ctx, event)
}

func (m *Module) emit(ctx context.Context, eventType string, data map[string]any) {
	if m.subject == nil {
		return
	}
	event := desktopagent.NewCloudEvent(eventType, "fdc3", data, nil)
	if err := m.EmitEvent(ctx, event); err != nil {
		desktopagent.HandleEventEmissionError(err, m.logger, m.name, eventType)
	}
}
