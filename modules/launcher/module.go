// Package launcher provides the module that starts app instances for the
// desktop agent, either as OS processes or as registered in-process Go
// apps, and reports when they start and stop.
package launcher

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/desktopagent"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// ModuleName is the name of this module
const ModuleName = "launcher"

// ServiceName is the name of the launcher service.
const ServiceName = "fdc3.launcher"

// Module owns the launcher and its runners.
type Module struct {
	name      string
	config    *Config
	logger    desktopagent.Logger
	launcher  *Launcher
	inProcess *InProcessRunner
	subject   desktopagent.Subject
}

// NewModule creates a new launcher module.
func NewModule() desktopagent.Module {
	return &Module{name: ModuleName, inProcess: NewInProcessRunner()}
}

// Name returns the name of the module
func (m *Module) Name() string {
	return m.name
}

// RegisterConfig registers the module's configuration structure
func (m *Module) RegisterConfig(app desktopagent.Application) error {
	app.RegisterConfigSection(m.Name(), desktopagent.NewStdConfigProvider(&Config{}))
	return nil
}

// Init creates the launcher with the in-process runner first and the
// process runner second.
func (m *Module) Init(app desktopagent.Application) error {
	cfg, err := app.GetConfigSection(m.name)
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.name, err)
	}
	m.config = cfg.GetConfig().(*Config)
	m.logger = app.Logger()

	m.launcher = NewLauncher(m.logger, m.inProcess, NewProcessRunner(m.config))
	m.launcher.SetEmitter(m.emit)
	m.logger.Info("Launcher module initialized", "workDir", m.config.WorkDir)
	return nil
}

// Stop stops every running instance.
func (m *Module) Stop(ctx context.Context) error {
	if m.launcher == nil {
		return nil
	}
	return m.launcher.Shutdown(ctx)
}

// RegisterApp makes appID launchable in process. It may be called before
// or after Init.
func (m *Module) RegisterApp(appID string, fn AppFunc) {
	m.inProcess.Register(appID, fn)
}

// Launcher returns the launcher.
func (m *Module) Launcher() *Launcher {
	return m.launcher
}

// ProvidesServices declares the launcher service.
func (m *Module) ProvidesServices() []desktopagent.ServiceProvider {
	return []desktopagent.ServiceProvider{
		{
			Name:        ServiceName,
			Description: "Starts and stops FDC3 app instances",
			Instance:    m.launcher,
		},
	}
}

// RequiresServices declares services required by this module
func (m *Module) RequiresServices() []desktopagent.ServiceDependency {
	return nil
}

// RegisterObservers keeps the subject used to emit launcher events.
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
	event := desktopagent.NewCloudEvent(eventType, "launcher", data, nil)
	if err := m.EmitEvent(ctx, event); err != nil {
		desktopagent.HandleEventEmissionError(err, m.logger, m.name, eventType)
	}
}
