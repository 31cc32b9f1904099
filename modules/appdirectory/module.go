// Package appdirectory provides the app directory module: a catalog of FDC3
// application records loaded from a JSON, JSONC or YAML document on disk or
// over HTTP, validated against the application schema and reloaded when the
// file changes.
package appdirectory

import (
	"context"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/desktopagent"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// ModuleName is the name of this module
const ModuleName = "appdirectory"

// ServiceName is the name of the directory service.
const ServiceName = "fdc3.appdirectory"

// Module loads the directory at start and keeps it current.
type Module struct {
	name      string
	config    *Config
	logger    desktopagent.Logger
	directory *Directory
	watcher   *fileWatcher
	subject   desktopagent.Subject
	mutex     sync.Mutex
	isStarted bool
}

// NewModule creates a new app directory module.
func NewModule() desktopagent.Module {
	return &Module{name: ModuleName}
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

// Init creates the directory. The catalog is read in Start.
func (m *Module) Init(app desktopagent.Application) error {
	cfg, err := app.GetConfigSection(m.name)
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.name, err)
	}
	m.config = cfg.GetConfig().(*Config)
	m.logger = app.Logger()

	m.directory, err = NewDirectory(m.config, m.logger, nil)
	if err != nil {
		return err
	}
	m.logger.Info("App directory module initialized", "source", m.directory.Source())
	return nil
}

// Start loads the catalog and, for watched file sources, starts the watcher.
func (m *Module) Start(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.isStarted {
		return nil
	}
	if err := m.directory.Load(ctx); err != nil {
		return err
	}

	if m.config.Watch && !m.directory.IsRemote() {
		watcher, err := newFileWatcher(m.directory.Source(), m.config.WatchDebounce, m.logger, m.reload)
		if err != nil {
			return fmt.Errorf("failed to create app directory watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			_ = watcher.watcher.Close()
			return fmt.Errorf("failed to watch app directory: %w", err)
		}
		m.watcher = watcher
	}

	m.isStarted = true
	m.emit(ctx, EventTypeDirectoryLoaded, map[string]any{"source": m.directory.Source(), "apps": m.directory.Len()})
	m.logger.Info("App directory loaded", "source", m.directory.Source(), "apps", m.directory.Len(), "watch", m.watcher != nil)
	return nil
}

// Stop stops the watcher.
func (m *Module) Stop(_ context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.isStarted {
		return nil
	}
	if m.watcher != nil {
		m.watcher.Stop()
		m.watcher = nil
	}
	m.isStarted = false
	return nil
}

func (m *Module) reload(ctx context.Context) {
	if err := m.directory.Load(ctx); err != nil {
		m.logger.Error("Failed to reload app directory, keeping previous catalog", "source", m.directory.Source(), "error", err)
		m.emit(ctx, EventTypeDirectoryReloadFailed, map[string]any{"source": m.directory.Source(), "error": err.Error()})
		return
	}
	m.logger.Info("App directory reloaded", "apps", m.directory.Len())
	m.emit(ctx, EventTypeDirectoryReloaded, map[string]any{"source": m.directory.Source(), "apps": m.directory.Len()})
}

// Directory returns the served directory.
func (m *Module) Directory() *Directory {
	return m.directory
}

// ProvidesServices declares the directory service.
func (m *Module) ProvidesServices() []desktopagent.ServiceProvider {
	return []desktopagent.ServiceProvider{
		{
			Name:        ServiceName,
			Description: "FDC3 application directory",
			Instance:    m.directory,
		},
	}
}

// RequiresServices declares services required by this module
func (m *Module) RequiresServices() []desktopagent.ServiceDependency {
	return nil
}

// RegisterObservers keeps the subject used to emit directory events.
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
	event := desktopagent.NewCloudEvent(eventType, "appdirectory", data, nil)
	if err := m.EmitEvent(ctx, event); err != nil {
		desktopagent.HandleEventEmissionError(err, m.logger, m.name, eventType)
	}
}
