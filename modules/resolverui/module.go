// Package resolverui provides the client side of the intent resolver UI.
package resolverui

import (
	"fmt"
	"reflect"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
)

// ModuleName is the name of this module
const ModuleName = "resolverui"

// ServiceName is the name of the resolver service.
const ServiceName = "fdc3.resolverui"

// Module builds the resolver client on the messaging fabric.
type Module struct {
	name   string
	config *Config
	fabric messaging.Fabric
	client *Client
}

// NewModule creates a new resolver UI module.
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

// Constructor takes the fabric from the resolved services.
func (m *Module) Constructor() desktopagent.ModuleConstructor {
	return func(_ desktopagent.Application, services map[string]any) (desktopagent.Module, error) {
		fabric, ok := services[messaging.ServiceName].(messaging.Fabric)
		if !ok {
			return nil, fmt.Errorf("service %s does not implement messaging.Fabric", messaging.ServiceName)
		}
		m.fabric = fabric
		return m, nil
	}
}

// Init creates the client.
func (m *Module) Init(app desktopagent.Application) error {
	cfg, err := app.GetConfigSection(m.name)
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.name, err)
	}
	m.config = cfg.GetConfig().(*Config)
	m.client = NewClient(m.fabric, m.config, app.Logger())
	return nil
}

// Client returns the resolver client.
func (m *Module) Client() *Client {
	return m.client
}

// ProvidesServices declares the resolver service.
func (m *Module) ProvidesServices() []desktopagent.ServiceProvider {
	return []desktopagent.ServiceProvider{
		{
			Name:        ServiceName,
			Description: "Intent resolver UI client",
			Instance:    m.client,
		},
	}
}

// RequiresServices declares the messaging fabric dependency.
func (m *Module) RequiresServices() []desktopagent.ServiceDependency {
	return []desktopagent.ServiceDependency{
		{
			Name:               messaging.ServiceName,
			Required:           true,
			MatchByInterface:   true,
			SatisfiesInterface: reflect.TypeOf((*messaging.Fabric)(nil)).Elem(),
		},
	}
}
