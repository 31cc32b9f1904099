// Package admin serves the desktop agent's HTTP administration API: health,
// Prometheus metrics, inspection of instances, channels, apps and the
// journal, and a bridge that calls agent services over HTTP.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"sync"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/agent"
	"github.com/GoCodeAlone/desktopagent/modules/journal"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ModuleName is the name of this module
const ModuleName = "admin"

// ServiceName is the name of the admin router service.
const ServiceName = "admin.router"

// Service names the admin module consumes
const (
	agentServiceName        = "fdc3.desktopagent"
	directoryServiceName    = "fdc3.appdirectory"
	agentMetricsServiceName = "fdc3.metrics"
)

// Module runs the admin HTTP server.
type Module struct {
	name    string
	config  *Config
	logger  desktopagent.Logger
	subject desktopagent.Subject

	agent      AgentView
	directory  agent.AppDirectory
	fabric     messaging.Fabric
	journal    JournalReader
	collectors []prometheus.Collector

	registry *prometheus.Registry
	handler  http.Handler
	server   *http.Server
	listener net.Listener
	done     chan struct{}
	mutex    sync.Mutex
}

// NewModule creates a new admin module.
func NewModule() desktopagent.Module {
	return &Module{name: ModuleName}
}

// Name returns the name of the module
func (m *Module) Name() string {
	return m.name
}

// RegisterConfig registers the "admin" configuration section.
func (m *Module) RegisterConfig(app desktopagent.Application) error {
	app.RegisterConfigSection(m.Name(), desktopagent.NewStdConfigProvider(&Config{}))
	return nil
}

// Constructor picks the backends out of the resolved services.
func (m *Module) Constructor() desktopagent.ModuleConstructor {
	return func(_ desktopagent.Application, services map[string]any) (desktopagent.Module, error) {
		var ok bool
		if m.agent, ok = services[agentServiceName].(AgentView); !ok {
			return nil, fmt.Errorf("service %s does not implement admin.AgentView", agentServiceName)
		}
		if m.directory, ok = services[directoryServiceName].(agent.AppDirectory); !ok {
			return nil, fmt.Errorf("service %s does not implement agent.AppDirectory", directoryServiceName)
		}
		if m.fabric, ok = services[messaging.ServiceName].(messaging.Fabric); !ok {
			return nil, fmt.Errorf("service %s does not implement messaging.Fabric", messaging.ServiceName)
		}
		if store, ok := services[journal.ServiceName].(JournalReader); ok {
			m.journal = store
		}
		for _, name := range []string{agentMetricsServiceName, messaging.MetricsServiceName} {
			if c, ok := services[name].(prometheus.Collector); ok {
				m.collectors = append(m.collectors, c)
			}
		}
		return m, nil
	}
}

// Init builds the metrics registry and the router.
func (m *Module) Init(app desktopagent.Application) error {
	cfg, err := app.GetConfigSection(m.name)
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.name, err)
	}
	m.config = cfg.GetConfig().(*Config)
	m.logger = app.Logger()

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	for _, c := range m.collectors {
		if err := m.registry.Register(c); err != nil {
			return fmt.Errorf("failed to register metrics collector %T: %w", c, err)
		}
	}

	var validator *TokenValidator
	if m.config.JWTSecret != "" {
		validator = NewTokenValidator(m.config.JWTSecret, m.config.JWTIssuer)
	} else {
		m.logger.Warn("Admin API has no JWT secret; /api is unauthenticated", "address", m.config.Address)
	}

	m.handler = NewRouter(Backend{
		Agent:         m.agent,
		Directory:     m.directory,
		Fabric:        m.fabric,
		Journal:       m.journal,
		Gatherer:      m.registry,
		Validator:     validator,
		BridgeTimeout: m.config.BridgeTimeout,
		Logger:        m.logger,
		OnAuthFailure: func(r *http.Request, err error) {
			m.logger.Warn("Admin request rejected", "path", r.URL.Path, "remote", r.RemoteAddr, "error", err)
			m.emit(r.Context(), EventTypeAuthFailed, map[string]any{"path": r.URL.Path, "error": err.Error()})
		},
	})
	return nil
}

// Start listens on the configured address and serves in the background.
func (m *Module) Start(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.server != nil {
		return nil
	}

	listener, err := net.Listen("tcp", m.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Address, err)
	}
	m.listener = listener
	m.server = &http.Server{
		Handler:      m.handler,
		ReadTimeout:  m.config.ReadTimeout,
		WriteTimeout: m.config.WriteTimeout,
	}
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		if err := m.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("Admin server failed", "error", err)
		}
	}()

	m.logger.Info("Admin server started", "address", listener.Addr().String())
	m.emit(ctx, EventTypeServerStarted, map[string]any{"address": listener.Addr().String()})
	return nil
}

// Stop shuts the server down gracefully.
func (m *Module) Stop(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()
	err := m.server.Shutdown(shutdownCtx)
	<-m.done
	m.server = nil
	m.listener = nil

	m.emit(ctx, EventTypeServerStopped, nil)
	if err != nil {
		return fmt.Errorf("failed to stop admin server: %w", err)
	}
	return nil
}

// Addr returns the address the server listens on.
func (m *Module) Addr() (net.Addr, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.listener == nil {
		return nil, ErrServerNotStarted
	}
	return m.listener.Addr(), nil
}

// Handler returns the admin router.
func (m *Module) Handler() http.Handler {
	return m.handler
}

// ProvidesServices declares the router.
func (m *Module) ProvidesServices() []desktopagent.ServiceProvider {
	return []desktopagent.ServiceProvider{
		{
			Name:        ServiceName,
			Description: "Admin HTTP API router",
			Instance:    m.handler,
		},
	}
}

// RequiresServices declares the agent, directory and fabric, and the
// optional journal and metrics collectors.
func (m *Module) RequiresServices() []desktopagent.ServiceDependency {
	collectorType := reflect.TypeOf((*prometheus.Collector)(nil)).Elem()
	return []desktopagent.ServiceDependency{
		{Name: agentServiceName, Required: true, MatchByInterface: true, SatisfiesInterface: reflect.TypeOf((*AgentView)(nil)).Elem()},
		{Name: directoryServiceName, Required: true, MatchByInterface: true, SatisfiesInterface: reflect.TypeOf((*agent.AppDirectory)(nil)).Elem()},
		{Name: messaging.ServiceName, Required: true, MatchByInterface: true, SatisfiesInterface: reflect.TypeOf((*messaging.Fabric)(nil)).Elem()},
		{Name: journal.ServiceName, Required: false, MatchByInterface: true, SatisfiesInterface: reflect.TypeOf((*JournalReader)(nil)).Elem()},
		{Name: agentMetricsServiceName, Required: false, SatisfiesInterface: collectorType},
		{Name: messaging.MetricsServiceName, Required: false, SatisfiesInterface: collectorType},
	}
}

// RegisterObservers keeps the subject used to emit admin events.
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
	event := desktopagent.NewCloudEvent(eventType, ModuleName, data, nil)
	if err := m.EmitEvent(ctx, event); err != nil {
		desktopagent.HandleEventEmissionError(err, m.logger, m.name, eventType)
	}
}
