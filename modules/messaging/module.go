package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/desktopagent"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// ModuleName is the name of this module
const ModuleName = "messaging"

// Service names provided by this module
const (
	ServiceName        = "messaging.fabric"
	MetricsServiceName = "messaging.metrics"
)

// Module owns the configured engine and exposes it as the Fabric service.
type Module struct {
	name      string
	config    *Config
	logger    desktopagent.Logger
	engine    Engine
	collector *PrometheusCollector
	statsd    *DatadogStatsdExporter
	subject   desktopagent.Subject
	cancel    context.CancelFunc
	mutex     sync.RWMutex
	isStarted bool
}

// NewModule creates a new messaging module.
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

// Init creates the configured engine.
func (m *Module) Init(app desktopagent.Application) error {
	cfg, err := app.GetConfigSection(m.name)
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.name, err)
	}
	m.config = cfg.GetConfig().(*Config)
	m.logger = app.Logger()

	m.engine, err = createEngine(m.config, m.logger)
	if err != nil {
		return err
	}
	if memory, ok := m.engine.(*MemoryEngine); ok {
		memory.setEmitter(m.emitEngineEvent)
	}

	if m.config.Metrics.Prometheus {
		m.collector = NewPrometheusCollector(m, m.config.Metrics.Namespace)
	}

	m.logger.Info("Messaging module initialized", "engine", m.config.Engine)
	return nil
}

// Start starts the engine and the optional statsd exporter.
func (m *Module) Start(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.isStarted {
		return nil
	}
	if err := m.engine.Start(ctx); err != nil {
		return err
	}

	if m.config.Metrics.StatsdAddr != "" {
		exporter, err := NewDatadogStatsdExporter(m, m.config.Metrics.Namespace, m.config.Metrics.StatsdAddr,
			m.config.Metrics.StatsdInterval, m.config.Metrics.StatsdTags)
		if err != nil {
			_ = m.engine.Stop(ctx)
			return err
		}
		exportCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		m.statsd = exporter
		m.cancel = cancel
		go exporter.Run(exportCtx)
	}

	m.isStarted = true
	m.emitEngineEvent(ctx, EventTypeFabricStarted, map[string]any{"engine": m.config.Engine})
	m.logger.Info("Messaging fabric started", "engine", m.config.Engine)
	return nil
}

// Stop stops the exporter and the engine.
func (m *Module) Stop(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.isStarted {
		return nil
	}
	if m.cancel != nil {
		m.cancel()
		if err := m.statsd.Close(); err != nil {
			m.logger.Warn("Failed to close statsd exporter", "error", err)
		}
	}
	if err := m.engine.Stop(ctx); err != nil {
		return err
	}

	m.isStarted = false
	m.emitEngineEvent(ctx, EventTypeFabricStopped, map[string]any{"engine": m.config.Engine})
	m.logger.Info("Messaging fabric stopped")
	return nil
}

// ProvidesServices declares the fabric and, when enabled, its collector.
func (m *Module) ProvidesServices() []desktopagent.ServiceProvider {
	services := []desktopagent.ServiceProvider{
		{
			Name:        ServiceName,
			Description: "Messaging fabric for publish/subscribe and request/response",
			Instance:    m,
		},
	}
	if m.collector != nil {
		services = append(services, desktopagent.ServiceProvider{
			Name:        MetricsServiceName,
			Description: "Prometheus collector for fabric delivery statistics",
			Instance:    m.collector,
		})
	}
	return services
}

// RequiresServices declares services required by this module
func (m *Module) RequiresServices() []desktopagent.ServiceDependency {
	return nil
}

// RegisterObservers keeps the subject used to emit engine events.
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

func (m *Module) emitEngineEvent(ctx context.Context, eventType string, data map[string]any) {
	if m.subject == nil {
		return
	}
	event := desktopagent.NewCloudEvent(eventType, "messaging", data, nil)
	if err := m.EmitEvent(ctx, event); err != nil {
		desktopagent.HandleEventEmissionError(err, m.logger, m.name, eventType)
	}
}

// Engine returns the underlying engine.
func (m *Module) Engine() Engine {
	return m.engine
}

// EngineName returns the configured engine type.
func (m *Module) EngineName() string {
	return m.config.Engine
}

// Publish publishes payload on topic.
func (m *Module) Publish(ctx context.Context, topic string, payload []byte) error {
	return m.engine.Publish(ctx, topic, payload)
}

// Subscribe subscribes handler to topic.
func (m *Module) Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error) {
	return m.engine.Subscribe(ctx, topic, handler)
}

// RegisterService registers handler as the service of topic.
func (m *Module) RegisterService(ctx context.Context, topic string, handler ServiceHandler) (Subscription, error) {
	return m.engine.RegisterService(ctx, topic, handler)
}

// Invoke calls the service of topic.
func (m *Module) Invoke(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	return m.engine.Invoke(ctx, topic, payload)
}

// Topics returns the active topics.
func (m *Module) Topics() []string {
	return m.engine.Topics()
}

// Services returns the topics with registered services.
func (m *Module) Services() []string {
	return m.engine.Services()
}

// Stats returns the engine's delivery counters.
func (m *Module) Stats() Stats {
	return m.engine.Stats()
}
