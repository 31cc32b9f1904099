// Package journal records the application's CloudEvents in a SQLite
// database so raised intents, launches and channel activity can be
// inspected after the fact.
package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// ModuleName is the name of this module
const ModuleName = "journal"

// ServiceName is the name of the journal store service.
const ServiceName = "journal.store"

const (
	maxBatch      = 64
	pruneInterval = time.Hour
)

// Module observes every event and appends it to the store.
type Module struct {
	name    string
	config  *Config
	logger  desktopagent.Logger
	subject desktopagent.Subject
	store   *Store

	queue   chan cloudevents.Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	mutex   sync.RWMutex
	started bool
	now     func() time.Time
}

// NewModule creates a new journal module.
func NewModule() desktopagent.Module {
	return &Module{name: ModuleName, now: time.Now}
}

// Name returns the name of the module
func (m *Module) Name() string {
	return m.name
}

// RegisterConfig registers the "journal" configuration section.
func (m *Module) RegisterConfig(app desktopagent.Application) error {
	app.RegisterConfigSection(m.Name(), desktopagent.NewStdConfigProvider(&Config{}))
	return nil
}

// Init opens the store.
func (m *Module) Init(app desktopagent.Application) error {
	cfg, err := app.GetConfigSection(m.name)
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.name, err)
	}
	m.config = cfg.GetConfig().(*Config)
	m.logger = app.Logger()

	if m.config.Disabled {
		m.logger.Info("Journal is disabled")
		return nil
	}
	m.store, err = OpenStore(context.Background(), m.config.Path)
	if err != nil {
		return err
	}
	m.queue = make(chan cloudevents.Event, m.config.BufferSize)
	m.logger.Info("Journal opened", "path", m.config.Path)
	return nil
}

// Start prunes expired entries and starts the writer.
func (m *Module) Start(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.started {
		return nil
	}

	m.prune(ctx)
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.write(context.WithoutCancel(ctx))
	m.started = true
	return nil
}

// Stop drains queued events within the drain timeout and closes the store.
func (m *Module) Stop(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	m.mutex.Lock()
	started := m.started
	m.started = false
	m.mutex.Unlock()

	if started {
		close(m.stopCh)
		timer := time.NewTimer(m.config.DrainTimeout)
		defer timer.Stop()
		select {
		case <-m.doneCh:
		case <-timer.C:
			m.logger.Warn("Journal drain timed out", "pending", len(m.queue))
		case <-ctx.Done():
		}
	}
	return m.store.Close()
}

// Store returns the journal store, or nil when the journal is disabled.
func (m *Module) Store() *Store {
	return m.store
}

// OnEvent queues event for writing.
func (m *Module) OnEvent(_ context.Context, event cloudevents.Event) error {
	if m.queue == nil {
		return ErrNotStarted
	}
	if !m.config.records(event.Type()) {
		return nil
	}
	select {
	case m.queue <- event:
		return nil
	default:
		return fmt.Errorf("%w: dropped %s", ErrJournalFull, event.Type())
	}
}

// ObserverID returns the unique identifier for this observer.
func (m *Module) ObserverID() string {
	return ModuleName
}

// RegisterObservers registers the journal as an observer of all events.
func (m *Module) RegisterObservers(subject desktopagent.Subject) error {
	m.subject = subject
	if m.store == nil {
		return nil
	}
	if err := subject.RegisterObserver(m); err != nil {
		return fmt.Errorf("failed to register journal as observer: %w", err)
	}
	return nil
}

// EmitEvent forwards event to the subject.
func (m *Module) EmitEvent(ctx context.Context, event cloudevents.Event) error {
	if m.subject == nil {
		return desktopagent.ErrNoSubjectForEventEmission
	}
	return m.subject.NotifyObservers(ctx, event)
}

// ProvidesServices declares the store when the journal is enabled.
func (m *Module) ProvidesServices() []desktopagent.ServiceProvider {
	if m.store == nil {
		return nil
	}
	return []desktopagent.ServiceProvider{
		{
			Name:        ServiceName,
			Description: "SQLite journal of desktop agent events",
			Instance:    m.store,
		},
	}
}

// RequiresServices returns nil; the journal depends on nothing.
func (m *Module) RequiresServices() []desktopagent.ServiceDependency {
	return nil
}

func (m *Module) write(ctx context.Context) {
	defer close(m.doneCh)
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-m.queue:
			m.flush(ctx, event)
		case <-ticker.C:
			m.prune(ctx)
		case <-m.stopCh:
			for {
				select {
				case event := <-m.queue:
					m.flush(ctx, event)
				default:
					return
				}
			}
		}
	}
}

// flush writes first and whatever else is queued, up to maxBatch entries.
func (m *Module) flush(ctx context.Context, first cloudevents.Event) {
	batch := []Entry{EntryFromEvent(first)}
drain:
	for len(batch) < maxBatch {
		select {
		case event := <-m.queue:
			batch = append(batch, EntryFromEvent(event))
		default:
			break drain
		}
	}
	if err := m.store.Append(ctx, batch...); err != nil {
		m.logger.Error("Failed to write journal entries", "count", len(batch), "error", err)
	}
}

func (m *Module) prune(ctx context.Context) {
	if m.config.Retention <= 0 {
		return
	}
	removed, err := m.store.Prune(ctx, m.now().Add(-m.config.Retention))
	if err != nil {
		m.logger.Error("Failed to prune journal", "error", err)
		return
	}
	if removed > 0 {
		m.logger.Info("Pruned journal", "removed", removed)
	}
}
