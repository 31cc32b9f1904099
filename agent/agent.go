// Package agent implements the FDC3 desktop agent: channel interop, intent
// resolution and delivery, app launching and the metadata queries of the
// FDC3 2.0 Desktop Agent API. Every operation takes a context and returns a
// response or an *fdc3.Error carrying the protocol error code.
package agent

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/channels"
	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/GoCodeAlone/desktopagent/instances"
	"github.com/GoCodeAlone/desktopagent/intents"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
	"github.com/google/uuid"
)

// Options are the collaborators of a DesktopAgent. Fabric, Directory and
// Launcher are required.
type Options struct {
	Config     Config
	Fabric     messaging.Fabric
	Directory  AppDirectory
	Launcher   Launcher
	Resolver   ResolverUI
	Logger     desktopagent.Logger
	Emitter    EventEmitter
	HTTPClient *http.Client
}

// DesktopAgent owns the channel, instance and raised intent state and
// implements every desktop agent operation on top of it.
type DesktopAgent struct {
	cfg        Config
	topics     fdc3.Topics
	fabric     messaging.Fabric
	directory  AppDirectory
	launcher   Launcher
	resolver   ResolverUI
	logger     desktopagent.Logger
	emitter    EventEmitter
	httpClient *http.Client
	metrics    *Collector

	channels     *channels.Registry
	userChannels atomic.Pointer[channels.UserChannelSet]
	instances    *instances.Registry
	ledgers      *intents.Ledgers
	matcher      *intents.Matcher

	listenersMu      sync.Mutex
	contextListeners map[string][]contextListener
	listenersChanged chan struct{}

	openedMu       sync.Mutex
	openedContexts map[string]openedContext

	privateMu         sync.Mutex
	privateByInstance map[string]map[string]struct{}

	mu      sync.Mutex
	started bool
}

// New validates opts and returns a stopped agent.
func New(opts Options) (*DesktopAgent, error) {
	switch {
	case opts.Fabric == nil:
		return nil, ErrMissingFabric
	case opts.Directory == nil:
		return nil, ErrMissingDir
	case opts.Launcher == nil:
		return nil, ErrMissingLauncher
	}
	cfg := opts.Config
	if err := desktopagent.ProcessConfigDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = desktopagent.NopLogger()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	topics := fdc3.NewTopics(cfg.TopicRoot)
	running := instances.NewRegistry()
	a := &DesktopAgent{
		cfg:               cfg,
		topics:            topics,
		fabric:            opts.Fabric,
		directory:         opts.Directory,
		launcher:          opts.Launcher,
		resolver:          opts.Resolver,
		logger:            logger,
		emitter:           opts.Emitter,
		httpClient:        httpClient,
		channels:          channels.NewRegistry(opts.Fabric, topics, logger),
		instances:         running,
		ledgers:           intents.NewLedgers(logger),
		matcher:           intents.NewMatcher(opts.Directory, running),
		contextListeners:  make(map[string][]contextListener),
		listenersChanged:  make(chan struct{}),
		openedContexts:    make(map[string]openedContext),
		privateByInstance: make(map[string]map[string]struct{}),
	}
	a.metrics = newCollector(a)
	if notifier, ok := opts.Launcher.(LifecycleNotifier); ok {
		notifier.AddLifecycleHandler(a.HandleLifecycleEvent)
	}
	return a, nil
}

// Start loads the user channel set and creates the default user channel.
// A user channel set that cannot be loaded is logged; GetUserChannels then
// fails with NoUserChannelSetFound.
func (a *DesktopAgent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	set, err := channels.LoadUserChannelSet(ctx, a.cfg.UserChannelSet, a.httpClient)
	if err != nil {
		a.logger.Error("Failed to load user channel set", "source", a.cfg.UserChannelSet, "error", err)
		set = nil
	}
	a.userChannels.Store(set)

	if id := a.cfg.DefaultUserChannel; id != "" {
		if item, ok := set.Get(id); ok {
			if _, err := a.channels.GetOrCreate(ctx, id, fdc3.ChannelTypeUser, item.DisplayMetadata); err != nil {
				return err
			}
		} else {
			a.logger.Warn("Default user channel is not part of the user channel set", "channel", id)
		}
	}

	a.started = true
	a.logger.Info("Desktop agent started", "topicRoot", a.topics.Root(), "userChannels", set.Len())
	return nil
}

// Stop disposes every channel, fails pending launches and clears all state.
func (a *DesktopAgent) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}

	err := a.channels.DisposeAll(ctx)
	a.instances.Clear(fdc3.NewError(fdc3.CodeTargetInstanceUnavailable, "desktop agent stopped"))
	a.ledgers.Clear()

	a.listenersMu.Lock()
	a.contextListeners = make(map[string][]contextListener)
	a.listenersMu.Unlock()

	a.openedMu.Lock()
	a.openedContexts = make(map[string]openedContext)
	a.openedMu.Unlock()

	a.privateMu.Lock()
	a.privateByInstance = make(map[string]map[string]struct{})
	a.privateMu.Unlock()

	a.started = false
	a.logger.Info("Desktop agent stopped")
	return err
}

// Topics returns the topic builder of the agent.
func (a *DesktopAgent) Topics() fdc3.Topics { return a.topics }

// Config returns the effective configuration.
func (a *DesktopAgent) Config() Config { return a.cfg }

// Collector returns the Prometheus collector of the agent.
func (a *DesktopAgent) Collector() *Collector { return a.metrics }

// Channels returns the live channels of channelType, or all when empty.
func (a *DesktopAgent) Channels(channelType fdc3.ChannelType) []*channels.Channel {
	return a.channels.List(channelType)
}

// Instances returns the running instances.
func (a *DesktopAgent) Instances() []*instances.Instance {
	return a.instances.List()
}

// Snapshot returns the current size of the agent's state.
func (a *DesktopAgent) Snapshot() Snapshot {
	a.openedMu.Lock()
	opened := len(a.openedContexts)
	a.openedMu.Unlock()
	return Snapshot{
		Channels:       a.channels.Len(),
		Instances:      a.instances.Len(),
		PendingStarts:  a.instances.PendingCount(),
		Ledgers:        a.ledgers.Len(),
		Unresolved:     a.ledgers.Unresolved(),
		OpenedContexts: opened,
	}
}

func (a *DesktopAgent) emit(ctx context.Context, eventType string, data map[string]any) {
	if a.emitter != nil {
		a.emitter(ctx, eventType, data)
	}
}

// runningInstance resolves a caller supplied instance id. ok is false when
// the id is not a uuid or no such instance runs.
func (a *DesktopAgent) runningInstance(instanceID string) (*instances.Instance, bool) {
	if _, err := uuid.Parse(instanceID); err != nil {
		return nil, false
	}
	return a.instances.TryGet(instanceID)
}

func (a *DesktopAgent) userChannelSet() *channels.UserChannelSet {
	return a.userChannels.Load()
}
