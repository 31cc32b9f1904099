package launcher

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/agent"
	"github.com/GoCodeAlone/desktopagent/fdc3"
)

// Runner starts instances of the apps it accepts.
type Runner interface {
	Name() string
	Accepts(app *fdc3.AppDescriptor) bool
	// Start starts inst. exited must be called exactly once when the
	// instance ends, whether it was asked to stop or not.
	Start(ctx context.Context, inst *Instance, exited func(error)) (Handle, error)
}

// Handle stops a started instance.
type Handle interface {
	Stop(ctx context.Context) error
}

// Instance is one started app.
type Instance struct {
	ID        string
	AppID     string
	App       *fdc3.AppDescriptor
	Params    map[string]string
	Runner    string
	StartedAt time.Time

	handle   Handle
	done     chan struct{}
	stopping bool
}

// InstanceInfo describes a running instance.
type InstanceInfo struct {
	ID        string    `json:"instanceId"`
	AppID     string    `json:"appId"`
	Runner    string    `json:"runner"`
	StartedAt time.Time `json:"startedAt"`
}

// Launcher starts app instances through its runners and reports their
// lifecycle to registered handlers. It satisfies agent.Launcher and
// agent.LifecycleNotifier.
type Launcher struct {
	runners []Runner
	logger  desktopagent.Logger
	emit    func(ctx context.Context, eventType string, data map[string]any)

	mu        sync.Mutex
	instances map[string]*Instance
	handlers  []agent.LifecycleHandler
	closed    bool
}

// NewLauncher creates a launcher. Runners are tried in order.
func NewLauncher(logger desktopagent.Logger, runners ...Runner) *Launcher {
	if logger == nil {
		logger = desktopagent.NopLogger()
	}
	return &Launcher{
		runners:   runners,
		logger:    logger,
		instances: make(map[string]*Instance),
	}
}

// SetEmitter sets the function used to publish launcher events.
func (l *Launcher) SetEmitter(emit func(ctx context.Context, eventType string, data map[string]any)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emit = emit
}

// AddLifecycleHandler registers handler for started and stopped events.
// Handlers run synchronously, in registration order.
func (l *Launcher) AddLifecycleHandler(handler agent.LifecycleHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, handler)
}

// Launch starts one instance of req.App. The started event is delivered to
// handlers before Launch returns.
func (l *Launcher) Launch(ctx context.Context, req agent.LaunchRequest) error {
	if req.App == nil {
		return ErrNoApp
	}
	instanceID := req.InstanceID()
	if instanceID == "" {
		return ErrNoInstanceID
	}

	runner := l.runnerFor(req.App)
	if runner == nil {
		err := fmt.Errorf("%w: %s (type %q)", ErrNoRunner, req.App.AppID, req.App.Type)
		l.publish(ctx, EventTypeLaunchFailed, map[string]any{"appId": req.App.AppID, "instanceId": instanceID, "error": err.Error()})
		return err
	}

	inst := &Instance{
		ID:     instanceID,
		AppID:  req.App.AppID,
		App:    req.App,
		Params: maps.Clone(req.Params),
		Runner: runner.Name(),
		done:   make(chan struct{}),
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLauncherClosed
	}
	if _, exists := l.instances[instanceID]; exists {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInstanceExists, instanceID)
	}
	l.instances[instanceID] = inst
	l.mu.Unlock()

	l.publish(ctx, EventTypeInstanceStarting, inst.eventData())

	// the exit callback may fire before Start returns; it waits for started
	started := make(chan struct{})
	var once sync.Once
	exited := func(err error) {
		once.Do(func() {
			<-started
			l.finish(context.WithoutCancel(ctx), inst, err)
		})
	}

	handle, err := runner.Start(ctx, inst, exited)
	if err != nil {
		l.mu.Lock()
		delete(l.instances, instanceID)
		l.mu.Unlock()
		close(inst.done)
		l.logger.Error("Failed to launch app", "appId", inst.AppID, "instanceId", instanceID, "runner", runner.Name(), "error", err)
		l.publish(ctx, EventTypeLaunchFailed, map[string]any{"appId": inst.AppID, "instanceId": instanceID, "error": err.Error()})
		return err
	}

	l.mu.Lock()
	inst.handle = handle
	inst.StartedAt = time.Now()
	l.mu.Unlock()

	l.logger.Info("App launched", "appId", inst.AppID, "instanceId", instanceID, "runner", runner.Name())
	l.notify(ctx, agent.LifecycleEvent{Kind: agent.LifecycleStarted, AppID: inst.AppID, Params: inst.Params})
	l.publish(ctx, EventTypeInstanceStarted, inst.eventData())
	close(started)
	return nil
}

func (l *Launcher) runnerFor(app *fdc3.AppDescriptor) Runner {
	for _, r := range l.runners {
		if r.Accepts(app) {
			return r
		}
	}
	return nil
}

func (l *Launcher) finish(ctx context.Context, inst *Instance, exitErr error) {
	l.mu.Lock()
	delete(l.instances, inst.ID)
	expected := inst.stopping
	l.mu.Unlock()

	data := inst.eventData()
	data["expected"] = expected
	if exitErr != nil {
		data["error"] = exitErr.Error()
	}
	if expected || exitErr == nil {
		l.logger.Info("App instance stopped", "appId", inst.AppID, "instanceId", inst.ID)
	} else {
		l.logger.Warn("App instance exited unexpectedly", "appId", inst.AppID, "instanceId", inst.ID, "error", exitErr)
	}

	l.notify(ctx, agent.LifecycleEvent{Kind: agent.LifecycleStopped, AppID: inst.AppID, Params: inst.Params})
	l.publish(ctx, EventTypeInstanceStopped, data)
	close(inst.done)
}

// Stop asks the instance to stop and waits until it has exited or ctx ends.
func (l *Launcher) Stop(ctx context.Context, instanceID string) error {
	l.mu.Lock()
	inst, ok := l.instances[instanceID]
	if !ok || inst.handle == nil {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
	}
	inst.stopping = true
	handle := inst.handle
	l.mu.Unlock()

	l.publish(ctx, EventTypeInstanceStopping, inst.eventData())
	if err := handle.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop instance %s: %w", instanceID, err)
	}

	select {
	case <-inst.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops every instance and rejects further launches.
func (l *Launcher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	ids := slices.Collect(maps.Keys(l.instances))
	l.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := l.Stop(ctx, id); err != nil && !errors.Is(err, ErrInstanceNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Instances returns the running instances ordered by start time.
func (l *Launcher) Instances() []InstanceInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	infos := make([]InstanceInfo, 0, len(l.instances))
	for _, inst := range l.instances {
		if inst.handle == nil {
			continue
		}
		infos = append(infos, InstanceInfo{ID: inst.ID, AppID: inst.AppID, Runner: inst.Runner, StartedAt: inst.StartedAt})
	}
	slices.SortFunc(infos, func(a, b InstanceInfo) int { return a.StartedAt.Compare(b.StartedAt) })
	return infos
}

func (l *Launcher) notify(ctx context.Context, event agent.LifecycleEvent) {
	l.mu.Lock()
	handlers := slices.Clone(l.handlers)
	l.mu.Unlock()
	for _, handler := range handlers {
		handler(ctx, event)
	}
}

func (l *Launcher) publish(ctx context.Context, eventType string, data map[string]any) {
	l.mu.Lock()
	emit := l.emit
	l.mu.Unlock()
	if emit != nil {
		emit(ctx, eventType, data)
	}
}

func (inst *Instance) eventData() map[string]any {
	return map[string]any{
		"appId":      inst.AppID,
		"instanceId": inst.ID,
		"runner":     inst.Runner,
	}
}
