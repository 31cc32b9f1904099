package agent

import (
	"context"

	"github.com/GoCodeAlone/desktopagent/fdc3"
)

// AppDirectory is the app catalog. GetApp returns an error matching
// fdc3.ErrAppNotFound when the app is unknown.
type AppDirectory interface {
	GetApps(ctx context.Context) ([]*fdc3.AppDescriptor, error)
	GetApp(ctx context.Context, appID string) (*fdc3.AppDescriptor, error)
}

// LaunchRequest asks a launcher to start one instance of an app. Params are
// the startup parameters; fdc3.StartupParamInstanceID is always set.
type LaunchRequest struct {
	App    *fdc3.AppDescriptor
	Params map[string]string
}

// InstanceID returns the FDC3 instance id the launched app must report.
func (r LaunchRequest) InstanceID() string {
	return r.Params[fdc3.StartupParamInstanceID]
}

// Launcher starts app instances. Launch returns once the start was
// requested; the instance is registered when the launcher reports a
// LifecycleStarted event for it.
type Launcher interface {
	Launch(ctx context.Context, req LaunchRequest) error
}

// LifecycleKind tells whether an instance started or stopped.
type LifecycleKind string

const (
	LifecycleStarted LifecycleKind = "started"
	LifecycleStopped LifecycleKind = "stopped"
)

// LifecycleEvent is reported by a launcher for every process it manages.
// Processes without an FDC3 instance id parameter are ignored by the agent.
type LifecycleEvent struct {
	Kind   LifecycleKind
	AppID  string
	Params map[string]string
}

// LifecycleHandler receives lifecycle events.
type LifecycleHandler func(ctx context.Context, event LifecycleEvent)

// LifecycleNotifier is implemented by launchers that report lifecycle events
// through callbacks.
type LifecycleNotifier interface {
	AddLifecycleHandler(handler LifecycleHandler)
}

// ResolverUI lets the user pick among several candidates. Implementations
// report failures as *fdc3.Error values: ResolverUnavailable,
// ResolverTimeout or UserCancelledResolution.
type ResolverUI interface {
	PickApp(ctx context.Context, apps []fdc3.AppMetadata) (fdc3.AppMetadata, error)
	PickIntent(ctx context.Context, intents []string) (string, error)
}

// EventEmitter publishes agent events, typically as CloudEvents to the
// application's observers.
type EventEmitter func(ctx context.Context, eventType string, data map[string]any)
