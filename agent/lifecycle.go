package agent

import (
	"context"

	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/GoCodeAlone/desktopagent/instances"
)

// HandleLifecycleEvent keeps the instance registry in step with the
// launcher. Events of processes launched without an FDC3 instance id are
// ignored.
func (a *DesktopAgent) HandleLifecycleEvent(ctx context.Context, event LifecycleEvent) {
	instanceID := event.Params[fdc3.StartupParamInstanceID]
	if instanceID == "" {
		return
	}

	switch event.Kind {
	case LifecycleStarted:
		a.instanceStarted(ctx, instanceID, event)
	case LifecycleStopped:
		a.instanceStopped(ctx, instanceID, event)
	default:
		a.logger.Warn("Unknown lifecycle event", "kind", event.Kind, "instanceId", instanceID)
	}
}

func (a *DesktopAgent) instanceStarted(ctx context.Context, instanceID string, event LifecycleEvent) {
	app, err := a.directory.GetApp(ctx, event.AppID)
	if err != nil {
		a.logger.Error("Started instance is not in the app directory", "appId", event.AppID, "instanceId", instanceID, "error", err)
		a.instances.Abandon(instanceID, fdc3.NewError(fdc3.CodeTargetInstanceUnavailable, "app %q: %v", event.AppID, err))
		return
	}

	a.instances.Upsert(&instances.Instance{
		ID:              instanceID,
		App:             app,
		OpenedContextID: event.Params[fdc3.StartupParamOpenedAppContextID],
		ChannelID:       event.Params[fdc3.StartupParamChannelID],
	})
	a.logger.Info("Instance started", "appId", app.AppID, "instanceId", instanceID)
	a.emit(ctx, EventTypeInstanceStarted, map[string]any{
		"appId":      app.AppID,
		"instanceId": instanceID,
	})
}

func (a *DesktopAgent) instanceStopped(ctx context.Context, instanceID string, event LifecycleEvent) {
	a.instances.Remove(instanceID)
	a.dropContextListeners(instanceID)
	a.ledgers.Remove(instanceID)
	a.leavePrivateChannels(ctx, instanceID)

	a.logger.Info("Instance stopped", "appId", event.AppID, "instanceId", instanceID)
	a.emit(ctx, EventTypeInstanceStopped, map[string]any{
		"appId":      event.AppID,
		"instanceId": instanceID,
	})
}
