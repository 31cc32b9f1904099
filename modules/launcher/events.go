package launcher

// Event type constants for launcher events.
const (
	EventTypeInstanceStarting = "com.desktopagent.launcher.instance.starting"
	EventTypeInstanceStarted  = "com.desktopagent.launcher.instance.started"
	EventTypeInstanceStopping = "com.desktopagent.launcher.instance.stopping"
	EventTypeInstanceStopped  = "com.desktopagent.launcher.instance.stopped"
	EventTypeLaunchFailed     = "com.desktopagent.launcher.launch.failed"
)
