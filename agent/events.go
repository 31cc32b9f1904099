package agent

// Event types emitted by the desktop agent.
const (
	EventTypeIntentRaised       = "com.desktopagent.fdc3.intent.raised"
	EventTypeIntentFailed       = "com.desktopagent.fdc3.intent.failed"
	EventTypeIntentResultStored = "com.desktopagent.fdc3.intent.result_stored"
	EventTypeInstanceStarted    = "com.desktopagent.fdc3.instance.started"
	EventTypeInstanceStopped    = "com.desktopagent.fdc3.instance.stopped"
	EventTypeChannelCreated     = "com.desktopagent.fdc3.channel.created"
	EventTypeAppOpened          = "com.desktopagent.fdc3.app.opened"
)
