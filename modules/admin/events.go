package admin

const (
	EventTypeServerStarted = "com.desktopagent.admin.server.started"
	EventTypeServerStopped = "com.desktopagent.admin.server.stopped"
	EventTypeAuthFailed    = "com.desktopagent.admin.auth.failed"
)
