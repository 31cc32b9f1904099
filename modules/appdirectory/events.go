package appdirectory

// Event type constants for app directory events.
const (
	EventTypeDirectoryLoaded       = "com.desktopagent.appdirectory.loaded"
	EventTypeDirectoryReloaded     = "com.desktopagent.appdirectory.reloaded"
	EventTypeDirectoryReloadFailed = "com.desktopagent.appdirectory.reload.failed"
)
