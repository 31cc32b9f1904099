package interop

// Event type constants for the desktop agent module. Interop outcomes use
// the agent's own event types (agent.EventType*).
const (
	EventTypeServicesRegistered    = "com.desktopagent.fdc3.services.registered"
	EventTypeServicesUnregistered  = "com.desktopagent.fdc3.services.unregistered"
	EventTypeHousekeepingCompleted = "com.desktopagent.fdc3.housekeeping.completed"
)
