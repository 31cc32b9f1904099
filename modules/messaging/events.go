package messaging

// Event type constants for messaging module events.
// Following CloudEvents specification reverse domain notation.
const (
	// Topic events
	EventTypeTopicCreated = "com.desktopagent.messaging.topic.created"
	EventTypeTopicDeleted = "com.desktopagent.messaging.topic.deleted"

	// Service events
	EventTypeServiceRegistered   = "com.desktopagent.messaging.service.registered"
	EventTypeServiceUnregistered = "com.desktopagent.messaging.service.unregistered"

	// Message events
	EventTypeMessageFailed = "com.desktopagent.messaging.message.failed"

	// Fabric lifecycle events
	EventTypeFabricStarted = "com.desktopagent.messaging.fabric.started"
	EventTypeFabricStopped = "com.desktopagent.messaging.fabric.stopped"
)
