package fdc3

import "strings"

// DefaultTopicRoot prefixes every desktop agent topic.
const DefaultTopicRoot = "fdc3/v2.0/"

// Service names, relative to the topic root.
const (
	ServiceFindChannel           = "findChannel"
	ServiceFindIntent            = "findIntent"
	ServiceFindIntentsByContext  = "findIntentsByContext"
	ServiceRaiseIntent           = "raiseIntent"
	ServiceRaiseIntentForContext = "raiseIntentForContext"
	ServiceGetIntentResult       = "getIntentResult"
	ServiceSendIntentResult      = "sendIntentResult"
	ServiceAddIntentListener     = "addIntentListener"
	ServiceResolverUI            = "resolverUI"
	ServiceResolverUIIntent      = "resolverUIIntent"
	ServiceCreatePrivateChannel  = "createPrivateChannel"
	ServiceJoinPrivateChannel    = "joinPrivateChannel"
	ServiceCreateAppChannel      = "createAppChannel"
	ServiceGetUserChannels       = "getUserChannels"
	ServiceJoinUserChannel       = "joinUserChannel"
	ServiceBroadcast             = "broadcast"
	ServiceGetCurrentContext     = "getCurrentContext"
	ServiceGetInfo               = "getInfo"
	ServiceFindInstances         = "findInstances"
	ServiceGetAppMetadata        = "getAppMetadata"
	ServiceAddContextListener    = "addContextListener"
	ServiceRemoveContextListener = "removeContextListener"
	ServiceOpen                  = "open"
	ServiceGetOpenedAppContext   = "getOpenedAppContext"
)

// Startup parameters threaded through the launcher.
const (
	StartupParamInstanceID         = "Fdc3InstanceId"
	StartupParamOpenedAppContextID = "Fdc3OpenedAppContextId"
	StartupParamChannelID          = "Fdc3ChannelId"
)

// Topics builds topic names under a root.
type Topics struct {
	root string
}

// NewTopics returns a builder for root. A missing trailing slash is added and
// an empty root selects DefaultTopicRoot.
func NewTopics(root string) Topics {
	if root == "" {
		root = DefaultTopicRoot
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return Topics{root: root}
}

// Root returns the topic root, always ending in "/".
func (t Topics) Root() string {
	return t.root
}

// Service returns the request/response topic of a named service.
func (t Topics) Service(name string) string {
	return t.root + name
}

// RaiseIntentResolution is the topic an instance listens on for intent
// deliveries.
func (t Topics) RaiseIntentResolution(intent, instanceID string) string {
	return t.root + ServiceRaiseIntent + "/" + intent + "/" + instanceID
}

// ChannelTopics are the per-channel topics.
type ChannelTopics struct {
	Broadcast         string
	GetCurrentContext string
	// Events is only used by private channels.
	Events string
}

// Channel returns the topics of one channel.
func (t Topics) Channel(id string, channelType ChannelType) ChannelTopics {
	var family string
	switch channelType {
	case ChannelTypeUser:
		family = "userChannels"
	case ChannelTypePrivate:
		family = "privateChannels"
	default:
		family = "appChannels"
	}

	channelRoot := t.root + family + "/" + id + "/"
	topics := ChannelTopics{
		Broadcast:         channelRoot + "broadcast",
		GetCurrentContext: channelRoot + "getCurrentContext",
	}
	if channelType == ChannelTypePrivate {
		topics.Events = channelRoot + "events"
	}
	return topics
}
