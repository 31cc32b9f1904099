package fdc3

// ErrorResponse is the body returned by every service when an operation fails.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FindChannelRequest asks whether a channel exists.
type FindChannelRequest struct {
	ChannelID   string      `json:"channelId"`
	ChannelType ChannelType `json:"channelType"`
}

type FindChannelResponse struct {
	Found bool `json:"found"`
}

type JoinUserChannelRequest struct {
	ChannelID  string `json:"channelId"`
	InstanceID string `json:"instanceId"`
}

type JoinUserChannelResponse struct {
	Success         bool             `json:"success"`
	DisplayMetadata *DisplayMetadata `json:"displayMetadata,omitempty"`
}

type GetUserChannelsRequest struct {
	InstanceID string `json:"instanceId"`
}

type GetUserChannelsResponse struct {
	Channels []ChannelItem `json:"channels"`
}

type CreateAppChannelRequest struct {
	ChannelID  string `json:"channelId"`
	InstanceID string `json:"instanceId"`
}

type CreateAppChannelResponse struct {
	Success bool `json:"success"`
}

type CreatePrivateChannelRequest struct {
	InstanceID string `json:"instanceId"`
}

type CreatePrivateChannelResponse struct {
	ChannelID string `json:"channelId"`
}

type JoinPrivateChannelRequest struct {
	ChannelID  string `json:"channelId"`
	InstanceID string `json:"instanceId"`
}

type JoinPrivateChannelResponse struct {
	Success bool `json:"success"`
}

// BroadcastRequest publishes a context on a channel through the agent.
type BroadcastRequest struct {
	ChannelID   string      `json:"channelId"`
	ChannelType ChannelType `json:"channelType,omitempty"`
	Context     Context     `json:"context"`
}

type BroadcastResponse struct {
	Success bool `json:"success"`
}

// GetCurrentContextRequest reads a channel's cache. The per-channel
// getCurrentContext topic only uses ContextType.
type GetCurrentContextRequest struct {
	ChannelID   string      `json:"channelId,omitempty"`
	ChannelType ChannelType `json:"channelType,omitempty"`
	ContextType string      `json:"contextType,omitempty"`
}

type GetCurrentContextResponse struct {
	Context Context `json:"context,omitempty"`
}

type FindIntentRequest struct {
	Intent     string  `json:"intent"`
	Context    Context `json:"context,omitempty"`
	ResultType string  `json:"resultType,omitempty"`
}

type FindIntentResponse struct {
	AppIntent AppIntent `json:"appIntent"`
}

type FindIntentsByContextRequest struct {
	Context    Context `json:"context"`
	ResultType string  `json:"resultType,omitempty"`
}

type FindIntentsByContextResponse struct {
	AppIntents []AppIntent `json:"appIntents"`
}

// RaiseIntentRequest raises an intent. MessageID is the caller's numeric
// request id; the agent makes it unique.
type RaiseIntentRequest struct {
	MessageID           int64          `json:"messageId"`
	InstanceID          string         `json:"instanceId"`
	Intent              string         `json:"intent"`
	Context             Context        `json:"context"`
	TargetAppIdentifier *AppIdentifier `json:"app,omitempty"`
}

// RaiseIntentForContextRequest raises whichever intent handles the context.
type RaiseIntentForContextRequest struct {
	MessageID           int64          `json:"messageId"`
	InstanceID          string         `json:"instanceId"`
	Context             Context        `json:"context"`
	TargetAppIdentifier *AppIdentifier `json:"app,omitempty"`
}

type RaiseIntentResponse struct {
	MessageID   string      `json:"messageId"`
	Intent      string      `json:"intent"`
	AppMetadata AppMetadata `json:"appMetadata"`
}

// SubscribeState selects subscribe or unsubscribe in AddIntentListener.
type SubscribeState string

const (
	Subscribe   SubscribeState = "subscribe"
	Unsubscribe SubscribeState = "unsubscribe"
)

type IntentListenerRequest struct {
	Intent     string         `json:"intent"`
	InstanceID string         `json:"instanceId"`
	State      SubscribeState `json:"state"`
}

type IntentListenerResponse struct {
	Stored bool `json:"stored"`
}

// RaiseIntentResolution is published to the handling instance's resolution
// topic to deliver a raised intent.
type RaiseIntentResolution struct {
	MessageID       string          `json:"messageId"`
	Intent          string          `json:"intent"`
	Context         Context         `json:"context"`
	ContextMetadata ContextMetadata `json:"contextMetadata"`
}

// IntentResult holds the outcome an intent handler stored.
type IntentResult struct {
	Context     Context     `json:"context,omitempty"`
	ChannelID   string      `json:"channelId,omitempty"`
	ChannelType ChannelType `json:"channelType,omitempty"`
	VoidResult  bool        `json:"voidResult,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// IsEmpty reports whether no outcome field is set.
func (r IntentResult) IsEmpty() bool {
	return r.Context.IsEmpty() && r.ChannelID == "" && r.ChannelType == "" && !r.VoidResult && r.Error == ""
}

// StoreIntentResultRequest is sent by the handling instance. OriginInstanceID
// is the id of the instance that handled the intent.
type StoreIntentResultRequest struct {
	MessageID        string `json:"messageId"`
	Intent           string `json:"intent"`
	OriginInstanceID string `json:"originFdc3InstanceId"`
	IntentResult
}

type StoreIntentResultResponse struct {
	Stored bool `json:"stored"`
}

type GetIntentResultRequest struct {
	MessageID           string        `json:"messageId"`
	Intent              string        `json:"intent"`
	TargetAppIdentifier AppIdentifier `json:"targetAppIdentifier"`
}

type GetIntentResultResponse struct {
	Context     Context     `json:"context,omitempty"`
	ChannelID   string      `json:"channelId,omitempty"`
	ChannelType ChannelType `json:"channelType,omitempty"`
	VoidResult  bool        `json:"voidResult,omitempty"`
}

type AddContextListenerRequest struct {
	InstanceID  string      `json:"fdc3InstanceId"`
	ContextType string      `json:"contextType,omitempty"`
	ChannelID   string      `json:"channelId,omitempty"`
	ChannelType ChannelType `json:"channelType,omitempty"`
}

type AddContextListenerResponse struct {
	ID string `json:"id"`
}

type RemoveContextListenerRequest struct {
	InstanceID  string `json:"fdc3InstanceId"`
	ListenerID  string `json:"listenerId"`
	ContextType string `json:"contextType,omitempty"`
}

type RemoveContextListenerResponse struct {
	Success bool `json:"success"`
}

type OpenRequest struct {
	InstanceID    string        `json:"instanceId"`
	AppIdentifier AppIdentifier `json:"appIdentifier"`
	Context       Context       `json:"context,omitempty"`
	ChannelID     string        `json:"channelId,omitempty"`
}

type OpenResponse struct {
	AppIdentifier AppIdentifier `json:"appIdentifier"`
}

type GetOpenedAppContextRequest struct {
	ContextID string `json:"contextId"`
}

type GetOpenedAppContextResponse struct {
	Context Context `json:"context"`
}

type GetInfoRequest struct {
	AppIdentifier AppIdentifier `json:"appIdentifier"`
}

type FindInstancesRequest struct {
	InstanceID    string        `json:"fdc3InstanceId"`
	AppIdentifier AppIdentifier `json:"appIdentifier"`
}

type FindInstancesResponse struct {
	Instances []AppIdentifier `json:"instances"`
}

type GetAppMetadataRequest struct {
	InstanceID    string        `json:"fdc3InstanceId"`
	AppIdentifier AppIdentifier `json:"appIdentifier"`
}

// ResolverUIRequest asks the resolver UI to pick one app.
type ResolverUIRequest struct {
	AppMetadata []AppMetadata `json:"appMetadata"`
}

type ResolverUIResponse struct {
	AppMetadata   *AppMetadata `json:"appMetadata,omitempty"`
	UserCancelled bool         `json:"userCancelled,omitempty"`
	Error         string       `json:"error,omitempty"`
}

// ResolverUIIntentRequest asks the resolver UI to pick one intent.
type ResolverUIIntentRequest struct {
	Intents []string `json:"intents"`
}

type ResolverUIIntentResponse struct {
	SelectedIntent string `json:"selectedIntent,omitempty"`
	UserCancelled  bool   `json:"userCancelled,omitempty"`
	Error          string `json:"error,omitempty"`
}

// PrivateChannelEvent is published on a private channel's events topic.
type PrivateChannelEvent struct {
	Event      string `json:"event"`
	InstanceID string `json:"instanceId"`
}

// Private channel event names.
const (
	PrivateChannelEventDisconnect = "disconnect"
)
