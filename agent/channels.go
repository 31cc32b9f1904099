package agent

import (
	"context"
	"errors"

	"github.com/GoCodeAlone/desktopagent/channels"
	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
	"github.com/google/uuid"
)

var channelTypes = []fdc3.ChannelType{fdc3.ChannelTypeUser, fdc3.ChannelTypeApp, fdc3.ChannelTypePrivate}

// FindChannel reports whether a channel is live.
func (a *DesktopAgent) FindChannel(_ context.Context, req *fdc3.FindChannelRequest) (*fdc3.FindChannelResponse, error) {
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodePayloadNull, "findChannel request is empty")
	}
	return &fdc3.FindChannelResponse{Found: a.channels.Find(req.ChannelID, req.ChannelType)}, nil
}

// GetUserChannels returns the configured user channel set.
func (a *DesktopAgent) GetUserChannels(_ context.Context, req *fdc3.GetUserChannelsRequest) (resp *fdc3.GetUserChannelsResponse, err error) {
	defer func() { a.metrics.observe("getUserChannels", err) }()
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodePayloadNull, "getUserChannels request is empty")
	}
	if _, err := uuid.Parse(req.InstanceID); err != nil {
		return nil, fdc3.NewError(fdc3.CodeMissingID, "instance id %q is not valid", req.InstanceID)
	}
	if _, ok := a.instances.TryGet(req.InstanceID); !ok {
		return nil, fdc3.NewError(fdc3.CodeAccessDenied, "instance %s is not running", req.InstanceID)
	}
	set := a.userChannelSet()
	if set == nil {
		return nil, fdc3.NewError(fdc3.CodeNoUserChannelSetFound, "no user channel set is configured")
	}
	return &fdc3.GetUserChannelsResponse{Channels: set.Items()}, nil
}

// JoinUserChannel joins an instance to a user channel, creating it on first
// use.
func (a *DesktopAgent) JoinUserChannel(ctx context.Context, req *fdc3.JoinUserChannelRequest) (resp *fdc3.JoinUserChannelResponse, err error) {
	defer func() { a.metrics.observe("joinUserChannel", err) }()
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodePayloadNull, "joinUserChannel request is empty")
	}
	if _, err := uuid.Parse(req.InstanceID); err != nil {
		return nil, fdc3.NewError(fdc3.CodeMissingID, "instance id %q is not valid", req.InstanceID)
	}
	if _, ok := a.instances.TryGet(req.InstanceID); !ok {
		return nil, fdc3.NewError(fdc3.CodeAccessDenied, "instance %s is not running", req.InstanceID)
	}

	var display *fdc3.DisplayMetadata
	if item, ok := a.userChannelSet().Get(req.ChannelID); ok {
		display = item.DisplayMetadata
	} else if existing, ok := a.channels.Get(req.ChannelID, fdc3.ChannelTypeUser); ok {
		display = existing.DisplayMetadata()
	} else {
		return nil, fdc3.NewError(fdc3.CodeNoChannelFound, "user channel %q is not part of the user channel set", req.ChannelID)
	}

	channel, err := a.getOrCreateChannel(ctx, req.ChannelID, fdc3.ChannelTypeUser, display)
	if err != nil {
		return nil, fdc3.NewError(fdc3.CodeCreationFailed, "user channel %q: %v", req.ChannelID, err)
	}
	return &fdc3.JoinUserChannelResponse{Success: true, DisplayMetadata: channel.DisplayMetadata()}, nil
}

// CreateAppChannel creates an app channel. Creating an existing one succeeds.
func (a *DesktopAgent) CreateAppChannel(ctx context.Context, req *fdc3.CreateAppChannelRequest) (resp *fdc3.CreateAppChannelResponse, err error) {
	defer func() { a.metrics.observe("createAppChannel", err) }()
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodePayloadNull, "createAppChannel request is empty")
	}
	if req.ChannelID == "" {
		return nil, fdc3.NewError(fdc3.CodeCreationFailed, "app channel id is empty")
	}
	if _, ok := a.runningInstance(req.InstanceID); !ok {
		return nil, fdc3.NewError(fdc3.CodeCreationFailed, "instance %q is not running", req.InstanceID)
	}
	if a.channels.Find(req.ChannelID, fdc3.ChannelTypePrivate) {
		return nil, fdc3.NewError(fdc3.CodeAccessDenied, "channel id %q belongs to a private channel", req.ChannelID)
	}
	if _, err := a.getOrCreateChannel(ctx, req.ChannelID, fdc3.ChannelTypeApp, nil); err != nil {
		return nil, fdc3.NewError(fdc3.CodeCreationFailed, "app channel %q: %v", req.ChannelID, err)
	}
	return &fdc3.CreateAppChannelResponse{Success: true}, nil
}

// CreatePrivateChannel creates a private channel owned by the instance.
func (a *DesktopAgent) CreatePrivateChannel(ctx context.Context, req *fdc3.CreatePrivateChannelRequest) (resp *fdc3.CreatePrivateChannelResponse, err error) {
	defer func() { a.metrics.observe("createPrivateChannel", err) }()
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodePayloadNull, "createPrivateChannel request is empty")
	}
	if _, ok := a.runningInstance(req.InstanceID); !ok {
		return nil, fdc3.NewError(fdc3.CodeMissingID, "instance %q is not running", req.InstanceID)
	}

	channelID := uuid.NewString()
	channel, err := a.getOrCreateChannel(ctx, channelID, fdc3.ChannelTypePrivate, nil)
	if err != nil {
		return nil, fdc3.NewError(fdc3.CodeCreationFailed, "private channel: %v", err)
	}
	a.joinPrivate(channel, req.InstanceID)
	return &fdc3.CreatePrivateChannelResponse{ChannelID: channelID}, nil
}

// JoinPrivateChannel adds an instance to an existing private channel.
func (a *DesktopAgent) JoinPrivateChannel(_ context.Context, req *fdc3.JoinPrivateChannelRequest) (resp *fdc3.JoinPrivateChannelResponse, err error) {
	defer func() { a.metrics.observe("joinPrivateChannel", err) }()
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodePayloadNull, "joinPrivateChannel request is empty")
	}
	if _, ok := a.runningInstance(req.InstanceID); !ok {
		return nil, fdc3.NewError(fdc3.CodeMissingID, "instance %q is not running", req.InstanceID)
	}
	channel, ok := a.channels.Get(req.ChannelID, fdc3.ChannelTypePrivate)
	if !ok {
		return nil, fdc3.NewError(fdc3.CodePrivateChannelNotFound, "private channel %q does not exist", req.ChannelID)
	}
	a.joinPrivate(channel, req.InstanceID)
	return &fdc3.JoinPrivateChannelResponse{Success: true}, nil
}

// Broadcast publishes a context on a channel. An empty channel type searches
// user, app and private channels in that order. A context without a type is
// logged and dropped, and the response reports that nothing was broadcast.
func (a *DesktopAgent) Broadcast(ctx context.Context, req *fdc3.BroadcastRequest) (resp *fdc3.BroadcastResponse, err error) {
	defer func() { a.metrics.observe("broadcast", err) }()
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodePayloadNull, "broadcast request is empty")
	}
	channel, ok := a.lookupChannel(req.ChannelID, req.ChannelType)
	if !ok {
		return nil, fdc3.NewError(fdc3.CodeNoChannelFound, "channel %q does not exist", req.ChannelID)
	}
	if err := channel.Broadcast(ctx, req.Context); err != nil {
		if errors.Is(err, channels.ErrInvalidContext) {
			a.logger.Warn("Dropped malformed broadcast", "channel", req.ChannelID, "error", err)
			return &fdc3.BroadcastResponse{Success: false}, nil
		}
		if errors.Is(err, channels.ErrChannelDisposed) {
			return nil, fdc3.NewError(fdc3.CodeNoChannelFound, "channel %q was closed", req.ChannelID)
		}
		return nil, err
	}
	return &fdc3.BroadcastResponse{Success: true}, nil
}

// GetCurrentContext reads the most recent context of a channel, optionally
// of one context type. A miss returns an empty context.
func (a *DesktopAgent) GetCurrentContext(_ context.Context, req *fdc3.GetCurrentContextRequest) (*fdc3.GetCurrentContextResponse, error) {
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodePayloadNull, "getCurrentContext request is empty")
	}
	channel, ok := a.lookupChannel(req.ChannelID, req.ChannelType)
	if !ok {
		return nil, fdc3.NewError(fdc3.CodeNoChannelFound, "channel %q does not exist", req.ChannelID)
	}
	return &fdc3.GetCurrentContextResponse{Context: channel.GetCurrentContext(req.ContextType)}, nil
}

func (a *DesktopAgent) lookupChannel(id string, channelType fdc3.ChannelType) (*channels.Channel, bool) {
	if channelType != "" {
		return a.channels.Get(id, channelType)
	}
	for _, t := range channelTypes {
		if channel, ok := a.channels.Get(id, t); ok {
			return channel, true
		}
	}
	return nil, false
}

func (a *DesktopAgent) getOrCreateChannel(ctx context.Context, id string, channelType fdc3.ChannelType, display *fdc3.DisplayMetadata) (*channels.Channel, error) {
	existed := a.channels.Find(id, channelType)
	channel, err := a.channels.GetOrCreate(ctx, id, channelType, display)
	if err != nil {
		return nil, err
	}
	if !existed {
		a.emit(ctx, EventTypeChannelCreated, map[string]any{
			"channelId":   id,
			"channelType": string(channelType),
		})
	}
	return channel, nil
}

func (a *DesktopAgent) joinPrivate(channel *channels.Channel, instanceID string) {
	channel.AddMember(instanceID)
	a.privateMu.Lock()
	defer a.privateMu.Unlock()
	joined, ok := a.privateByInstance[instanceID]
	if !ok {
		joined = make(map[string]struct{})
		a.privateByInstance[instanceID] = joined
	}
	joined[channel.ID()] = struct{}{}
}

// leavePrivateChannels removes a stopped instance from its private channels,
// tells the remaining members and closes channels left without members.
func (a *DesktopAgent) leavePrivateChannels(ctx context.Context, instanceID string) {
	a.privateMu.Lock()
	joined := a.privateByInstance[instanceID]
	delete(a.privateByInstance, instanceID)
	a.privateMu.Unlock()

	for id := range joined {
		channel, ok := a.channels.Get(id, fdc3.ChannelTypePrivate)
		if !ok {
			continue
		}
		removed, empty := channel.RemoveMember(instanceID)
		if !removed {
			continue
		}
		event := fdc3.PrivateChannelEvent{Event: fdc3.PrivateChannelEventDisconnect, InstanceID: instanceID}
		if err := messaging.PublishJSON(ctx, a.fabric, channel.Topics().Events, event); err != nil {
			a.logger.Warn("Failed to publish private channel disconnect", "channel", id, "error", err)
		}
		if empty {
			if err := a.channels.Remove(id, fdc3.ChannelTypePrivate); err != nil {
				a.logger.Warn("Failed to close private channel", "channel", id, "error", err)
			}
		}
	}
}
