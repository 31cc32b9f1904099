package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
	"github.com/google/uuid"
)

// ownBroadcastTTL bounds how long the id of a broadcast made through the
// channel is remembered while waiting for it to come back from the fabric.
const ownBroadcastTTL = time.Minute

// Channel is a named context bus bound to its fabric topics. Broadcast
// writes the cache before publishing; publications by other parties on the
// broadcast topic update the cache on delivery. The current context is also
// served on the channel's getCurrentContext topic.
type Channel struct {
	id          string
	channelType fdc3.ChannelType
	display     *fdc3.DisplayMetadata
	topics      fdc3.ChannelTopics
	cache       *ContextCache
	fabric      messaging.Fabric
	logger      desktopagent.Logger

	mu           sync.Mutex
	broadcastSub messaging.Subscription
	serviceSub   messaging.Subscription
	members      map[string]struct{}
	own          map[string]time.Time
	disposed     bool
}

func newChannel(id string, channelType fdc3.ChannelType, display *fdc3.DisplayMetadata,
	topics fdc3.Topics, fabric messaging.Fabric, logger desktopagent.Logger) *Channel {
	return &Channel{
		id:          id,
		channelType: channelType,
		display:     display,
		topics:      topics.Channel(id, channelType),
		cache:       NewContextCache(),
		fabric:      fabric,
		logger:      logger,
		members:     make(map[string]struct{}),
		own:         make(map[string]time.Time),
	}
}

// ID returns the channel id.
func (c *Channel) ID() string { return c.id }

// Type returns the channel type.
func (c *Channel) Type() fdc3.ChannelType { return c.channelType }

// DisplayMetadata returns the presentation of a user channel, or nil.
func (c *Channel) DisplayMetadata() *fdc3.DisplayMetadata { return c.display }

// Topics returns the channel's fabric topics.
func (c *Channel) Topics() fdc3.ChannelTopics { return c.topics }

// connect registers the current context service and subscribes to the
// broadcast topic. A service already registered on the topic by someone else
// is only logged.
func (c *Channel) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrChannelDisposed
	}

	svc, err := c.fabric.RegisterService(ctx, c.topics.GetCurrentContext, c.serveCurrentContext)
	switch {
	case errors.Is(err, messaging.ErrDuplicateService):
		c.logger.Warn("Current context service already registered", "channel", c.id, "type", c.channelType, "topic", c.topics.GetCurrentContext)
	case err != nil:
		return err
	default:
		c.serviceSub = svc
	}

	sub, err := c.fabric.Subscribe(ctx, c.topics.Broadcast, c.handleBroadcast)
	if err != nil {
		if c.serviceSub != nil {
			_ = c.serviceSub.Cancel()
			c.serviceSub = nil
		}
		return err
	}
	c.broadcastSub = sub

	c.logger.Debug("Channel connected", "channel", c.id, "type", c.channelType)
	return nil
}

func (c *Channel) handleBroadcast(_ context.Context, msg messaging.Message) error {
	if c.takeOwn(msg.ID) {
		return nil
	}
	if len(msg.Payload) == 0 {
		c.logger.Warn("Dropped empty broadcast", "channel", c.id, "type", c.channelType)
		return nil
	}
	if err := c.cache.Broadcast(fdc3.Context(msg.Payload)); err != nil {
		c.logger.Warn("Dropped malformed broadcast", "channel", c.id, "type", c.channelType, "error", err)
	}
	return nil
}

func (c *Channel) serveCurrentContext(_ context.Context, request []byte) ([]byte, error) {
	var contextType string
	if len(request) > 0 && string(request) != "null" {
		var req fdc3.GetCurrentContextRequest
		if err := json.Unmarshal(request, &req); err != nil {
			return nil, err
		}
		contextType = req.ContextType
	}
	return c.GetCurrentContext(contextType).MarshalJSON()
}

// Broadcast stores context in the cache and publishes it on the channel's
// broadcast topic. A GetCurrentContext issued after Broadcast returns sees
// the new context. The publication is not stored a second time when the
// fabric delivers it back to the channel.
func (c *Channel) Broadcast(ctx context.Context, payload fdc3.Context) error {
	if _, err := fdc3.ParseContextType(payload); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidContext, err)
	}

	id := uuid.NewString()
	now := time.Now()
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrChannelDisposed
	}
	for ownID, at := range c.own {
		if now.Sub(at) > ownBroadcastTTL {
			delete(c.own, ownID)
		}
	}
	c.own[id] = now
	if err := c.cache.Broadcast(payload); err != nil {
		delete(c.own, id)
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInvalidContext, err)
	}
	c.mu.Unlock()

	if err := c.fabric.Publish(messaging.WithMessageID(ctx, id), c.topics.Broadcast, payload); err != nil {
		c.takeOwn(id)
		return err
	}
	return nil
}

// takeOwn reports whether id belongs to a broadcast made through the channel
// and forgets it.
func (c *Channel) takeOwn(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.own[id]; !ok {
		return false
	}
	delete(c.own, id)
	return true
}

// GetCurrentContext reads the cache.
func (c *Channel) GetCurrentContext(contextType string) fdc3.Context {
	return c.cache.GetCurrentContext(contextType)
}

// AddMember records instanceID as a member. Membership is only tracked for
// private channels.
func (c *Channel) AddMember(instanceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members[instanceID] = struct{}{}
}

// RemoveMember drops instanceID and reports whether it was a member and
// whether the channel has no members left.
func (c *Channel) RemoveMember(instanceID string) (removed, empty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.members[instanceID]; ok {
		delete(c.members, instanceID)
		removed = true
	}
	return removed, len(c.members) == 0
}

// HasMember reports whether instanceID joined the channel.
func (c *Channel) HasMember(instanceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.members[instanceID]
	return ok
}

// Members returns the member instance ids in sorted order.
func (c *Channel) Members() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	members := make([]string, 0, len(c.members))
	for id := range c.members {
		members = append(members, id)
	}
	slices.Sort(members)
	return members
}

// Dispose cancels the channel's fabric subscriptions. It is idempotent.
func (c *Channel) Dispose() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil
	}
	c.disposed = true

	var errs []error
	if c.broadcastSub != nil {
		errs = append(errs, c.broadcastSub.Cancel())
		c.broadcastSub = nil
	}
	if c.serviceSub != nil {
		errs = append(errs, c.serviceSub.Cancel())
		c.serviceSub = nil
	}
	c.cache.Clear()
	clear(c.own)
	return errors.Join(errs...)
}
