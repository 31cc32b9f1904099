package channels

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type channelKey struct {
	id          string
	channelType fdc3.ChannelType
}

func (k channelKey) String() string {
	return string(k.channelType) + "/" + k.id
}

// Registry owns every live channel. Creation of the same id and type is
// collapsed into a single fabric connection; the map lock is not held while
// connecting.
type Registry struct {
	fabric messaging.Fabric
	topics fdc3.Topics
	logger desktopagent.Logger

	mu       sync.RWMutex
	channels map[channelKey]*Channel
	creating singleflight.Group
}

// NewRegistry creates an empty registry bound to fabric.
func NewRegistry(fabric messaging.Fabric, topics fdc3.Topics, logger desktopagent.Logger) *Registry {
	if logger == nil {
		logger = desktopagent.NopLogger()
	}
	return &Registry{
		fabric:   fabric,
		topics:   topics,
		logger:   logger,
		channels: make(map[channelKey]*Channel),
	}
}

// GetOrCreate returns the channel with id and channelType, connecting a new
// one when it does not exist yet. display is only used on creation.
func (r *Registry) GetOrCreate(ctx context.Context, id string, channelType fdc3.ChannelType, display *fdc3.DisplayMetadata) (*Channel, error) {
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, "/*") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChannelID, id)
	}
	if !channelType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChannelType, channelType)
	}

	key := channelKey{id: id, channelType: channelType}
	if channel, ok := r.Get(id, channelType); ok {
		return channel, nil
	}

	v, err, _ := r.creating.Do(key.String(), func() (any, error) {
		if channel, ok := r.Get(id, channelType); ok {
			return channel, nil
		}

		channel := newChannel(id, channelType, display, r.topics, r.fabric, r.logger)
		if err := channel.connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect channel %s: %w", key, err)
		}

		r.mu.Lock()
		r.channels[key] = channel
		r.mu.Unlock()

		r.logger.Info("Channel created", "channel", id, "type", channelType)
		return channel, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Channel), nil
}

// Get returns the channel with id and channelType.
func (r *Registry) Get(id string, channelType fdc3.ChannelType) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	channel, ok := r.channels[channelKey{id: id, channelType: channelType}]
	return channel, ok
}

// Find reports whether the channel exists.
func (r *Registry) Find(id string, channelType fdc3.ChannelType) bool {
	_, ok := r.Get(id, channelType)
	return ok
}

// Remove disposes and forgets one channel.
func (r *Registry) Remove(id string, channelType fdc3.ChannelType) error {
	key := channelKey{id: id, channelType: channelType}

	r.mu.Lock()
	channel, ok := r.channels[key]
	delete(r.channels, key)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	r.logger.Info("Channel removed", "channel", id, "type", channelType)
	return channel.Dispose()
}

// List returns the channels of channelType sorted by id. An empty
// channelType lists every channel.
func (r *Registry) List(channelType fdc3.ChannelType) []*Channel {
	r.mu.RLock()
	result := make([]*Channel, 0, len(r.channels))
	for key, channel := range r.channels {
		if channelType == "" || key.channelType == channelType {
			result = append(result, channel)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b *Channel) int {
		if c := strings.Compare(string(a.channelType), string(b.channelType)); c != 0 {
			return c
		}
		return strings.Compare(a.id, b.id)
	})
	return result
}

// Len returns the number of live channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// DisposeAll disposes every channel in parallel and clears the registry.
func (r *Registry) DisposeAll(_ context.Context) error {
	r.mu.Lock()
	all := r.channels
	r.channels = make(map[channelKey]*Channel)
	r.mu.Unlock()

	var eg errgroup.Group
	for key, channel := range all {
		eg.Go(func() error {
			if err := channel.Dispose(); err != nil {
				return fmt.Errorf("failed to dispose channel %s: %w", key, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	r.logger.Debug("Disposed all channels", "count", len(all))
	return nil
}
