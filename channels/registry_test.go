package channels

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFabric(t *testing.T) *messaging.MemoryEngine {
	t.Helper()
	cfg := &messaging.Config{}
	require.NoError(t, desktopagent.ProcessConfigDefaults(cfg))
	engine := messaging.NewMemoryEngine(cfg, nil)
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(func() { _ = engine.Stop(context.Background()) })
	return engine
}

func newTestRegistry(t *testing.T) (*Registry, *messaging.MemoryEngine) {
	t.Helper()
	fabric := newFabric(t)
	return NewRegistry(fabric, fdc3.NewTopics(""), nil), fabric
}

func TestRegistryGetOrCreateIsIdempotent(t *testing.T) {
	registry, fabric := newTestRegistry(t)
	ctx := context.Background()

	const callers = 16
	results := make([]*Channel, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			channel, err := registry.GetOrCreate(ctx, "prices", fdc3.ChannelTypeApp, nil)
			assert.NoError(t, err)
			results[i] = channel
		}()
	}
	wg.Wait()

	for _, channel := range results {
		assert.Same(t, results[0], channel)
	}
	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, 1, fabric.SubscriberCount("fdc3/v2.0/appChannels/prices/broadcast"))
	assert.Equal(t, []string{"fdc3/v2.0/appChannels/prices/getCurrentContext"}, fabric.Services())
}

func TestRegistrySeparatesChannelTypes(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	user, err := registry.GetOrCreate(ctx, "red", fdc3.ChannelTypeUser, &fdc3.DisplayMetadata{Name: "Red"})
	require.NoError(t, err)
	app, err := registry.GetOrCreate(ctx, "red", fdc3.ChannelTypeApp, nil)
	require.NoError(t, err)

	assert.NotSame(t, user, app)
	assert.True(t, registry.Find("red", fdc3.ChannelTypeUser))
	assert.False(t, registry.Find("red", fdc3.ChannelTypePrivate))
	assert.Equal(t, "Red", user.DisplayMetadata().Name)
	assert.Len(t, registry.List(""), 2)
	assert.Len(t, registry.List(fdc3.ChannelTypeUser), 1)
}

func TestRegistryRejectsInvalidKeys(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.GetOrCreate(ctx, "", fdc3.ChannelTypeApp, nil)
	assert.ErrorIs(t, err, ErrInvalidChannelID)
	_, err = registry.GetOrCreate(ctx, "a/b", fdc3.ChannelTypeApp, nil)
	assert.ErrorIs(t, err, ErrInvalidChannelID)
	_, err = registry.GetOrCreate(ctx, "ok", fdc3.ChannelType("system"), nil)
	assert.ErrorIs(t, err, ErrInvalidChannelType)
}

func TestRegistryDuplicateServiceIsBenign(t *testing.T) {
	registry, fabric := newTestRegistry(t)
	ctx := context.Background()

	// someone else already serves the channel's current context topic
	_, err := fabric.RegisterService(ctx, "fdc3/v2.0/userChannels/red/getCurrentContext",
		func(context.Context, []byte) ([]byte, error) { return []byte(`null`), nil })
	require.NoError(t, err)

	channel, err := registry.GetOrCreate(ctx, "red", fdc3.ChannelTypeUser, nil)
	require.NoError(t, err)
	assert.NotNil(t, channel)
}

func TestChannelBroadcastUpdatesCacheAndService(t *testing.T) {
	registry, fabric := newTestRegistry(t)
	ctx := context.Background()

	channel, err := registry.GetOrCreate(ctx, "fdc3.channel.1", fdc3.ChannelTypeUser, nil)
	require.NoError(t, err)

	require.NoError(t, channel.Broadcast(ctx, instrument("AAPL")))
	assert.JSONEq(t, string(instrument("AAPL")), string(channel.GetCurrentContext("")))
	require.NoError(t, fabric.Publish(ctx, channel.Topics().Broadcast, contact("a@b.c")))

	require.Eventually(t, func() bool {
		return channel.GetCurrentContext("fdc3.contact") != nil && channel.GetCurrentContext("fdc3.instrument") != nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "fdc3.contact", channel.GetCurrentContext("").Type())

	raw, err := fabric.Invoke(ctx, channel.Topics().GetCurrentContext, []byte(`{"contextType":"fdc3.instrument"}`))
	require.NoError(t, err)
	assert.JSONEq(t, string(instrument("AAPL")), string(raw))

	raw, err = fabric.Invoke(ctx, channel.Topics().GetCurrentContext, nil)
	require.NoError(t, err)
	assert.Equal(t, "fdc3.contact", fdc3.Context(raw).Type())

	raw, err = fabric.Invoke(ctx, channel.Topics().GetCurrentContext, []byte(`{"contextType":"fdc3.portfolio"}`))
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}

func TestChannelBroadcastIsReadableImmediately(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	channel, err := registry.GetOrCreate(ctx, "fdc3.channel.2", fdc3.ChannelTypeUser, nil)
	require.NoError(t, err)

	for i := range 200 {
		payload := instrument(fmt.Sprintf("T%d", i))
		require.NoError(t, channel.Broadcast(ctx, payload))
		require.JSONEq(t, string(payload), string(channel.GetCurrentContext("")), "broadcast %d", i)
	}
}

func TestChannelSkipsItsOwnDeliveredBroadcasts(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	channel, err := registry.GetOrCreate(ctx, "fdc3.channel.3", fdc3.ChannelTypeUser, nil)
	require.NoError(t, err)

	require.NoError(t, channel.Broadcast(ctx, instrument("AAPL")))
	require.NoError(t, channel.Broadcast(ctx, contact("a@b.c")))

	require.Eventually(t, func() bool {
		channel.mu.Lock()
		defer channel.mu.Unlock()
		return len(channel.own) == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "fdc3.contact", channel.GetCurrentContext("").Type())
	assert.JSONEq(t, string(instrument("AAPL")), string(channel.GetCurrentContext("fdc3.instrument")))
}

func TestChannelDropsMalformedBroadcasts(t *testing.T) {
	registry, fabric := newTestRegistry(t)
	ctx := context.Background()

	channel, err := registry.GetOrCreate(ctx, "prices", fdc3.ChannelTypeApp, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, channel.Broadcast(ctx, fdc3.Context(`{"no":"type"}`)), ErrInvalidContext)

	require.NoError(t, fabric.Publish(ctx, channel.Topics().Broadcast, []byte(`{"no":"type"}`)))
	require.NoError(t, fabric.Publish(ctx, channel.Topics().Broadcast, instrument("AAPL")))
	require.Eventually(t, func() bool { return channel.GetCurrentContext("") != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "fdc3.instrument", channel.GetCurrentContext("").Type())
}

func TestChannelMembers(t *testing.T) {
	registry, _ := newTestRegistry(t)
	channel, err := registry.GetOrCreate(context.Background(), "p1", fdc3.ChannelTypePrivate, nil)
	require.NoError(t, err)

	channel.AddMember("b")
	channel.AddMember("a")
	assert.Equal(t, []string{"a", "b"}, channel.Members())
	assert.True(t, channel.HasMember("a"))

	removed, empty := channel.RemoveMember("a")
	assert.True(t, removed)
	assert.False(t, empty)

	removed, empty = channel.RemoveMember("zzz")
	assert.False(t, removed)
	assert.False(t, empty)

	removed, empty = channel.RemoveMember("b")
	assert.True(t, removed)
	assert.True(t, empty)
}

func TestRegistryRemoveAndDisposeAll(t *testing.T) {
	registry, fabric := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := registry.GetOrCreate(ctx, id, fdc3.ChannelTypeApp, nil)
		require.NoError(t, err)
	}

	require.NoError(t, registry.Remove("a", fdc3.ChannelTypeApp))
	require.NoError(t, registry.Remove("a", fdc3.ChannelTypeApp))
	assert.False(t, registry.Find("a", fdc3.ChannelTypeApp))
	assert.Equal(t, 2, registry.Len())

	channel, _ := registry.Get("b", fdc3.ChannelTypeApp)
	require.NoError(t, registry.DisposeAll(ctx))
	assert.Zero(t, registry.Len())
	assert.Empty(t, fabric.Services())
	assert.Empty(t, fabric.Topics())
	assert.ErrorIs(t, channel.Broadcast(ctx, instrument("AAPL")), ErrChannelDisposed)
	assert.NoError(t, channel.Dispose())
}
