package instances

import (
	"context"
	"testing"
	"time"

	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func app(id string) *fdc3.AppDescriptor {
	return &fdc3.AppDescriptor{AppID: id, Name: id}
}

func TestRegistryUpsertAndRemove(t *testing.T) {
	registry := NewRegistry()
	registry.Upsert(&Instance{ID: "i-2", App: app("chart")})
	registry.Upsert(&Instance{ID: "i-1", App: app("chart")})
	registry.Upsert(&Instance{ID: "i-3", App: app("blotter")})

	instance, ok := registry.TryGet("i-1")
	require.True(t, ok)
	assert.False(t, instance.StartedAt.IsZero())
	assert.Equal(t, fdc3.AppIdentifier{AppID: "chart", InstanceID: "i-1"}, instance.Identifier())
	assert.Equal(t, "i-1", instance.Metadata().InstanceID)

	ids := func(list []*Instance) []string {
		var out []string
		for _, i := range list {
			out = append(out, i.ID)
		}
		return out
	}
	assert.Equal(t, []string{"i-3", "i-1", "i-2"}, ids(registry.List()))
	assert.Equal(t, []string{"i-1", "i-2"}, ids(registry.ByApp("chart")))

	removed, ok := registry.Remove("i-1")
	require.True(t, ok)
	assert.Equal(t, "i-1", removed.ID)
	_, ok = registry.Remove("i-1")
	assert.False(t, ok)
	assert.Equal(t, 2, registry.Len())
}

func TestPendingStartResolvesOnUpsert(t *testing.T) {
	registry := NewRegistry()
	pending := registry.Expect("i-1")
	assert.Same(t, pending, registry.Expect("i-1"))
	assert.Equal(t, 1, registry.PendingCount())

	go func() {
		time.Sleep(10 * time.Millisecond)
		registry.Upsert(&Instance{ID: "i-1", App: app("chart")})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	instance, err := pending.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "i-1", instance.ID)
	assert.Zero(t, registry.PendingCount())
}

func TestPendingStartAlreadyRunning(t *testing.T) {
	registry := NewRegistry()
	registry.Upsert(&Instance{ID: "i-1", App: app("chart")})

	instance, err := registry.Expect("i-1").Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "i-1", instance.ID)
	assert.Zero(t, registry.PendingCount())
}

func TestPendingStartFailsOnRemove(t *testing.T) {
	registry := NewRegistry()
	pending := registry.Expect("i-1")

	registry.Remove("i-1")

	_, err := pending.Wait(context.Background())
	assert.ErrorIs(t, err, fdc3.ErrTargetInstanceUnavailable)
}

func TestPendingStartAbandonAndClear(t *testing.T) {
	registry := NewRegistry()
	abandoned := registry.Expect("i-1")
	cleared := registry.Expect("i-2")
	registry.Upsert(&Instance{ID: "i-3", App: app("chart")})

	registry.Abandon("i-1", fdc3.ErrTargetInstanceUnavailable)
	_, err := abandoned.Wait(context.Background())
	assert.ErrorIs(t, err, fdc3.ErrTargetInstanceUnavailable)

	registry.Clear(fdc3.ErrTargetInstanceUnavailable)
	<-cleared.Done()
	_, err = cleared.Wait(context.Background())
	assert.ErrorIs(t, err, fdc3.ErrTargetInstanceUnavailable)
	assert.Zero(t, registry.Len())
}

func TestPendingStartWaitHonoursContext(t *testing.T) {
	registry := NewRegistry()
	pending := registry.Expect("i-1")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := pending.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
