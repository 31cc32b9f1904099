package resolverui

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var candidates = []fdc3.AppMetadata{
	{AppID: "chart", Name: "Chart"},
	{AppID: "news", Name: "News"},
}

func newFabric(t *testing.T) *messaging.MemoryEngine {
	t.Helper()
	cfg := &messaging.Config{}
	require.NoError(t, desktopagent.ProcessConfigDefaults(cfg))
	engine := messaging.NewMemoryEngine(cfg, nil)
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(func() { _ = engine.Stop(context.Background()) })
	return engine
}

func newTestClient(t *testing.T, fabric messaging.Fabric, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := &Config{}
	require.NoError(t, desktopagent.ProcessConfigDefaults(cfg))
	for _, fn := range mutate {
		fn(cfg)
	}
	return NewClient(fabric, cfg, nil)
}

func serveResolver(t *testing.T, fabric messaging.Fabric, service string, handler messaging.ServiceHandler) {
	t.Helper()
	topic := fdc3.NewTopics("fdc3/v2.0/").Service(service)
	sub, err := fabric.RegisterService(context.Background(), topic, handler)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Cancel() })
}

func reply(v any) messaging.ServiceHandler {
	return func(context.Context, []byte) ([]byte, error) {
		return json.Marshal(v)
	}
}

func TestPickApp(t *testing.T) {
	fabric := newFabric(t)
	var seen fdc3.ResolverUIRequest
	serveResolver(t, fabric, fdc3.ServiceResolverUI, func(_ context.Context, body []byte) ([]byte, error) {
		require.NoError(t, json.Unmarshal(body, &seen))
		return json.Marshal(fdc3.ResolverUIResponse{AppMetadata: &seen.AppMetadata[1]})
	})

	picked, err := newTestClient(t, fabric).PickApp(context.Background(), candidates)
	require.NoError(t, err)
	assert.Equal(t, "news", picked.AppID)
	assert.Equal(t, candidates, seen.AppMetadata)
}

func TestPickAppOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		response any
		want     *fdc3.Error
	}{
		{"cancelled", fdc3.ResolverUIResponse{UserCancelled: true}, fdc3.ErrUserCancelledResolution},
		{"no selection", fdc3.ResolverUIResponse{}, fdc3.ErrUserCancelledResolution},
		{"null body", nil, fdc3.ErrUserCancelledResolution},
		{"error field", fdc3.ResolverUIResponse{Error: fdc3.CodeResolverTimeout}, fdc3.ErrResolverTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fabric := newFabric(t)
			serveResolver(t, fabric, fdc3.ServiceResolverUI, reply(tt.response))
			_, err := newTestClient(t, fabric).PickApp(context.Background(), candidates)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPickAppWithoutResolver(t *testing.T) {
	fabric := newFabric(t)

	_, err := newTestClient(t, fabric).PickApp(context.Background(), candidates)
	assert.ErrorIs(t, err, fdc3.ErrResolverUnavailable)

	picked, err := newTestClient(t, fabric, func(c *Config) { c.Fallback = FallbackFirst }).PickApp(context.Background(), candidates)
	require.NoError(t, err)
	assert.Equal(t, "chart", picked.AppID)
}

func TestPickAppTimeout(t *testing.T) {
	fabric := newFabric(t)
	serveResolver(t, fabric, fdc3.ServiceResolverUI, func(ctx context.Context, _ []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	client := newTestClient(t, fabric, func(c *Config) { c.Timeout = 30 * time.Millisecond })
	_, err := client.PickApp(context.Background(), candidates)
	assert.ErrorIs(t, err, fdc3.ErrResolverTimeout)
}

func TestPickIntent(t *testing.T) {
	fabric := newFabric(t)
	serveResolver(t, fabric, fdc3.ServiceResolverUIIntent, func(_ context.Context, body []byte) ([]byte, error) {
		var req fdc3.ResolverUIIntentRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		return json.Marshal(fdc3.ResolverUIIntentResponse{SelectedIntent: req.Intents[len(req.Intents)-1]})
	})
	client := newTestClient(t, fabric)

	intent, err := client.PickIntent(context.Background(), []string{"ViewChart", "ViewNews"})
	require.NoError(t, err)
	assert.Equal(t, "ViewNews", intent)

	_, err = client.PickIntent(context.Background(), nil)
	assert.ErrorIs(t, err, fdc3.ErrNoAppsFound)
}

func TestPickIntentCancelled(t *testing.T) {
	fabric := newFabric(t)
	serveResolver(t, fabric, fdc3.ServiceResolverUIIntent, reply(fdc3.ResolverUIIntentResponse{UserCancelled: true}))

	_, err := newTestClient(t, fabric).PickIntent(context.Background(), []string{"ViewChart"})
	assert.ErrorIs(t, err, fdc3.ErrUserCancelledResolution)
}
