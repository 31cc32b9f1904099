package interop

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerRegistersEveryOperation(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, len(h.server.Handlers()), h.server.Registered())
	assert.Len(t, h.server.Handlers(), 22)
	services := h.fabric.Services()
	for name := range h.server.Handlers() {
		assert.Contains(t, services, h.topics.Service(name))
	}

	h.server.Stop()
	assert.Zero(t, h.server.Registered())
	_, err := h.fabric.Invoke(context.Background(), h.topics.Service(fdc3.ServiceGetInfo), []byte(`{}`))
	assert.ErrorIs(t, err, messaging.ErrNoService)
}

func TestServerStartRollsBackOnConflict(t *testing.T) {
	h := newHarness(t)

	second := NewServer(h.agent, h.fabric, nil)
	err := second.Start(context.Background())
	assert.ErrorIs(t, err, ErrServiceRegistration)
	assert.ErrorIs(t, err, messaging.ErrDuplicateService)
	assert.Zero(t, second.Registered())
}

func TestRaiseIntentOverFabric(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	blotter := h.launch(t, "blotter")

	resp, err := Call[fdc3.RaiseIntentResponse](ctx, h.fabric, h.topics, fdc3.ServiceRaiseIntent, fdc3.RaiseIntentRequest{
		MessageID:  1,
		InstanceID: blotter,
		Intent:     intentViewChart,
		Context:    instrument("MSFT"),
	})
	require.NoError(t, err)
	assert.Equal(t, "chart", resp.AppMetadata.AppID)
	require.NotEmpty(t, resp.AppMetadata.InstanceID)

	result, err := Call[fdc3.GetIntentResultResponse](ctx, h.fabric, h.topics, fdc3.ServiceGetIntentResult, fdc3.GetIntentResultRequest{
		MessageID: resp.MessageID,
		Intent:    intentViewChart,
		TargetAppIdentifier: fdc3.AppIdentifier{
			AppID:      "chart",
			InstanceID: resp.AppMetadata.InstanceID,
		},
	})
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(result.Context, &payload))
	assert.Equal(t, "charted", payload["name"])
	assert.Equal(t, typeInstrument, payload["type"])

	instances, err := Call[fdc3.FindInstancesResponse](ctx, h.fabric, h.topics, fdc3.ServiceFindInstances, fdc3.FindInstancesRequest{
		InstanceID:    blotter,
		AppIdentifier: fdc3.AppIdentifier{AppID: "chart"},
	})
	require.NoError(t, err)
	assert.Len(t, instances.Instances, 1)
}

func TestServiceErrorsCarryProtocolCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	blotter := h.launch(t, "blotter")

	tests := []struct {
		name    string
		service string
		request any
		code    string
	}{
		{"unknown intent", fdc3.ServiceFindIntent, fdc3.FindIntentRequest{Intent: "Unknown"}, fdc3.CodeNoAppsFound},
		{"null payload", fdc3.ServiceGetInfo, nil, fdc3.CodePayloadNull},
		{"unknown source and intent", fdc3.ServiceRaiseIntent, fdc3.RaiseIntentRequest{InstanceID: "ghost", Intent: "Unknown", Context: instrument("A")}, fdc3.CodeNoAppsFound},
		{"unknown channel", fdc3.ServiceJoinUserChannel, fdc3.JoinUserChannelRequest{ChannelID: "teal", InstanceID: blotter}, fdc3.CodeNoChannelFound},
		{"broadcast to unknown channel", fdc3.ServiceBroadcast, fdc3.BroadcastRequest{ChannelID: "teal", Context: instrument("A")}, fdc3.CodeNoChannelFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := h.fabric.Invoke(ctx, h.topics.Service(tt.service), mustJSON(t, tt.request))
			require.NoError(t, err, "errors travel in the response body")
			assert.JSONEq(t, `{"error":"`+tt.code+`"}`, string(raw))

			_, err = Call[struct{}](ctx, h.fabric, h.topics, tt.service, tt.request)
			assert.Equal(t, tt.code, fdc3.ErrorCode(err))
		})
	}
}

func TestMalformedBroadcastIsDropped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	raw, err := h.fabric.Invoke(ctx, h.topics.Service(fdc3.ServiceBroadcast),
		mustJSON(t, fdc3.BroadcastRequest{ChannelID: "fdc3.channel.1", Context: fdc3.Context(`{"id":1}`)}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false}`, string(raw))
	assert.NoError(t, ResponseError(raw))
}

func TestResponseError(t *testing.T) {
	assert.NoError(t, ResponseError([]byte(`{"stored":true}`)))
	assert.NoError(t, ResponseError([]byte(`[1,2]`)))
	assert.NoError(t, ResponseError([]byte(`{"error":""}`)))
	err := ResponseError([]byte(`{"error":"NoAppsFound"}`))
	assert.ErrorIs(t, err, fdc3.ErrNoAppsFound)
}

func TestChannelsOverFabric(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	blotter := h.launch(t, "blotter")

	channels, err := Call[fdc3.GetUserChannelsResponse](ctx, h.fabric, h.topics, fdc3.ServiceGetUserChannels, fdc3.GetUserChannelsRequest{InstanceID: blotter})
	require.NoError(t, err)
	assert.Len(t, channels.Channels, 8)

	joined, err := Call[fdc3.JoinUserChannelResponse](ctx, h.fabric, h.topics, fdc3.ServiceJoinUserChannel, fdc3.JoinUserChannelRequest{ChannelID: "fdc3.channel.3", InstanceID: blotter})
	require.NoError(t, err)
	assert.True(t, joined.Success)

	found, err := Call[fdc3.FindChannelResponse](ctx, h.fabric, h.topics, fdc3.ServiceFindChannel, fdc3.FindChannelRequest{ChannelID: "fdc3.channel.3", ChannelType: fdc3.ChannelTypeUser})
	require.NoError(t, err)
	assert.True(t, found.Found)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	if v == nil {
		return []byte("null")
	}
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
