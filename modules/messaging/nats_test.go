package messaging

import (
	"context"
	"testing"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startNATSEngine(t *testing.T) *NATSEngine {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	server := natsserver.RunServer(&opts)
	t.Cleanup(server.Shutdown)

	cfg := newTestConfig(t)
	cfg.Engine = "nats"
	cfg.NATS.URL = server.ClientURL()

	engine := NewNATSEngine(cfg, &testLogger{})
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(func() { _ = engine.Stop(context.Background()) })
	return engine
}

func TestNATSEngineContract(t *testing.T) {
	engine := startNATSEngine(t)
	fabricContract(t, engine)
}

func TestNATSEngineStartFailsWithoutServer(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.NATS.URL = "nats://127.0.0.1:1"
	engine := NewNATSEngine(cfg, nil)
	assert.Error(t, engine.Start(context.Background()))
}

func TestNATSSubjectMapping(t *testing.T) {
	tests := []struct {
		topic   string
		subject string
	}{
		{"fdc3/v2.0/raiseIntent/ViewChart/abc", "fdc3.v2%2E0.raiseIntent.ViewChart.abc"},
		{"fdc3/v2.0/userChannels/*/broadcast", "fdc3.v2%2E0.userChannels.*.broadcast"},
		{"fdc3/**", "fdc3.>"},
		{"a/100%/b", "a.100%25.b"},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			subject, err := natsSubject(tt.topic)
			require.NoError(t, err)
			assert.Equal(t, tt.subject, subject)
		})
	}

	_, err := natsSubject("a/**/b")
	assert.ErrorIs(t, err, ErrInvalidTopic)

	assert.Equal(t, "fdc3/v2.0/userChannels/fdc3.channel.1/broadcast",
		topicFromSubject("fdc3.v2%2E0.userChannels.fdc3%2Echannel%2E1.broadcast"))
}

func TestNATSEngineChannelIDsWithDots(t *testing.T) {
	engine := startNATSEngine(t)
	ctx := context.Background()
	c := newCollector()

	_, err := engine.Subscribe(ctx, "fdc3/v2.0/userChannels/*/broadcast", c.handle)
	require.NoError(t, err)
	require.NoError(t, engine.Publish(ctx, "fdc3/v2.0/userChannels/fdc3.channel.1/broadcast", []byte(`{}`)))

	got := c.waitFor(t, 1)
	assert.Equal(t, "fdc3/v2.0/userChannels/fdc3.channel.1/broadcast", got[0].Topic)
}
