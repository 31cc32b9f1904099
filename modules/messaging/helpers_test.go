package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{}
	require.NoError(t, desktopagent.ProcessConfigDefaults(cfg))
	cfg.InvokeTimeout = 2 * time.Second
	return cfg
}

// collector records delivered messages for assertions.
type collector struct {
	mu       sync.Mutex
	messages []Message
	notify   chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 128)}
}

func (c *collector) handle(_ context.Context, msg Message) error {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *collector) snapshot() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

func (c *collector) waitFor(t *testing.T, n int) []Message {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.snapshot()) >= n }, 2*time.Second, 5*time.Millisecond)
	return c.snapshot()
}

type testLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *testLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+": "+msg)
}

func (l *testLogger) Info(msg string, _ ...any)  { l.record("info", msg) }
func (l *testLogger) Error(msg string, _ ...any) { l.record("error", msg) }
func (l *testLogger) Warn(msg string, _ ...any)  { l.record("warn", msg) }
func (l *testLogger) Debug(msg string, _ ...any) { l.record("debug", msg) }

// fabricContract exercises the behavior every engine must share.
func fabricContract(t *testing.T, engine Engine) {
	ctx := context.Background()

	t.Run("publish reaches exact and pattern subscribers", func(t *testing.T) {
		exact := newCollector()
		pattern := newCollector()
		deep := newCollector()

		_, err := engine.Subscribe(ctx, "fdc3/v2.0/userChannels/red/broadcast", exact.handle)
		require.NoError(t, err)
		_, err = engine.Subscribe(ctx, "fdc3/v2.0/userChannels/*/broadcast", pattern.handle)
		require.NoError(t, err)
		_, err = engine.Subscribe(ctx, "fdc3/v2.0/**", deep.handle)
		require.NoError(t, err)

		require.NoError(t, engine.Publish(ctx, "fdc3/v2.0/userChannels/red/broadcast", []byte(`{"type":"fdc3.instrument"}`)))

		got := exact.waitFor(t, 1)
		require.Equal(t, "fdc3/v2.0/userChannels/red/broadcast", got[0].Topic)
		require.JSONEq(t, `{"type":"fdc3.instrument"}`, string(got[0].Payload))
		pattern.waitFor(t, 1)
		deep.waitFor(t, 1)
	})

	t.Run("publisher chosen message id is delivered", func(t *testing.T) {
		c := newCollector()
		sub, err := engine.Subscribe(ctx, "test/ids", c.handle)
		require.NoError(t, err)
		defer sub.Cancel()

		require.NoError(t, engine.Publish(WithMessageID(ctx, "own-1"), "test/ids", []byte(`1`)))
		require.NoError(t, engine.Publish(ctx, "test/ids", []byte(`2`)))

		got := c.waitFor(t, 2)
		require.Equal(t, "own-1", got[0].ID)
		require.NotEmpty(t, got[1].ID)
		require.NotEqual(t, "own-1", got[1].ID)
	})

	t.Run("cancelled subscription stops receiving", func(t *testing.T) {
		c := newCollector()
		sub, err := engine.Subscribe(ctx, "test/cancel", c.handle)
		require.NoError(t, err)
		require.NoError(t, sub.Cancel())
		require.NoError(t, sub.Cancel())

		require.NoError(t, engine.Publish(ctx, "test/cancel", []byte(`1`)))
		time.Sleep(50 * time.Millisecond)
		require.Empty(t, c.snapshot())
		require.Zero(t, engine.SubscriberCount("test/cancel"))
	})

	t.Run("invoke round trip", func(t *testing.T) {
		svc, err := engine.RegisterService(ctx, "test/echo", func(_ context.Context, request []byte) ([]byte, error) {
			return append([]byte(`{"echo":`), append(request, '}')...), nil
		})
		require.NoError(t, err)
		defer svc.Cancel()

		resp, err := engine.Invoke(ctx, "test/echo", []byte(`"hi"`))
		require.NoError(t, err)
		require.JSONEq(t, `{"echo":"hi"}`, string(resp))
		require.Contains(t, engine.Services(), "test/echo")
	})

	t.Run("duplicate service is rejected", func(t *testing.T) {
		handler := func(context.Context, []byte) ([]byte, error) { return nil, nil }
		svc, err := engine.RegisterService(ctx, "test/dup", handler)
		require.NoError(t, err)
		defer svc.Cancel()

		_, err = engine.RegisterService(ctx, "test/dup", handler)
		require.ErrorIs(t, err, ErrDuplicateService)
	})

	t.Run("invoke without service", func(t *testing.T) {
		_, err := engine.Invoke(ctx, "test/nobody", nil)
		require.ErrorIs(t, err, ErrNoService)
	})

	t.Run("service error is carried back", func(t *testing.T) {
		svc, err := engine.RegisterService(ctx, "test/fail", func(context.Context, []byte) ([]byte, error) {
			return nil, context.DeadlineExceeded
		})
		require.NoError(t, err)
		defer svc.Cancel()

		_, err = engine.Invoke(ctx, "test/fail", nil)
		var invokeErr *InvokeError
		require.ErrorAs(t, err, &invokeErr)
		require.Equal(t, "test/fail", invokeErr.Topic)
	})

	t.Run("typed helpers", func(t *testing.T) {
		type req struct {
			Name string `json:"name"`
		}
		type resp struct {
			Greeting string `json:"greeting"`
		}
		svc, err := engine.RegisterService(ctx, "test/greet", JSONService(func(_ context.Context, r *req) (*resp, error) {
			return &resp{Greeting: "hello " + r.Name}, nil
		}))
		require.NoError(t, err)
		defer svc.Cancel()

		out, err := InvokeJSON[resp](ctx, engine, "test/greet", req{Name: "fdc3"})
		require.NoError(t, err)
		require.Equal(t, "hello fdc3", out.Greeting)

		c := newCollector()
		_, err = engine.Subscribe(ctx, "test/json", c.handle)
		require.NoError(t, err)
		require.NoError(t, PublishJSON(ctx, engine, "test/json", req{Name: "x"}))
		got := c.waitFor(t, 1)
		require.JSONEq(t, `{"name":"x"}`, string(got[0].Payload))
	})

	t.Run("patterns are rejected for publish and services", func(t *testing.T) {
		require.ErrorIs(t, engine.Publish(ctx, "a/*", nil), ErrInvalidTopic)
		_, err := engine.RegisterService(ctx, "a/*", func(context.Context, []byte) ([]byte, error) { return nil, nil })
		require.ErrorIs(t, err, ErrInvalidTopic)
	})
}
