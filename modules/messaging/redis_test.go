package messaging

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRedisEngine(t *testing.T) (*RedisEngine, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)

	cfg := newTestConfig(t)
	cfg.Engine = "redis"
	cfg.Redis.URL = "redis://" + s.Addr() + "/0"

	engine, err := NewRedisEngine(cfg, &testLogger{})
	require.NoError(t, err)
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(func() { _ = engine.Stop(context.Background()) })
	return engine, s
}

func TestRedisEngineContract(t *testing.T) {
	engine, _ := startRedisEngine(t)
	fabricContract(t, engine)
}

func TestRedisEngineInvalidURL(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Redis.URL = "not-a-url://"
	_, err := NewRedisEngine(cfg, nil)
	assert.Error(t, err)
}

func TestRedisEngineStartFailsWithoutServer(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	cfg := newTestConfig(t)
	cfg.Redis.URL = "redis://" + addr + "/0"
	engine, err := NewRedisEngine(cfg, nil)
	require.NoError(t, err)
	assert.Error(t, engine.Start(context.Background()))
}

func TestRedisEngineServiceClaimIsShared(t *testing.T) {
	first, s := startRedisEngine(t)

	cfg := newTestConfig(t)
	cfg.Redis.URL = "redis://" + s.Addr() + "/0"
	second, err := NewRedisEngine(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, second.Start(context.Background()))
	defer second.Stop(context.Background())

	ctx := context.Background()
	svc, err := first.RegisterService(ctx, "fdc3/v2.0/findIntent", func(context.Context, []byte) ([]byte, error) {
		return []byte(`{"from":"first"}`), nil
	})
	require.NoError(t, err)

	_, err = second.RegisterService(ctx, "fdc3/v2.0/findIntent", func(context.Context, []byte) ([]byte, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, ErrDuplicateService)

	resp, err := second.Invoke(ctx, "fdc3/v2.0/findIntent", []byte(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"first"}`, string(resp))

	require.NoError(t, svc.Cancel())
	assert.False(t, s.Exists(cfg.Redis.KeyPrefix+"service:fdc3/v2.0/findIntent"))
}
