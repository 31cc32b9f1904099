package launcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/desktopagent/agent"
	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lifecycleRecorder struct {
	mu     sync.Mutex
	events []agent.LifecycleEvent
	types  []string
}

func (r *lifecycleRecorder) handle(_ context.Context, event agent.LifecycleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *lifecycleRecorder) emit(_ context.Context, eventType string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
}

func (r *lifecycleRecorder) kinds() []agent.LifecycleKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]agent.LifecycleKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (r *lifecycleRecorder) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

func newTestLauncher(t *testing.T) (*Launcher, *InProcessRunner, *lifecycleRecorder) {
	t.Helper()
	inProcess := NewInProcessRunner()
	l := NewLauncher(nil, inProcess, NewProcessRunner(&Config{StopGracePeriod: time.Second}))
	recorder := &lifecycleRecorder{}
	l.AddLifecycleHandler(recorder.handle)
	l.SetEmitter(recorder.emit)
	t.Cleanup(func() { _ = l.Shutdown(context.Background()) })
	return l, inProcess, recorder
}

func launchRequest(appID, instanceID string) agent.LaunchRequest {
	return agent.LaunchRequest{
		App:    &fdc3.AppDescriptor{AppID: appID, Type: AppTypeInProcess},
		Params: map[string]string{fdc3.StartupParamInstanceID: instanceID},
	}
}

func TestInProcessLaunchAndStop(t *testing.T) {
	l, inProcess, recorder := newTestLauncher(t)
	received := make(chan map[string]string, 1)
	inProcess.Register("chart", func(ctx context.Context, params map[string]string) error {
		received <- params
		<-ctx.Done()
		return ctx.Err()
	})

	require.NoError(t, l.Launch(context.Background(), launchRequest("chart", "i-1")))
	assert.Equal(t, []agent.LifecycleKind{agent.LifecycleStarted}, recorder.kinds(), "started is reported before Launch returns")
	assert.Equal(t, "i-1", (<-received)[fdc3.StartupParamInstanceID])

	infos := l.Instances()
	require.Len(t, infos, 1)
	assert.Equal(t, InstanceInfo{ID: "i-1", AppID: "chart", Runner: AppTypeInProcess, StartedAt: infos[0].StartedAt}, infos[0])

	require.NoError(t, l.Stop(context.Background(), "i-1"))
	assert.Equal(t, []agent.LifecycleKind{agent.LifecycleStarted, agent.LifecycleStopped}, recorder.kinds())
	assert.Empty(t, l.Instances())
	assert.Equal(t, []string{
		EventTypeInstanceStarting, EventTypeInstanceStarted, EventTypeInstanceStopping, EventTypeInstanceStopped,
	}, recorder.eventTypes())

	assert.ErrorIs(t, l.Stop(context.Background(), "i-1"), ErrInstanceNotFound)
}

func TestInProcessAppExitingOnItsOwn(t *testing.T) {
	l, inProcess, recorder := newTestLauncher(t)
	inProcess.Register("oneshot", func(context.Context, map[string]string) error {
		return errors.New("boom")
	})

	require.NoError(t, l.Launch(context.Background(), launchRequest("oneshot", "i-2")))
	require.Eventually(t, func() bool { return len(recorder.kinds()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []agent.LifecycleKind{agent.LifecycleStarted, agent.LifecycleStopped}, recorder.kinds())
	assert.Empty(t, l.Instances())
}

func TestLaunchFailures(t *testing.T) {
	l, inProcess, recorder := newTestLauncher(t)
	inProcess.Register("chart", func(ctx context.Context, _ map[string]string) error {
		<-ctx.Done()
		return nil
	})
	ctx := context.Background()

	assert.ErrorIs(t, l.Launch(ctx, agent.LaunchRequest{}), ErrNoApp)
	assert.ErrorIs(t, l.Launch(ctx, agent.LaunchRequest{App: &fdc3.AppDescriptor{AppID: "chart"}}), ErrNoInstanceID)
	assert.ErrorIs(t, l.Launch(ctx, launchRequest("unregistered", "i-3")), ErrNoRunner)

	native := agent.LaunchRequest{
		App:    &fdc3.AppDescriptor{AppID: "native", Type: AppTypeNative},
		Params: map[string]string{fdc3.StartupParamInstanceID: "i-4"},
	}
	assert.ErrorIs(t, l.Launch(ctx, native), ErrNoExecutable)

	require.NoError(t, l.Launch(ctx, launchRequest("chart", "i-5")))
	assert.ErrorIs(t, l.Launch(ctx, launchRequest("chart", "i-5")), ErrInstanceExists)

	assert.Contains(t, recorder.eventTypes(), EventTypeLaunchFailed)
	assert.Equal(t, []agent.LifecycleKind{agent.LifecycleStarted}, recorder.kinds())
}

func TestShutdownStopsEverythingAndRejectsLaunches(t *testing.T) {
	l, inProcess, recorder := newTestLauncher(t)
	inProcess.Register("chart", func(ctx context.Context, _ map[string]string) error {
		<-ctx.Done()
		return nil
	})
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, l.Launch(ctx, launchRequest("chart", id)))
	}

	require.NoError(t, l.Shutdown(ctx))
	assert.Empty(t, l.Instances())
	assert.Len(t, recorder.kinds(), 6)
	assert.ErrorIs(t, l.Launch(ctx, launchRequest("chart", "d")), ErrLauncherClosed)
}

func TestEnvName(t *testing.T) {
	tests := map[string]string{
		fdc3.StartupParamInstanceID:         "FDC3_INSTANCE_ID",
		fdc3.StartupParamOpenedAppContextID: "FDC3_OPENED_APP_CONTEXT_ID",
		fdc3.StartupParamChannelID:          "FDC3_CHANNEL_ID",
		"already_snake":                     "ALREADY_SNAKE",
	}
	for in, want := range tests {
		assert.Equal(t, want, EnvName(in), in)
	}
}
