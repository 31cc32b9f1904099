package interop

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/agent"
	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/GoCodeAlone/desktopagent/modules/appdirectory"
	"github.com/GoCodeAlone/desktopagent/modules/launcher"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	intentViewChart = "ViewChart"
	typeInstrument  = "fdc3.instrument"
)

func instrument(ticker string) fdc3.Context {
	return fdc3.NewContext(typeInstrument, map[string]any{"id": map[string]any{"ticker": ticker}})
}

// harness runs an agent over the memory fabric with the real directory and
// launcher. Apps are in-process functions talking to the agent only
// through the fabric.
type harness struct {
	fabric   *messaging.MemoryEngine
	dir      *appdirectory.Directory
	launcher *launcher.Launcher
	runner   *launcher.InProcessRunner
	agent    *agent.DesktopAgent
	server   *Server
	topics   fdc3.Topics

	mu     sync.Mutex
	events []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	fabricCfg := &messaging.Config{}
	require.NoError(t, desktopagent.ProcessConfigDefaults(fabricCfg))
	fabric := messaging.NewMemoryEngine(fabricCfg, nil)
	require.NoError(t, fabric.Start(ctx))

	dirCfg := &appdirectory.Config{Source: filepath.Join("testdata", "apps.json")}
	require.NoError(t, desktopagent.ProcessConfigDefaults(dirCfg))
	dir, err := appdirectory.NewDirectory(dirCfg, nil, nil)
	require.NoError(t, err)
	require.NoError(t, dir.Load(ctx))

	h := &harness{fabric: fabric, dir: dir, runner: launcher.NewInProcessRunner()}
	h.launcher = launcher.NewLauncher(nil, h.runner)
	h.runner.Register("blotter", idle)
	h.runner.Register("chart", h.chartApp)
	h.runner.Register("news", h.newsApp)

	h.agent, err = agent.New(agent.Options{
		Config: agent.Config{
			ListenerRegistrationTimeout: time.Second,
			IntentResultTimeout:         time.Second,
			DefaultUserChannel:          "fdc3.channel.1",
		},
		Fabric:    fabric,
		Directory: dir,
		Launcher:  h.launcher,
		Emitter: func(_ context.Context, eventType string, _ map[string]any) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.events = append(h.events, eventType)
		},
	})
	require.NoError(t, err)
	h.topics = h.agent.Topics()
	require.NoError(t, h.agent.Start(ctx))
	h.server = NewServer(h.agent, fabric, nil)
	require.NoError(t, h.server.Start(ctx))

	t.Cleanup(func() {
		ctx := context.Background()
		h.server.Stop()
		_ = h.launcher.Shutdown(ctx)
		_ = h.agent.Stop(ctx)
		_ = fabric.Stop(ctx)
	})
	return h
}

// launch starts appID through the launcher and returns the instance id.
func (h *harness) launch(t *testing.T, appID string) string {
	t.Helper()
	ctx := context.Background()
	app, err := h.dir.GetApp(ctx, appID)
	require.NoError(t, err)
	instanceID := uuid.NewString()
	require.NoError(t, h.launcher.Launch(ctx, agent.LaunchRequest{
		App:    app,
		Params: map[string]string{fdc3.StartupParamInstanceID: instanceID},
	}))
	return instanceID
}

func (h *harness) eventTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func idle(ctx context.Context, _ map[string]string) error {
	<-ctx.Done()
	return nil
}

// chartApp listens for ViewChart and answers each invocation with the
// instrument it was given, tagged with a name.
func (h *harness) chartApp(ctx context.Context, params map[string]string) error {
	instanceID := params[fdc3.StartupParamInstanceID]
	topic := h.topics.RaiseIntentResolution(intentViewChart, instanceID)
	sub, err := h.fabric.Subscribe(ctx, topic, func(ctx context.Context, msg messaging.Message) error {
		var delivered fdc3.RaiseIntentResolution
		if err := json.Unmarshal(msg.Payload, &delivered); err != nil {
			return err
		}
		var payload map[string]any
		if err := json.Unmarshal(delivered.Context, &payload); err != nil {
			return err
		}
		payload["name"] = "charted"
		result, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		_, err = Call[fdc3.StoreIntentResultResponse](ctx, h.fabric, h.topics, fdc3.ServiceSendIntentResult, fdc3.StoreIntentResultRequest{
			MessageID:        delivered.MessageID,
			Intent:           delivered.Intent,
			OriginInstanceID: instanceID,
			IntentResult:     fdc3.IntentResult{Context: result},
		})
		return err
	})
	if err != nil {
		return err
	}
	defer func() { _ = sub.Cancel() }()

	if _, err := Call[fdc3.IntentListenerResponse](ctx, h.fabric, h.topics, fdc3.ServiceAddIntentListener, fdc3.IntentListenerRequest{
		Intent:     intentViewChart,
		InstanceID: instanceID,
		State:      fdc3.Subscribe,
	}); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// newsApp adds a context listener and never reads its opened-app context.
func (h *harness) newsApp(ctx context.Context, params map[string]string) error {
	if _, err := Call[fdc3.AddContextListenerResponse](ctx, h.fabric, h.topics, fdc3.ServiceAddContextListener, fdc3.AddContextListenerRequest{
		InstanceID:  params[fdc3.StartupParamInstanceID],
		ContextType: typeInstrument,
	}); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
