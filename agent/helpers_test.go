package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	intentViewChart   = "ViewChart"
	intentViewNews    = "ViewNews"
	intentViewContact = "ViewContact"

	typeInstrument = "fdc3.instrument"
	typeContact    = "fdc3.contact"
)

func app(id string, listensFor map[string]fdc3.IntentDeclaration, raises map[string][]string) *fdc3.AppDescriptor {
	return &fdc3.AppDescriptor{
		AppID: id,
		Name:  id,
		Title: id,
		Interop: &fdc3.Interop{Intents: &fdc3.InteropIntents{
			ListensFor: listensFor,
			Raises:     raises,
		}},
	}
}

// catalog is a fixed app directory.
type catalog struct {
	apps []*fdc3.AppDescriptor
}

func newCatalog() *catalog {
	return &catalog{apps: []*fdc3.AppDescriptor{
		app("chart", map[string]fdc3.IntentDeclaration{
			intentViewChart: {DisplayName: "View Chart", Contexts: []string{typeInstrument}, ResultType: "channel<fdc3.instrument>"},
		}, map[string][]string{intentViewNews: {typeInstrument}}),
		app("news", map[string]fdc3.IntentDeclaration{
			intentViewChart: {Contexts: []string{typeInstrument}},
			intentViewNews:  {DisplayName: "View News", Contexts: []string{typeInstrument}},
		}, nil),
		app("blotter", nil, map[string][]string{
			intentViewChart:   {typeInstrument},
			intentViewContact: {typeContact},
		}),
		app("crm", map[string]fdc3.IntentDeclaration{
			intentViewContact: {Contexts: []string{typeContact}},
		}, nil),
	}}
}

func (c *catalog) GetApps(context.Context) ([]*fdc3.AppDescriptor, error) {
	return c.apps, nil
}

func (c *catalog) GetApp(_ context.Context, appID string) (*fdc3.AppDescriptor, error) {
	for _, a := range c.apps {
		if a.AppID == appID {
			return a, nil
		}
	}
	return nil, fdc3.NewError(fdc3.CodeAppNotFound, "app %q", appID)
}

// fakeLauncher reports instances as started from within Launch. onStart
// hooks run right after an app reported started, standing in for the app's
// own startup code.
type fakeLauncher struct {
	mu       sync.Mutex
	handlers []LifecycleHandler
	launches []LaunchRequest
	fail     map[string]error
	silent   map[string]bool
	onStart  map[string]func(instanceID string, params map[string]string)
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		fail:    make(map[string]error),
		silent:  make(map[string]bool),
		onStart: make(map[string]func(string, map[string]string)),
	}
}

func (l *fakeLauncher) AddLifecycleHandler(handler LifecycleHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, handler)
}

func (l *fakeLauncher) Launch(ctx context.Context, req LaunchRequest) error {
	l.mu.Lock()
	l.launches = append(l.launches, req)
	err := l.fail[req.App.AppID]
	silent := l.silent[req.App.AppID]
	hook := l.onStart[req.App.AppID]
	l.mu.Unlock()

	if err != nil {
		return err
	}
	if silent {
		return nil
	}
	l.report(ctx, LifecycleEvent{Kind: LifecycleStarted, AppID: req.App.AppID, Params: req.Params})
	if hook != nil {
		hook(req.InstanceID(), req.Params)
	}
	return nil
}

func (l *fakeLauncher) report(ctx context.Context, event LifecycleEvent) {
	l.mu.Lock()
	handlers := append([]LifecycleHandler(nil), l.handlers...)
	l.mu.Unlock()
	for _, h := range handlers {
		h(ctx, event)
	}
}

func (l *fakeLauncher) launched() []LaunchRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LaunchRequest(nil), l.launches...)
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) PickApp(ctx context.Context, apps []fdc3.AppMetadata) (fdc3.AppMetadata, error) {
	args := m.Called(ctx, apps)
	return args.Get(0).(fdc3.AppMetadata), args.Error(1)
}

func (m *mockResolver) PickIntent(ctx context.Context, intents []string) (string, error) {
	args := m.Called(ctx, intents)
	return args.String(0), args.Error(1)
}

type recordedEvent struct {
	Type string
	Data map[string]any
}

type testEnv struct {
	agent    *DesktopAgent
	fabric   *messaging.MemoryEngine
	catalog  *catalog
	launcher *fakeLauncher
	resolver *mockResolver

	mu     sync.Mutex
	events []recordedEvent
}

func newTestEnv(t *testing.T, configure ...func(*Config)) *testEnv {
	t.Helper()
	ctx := context.Background()

	fabricCfg := &messaging.Config{}
	require.NoError(t, desktopagent.ProcessConfigDefaults(fabricCfg))
	fabric := messaging.NewMemoryEngine(fabricCfg, nil)
	require.NoError(t, fabric.Start(ctx))

	cfg := Config{
		ListenerRegistrationTimeout: 300 * time.Millisecond,
		IntentResultTimeout:         300 * time.Millisecond,
		ResolverTimeout:             time.Second,
		LaunchTimeout:               time.Second,
		DefaultUserChannel:          "fdc3.channel.1",
	}
	for _, fn := range configure {
		fn(&cfg)
	}

	env := &testEnv{
		fabric:   fabric,
		catalog:  newCatalog(),
		launcher: newFakeLauncher(),
		resolver: &mockResolver{},
	}
	a, err := New(Options{
		Config:    cfg,
		Fabric:    fabric,
		Directory: env.catalog,
		Launcher:  env.launcher,
		Resolver:  env.resolver,
		Emitter: func(_ context.Context, eventType string, data map[string]any) {
			env.mu.Lock()
			defer env.mu.Unlock()
			env.events = append(env.events, recordedEvent{Type: eventType, Data: data})
		},
	})
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	env.agent = a

	t.Cleanup(func() {
		_ = a.Stop(context.Background())
		_ = fabric.Stop(context.Background())
	})
	return env
}

// run reports an externally started instance of appID and returns its id.
func (e *testEnv) run(t *testing.T, appID string) string {
	t.Helper()
	instanceID := uuid.NewString()
	e.launcher.report(context.Background(), LifecycleEvent{
		Kind:   LifecycleStarted,
		AppID:  appID,
		Params: map[string]string{fdc3.StartupParamInstanceID: instanceID},
	})
	_, ok := e.agent.instances.TryGet(instanceID)
	require.True(t, ok, "instance of %s not registered", appID)
	return instanceID
}

func (e *testEnv) stop(appID, instanceID string) {
	e.launcher.report(context.Background(), LifecycleEvent{
		Kind:   LifecycleStopped,
		AppID:  appID,
		Params: map[string]string{fdc3.StartupParamInstanceID: instanceID},
	})
}

func (e *testEnv) eventTypes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	types := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		types = append(types, ev.Type)
	}
	return types
}

// subscribeIntent calls AddIntentListener for instanceID.
func (e *testEnv) subscribeIntent(t *testing.T, instanceID, intent string) {
	t.Helper()
	_, err := e.agent.AddIntentListener(context.Background(), &fdc3.IntentListenerRequest{
		Intent:     intent,
		InstanceID: instanceID,
		State:      fdc3.Subscribe,
	})
	require.NoError(t, err)
}

// inbox records the messages published on a topic pattern.
type inbox struct {
	mu       sync.Mutex
	messages []messaging.Message
}

func (e *testEnv) listen(t *testing.T, pattern string) *inbox {
	t.Helper()
	box := &inbox{}
	sub, err := e.fabric.Subscribe(context.Background(), pattern, func(_ context.Context, msg messaging.Message) error {
		box.mu.Lock()
		defer box.mu.Unlock()
		box.messages = append(box.messages, msg)
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Cancel() })
	return box
}

func (b *inbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

func (b *inbox) all() []messaging.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]messaging.Message(nil), b.messages...)
}

func (b *inbox) resolutions(t *testing.T) []fdc3.RaiseIntentResolution {
	t.Helper()
	var out []fdc3.RaiseIntentResolution
	for _, msg := range b.all() {
		var r fdc3.RaiseIntentResolution
		require.NoError(t, json.Unmarshal(msg.Payload, &r))
		out = append(out, r)
	}
	return out
}

func instrument(ticker string) fdc3.Context {
	return fdc3.NewContext(typeInstrument, map[string]any{"id": map[string]any{"ticker": ticker}})
}

func contact(email string) fdc3.Context {
	return fdc3.NewContext(typeContact, map[string]any{"id": map[string]any{"email": email}})
}

func errorCode(err error) string {
	var coded *fdc3.Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}
