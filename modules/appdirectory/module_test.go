package appdirectory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/agent"
	"github.com/GoCodeAlone/desktopagent/feeders"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) OnEvent(_ context.Context, event cloudevents.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event.Type())
	return nil
}

func (r *eventRecorder) ObserverID() string { return "recorder" }

func (r *eventRecorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func newTestApp(t *testing.T, catalog string, watch bool) (*desktopagent.ObservableApplication, *Module, *eventRecorder) {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	config := fmt.Sprintf("appdirectory:\n  source: %s\n  watch: %t\n  watchDebounce: 20ms\n", catalog, watch)
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))

	app := desktopagent.NewObservableApplication(desktopagent.NewStdConfigProvider(&struct{}{}), desktopagent.NopLogger())
	app.SetConfigFeeders(feeders.NewYamlFeeder(configPath))
	module := NewModule().(*Module)
	app.RegisterModule(module)
	recorder := &eventRecorder{}
	require.NoError(t, app.RegisterObserver(recorder))
	return app, module, recorder
}

func writeCatalog(t *testing.T, path string, ids ...string) {
	t.Helper()
	var records []string
	for _, id := range ids {
		records = append(records, fmt.Sprintf(`{"appId":%q}`, id))
	}
	data := "[" + strings.Join(records, ",") + "]"
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(data), 0o600))
	require.NoError(t, os.Rename(tmp, path))
}

func TestModuleProvidesDirectory(t *testing.T) {
	app, module, recorder := newTestApp(t, mustAbs(t, "testdata/apps.json"), false)
	require.NoError(t, app.Init())

	var directory agent.AppDirectory
	require.NoError(t, app.GetService(ServiceName, &directory))
	assert.Same(t, module.Directory(), directory)

	require.NoError(t, app.Start())
	defer func() { require.NoError(t, app.Stop()) }()

	apps, err := directory.GetApps(context.Background())
	require.NoError(t, err)
	assert.Len(t, apps, 2)
	assert.Eventually(t, func() bool { return recorder.count(EventTypeDirectoryLoaded) == 1 }, time.Second, 5*time.Millisecond)
}

func TestModuleReloadsWatchedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.json")
	writeCatalog(t, path, "chart")

	app, module, recorder := newTestApp(t, path, true)
	require.NoError(t, app.Init())
	require.NoError(t, app.Start())
	defer func() { require.NoError(t, app.Stop()) }()
	require.Equal(t, 1, module.Directory().Len())

	writeCatalog(t, path, "chart", "news", "crm")
	require.Eventually(t, func() bool { return module.Directory().Len() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return recorder.count(EventTypeDirectoryReloaded) >= 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`[{"appId":`), 0o600))
	require.Eventually(t, func() bool { return recorder.count(EventTypeDirectoryReloadFailed) >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, module.Directory().Len())
}

func TestModuleRequiresSource(t *testing.T) {
	app := desktopagent.NewObservableApplication(desktopagent.NewStdConfigProvider(&struct{}{}), desktopagent.NopLogger())
	app.SetConfigFeeders()
	app.RegisterModule(NewModule())
	assert.ErrorIs(t, app.Init(), desktopagent.ErrConfigRequiredFieldMissing)
}

func TestModuleStartFailsOnBrokenCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"appId":"a","type":"applet"}]`), 0o600))

	app, _, _ := newTestApp(t, path, false)
	require.NoError(t, app.Init())
	assert.ErrorIs(t, app.Start(), ErrInvalidRecord)
}
