package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/feeders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJournalApp(t *testing.T, extra string) (*desktopagent.ObservableApplication, *Module, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "journal.db")
	configPath := filepath.Join(dir, "config.yaml")
	config := fmt.Sprintf("journal:\n  path: %s\n%s", dbPath, extra)
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))

	app := desktopagent.NewObservableApplication(desktopagent.NewStdConfigProvider(&struct{}{}), desktopagent.NopLogger())
	app.SetConfigFeeders(feeders.NewYamlFeeder(configPath))
	module := NewModule().(*Module)
	app.RegisterModule(module)
	return app, module, dbPath
}

func TestModuleRecordsEvents(t *testing.T) {
	app, module, dbPath := newJournalApp(t, "")
	require.NoError(t, app.Init())

	var store *Store
	require.NoError(t, app.GetService(ServiceName, &store))
	assert.Same(t, module.Store(), store)

	require.NoError(t, app.Start())
	ctx := context.Background()
	event := desktopagent.NewCloudEvent("com.desktopagent.fdc3.intent.raised", "fdc3", map[string]any{"instanceId": "i-1"}, nil)
	require.NoError(t, app.NotifyObservers(ctx, event))

	require.Eventually(t, func() bool {
		entries, err := store.Query(ctx, Filter{InstanceID: "i-1"})
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, app.Stop())

	reopened, err := OpenStore(ctx, dbPath)
	require.NoError(t, err)
	defer reopened.Close()
	entries, err := reopened.Query(ctx, Filter{InstanceID: "i-1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "com.desktopagent.fdc3.intent.raised", entries[0].Type)
}

func TestModuleFiltersByPrefix(t *testing.T) {
	app, module, _ := newJournalApp(t, "  eventTypePrefixes:\n    - com.desktopagent.fdc3.\n")
	require.NoError(t, app.Init())
	require.NoError(t, app.Start())
	defer func() { _ = app.Stop() }()

	ctx := context.Background()
	require.NoError(t, module.OnEvent(ctx, desktopagent.NewCloudEvent("com.desktopagent.launcher.instance.started", "launcher", nil, nil)))
	require.NoError(t, module.OnEvent(ctx, desktopagent.NewCloudEvent("com.desktopagent.fdc3.channel.created", "fdc3", nil, nil)))

	require.Eventually(t, func() bool {
		n, err := module.Store().Count(ctx)
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)
	entries, err := module.Store().Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, "com.desktopagent.fdc3.channel.created", entries[0].Type)
}

func TestModulePrunesOnStart(t *testing.T) {
	app, module, _ := newJournalApp(t, "  retention: 1h\n")
	require.NoError(t, app.Init())

	ctx := context.Background()
	require.NoError(t, module.Store().Append(ctx,
		Entry{ID: "stale", Type: "t", Source: "s", Time: time.Now().Add(-2 * time.Hour)},
		Entry{ID: "fresh", Type: "t", Source: "s", Time: time.Now()},
	))
	require.NoError(t, app.Start())
	defer func() { _ = app.Stop() }()

	entries, err := module.Store().Query(ctx, Filter{Source: "s"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh", entries[0].ID)
}

func TestModuleDisabled(t *testing.T) {
	app, module, dbPath := newJournalApp(t, "  disabled: true\n")
	require.NoError(t, app.Init())
	require.NoError(t, app.Start())
	require.NoError(t, app.Stop())

	assert.Nil(t, module.Store())
	assert.Empty(t, module.ProvidesServices())
	_, err := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(err))
	assert.ErrorIs(t, module.OnEvent(context.Background(), desktopagent.NewCloudEvent("t", "s", nil, nil)), ErrNotStarted)
}

func TestModuleRejectsBadConfig(t *testing.T) {
	app, _, _ := newJournalApp(t, "  bufferSize: -1\n")
	err := app.Init()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOnEventReportsFullBuffer(t *testing.T) {
	app, module, _ := newJournalApp(t, "  bufferSize: 1\n")
	require.NoError(t, app.Init())
	t.Cleanup(func() { _ = app.Stop() })
	// Not started: nothing drains the queue.
	ctx := context.Background()
	for range 8 {
		if err := module.OnEvent(ctx, desktopagent.NewCloudEvent("b", "s", nil, nil)); err != nil {
			assert.ErrorIs(t, err, ErrJournalFull)
			return
		}
	}
	t.Fatal("queue never filled")
}
