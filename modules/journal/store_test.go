package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEntryFromEvent(t *testing.T) {
	event := desktopagent.NewCloudEvent("com.desktopagent.fdc3.intent.raised", "fdc3", map[string]any{
		"intent":     "ViewChart",
		"instanceId": "7f0c",
	}, nil)

	entry := EntryFromEvent(event)
	assert.Equal(t, event.ID(), entry.ID)
	assert.Equal(t, "fdc3", entry.Source)
	assert.Equal(t, "7f0c", entry.InstanceID)
	assert.JSONEq(t, `{"intent":"ViewChart","instanceId":"7f0c"}`, string(entry.Data))
	assert.False(t, entry.Time.IsZero())

	bare := EntryFromEvent(desktopagent.NewCloudEvent("com.desktopagent.application.started", "application", nil, nil))
	assert.Empty(t, bare.InstanceID)
	assert.Empty(t, bare.Data)
}

func TestStoreAppendAndQuery(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx,
		Entry{ID: "1", Type: "com.desktopagent.fdc3.intent.raised", Source: "fdc3", Time: base, InstanceID: "a", Data: []byte(`{"instanceId":"a"}`)},
		Entry{ID: "2", Type: "com.desktopagent.launcher.instance.started", Source: "launcher", Time: base.Add(time.Minute), InstanceID: "b"},
		Entry{ID: "3", Type: "com.desktopagent.fdc3.channel.created", Source: "fdc3", Time: base.Add(2 * time.Minute)},
	))
	require.NoError(t, store.Append(ctx))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all newest first", Filter{}, []string{"3", "2", "1"}},
		{"type prefix", Filter{TypePrefix: "com.desktopagent.fdc3."}, []string{"3", "1"}},
		{"source", Filter{Source: "launcher"}, []string{"2"}},
		{"instance", Filter{InstanceID: "a"}, []string{"1"}},
		{"since", Filter{Since: base.Add(time.Minute)}, []string{"3", "2"}},
		{"limit", Filter{Limit: 1}, []string{"3"}},
		{"no match", Filter{Source: "admin"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := store.Query(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(entries))
			for _, e := range entries {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	entries, err := store.Query(ctx, Filter{InstanceID: "a"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, base.Equal(entries[0].Time))
	assert.JSONEq(t, `{"instanceId":"a"}`, string(entries[0].Data))
}

func TestStorePrune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Append(ctx,
		Entry{ID: "old", Type: "t", Source: "s", Time: now.Add(-48 * time.Hour)},
		Entry{ID: "new", Type: "t", Source: "s", Time: now},
	))
	removed, err := store.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	entries, err := store.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].ID)
}

func TestStoreReopenKeepsEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	store, err := OpenStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, Entry{ID: "1", Type: "t", Source: "s", Time: time.Now()}))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.Count(ctx)
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Append(ctx, Entry{ID: "2"}), ErrStoreClosed)

	reopened, err := OpenStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestStoreInMemory(t *testing.T) {
	store, err := OpenStore(context.Background(), ":memory:")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Append(context.Background(), Entry{ID: "1", Type: "t", Source: "s", Time: time.Now()}))
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
