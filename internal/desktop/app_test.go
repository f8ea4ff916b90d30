package desktop

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketdesk/pocketdesk/internal/desktop/config"
)

func TestSyncMutation_PushesAndQueues(t *testing.T) {
	var mu sync.Mutex
	var pushes []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		pushes = append(pushes, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.RelayURL = ts.URL
	cfg.DatabaseDSN = "file:apptest_sync?mode=memory&cache=shared"

	ctx := context.Background()
	app, err := NewApp(ctx, cfg)
	require.NoError(t, err)
	defer app.close(ctx)

	require.NoError(t, app.SyncMutation(ctx, "task", "create", "t-1", json.RawMessage(`{"id":"t-1","title":"buy milk"}`)))

	mu.Lock()
	assert.Equal(t, []string{"POST /api/v1/tasks"}, pushes)
	mu.Unlock()

	n, err := app.Backlog(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// relay offline: the mutation is absorbed and stays queued
	ts.Close()
	require.NoError(t, app.SyncMutation(ctx, "task", "update", "t-1", json.RawMessage(`{"id":"t-1","title":"buy oat milk"}`)))

	n, err = app.Backlog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
