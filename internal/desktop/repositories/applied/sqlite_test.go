package applied

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketdesk/pocketdesk/internal/desktop/models"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE applied_events (
  event_id   TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  applied_at TIMESTAMP NOT NULL,
  source     TEXT NOT NULL DEFAULT ''
);
`)
	require.NoError(t, err)

	return db
}

func TestInsertAndExists(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	ok, err := r.Exists(ctx, "ev-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Insert(ctx, &models.AppliedEvent{
		EventID:   "ev-1",
		EventType: "task.created",
		AppliedAt: time.Now().UTC(),
		Source:    "bot",
	}))

	ok, err = r.Exists(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Exists(ctx, "ev-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInsert_DuplicateEventID(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	ev := &models.AppliedEvent{EventID: "ev-1", EventType: "task.created", AppliedAt: time.Now().UTC()}
	require.NoError(t, r.Insert(ctx, ev))

	// the primary key rejects a second apply of the same event
	err := r.Insert(ctx, ev)
	assert.Error(t, err)
}
