package settings

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE settings (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
`)
	require.NoError(t, err)

	return db
}

func TestGet_Unset(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	v, err := r.Get(context.Background(), KeySessionToken)
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestSet_InsertAndOverwrite(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, KeyDeviceID, "dev-1"))
	v, err := r.Get(ctx, KeyDeviceID)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", v)

	require.NoError(t, r.Set(ctx, KeyDeviceID, "dev-2"))
	v, err = r.Get(ctx, KeyDeviceID)
	require.NoError(t, err)
	assert.Equal(t, "dev-2", v)
}

func TestDelete(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, KeySessionToken, "tok"))
	require.NoError(t, r.Delete(ctx, KeySessionToken))

	v, err := r.Get(ctx, KeySessionToken)
	require.NoError(t, err)
	assert.Equal(t, "", v)
}
