package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pocketdesk/pocketdesk/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns the value for key, or "" when the key is unset.
func (r *SQLiteRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	query := `select value from settings where key=?`
	if err := r.db.QueryRowContext(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read setting: %w", err)
	}
	return value, nil
}

// Set upserts the value for key.
func (r *SQLiteRepository) Set(ctx context.Context, key, value string) error {
	query := `insert into settings (key, value) values (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write setting: %w", err)
	}
	return nil
}

// Delete removes the key.
func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	query := `delete from settings where key=?`
	if _, err := r.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	return nil
}
