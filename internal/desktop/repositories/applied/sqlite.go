package applied

import (
	"context"
	"fmt"

	"github.com/pocketdesk/pocketdesk/internal/dbx"
	"github.com/pocketdesk/pocketdesk/internal/desktop/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert appends a ledger row. The table is append-only; rows are never
// updated or deleted.
func (r *SQLiteRepository) Insert(ctx context.Context, ev *models.AppliedEvent) error {
	query := `insert into applied_events (event_id, event_type, applied_at, source)
			values (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, ev.EventID, ev.EventType, ev.AppliedAt, ev.Source); err != nil {
		return fmt.Errorf("failed to insert applied event: %w", err)
	}
	return nil
}

// Exists reports whether the eventId has already been applied. This is the
// sole idempotency check.
func (r *SQLiteRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var n int
	query := `select count(*) from applied_events where event_id=?`
	if err := r.db.QueryRowContext(ctx, query, eventID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check applied event: %w", err)
	}
	return n > 0, nil
}
