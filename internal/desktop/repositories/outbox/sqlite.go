package outbox

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

// Enqueue replaces any unsynced sibling row (same entity, same action) and
// inserts the new entry with synced=0.
func (r *SQLiteRepository) Enqueue(ctx context.Context, e *models.SyncQueueEntry) error {
	query := `delete from sync_queue where entity_type=? and entity_id=? and action=? and synced=0`
	if _, err := r.db.ExecContext(ctx, query, e.EntityType, e.EntityID, e.Action); err != nil {
		return fmt.Errorf("failed to replace queued entry: %w", err)
	}

	query = `insert into sync_queue (id, entity_type, action, entity_id, payload, created_at, synced)
			values (?, ?, ?, ?, ?, ?, 0)`
	if _, err := r.db.ExecContext(ctx, query,
		e.ID, e.EntityType, e.Action, e.EntityID, string(e.Payload), e.CreatedAt); err != nil {
		return fmt.Errorf("failed to enqueue entry: %w", err)
	}
	return nil
}

// MarkSynced flips all matching unsynced rows to synced.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, entityType, entityID, action string) error {
	query := `update sync_queue set synced=1 where entity_type=? and entity_id=? and action=? and synced=0`
	if _, err := r.db.ExecContext(ctx, query, entityType, entityID, action); err != nil {
		return fmt.Errorf("failed to mark synced: %w", err)
	}
	return nil
}

// MarkSyncedByID flips a single row to synced.
func (r *SQLiteRepository) MarkSyncedByID(ctx context.Context, id string) error {
	query := `update sync_queue set synced=1 where id=? and synced=0`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark synced: %w", err)
	}
	return nil
}

// ListUnsynced returns unsynced entries in enqueue order.
func (r *SQLiteRepository) ListUnsynced(ctx context.Context) ([]models.SyncQueueEntry, error) {
	query := `select id, entity_type, action, entity_id, payload, created_at, synced
			from sync_queue where synced=0 order by created_at asc`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select queue entries: %w", err)
	}
	defer rows.Close()

	var result []models.SyncQueueEntry
	for rows.Next() {
		var item models.SyncQueueEntry
		var payload string
		if err := rows.Scan(&item.ID, &item.EntityType, &item.Action, &item.EntityID, &payload, &item.CreatedAt, &item.Synced); err != nil {
			return nil, err
		}
		item.Payload = []byte(payload)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// PruneSynced deletes synced rows beyond the keep most recent (by
// created_at). Unsynced rows are never touched.
func (r *SQLiteRepository) PruneSynced(ctx context.Context, keep int) error {
	query := `delete from sync_queue where synced=1 and id not in (
			select id from sync_queue where synced=1 order by created_at desc limit ?)`
	if _, err := r.db.ExecContext(ctx, query, keep); err != nil {
		return fmt.Errorf("failed to prune synced entries: %w", err)
	}
	return nil
}

// CountUnsynced returns the queue backlog size.
func (r *SQLiteRepository) CountUnsynced(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `select count(*) from sync_queue where synced=0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return n, nil
}
