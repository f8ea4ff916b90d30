// Package outbox provides the SQLite-backed sync queue: durable records of
// local mutations awaiting delivery to the relay.
package outbox

import (
	"context"

	"github.com/pocketdesk/pocketdesk/internal/desktop/models"
)

// Repository defines persistence operations for the sync queue.
type Repository interface {
	// Enqueue inserts the entry, replacing any unsynced entry for the same
	// entityType+entityId+action so rapid re-edits collapse to one row.
	Enqueue(ctx context.Context, e *models.SyncQueueEntry) error
	// MarkSynced flips synced for every unsynced row matching the
	// entityType, entityId, and action. Monotonic: never flips back.
	MarkSynced(ctx context.Context, entityType, entityID, action string) error
	MarkSyncedByID(ctx context.Context, id string) error
	// ListUnsynced returns unsynced entries in created_at ascending order,
	// which is also push order.
	ListUnsynced(ctx context.Context) ([]models.SyncQueueEntry, error)
	// PruneSynced deletes synced rows beyond the keep most recent ones.
	PruneSynced(ctx context.Context, keep int) error
	CountUnsynced(ctx context.Context) (int, error)
}
