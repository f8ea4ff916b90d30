// Package applied provides the SQLite-backed applied-event ledger: the
// desktop's idempotency record for reconciled events.
package applied

import (
	"context"

	"github.com/pocketdesk/pocketdesk/internal/desktop/models"
)

// Repository defines persistence operations for the applied-event ledger.
type Repository interface {
	Insert(ctx context.Context, ev *models.AppliedEvent) error
	Exists(ctx context.Context, eventID string) (bool, error)
}
