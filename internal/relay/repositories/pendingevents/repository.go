// Package pendingevents provides a PostgreSQL-backed repository for the
// relay's durable event log.
package pendingevents

import (
	"context"

	"github.com/pocketdesk/pocketdesk/internal/relay/models"
)

// Repository defines persistence operations for pending events.
type Repository interface {
	Create(ctx context.Context, ev *models.PendingEvent) error
	// ListByUser returns the user's undelivered backlog in created_at
	// ascending order, which is also replay order.
	ListByUser(ctx context.Context, userID string) ([]models.PendingEvent, error)
	Delete(ctx context.Context, eventID string) error
}
