// Package entities provides a PostgreSQL-backed document store for the
// relay's entity collections (tasks, projects, transactions).
package entities

import (
	"context"

	"github.com/pocketdesk/pocketdesk/internal/relay/models"
)

// Repository defines persistence operations for entity documents.
type Repository interface {
	Upsert(ctx context.Context, e *models.Entity) error
	Delete(ctx context.Context, userID, entityType, id string) error
	ListByUser(ctx context.Context, userID, entityType string) ([]models.Entity, error)
}
