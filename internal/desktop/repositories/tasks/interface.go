// Package tasks provides the SQLite-backed repository for local tasks.
package tasks

import (
	"context"

	"github.com/pocketdesk/pocketdesk/internal/desktop/models"
)

// Repository defines persistence operations for tasks.
type Repository interface {
	Upsert(ctx context.Context, t *models.Task) error
	DeleteByID(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	GetAll(ctx context.Context) ([]models.Task, error)
}
