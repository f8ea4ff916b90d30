// Package transactions provides the SQLite-backed repository for local
// financial transactions.
package transactions

import (
	"context"

	"github.com/pocketdesk/pocketdesk/internal/desktop/models"
)

// Repository defines persistence operations for transactions.
type Repository interface {
	Upsert(ctx context.Context, t *models.Transaction) error
	DeleteByID(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	GetAll(ctx context.Context) ([]models.Transaction, error)
}
