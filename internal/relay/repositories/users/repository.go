// Package users provides a PostgreSQL-backed repository for relay accounts
// and their API-key credentials.
package users

import (
	"context"

	"github.com/pocketdesk/pocketdesk/internal/relay/models"
)

// Repository defines persistence operations for relay users.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByKeyID(ctx context.Context, keyID string) (*models.User, error)
	Count(ctx context.Context) (int, error)
}
