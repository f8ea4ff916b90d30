// Package sessions provides a PostgreSQL-backed repository for device
// sessions issued by the pairing service.
package sessions

import (
	"context"
	"time"

	"github.com/pocketdesk/pocketdesk/internal/relay/models"
)

// Repository defines persistence operations for device sessions.
type Repository interface {
	Create(ctx context.Context, session *models.Session) error
	Find(ctx context.Context, token string) (*models.Session, error)
	TouchActivity(ctx context.Context, token string, at time.Time) error
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
