// Package devices provides a PostgreSQL-backed repository for desktop
// devices registered with the relay.
package devices

import (
	"context"

	"github.com/pocketdesk/pocketdesk/internal/relay/models"
)

// Repository defines persistence operations for registered devices.
type Repository interface {
	Upsert(ctx context.Context, device *models.Device) error
	Find(ctx context.Context, deviceID, userID string) (*models.Device, error)
	ListByUser(ctx context.Context, userID string) ([]models.Device, error)
	SetEnabled(ctx context.Context, deviceID, userID string, enabled bool) error
}
