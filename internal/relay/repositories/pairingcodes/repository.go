// Package pairingcodes provides a PostgreSQL-backed repository for
// short-lived pairing codes.
package pairingcodes

import (
	"context"
	"time"

	"github.com/pocketdesk/pocketdesk/internal/relay/models"
)

// Repository defines persistence operations for pairing codes.
type Repository interface {
	Create(ctx context.Context, code *models.PairingCode) error
	Find(ctx context.Context, code string) (*models.PairingCode, error)
	// CountCreatedSince counts codes generated for the user on or after the
	// cutoff, used items included. Backs the rolling-window rate limit.
	CountCreatedSince(ctx context.Context, userID string, cutoff time.Time) (int, error)
	MarkUsed(ctx context.Context, code string) error
	// InvalidateUnused expires the user's outstanding unredeemed codes in
	// place. Rows stay behind so the rate-limit window still counts them.
	InvalidateUnused(ctx context.Context, userID string, now time.Time) error
	// DeleteExpired removes codes whose expiry is at or before the cutoff.
	// Callers pass a cutoff older than the rate-limit window so deletion
	// never shrinks the window count.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
