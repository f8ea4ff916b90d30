// Package settings provides the SQLite-backed key-value store holding the
// desktop's pairing state (session token, device id, user id).
package settings

import "context"

// Well-known setting keys.
const (
	KeySessionToken = "session_token"
	KeyDeviceID     = "device_id"
	KeyUserID       = "user_id"
	KeyDeviceName   = "device_name"
)

// Repository defines persistence operations for desktop settings.
type Repository interface {
	// Get returns the value for key, or "" when unset.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
