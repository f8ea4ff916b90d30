package devices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pocketdesk/pocketdesk/internal/common"
	"github.com/pocketdesk/pocketdesk/internal/dbx"
	"github.com/pocketdesk/pocketdesk/internal/relay/models"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert inserts the device or, on conflict, refreshes its name and
// last_seen. Enabled is preserved on conflict so a disabled device cannot
// re-enable itself by re-registering.
func (r *PostgresRepository) Upsert(ctx context.Context, d *models.Device) error {
	query := `
		INSERT INTO devices (device_id, user_id, name, enabled, last_seen, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (device_id) DO UPDATE SET
			name = excluded.name,
			last_seen = excluded.last_seen
	`
	if _, err := r.db.ExecContext(ctx, query,
		d.DeviceID, d.UserID, d.Name, d.Enabled, d.LastSeen, d.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Find returns the device row for the (deviceID, userID) pair.
// If not found, it returns common.ErrorNotFound.
func (r *PostgresRepository) Find(ctx context.Context, deviceID, userID string) (*models.Device, error) {
	query := `
		SELECT device_id, user_id, name, enabled, last_seen, created_at
		FROM devices
		WHERE device_id = $1 AND user_id = $2
	`
	d := &models.Device{}
	if err := r.db.QueryRowContext(ctx, query, deviceID, userID).
		Scan(&d.DeviceID, &d.UserID, &d.Name, &d.Enabled, &d.LastSeen, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

// ListByUser returns all devices registered for a user, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]models.Device, error) {
	query := `
		SELECT device_id, user_id, name, enabled, last_seen, created_at
		FROM devices
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.DeviceID, &d.UserID, &d.Name, &d.Enabled, &d.LastSeen, &d.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SetEnabled toggles the recovery gate for a device.
func (r *PostgresRepository) SetEnabled(ctx context.Context, deviceID, userID string, enabled bool) error {
	query := `
		UPDATE devices SET enabled = $3 WHERE device_id = $1 AND user_id = $2
	`
	res, err := r.db.ExecContext(ctx, query, deviceID, userID, enabled)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if ra == 0 {
		return common.ErrorNotFound
	}
	return nil
}
