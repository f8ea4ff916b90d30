package pairingcodes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

// Create inserts a new pairing code.
func (r *PostgresRepository) Create(ctx context.Context, c *models.PairingCode) error {
	query := `
		INSERT INTO pairing_codes (code, user_id, created_at, expires_at, used, attempts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query,
		c.Code, c.UserID, c.CreatedAt, c.ExpiresAt, c.Used, c.Attempts); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Find returns the pairing code row, or common.ErrorNotFound.
func (r *PostgresRepository) Find(ctx context.Context, code string) (*models.PairingCode, error) {
	query := `
		SELECT code, user_id, created_at, expires_at, used, attempts
		FROM pairing_codes
		WHERE code = $1
	`
	c := &models.PairingCode{}
	if err := r.db.QueryRowContext(ctx, query, code).
		Scan(&c.Code, &c.UserID, &c.CreatedAt, &c.ExpiresAt, &c.Used, &c.Attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

// CountCreatedSince counts codes generated for the user on or after cutoff.
func (r *PostgresRepository) CountCreatedSince(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM pairing_codes WHERE user_id = $1 AND created_at >= $2
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, userID, cutoff).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// MarkUsed flips used to true for an unused code. The used = FALSE guard
// makes the transition single-shot even under concurrent redemption; if no
// row was updated it returns common.ErrorNotFound.
func (r *PostgresRepository) MarkUsed(ctx context.Context, code string) error {
	query := `
		UPDATE pairing_codes SET used = TRUE WHERE code = $1 AND used = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, code)
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

// InvalidateUnused expires the user's outstanding unredeemed codes in
// place; generating a new code invalidates the previous one. The rows are
// kept so CountCreatedSince still sees them.
func (r *PostgresRepository) InvalidateUnused(ctx context.Context, userID string, now time.Time) error {
	query := `
		UPDATE pairing_codes SET expires_at = $2 WHERE user_id = $1 AND used = FALSE AND expires_at > $2
	`
	if _, err := r.db.ExecContext(ctx, query, userID, now); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteExpired removes codes expired at or before the cutoff. Storage
// hygiene only; expiry is always re-checked at redemption.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM pairing_codes WHERE expires_at <= $1
	`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
