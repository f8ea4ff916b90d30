package sessions

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

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new session row.
func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (token, user_id, device_id, created_at, expires_at, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query,
		s.Token, s.UserID, s.DeviceID, s.CreatedAt, s.ExpiresAt, s.LastActivity); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Find returns the session row for the given token string.
// If not found, it returns common.ErrorNotFound.
func (r *PostgresRepository) Find(ctx context.Context, token string) (*models.Session, error) {
	query := `
		SELECT token, user_id, device_id, created_at, expires_at, last_activity
		FROM sessions
		WHERE token = $1
	`
	s := &models.Session{}
	if err := r.db.QueryRowContext(ctx, query, token).
		Scan(&s.Token, &s.UserID, &s.DeviceID, &s.CreatedAt, &s.ExpiresAt, &s.LastActivity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// TouchActivity refreshes last_activity for an authenticated action.
func (r *PostgresRepository) TouchActivity(ctx context.Context, token string, at time.Time) error {
	query := `
		UPDATE sessions SET last_activity = $2 WHERE token = $1
	`
	if _, err := r.db.ExecContext(ctx, query, token, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Delete removes a session by its token, revoking it.
func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	query := `
		DELETE FROM sessions WHERE token = $1
	`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions past their expiry. Correctness never
// depends on this sweep; expiry is checked at validation time.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM sessions WHERE expires_at <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
