package users

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

// Create inserts a new user and returns it with the generated id.
func (r *PostgresRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (name, api_key_id, api_key_hash, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, query,
		u.Name, u.APIKeyID, u.APIKeyHash, u.CreatedAt).Scan(&u.ID); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

// FindByKeyID returns the user owning the given API key id, or
// common.ErrorNotFound.
func (r *PostgresRepository) FindByKeyID(ctx context.Context, keyID string) (*models.User, error) {
	query := `
		SELECT id, name, api_key_id, api_key_hash, created_at
		FROM users
		WHERE api_key_id = $1
	`
	u := &models.User{}
	if err := r.db.QueryRowContext(ctx, query, keyID).
		Scan(&u.ID, &u.Name, &u.APIKeyID, &u.APIKeyHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

// Count returns the number of provisioned users.
func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
